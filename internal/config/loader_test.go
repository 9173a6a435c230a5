package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stageboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.Path != ".stageboard/stageboard.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Workflow.MaxStages != core.DefaultMaxStages {
		t.Errorf("Workflow.MaxStages = %d, want %d", cfg.Workflow.MaxStages, core.DefaultMaxStages)
	}
	if len(cfg.Workflow.DefaultStages) != 4 {
		t.Errorf("Workflow.DefaultStages = %d stages, want 4", len(cfg.Workflow.DefaultStages))
	}
	if cfg.Progress.Concurrency != 4 {
		t.Errorf("Progress.Concurrency = %d, want 4", cfg.Progress.Concurrency)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled = false, want true")
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("STAGEBOARD_LOG_LEVEL", "debug")
	t.Setenv("STAGEBOARD_STORE_DRIVER", "postgres")
	t.Setenv("STAGEBOARD_STORE_DSN", "postgres://app:pw@localhost:5432/stageboard")
	t.Setenv("STAGEBOARD_WORKFLOW_MAX_STAGES", "12")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		t.Error("Store.DSN not read from environment")
	}
	if cfg.Workflow.MaxStages != 12 {
		t.Errorf("Workflow.MaxStages = %d, want 12", cfg.Workflow.MaxStages)
	}
}

func TestLoader_ConfigFileOverride(t *testing.T) {
	path := writeConfig(t, `
log:
  level: warn
  format: json
store:
  path: /var/lib/stageboard/board.db
workflow:
  max_stages: 20
  default_stages:
    - name: Todo
      category: backlog
      progress_percent: 0
    - name: Shipped
      category: done
      progress_percent: 100
progress:
  concurrency: 2
`)

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Store.Path != "/var/lib/stageboard/board.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Workflow.MaxStages != 20 {
		t.Errorf("Workflow.MaxStages = %d, want 20", cfg.Workflow.MaxStages)
	}
	if len(cfg.Workflow.DefaultStages) != 2 {
		t.Fatalf("Workflow.DefaultStages = %+v", cfg.Workflow.DefaultStages)
	}
	if cfg.Workflow.DefaultStages[1].Category != core.CategoryDone {
		t.Errorf("second stage category = %q", cfg.Workflow.DefaultStages[1].Category)
	}
	if cfg.Progress.Concurrency != 2 {
		t.Errorf("Progress.Concurrency = %d, want 2", cfg.Progress.Concurrency)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}
}

func TestLoader_Precedence(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	t.Setenv("STAGEBOARD_LOG_LEVEL", "debug")

	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (env should override file)", cfg.Log.Level, "debug")
	}
}

func TestLoader_InvalidConfigFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: [invalid yaml\n")

	if _, err := NewLoader().WithConfigFile(path).Load(); err == nil {
		t.Error("Load() with invalid config should return error")
	}
}

func TestLoader_WithEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "error")
	}
}

func TestLoader_DefaultConfigYAML(t *testing.T) {
	path := writeConfig(t, DefaultConfigYAML)

	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v, default config should be valid", err)
	}

	want := core.DefaultStageSpecs()
	if len(cfg.Workflow.DefaultStages) != len(want) {
		t.Fatalf("DefaultStages = %+v", cfg.Workflow.DefaultStages)
	}
	for i, spec := range cfg.Workflow.DefaultStages {
		if spec.Name != want[i].Name || spec.ProgressPercent != want[i].ProgressPercent {
			t.Errorf("stage %d = %+v, want %+v", i, spec, want[i])
		}
	}
	if cfg.Progress.Concurrency != 4 {
		t.Errorf("Progress.Concurrency = %d, want 4", cfg.Progress.Concurrency)
	}
	if !strings.Contains(DefaultConfigYAML, "# Epics computed in parallel within one project progress report.") {
		t.Errorf("progress.concurrency comment does not describe per-report epic fan-out")
	}
}

func TestLoader_Accessors(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	loader.Set("store.driver", "postgres")
	if loader.Get("store.driver") != "postgres" {
		t.Errorf("Get() = %v", loader.Get("store.driver"))
	}
	if !loader.IsSet("store.driver") {
		t.Error("IsSet() = false")
	}
	if _, ok := loader.AllSettings()["store"]; !ok {
		t.Error("AllSettings() missing store")
	}
	if loader.Viper() == nil {
		t.Error("Viper() returned nil")
	}
}
