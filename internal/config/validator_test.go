package config

import (
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			Path:         ".stageboard/stageboard.db",
			MaxOpenConns: 8,
		},
		Workflow: WorkflowConfig{
			MaxStages:     core.DefaultMaxStages,
			DefaultStages: core.DefaultStageSpecs(),
		},
		Progress: ProgressConfig{Concurrency: 4},
		Audit:    AuditConfig{Enabled: true},
	}
}

func hasField(err error, field string) bool {
	errs, ok := err.(ValidationErrors)
	if !ok {
		return false
	}
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidator_ValidConfig(t *testing.T) {
	if err := NewValidator().Validate(validConfig()); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidator_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"redact pattern", func(c *Config) { c.Log.RedactPatterns = []string{"("} }, "log.redact_patterns"},
		{"driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"sqlite path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"max open conns", func(c *Config) { c.Store.MaxOpenConns = -1 }, "store.max_open_conns"},
		{"max stages zero", func(c *Config) { c.Workflow.MaxStages = 0 }, "workflow.max_stages"},
		{"max stages too large", func(c *Config) { c.Workflow.MaxStages = core.ReorderTempOffset + 1 }, "workflow.max_stages"},
		{"too many default stages", func(c *Config) { c.Workflow.MaxStages = 2 }, "workflow.default_stages"},
		{"no done stage", func(c *Config) { c.Workflow.DefaultStages = c.Workflow.DefaultStages[:3] }, "workflow.default_stages"},
		{"bad default stage", func(c *Config) { c.Workflow.DefaultStages[0].Category = "someday" }, "workflow.default_stages[0]"},
		{"concurrency", func(c *Config) { c.Progress.Concurrency = 0 }, "progress.concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := NewValidator().Validate(cfg)
			if err == nil {
				t.Fatalf("Validate() error = nil, want error on %s", tt.field)
			}
			if !hasField(err, tt.field) {
				t.Errorf("error = %v, should mention %s", err, tt.field)
			}
		})
	}
}

func TestValidator_PostgresWithDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Store = StoreConfig{Driver: "postgres", DSN: "postgres://localhost/stageboard"}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidator_EmptyDefaultStagesAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Workflow.DefaultStages = nil
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidator_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "invalid"
	cfg.Store.Driver = "invalid"
	cfg.Progress.Concurrency = 100

	v := NewValidator()
	if err := v.Validate(cfg); err == nil {
		t.Fatal("Validate() error = nil")
	}
	if len(v.Errors()) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(v.Errors()), v.Errors())
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "store.driver",
		Value:   "mysql",
		Message: "must be one of: sqlite, postgres",
	}

	errStr := err.Error()
	for _, want := range []string{"store.driver", "must be one of", "mysql"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error string %q should contain %q", errStr, want)
		}
	}
}

func TestValidationErrors_HasErrors(t *testing.T) {
	if (ValidationErrors{}).HasErrors() {
		t.Error("empty ValidationErrors should not have errors")
	}

	withErrors := ValidationErrors{
		{Field: "f1", Value: "v", Message: "m"},
		{Field: "f2", Value: "v", Message: "m"},
	}
	if !withErrors.HasErrors() {
		t.Error("non-empty ValidationErrors should have errors")
	}
	if !strings.Contains(withErrors.Error(), "f1") || !strings.Contains(withErrors.Error(), "f2") {
		t.Errorf("Error() = %q", withErrors.Error())
	}
}
