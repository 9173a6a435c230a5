package config

import "github.com/hugo-lorenzo-mato/stageboard/internal/core"

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Progress ProgressConfig `mapstructure:"progress"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level          string   `mapstructure:"level"`
	Format         string   `mapstructure:"format"`
	File           string   `mapstructure:"file"`
	RedactPatterns []string `mapstructure:"redact_patterns"`
}

// StoreConfig selects and configures the relational backend.
type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// WorkflowConfig configures stage editing.
type WorkflowConfig struct {
	MaxStages int `mapstructure:"max_stages"`
	// DefaultStages seeds workflows created without an explicit stage list.
	DefaultStages []core.StageSpec `mapstructure:"default_stages"`
}

// ProgressConfig configures progress reporting.
type ProgressConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// AuditConfig configures audit event emission.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
