package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateStore(&cfg.Store)
	v.validateWorkflow(&cfg.Workflow)
	v.validateProgress(&cfg.Progress)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}

	for _, p := range cfg.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			v.addError("log.redact_patterns", p, "invalid regular expression")
		}
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	switch cfg.Driver {
	case "sqlite":
		if cfg.Path == "" {
			v.addError("store.path", cfg.Path, "path required for sqlite")
		} else if !isValidPath(cfg.Path) {
			v.addError("store.path", cfg.Path, "invalid file path")
		}
	case "postgres":
		if cfg.DSN == "" {
			v.addError("store.dsn", cfg.DSN, "dsn required for postgres")
		}
	default:
		v.addError("store.driver", cfg.Driver, "must be one of: sqlite, postgres")
	}

	if cfg.MaxOpenConns < 0 {
		v.addError("store.max_open_conns", cfg.MaxOpenConns, "must be non-negative")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig) {
	if cfg.MaxStages < 1 || cfg.MaxStages > core.ReorderTempOffset {
		v.addError("workflow.max_stages", cfg.MaxStages, fmt.Sprintf("must be between 1 and %d", core.ReorderTempOffset))
	}

	if len(cfg.DefaultStages) == 0 {
		return
	}
	if len(cfg.DefaultStages) > cfg.MaxStages {
		v.addError("workflow.default_stages", len(cfg.DefaultStages), "more stages than workflow.max_stages")
	}

	done := 0
	for i, spec := range cfg.DefaultStages {
		spec = spec.Normalize()
		if err := spec.Validate(); err != nil {
			v.addError(fmt.Sprintf("workflow.default_stages[%d]", i), spec.Name, err.Error())
		}
		if spec.IsDone {
			done++
		}
	}
	if done != 1 {
		v.addError("workflow.default_stages", done, "exactly one done stage required")
	}
}

func (v *Validator) validateProgress(cfg *ProgressConfig) {
	if cfg.Concurrency < 1 || cfg.Concurrency > 64 {
		v.addError("progress.concurrency", cfg.Concurrency, "must be between 1 and 64")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
