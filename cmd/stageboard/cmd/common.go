package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/stageboard/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/stageboard/internal/audit"
	"github.com/hugo-lorenzo-mato/stageboard/internal/config"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
	"github.com/hugo-lorenzo-mato/stageboard/internal/service/assignment"
	"github.com/hugo-lorenzo-mato/stageboard/internal/service/migration"
	"github.com/hugo-lorenzo-mato/stageboard/internal/service/progress"
	"github.com/hugo-lorenzo-mato/stageboard/internal/service/stages"
)

// app bundles what a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *store.SQLStore
	audit   audit.Recorder
	logFile *os.File
}

// openApp loads configuration, builds the logger and opens the store.
func openApp(cmd *cobra.Command) (*app, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{cfg: cfg}

	var logOut io.Writer = cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}
	a.logger = logging.New(logging.Config{
		Level:          cfg.Log.Level,
		Format:         cfg.Log.Format,
		Output:         logOut,
		RedactPatterns: cfg.Log.RedactPatterns,
	})

	st, err := store.Open(cmd.Context(), store.Options{
		Driver:       cfg.Store.Driver,
		Path:         cfg.Store.Path,
		DSN:          cfg.Store.DSN,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = st

	if cfg.Audit.Enabled {
		a.audit = audit.NewLogRecorder(a.logger.With("component", "audit"))
	} else {
		a.audit = audit.NopRecorder{}
	}

	a.logger.Debug("store opened", "driver", st.Driver())
	return a, nil
}

// Close releases the store and the log file.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", "error", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func (a *app) engine() *stages.Engine {
	return stages.New(a.store,
		stages.WithMaxStages(a.cfg.Workflow.MaxStages),
		stages.WithLogger(a.logger),
	)
}

func (a *app) validator() *assignment.Validator {
	return assignment.New(a.store, assignment.WithLogger(a.logger))
}

func (a *app) progress() *progress.Service {
	return progress.NewService(a.store,
		progress.WithConcurrency(a.cfg.Progress.Concurrency),
		progress.WithLogger(a.logger),
	)
}

func (a *app) migrator() *migration.Migrator {
	return migration.New(a.store, migration.WithLogger(a.logger))
}

// record emits an audit event for a committed mutation. Audit failures are
// logged and never undo the mutation.
func (a *app) record(ctx context.Context, eventType string, metadata map[string]any) {
	if actor != "" {
		metadata["actor"] = actor
	}
	if err := audit.Emit(ctx, a.audit, eventType, metadata); err != nil {
		a.logger.Warn("audit event dropped", "event_type", eventType, "error", err)
	}
}

// actorPtr returns the --actor value as created_by, or nil when unset.
func actorPtr() *string {
	if actor == "" {
		return nil
	}
	a := actor
	return &a
}
