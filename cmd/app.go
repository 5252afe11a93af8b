package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/exim-agent/pkg/config"
	"github.com/ekaya-inc/exim-agent/pkg/export"
	"github.com/ekaya-inc/exim-agent/pkg/llm"
	"github.com/ekaya-inc/exim-agent/pkg/schema"
	"github.com/ekaya-inc/exim-agent/pkg/services"
)

// app holds the long-lived components shared by serve and ask.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *mssql.Adapter
	completer *llm.BreakerCompleter
	store     export.JobStore
	exports   *export.Manager
	agent     services.QueryAgent
}

// newApp connects to the database, loads the schema catalog and wires the
// pipeline. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.db, err = mssql.Open(ctx, cfg.MSSQL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	catalog, err := schema.Load(ctx, a.db.DB(), cfg.Pipeline.Tables, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	a.completer, err = llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	a.store, err = newJobStore(cfg.Export, logger)
	if err != nil {
		return nil, err
	}

	a.exports, err = export.NewManager(a.store, export.ManagerConfig{
		Dir:       cfg.Export.Dir,
		Workers:   cfg.Export.Workers,
		QueueSize: cfg.Export.QueueSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create export manager: %w", err)
	}
	if _, err := a.exports.Recover(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover export jobs: %w", err)
	}

	a.agent = services.NewQueryAgent(
		a.completer,
		mssql.NewExecutor(a.db.DB(), logger),
		a.exports,
		catalog.Render(),
		cfg.Pipeline,
		logger,
	)
	return a, nil
}

// newJobStore opens the configured export job registry.
func newJobStore(cfg config.ExportConfig, logger *zap.Logger) (export.JobStore, error) {
	switch cfg.Store {
	case "sqlite":
		store, err := export.OpenSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open export job store: %w", err)
		}
		return store, nil
	case "memory", "":
		return export.NewMemoryStore(cfg.MaxJobs, cfg.JobTTL()), nil
	default:
		return nil, fmt.Errorf("unknown export store %q", cfg.Store)
	}
}

// close stops running exports and releases connections. Errors are logged.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.exports != nil {
		if err := a.exports.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("export shutdown: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("job store: %w", err))
		}
	}
	if a.completer != nil {
		if err := a.completer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("completion client: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Shutdown incomplete", zap.Error(err))
	}
}
