package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/config"
	"github.com/ekaya-inc/exim-agent/pkg/logging"
	"github.com/ekaya-inc/exim-agent/pkg/retry"
)

// Adapter owns the connection pool to the trade database.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to SQL Server and verifies the connection, retrying the
// ping with exponential backoff.
func Open(ctx context.Context, cfg config.MSSQLConfig, logger *zap.Logger) (*Adapter, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger = logger.Named("mssql")

	dsn := DSN(cfg)
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("Database ping failed",
				zap.String("dsn", logging.SanitizeConnectionString(dsn)),
				zap.String("error", logging.SanitizeError(err)))
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	logger.Info("Connected to database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Bool("read_only_intent", cfg.ReadOnlyIntent))

	return NewAdapter(db, logger), nil
}

// NewAdapter wraps an existing pool.
func NewAdapter(db *sql.DB, logger *zap.Logger) *Adapter {
	return &Adapter{db: db, logger: logger}
}

// TestConnection verifies the database is reachable and answering queries.
func (a *Adapter) TestConnection(ctx context.Context) error {
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// DB returns the underlying pool for the schema catalog and executor.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}
