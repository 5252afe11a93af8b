package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/logging"
	"github.com/ekaya-inc/exim-agent/pkg/models"
	tsql "github.com/ekaya-inc/exim-agent/pkg/sql"
)

// Executor runs generated queries against the trade database.
type Executor struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutor creates an executor over the adapter's pool.
func NewExecutor(db *sql.DB, logger *zap.Logger) *Executor {
	return &Executor{db: db, logger: logger.Named("executor")}
}

// Session pins one pooled connection so the primary and summary queries of
// a request run on the same connection. Close returns it to the pool.
type Session struct {
	conn   *sql.Conn
	logger *zap.Logger
}

// Session acquires a connection for one request.
func (e *Executor) Session(ctx context.Context) (*Session, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn, logger: e.logger}, nil
}

// Close releases the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// QueryResult is a formatted result and the statement that produced it.
type QueryResult struct {
	*models.ResultSet
	SQL      string
	Repaired bool
}

// Query validates and runs a generated statement. Statements the guard
// refuses never reach the driver and fail with *tsql.StatementError. An
// invalid-column or syntax failure triggers one retry with name equality
// predicates rewritten to contains-matches; any other failure, or a failure
// of the retry, is returned as *ExecError.
func (s *Session) Query(ctx context.Context, query string) (*QueryResult, error) {
	guarded, err := tsql.Guard(query)
	if err != nil {
		s.logger.Warn("Statement rejected",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Error(err))
		return nil, err
	}

	rs, err := s.run(ctx, guarded)
	if err == nil {
		return &QueryResult{ResultSet: rs, SQL: guarded}, nil
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) || !execErr.Repairable() {
		return nil, err
	}

	// One retry with exact name matches turned into LIKE patterns.
	repaired, changed := tsql.RepairNameEquality(guarded)
	if !changed {
		return nil, err
	}

	s.logger.Info("Retrying with name predicates relaxed",
		zap.String("kind", string(execErr.Kind)),
		zap.String("query", logging.SanitizeQuery(repaired)))

	// The rewritten statement passes the same checks as the original.
	if _, gerr := tsql.Guard(repaired); gerr != nil {
		return nil, gerr
	}

	rs, err = s.run(ctx, repaired)
	if err != nil {
		return nil, err
	}
	return &QueryResult{ResultSet: rs, SQL: repaired, Repaired: true}, nil
}

func (s *Session) run(ctx context.Context, query string) (*models.ResultSet, error) {
	start := time.Now()

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail(ctx, query, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("get column types: %w", err)
	}
	dbTypes := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		dbTypes[i] = ct.DatabaseTypeName()
	}

	rs := &models.ResultSet{Columns: columns, Rows: make([]models.Row, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i := range values {
			values[i] = formatValue(columns[i], dbTypes[i], values[i])
		}
		rs.Rows = append(rs.Rows, models.NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, query, err)
	}

	s.logger.Debug("Query completed",
		zap.String("query", logging.SanitizeQuery(query)),
		zap.Int("rows", len(rs.Rows)),
		zap.Duration("elapsed", time.Since(start)))

	return rs, nil
}

// fail wraps driver errors. Context errors pass through unwrapped so the
// caller can tell a deadline from a bad query.
func (s *Session) fail(ctx context.Context, query string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	execErr := newExecError(query, err)
	s.logger.Error("Query failed",
		zap.String("kind", string(execErr.Kind)),
		zap.String("query", logging.SanitizeQuery(query)),
		zap.String("error", logging.SanitizeError(err)))
	return execErr
}
