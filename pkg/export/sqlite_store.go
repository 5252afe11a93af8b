package export

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists jobs in a local SQLite database so status lookups
// survive restarts.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies pending migrations.
func OpenSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	logger = logger.Named("jobstore")
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// runMigrations applies the embedded migrations. It is idempotent.
func runMigrations(db *sql.DB, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("No migrations to apply (job store up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("Applied job store migrations", zap.Uint("version", version))
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, job *models.ExportJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_jobs (id, status, progress, file, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			file = excluded.file,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		job.ID, string(job.Status), job.Progress, job.File, job.Error,
		job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

const selectJob = `SELECT id, status, progress, file, error, created_at, updated_at FROM export_jobs`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	row := s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

// Update reads, mutates and writes the job in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(job *models.ExportJob)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	job, err := scanJob(tx.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get export job: %w", err)
	}

	fn(job)
	job.UpdatedAt = s.now()

	_, err = tx.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, progress = ?, file = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, job.File, job.Error, job.UpdatedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return tx.Commit()
}

// List returns jobs oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.ExportJob, error) {
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM export_jobs WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete export jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ExportJob, error) {
	var (
		job                  models.ExportJob
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&job.ID, &status, &job.Progress, &job.File, &job.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.Status = models.ExportStatus(status)
	job.CreatedAt = time.Unix(0, createdAt)
	job.UpdatedAt = time.Unix(0, updatedAt)
	return &job, nil
}

var _ JobStore = (*SQLiteStore)(nil)
