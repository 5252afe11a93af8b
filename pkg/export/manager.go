package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// ManagerConfig bounds the export pool.
type ManagerConfig struct {
	Dir       string
	Workers   int // concurrent workbook writers
	QueueSize int // jobs allowed to wait for a writer
}

// Manager runs exports on a bounded pool. At most Workers jobs write at
// once and at most Workers+QueueSize jobs are admitted; beyond that Start
// fails with apperrors.ErrExportCapacity.
type Manager struct {
	store   JobStore
	dir     string
	logger  *zap.Logger
	admit   *semaphore.Weighted
	workers *semaphore.Weighted
	now     func() time.Time

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates the export directory and the pool.
func NewManager(store JobStore, cfg ManagerConfig, logger *zap.Logger) (*Manager, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		dir:       cfg.Dir,
		logger:    logger.Named("export"),
		admit:     semaphore.NewWeighted(int64(cfg.Workers + cfg.QueueSize)),
		workers:   semaphore.NewWeighted(int64(cfg.Workers)),
		now:       time.Now,
		baseCtx:   ctx,
		cancelAll: cancel,
		cancels:   make(map[string]context.CancelFunc),
	}, nil
}

// Recover marks stored jobs that are still processing but have no worker in
// this process as failed. A persistent store keeps such jobs across a
// restart. Returns the number of jobs marked.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list export jobs: %w", err)
	}

	m.mu.Lock()
	running := make(map[string]bool, len(m.cancels))
	for id := range m.cancels {
		running[id] = true
	}
	m.mu.Unlock()

	marked := 0
	for _, job := range jobs {
		if job.Status != models.ExportProcessing || running[job.ID] {
			continue
		}
		err := m.store.Update(ctx, job.ID, func(j *models.ExportJob) {
			j.Status = models.ExportError
			j.Error = "interrupted"
		})
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return marked, fmt.Errorf("mark export job %s: %w", job.ID, err)
		}
		marked++
	}
	if marked > 0 {
		m.logger.Warn("Marked interrupted exports as failed", zap.Int("jobs", marked))
	}
	return marked, nil
}

// Start registers a processing job for rs and returns immediately. The
// workbook is written in the background. The job runs under the manager's
// context, not ctx, so it outlives the request; only Cancel and Shutdown
// stop it.
func (m *Manager) Start(ctx context.Context, rs *models.ResultSet) (*models.ExportJob, error) {
	if m.baseCtx.Err() != nil {
		return nil, fmt.Errorf("%w: shutting down", apperrors.ErrExportCapacity)
	}
	if !m.admit.TryAcquire(1) {
		return nil, apperrors.ErrExportCapacity
	}

	id, err := uuid.NewV7()
	if err != nil {
		m.admit.Release(1)
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	now := m.now()
	job := &models.ExportJob{
		ID:        id.String(),
		Status:    models.ExportProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(ctx, job); err != nil {
		m.admit.Release(1)
		return nil, fmt.Errorf("register export job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(m.baseCtx)
	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(jobCtx, job.ID, rs)

	m.logger.Info("Export started",
		zap.String("job_id", job.ID),
		zap.Int("rows", rs.Len()))

	return job, nil
}

func (m *Manager) run(ctx context.Context, id string, rs *models.ResultSet) {
	defer m.wg.Done()
	defer m.admit.Release(1)
	defer m.forget(id)

	// Store writes outlive cancellation so a cancelled job can still be marked.
	storeCtx := context.WithoutCancel(ctx)

	if err := m.workers.Acquire(ctx, 1); err != nil {
		m.fail(storeCtx, id, err)
		return
	}
	defer m.workers.Release(1)

	start := time.Now()
	file := FileName(id)
	err := WriteWorkbook(ctx, filepath.Join(m.dir, file), rs, func(percent int) {
		if err := m.store.Update(storeCtx, id, func(job *models.ExportJob) { job.Progress = percent }); err != nil {
			m.logger.Warn("Failed to record export progress", zap.String("job_id", id), zap.Error(err))
		}
	})
	if err != nil {
		m.fail(storeCtx, id, err)
		return
	}

	if err := m.store.Update(storeCtx, id, func(job *models.ExportJob) {
		job.Status = models.ExportReady
		job.Progress = 100
		job.File = file
	}); err != nil {
		m.logger.Error("Failed to mark export ready", zap.String("job_id", id), zap.Error(err))
		return
	}

	m.logger.Info("Export ready",
		zap.String("job_id", id),
		zap.String("file", file),
		zap.Int("rows", rs.Len()),
		zap.Duration("elapsed", time.Since(start)))
}

func (m *Manager) fail(ctx context.Context, id string, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = "cancelled"
	}
	m.logger.Error("Export failed", zap.String("job_id", id), zap.Error(cause))
	if err := m.store.Update(ctx, id, func(job *models.ExportJob) {
		job.Status = models.ExportError
		job.Error = msg
	}); err != nil {
		m.logger.Error("Failed to mark export failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

// Get returns the job's current state.
func (m *Manager) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	return m.store.Get(ctx, id)
}

// Cancel stops a running or queued job. The job ends with status error.
// Returns apperrors.ErrNotFound when no such job is running.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return apperrors.ErrNotFound
	}
	cancel()
	m.logger.Info("Export cancelled", zap.String("job_id", id))
	return nil
}

// Shutdown cancels every running job and waits for the workers to finish
// marking them, or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dir returns the directory holding finished workbooks.
func (m *Manager) Dir() string {
	return m.dir
}

// FileName is the workbook name for a job.
func FileName(id string) string {
	return "export_" + id + ".xlsx"
}

// ResolveFile maps a requested download name to a finished workbook in dir.
// Only the base name is used, so the result never escapes dir.
func ResolveFile(dir, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || filepath.Ext(base) != ".xlsx" || strings.HasSuffix(base, ".partial.xlsx") {
		return "", apperrors.ErrNotFound
	}
	path := filepath.Join(dir, base)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", apperrors.ErrNotFound
	}
	return path, nil
}
