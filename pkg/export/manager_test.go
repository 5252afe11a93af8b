package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

func newTestManager(t *testing.T, workers, queue int) *Manager {
	t.Helper()
	m, err := NewManager(NewMemoryStore(64, time.Hour), ManagerConfig{
		Dir:       filepath.Join(t.TempDir(), "exports"),
		Workers:   workers,
		QueueSize: queue,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want models.ExportStatus) *models.ExportJob {
	t.Helper()
	var job *models.ExportJob
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(context.Background(), id)
		return err == nil && job.Status == want
	}, 30*time.Second, 20*time.Millisecond)
	return job
}

func TestManager_LargeExportBecomesReady(t *testing.T) {
	m := newTestManager(t, 2, 4)

	job, err := m.Start(context.Background(), shipmentRows(15000))
	require.NoError(t, err)
	assert.Equal(t, models.ExportProcessing, job.Status)

	parsed, err := uuid.Parse(job.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	done := waitForStatus(t, m, job.ID, models.ExportReady)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, FileName(job.ID), done.File)

	path, err := ResolveFile(m.Dir(), done.File)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 15001)
}

func TestManager_CapacityRejection(t *testing.T) {
	m := newTestManager(t, 1, 1)

	// Hold the only writer so admitted jobs stay queued.
	require.NoError(t, m.workers.Acquire(context.Background(), 1))

	first, err := m.Start(context.Background(), shipmentRows(10))
	require.NoError(t, err)
	second, err := m.Start(context.Background(), shipmentRows(10))
	require.NoError(t, err)

	_, err = m.Start(context.Background(), shipmentRows(10))
	assert.ErrorIs(t, err, apperrors.ErrExportCapacity)

	m.workers.Release(1)
	waitForStatus(t, m, first.ID, models.ExportReady)
	waitForStatus(t, m, second.ID, models.ExportReady)

	// Slots are released once jobs finish.
	third, err := m.Start(context.Background(), shipmentRows(10))
	require.NoError(t, err)
	waitForStatus(t, m, third.ID, models.ExportReady)
}

func TestManager_CancelQueuedJob(t *testing.T) {
	m := newTestManager(t, 1, 1)
	require.NoError(t, m.workers.Acquire(context.Background(), 1))
	defer m.workers.Release(1)

	job, err := m.Start(context.Background(), shipmentRows(10))
	require.NoError(t, err)

	require.NoError(t, m.Cancel(job.ID))
	failed := waitForStatus(t, m, job.ID, models.ExportError)
	assert.Equal(t, "cancelled", failed.Error)
	assert.Empty(t, failed.File)

	assert.Eventually(t, func() bool {
		return m.Cancel(job.ID) == apperrors.ErrNotFound
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManager_ShutdownCancelsJobs(t *testing.T) {
	m := newTestManager(t, 1, 2)
	require.NoError(t, m.workers.Acquire(context.Background(), 1))
	defer m.workers.Release(1)

	job, err := m.Start(context.Background(), shipmentRows(10))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportError, got.Status)

	_, err = m.Start(context.Background(), shipmentRows(10))
	assert.ErrorIs(t, err, apperrors.ErrExportCapacity)
}

func TestManager_UnknownJob(t *testing.T) {
	m := newTestManager(t, 1, 0)

	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, m.Cancel("nope"), apperrors.ErrNotFound)
}

func TestManager_RecoverMarksOrphanedJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(16, time.Hour)
	now := time.Now()
	require.NoError(t, store.Put(ctx, newJob("orphan", now)))
	done := newJob("done", now)
	done.Status = models.ExportReady
	require.NoError(t, store.Put(ctx, done))

	m, err := NewManager(store, ManagerConfig{Dir: t.TempDir(), Workers: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)

	marked, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	job, err := m.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, models.ExportError, job.Status)
	assert.Equal(t, "interrupted", job.Error)

	job, err = m.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, models.ExportReady, job.Status)
}

func TestManager_RecoverSkipsRunningJobs(t *testing.T) {
	m := newTestManager(t, 1, 1)
	ctx := context.Background()

	// Hold the only writer so the next job stays queued.
	require.NoError(t, m.workers.Acquire(ctx, 1))
	job, err := m.Start(ctx, shipmentRows(5))
	require.NoError(t, err)

	marked, err := m.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	m.workers.Release(1)
	waitForStatus(t, m, job.ID, models.ExportReady)
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export_1.xlsx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export_2.partial.xlsx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	path, err := ResolveFile(dir, "export_1.xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export_1.xlsx"), path)

	path, err = ResolveFile(dir, "../../elsewhere/export_1.xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export_1.xlsx"), path)

	for _, name := range []string{"", "/", "notes.txt", "export_2.partial.xlsx", "missing.xlsx", "../../etc/passwd"} {
		_, err := ResolveFile(dir, name)
		assert.ErrorIs(t, err, apperrors.ErrNotFound, name)
	}
}
