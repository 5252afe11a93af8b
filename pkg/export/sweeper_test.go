package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Now()

	touch := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, now.Add(-age), now.Add(-age)))
	}
	touch("export_old.xlsx", 80*time.Hour)
	touch("export_old.partial.xlsx", 80*time.Hour)
	touch("export_new.xlsx", time.Hour)
	touch("keep_me.xlsx", 80*time.Hour)

	store := NewMemoryStore(16, 0)
	require.NoError(t, store.Put(ctx, newJob("stale", now.Add(-30*time.Hour))))
	require.NoError(t, store.Put(ctx, newJob("fresh", now.Add(-time.Hour))))

	s := NewSweeper(store, dir, 72*time.Hour, 24*time.Hour, zaptest.NewLogger(t))
	result, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Files: 2, Jobs: 1}, result)

	for name, exists := range map[string]bool{
		"export_old.xlsx":         false,
		"export_old.partial.xlsx": false,
		"export_new.xlsx":         true,
		"keep_me.xlsx":            true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.Equal(t, exists, err == nil, name)
	}

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSweeper_MissingDirectory(t *testing.T) {
	s := NewSweeper(NewMemoryStore(4, time.Hour), filepath.Join(t.TempDir(), "absent"), time.Hour, time.Hour, zaptest.NewLogger(t))
	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}

func TestSweeper_Start(t *testing.T) {
	s := NewSweeper(NewMemoryStore(4, time.Hour), t.TempDir(), time.Hour, time.Hour, zaptest.NewLogger(t))

	assert.Error(t, s.Start("not a schedule"))
	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
}
