package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper deletes old workbooks and job records on a cron schedule.
type Sweeper struct {
	store         JobStore
	dir           string
	fileRetention time.Duration
	jobTTL        time.Duration
	logger        *zap.Logger
	now           func() time.Time
	cron          *cron.Cron
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Files int
	Jobs  int
}

// NewSweeper creates a sweeper over dir and store.
func NewSweeper(store JobStore, dir string, fileRetention, jobTTL time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:         store,
		dir:           dir,
		fileRetention: fileRetention,
		jobTTL:        jobTTL,
		logger:        logger.Named("sweeper"),
		now:           time.Now,
	}
}

// Start schedules Sweep with a standard cron expression or descriptor
// such as "@every 1h".
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("Export sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("Export sweeper scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop stops the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep removes workbooks older than the file retention and job records
// not updated within the job TTL.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	entries, err := os.ReadDir(s.dir)
	if err != nil && !os.IsNotExist(err) {
		return result, fmt.Errorf("read export directory: %w", err)
	}
	fileCutoff := now.Add(-s.fileRetention)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "export_") || filepath.Ext(name) != ".xlsx" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(fileCutoff) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				s.logger.Warn("Failed to remove export file", zap.String("file", name), zap.Error(err))
				continue
			}
			result.Files++
		}
	}

	result.Jobs, err = s.store.DeleteBefore(ctx, now.Add(-s.jobTTL))
	if err != nil {
		return result, fmt.Errorf("delete expired jobs: %w", err)
	}

	if result.Files > 0 || result.Jobs > 0 {
		s.logger.Info("Export sweep completed",
			zap.Int("files_removed", result.Files),
			zap.Int("jobs_removed", result.Jobs))
	}
	return result, nil
}
