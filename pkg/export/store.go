// Package export materializes oversized result sets to spreadsheets in the
// background and tracks the jobs that produce them.
package export

import (
	"context"
	"time"

	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// JobStore persists export job state. Get and Update return
// apperrors.ErrNotFound for unknown or evicted ids. Implementations return
// copies, so callers never share a job with the store.
type JobStore interface {
	Put(ctx context.Context, job *models.ExportJob) error
	Get(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, fn func(job *models.ExportJob)) error
	List(ctx context.Context) ([]*models.ExportJob, error)
	// DeleteBefore removes jobs last updated before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

func cloneJob(job *models.ExportJob) *models.ExportJob {
	c := *job
	return &c
}
