package export

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// MemoryStore keeps at most maxJobs jobs, each for at most ttl. The least
// recently used job is evicted first when the store is full.
type MemoryStore struct {
	mu   sync.Mutex
	jobs *expirable.LRU[string, *models.ExportJob]
	now  func() time.Time
}

// NewMemoryStore creates a bounded in-process store.
func NewMemoryStore(maxJobs int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: expirable.NewLRU[string, *models.ExportJob](maxJobs, nil, ttl),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, job *models.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs.Add(job.ID, cloneJob(job))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs.Get(id)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(job *models.ExportJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs.Peek(id)
	if !ok {
		return apperrors.ErrNotFound
	}
	updated := cloneJob(job)
	fn(updated)
	updated.UpdatedAt = s.now()
	s.jobs.Add(id, updated)
	return nil
}

// List returns jobs oldest first.
func (s *MemoryStore) List(_ context.Context) ([]*models.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.jobs.Values()
	out := make([]*models.ExportJob, 0, len(values))
	for _, job := range values {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range s.jobs.Keys() {
		job, ok := s.jobs.Peek(id)
		if ok && job.UpdatedAt.Before(cutoff) {
			s.jobs.Remove(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs.Purge()
	return nil
}

var _ JobStore = (*MemoryStore)(nil)
