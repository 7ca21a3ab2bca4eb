package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sokoledger/sokoledger/internal/jobs"
)

// Store is an in-memory implementation of jobs.JobStore. It is safe for
// concurrent use; status records are lost on restart, so it is suitable only
// for single-process demos and tests. Production deployments use the
// Redis-backed store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.IngestionJob
}

// NewStore creates an empty in-memory job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.IngestionJob)}
}

// SaveJob implements jobs.JobStore. The stored record is a copy of the status
// fields only; the row payload stays with the runner.
func (s *Store) SaveJob(ctx context.Context, job *jobs.IngestionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = statusCopy(job)
	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}

	cp := *job
	return &cp, nil
}

// ListJobs implements jobs.JobStore.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.IngestionJob
	for _, job := range s.jobs {
		if filter.TenantID != "" && job.TenantID != filter.TenantID {
			continue
		}
		if filter.State != "" && job.State != filter.State {
			continue
		}
		cp := *job
		result = append(result, &cp)
	}

	// Map iteration order is random; sort newest first so Offset/Limit paging
	// is stable across calls.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.IngestionJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// statusCopy copies a job's status fields, dropping the row payload so the
// store never pins a batch's raw rows in memory after processing.
func statusCopy(job *jobs.IngestionJob) *jobs.IngestionJob {
	cp := *job
	cp.Rows = nil
	cp.Columns = nil
	return &cp
}

var _ jobs.JobStore = (*Store)(nil)
