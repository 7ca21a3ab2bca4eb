// Package redisstore provides a Redis-backed jobs.JobStore so ingestion job
// status survives process restarts and is visible to every service instance.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sokoledger/sokoledger/internal/jobs"
)

// Store persists job status records as JSON values in Redis. Records carry a
// retention TTL so old jobs are evicted instead of accumulating forever.
type Store struct {
	client    *redis.Client
	retention time.Duration
}

// DefaultRetention is how long a job status record is kept after its last
// update.
const DefaultRetention = 30 * 24 * time.Hour

// NewStore creates a Redis-backed job store. A non-positive retention uses
// DefaultRetention.
func NewStore(client *redis.Client, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{client: client, retention: retention}
}

func jobKey(jobID string) string {
	return "job:" + jobID
}

func tenantIndexKey(tenantID string) string {
	return "jobs:tenant:" + tenantID
}

// SaveJob implements jobs.JobStore. Only status fields are serialized; the
// row payload has json:"-" tags and never reaches Redis.
func (s *Store) SaveJob(ctx context.Context, job *jobs.IngestionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.JobID), data, s.retention)
	pipe.SAdd(ctx, tenantIndexKey(job.TenantID), job.JobID)
	pipe.Expire(ctx, tenantIndexKey(job.TenantID), s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.IngestionJob, error) {
	data, err := s.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	var job jobs.IngestionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobs implements jobs.JobStore. Listing requires a tenant filter: jobs
// are indexed per tenant and there is no global scan.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestionJob, error) {
	if filter.TenantID == "" {
		return nil, fmt.Errorf("listing jobs requires a tenant_id filter")
	}

	ids, err := s.client.SMembers(ctx, tenantIndexKey(filter.TenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs for tenant %s: %w", filter.TenantID, err)
	}

	var result []*jobs.IngestionJob
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			// Evicted record still referenced from the index; skip it.
			continue
		}
		if filter.State != "" && job.State != filter.State {
			continue
		}
		result = append(result, job)
	}

	// SMembers returns ids in no particular order; sort newest first so
	// Offset/Limit paging is stable across calls.
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

var _ jobs.JobStore = (*Store)(nil)
