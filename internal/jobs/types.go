package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sokoledger/sokoledger/internal/domain"
)

// JobState represents where an ingestion job is in its lifecycle.
// Transitions: queued → processing → {completed | failed}. Both completed and
// failed are terminal.
type JobState string

const (
	// JobStateQueued is the initial state, set at submission before the
	// batch begins executing.
	JobStateQueued JobState = "queued"
	// JobStateProcessing means the runner is iterating rows; counters
	// update incrementally while in this state.
	JobStateProcessing JobState = "processing"
	// JobStateCompleted means every row was normalized/deduplicated and
	// all accepted records were durably written.
	JobStateCompleted JobState = "completed"
	// JobStateFailed means an unrecoverable error occurred (sink write
	// failure or cancellation). Counters are not trusted in this state:
	// the job is reported as wholly failed even if some chunks landed.
	JobStateFailed JobState = "failed"
)

// IngestionJob tracks one upload from submission to completion. It is owned
// and mutated exclusively by the job runner; everyone else reads copies
// through a JobStore.
type IngestionJob struct {
	JobID    string            `json:"job_id"`
	TenantID string            `json:"tenant_id"`
	Source   domain.SourceType `json:"source"`

	State JobState `json:"state"`

	RowsSubmitted int `json:"rows_submitted"`
	RowsAccepted  int `json:"rows_accepted"`
	// RowsRejected counts parse failures (bad date/amount). Duplicates are
	// counted separately so operators can tell bad data from a re-upload.
	RowsRejected  int `json:"rows_rejected"`
	RowsDuplicate int `json:"rows_duplicate"`

	// Error is set only when State == failed.
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Rows and Columns are the in-memory batch payload carried from
	// submission to the worker. They are not part of the status record and
	// are dropped from status responses.
	Rows    []domain.RawRecord `json:"-"`
	Columns map[string]string  `json:"-"`
}

// ErrNotFound is returned by JobStore lookups for unknown or evicted job IDs.
var ErrNotFound = errors.New("job not found")

// Handler processes one ingestion job to completion or failure.
type Handler func(ctx context.Context, job *IngestionJob) error

// Publisher enqueues ingestion jobs for asynchronous processing. The
// abstraction allows different queue implementations (in-memory channel,
// Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishIngestion enqueues a job. The job must already be persisted
	// in the JobStore in state queued.
	PublishIngestion(ctx context.Context, job *IngestionJob) error

	// Close releases queue resources.
	Close() error
}

// Consumer pulls ingestion jobs off a queue and hands them to a Handler.
type Consumer interface {
	// Start begins consuming; the handler is invoked concurrently up to
	// the consumer's worker count.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight jobs to finish.
	Stop(ctx context.Context) error
}

// JobStore persists job status records so a status query from a different
// execution context sees partial progress while a batch runs. State must
// survive restarts for the production implementation; the in-memory store is
// a documented single-process limitation.
type JobStore interface {
	// SaveJob inserts or replaces a job's status record.
	SaveJob(ctx context.Context, job *IngestionJob) error

	// GetJob returns a copy of a job by ID, or ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*IngestionJob, error)

	// ListJobs returns job records matching the filter.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestionJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	TenantID string
	State    JobState
	Limit    int
	Offset   int
}
