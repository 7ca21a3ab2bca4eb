package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sokoledger/sokoledger/internal/dedup"
	"github.com/sokoledger/sokoledger/internal/domain"
	"github.com/sokoledger/sokoledger/internal/jobs"
	"github.com/sokoledger/sokoledger/internal/warehouse"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize bounds each warehouse write to respect sink payload
	// limits.
	DefaultChunkSize = 500

	// DefaultParallelism bounds the row-normalization worker pool within
	// one job.
	DefaultParallelism = 8
)

// Runner orchestrates ingestion jobs: synchronous precondition checks at
// submission, then asynchronous per-row normalization, deduplication and
// chunked warehouse writes, with the job status record updated throughout.
type Runner struct {
	store jobs.JobStore
	queue jobs.Publisher
	keys  dedup.KeyStore
	sink  warehouse.TransactionSink
	log   zerolog.Logger

	currency    string
	chunkSize   int
	parallelism int
}

// Config carries Runner construction options. Zero values fall back to
// defaults.
type Config struct {
	Currency    string
	ChunkSize   int
	Parallelism int
}

// NewRunner wires a runner onto its collaborators. The queue may be nil for
// callers that drive Process directly (CLI one-shot ingestion, tests).
func NewRunner(store jobs.JobStore, queue jobs.Publisher, keys dedup.KeyStore, sink warehouse.TransactionSink, log zerolog.Logger, cfg Config) *Runner {
	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Runner{
		store:       store,
		queue:       queue,
		keys:        keys,
		sink:        sink,
		log:         log,
		currency:    cfg.Currency,
		chunkSize:   cfg.ChunkSize,
		parallelism: cfg.Parallelism,
	}
}

// buildJob runs the synchronous submission path: CSV decode, column
// resolution, the mandatory-field check, and persisting the job in state
// queued. A precondition failure returns before any job record exists.
func (r *Runner) buildJob(ctx context.Context, tenantID string, source domain.SourceType, raw []byte) (*jobs.IngestionJob, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	headers, rows, err := DecodeCSV(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file contains no data rows")
	}

	columns, err := NewFieldResolver(source).ResolveColumns(headers)
	if err != nil {
		return nil, err
	}

	job := &jobs.IngestionJob{
		JobID:         uuid.New().String(),
		TenantID:      tenantID,
		Source:        source,
		State:         jobs.JobStateQueued,
		RowsSubmitted: len(rows),
		CreatedAt:     time.Now().UTC(),
		Rows:          rows,
		Columns:       columnsToMap(columns),
	}

	if err := r.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}

	r.log.Info().
		Str("job_id", job.JobID).
		Str("tenant_id", tenantID).
		Str("source", string(source)).
		Int("rows_submitted", len(rows)).
		Msg("Ingestion job submitted")

	return job, nil
}

// Submit validates an upload and enqueues it for processing. Precondition
// checks run synchronously so the caller hears about a whole-batch failure
// immediately; processing happens off the caller's path and is polled via
// the job store.
//
// The returned record is a detached status snapshot. Once the job is
// published a queue worker owns and mutates the underlying struct, so the
// caller must never be handed that pointer.
func (r *Runner) Submit(ctx context.Context, tenantID string, source domain.SourceType, raw []byte) (*jobs.IngestionJob, error) {
	job, err := r.buildJob(ctx, tenantID, source, raw)
	if err != nil {
		return nil, err
	}

	status := *job
	status.Rows = nil
	status.Columns = nil

	if r.queue != nil {
		if err := r.queue.PublishIngestion(ctx, job); err != nil {
			return nil, fmt.Errorf("enqueueing job: %w", err)
		}
	}

	return &status, nil
}

// Run ingests one upload synchronously, bypassing the queue. It returns the
// finished job record; callers that need fire-and-forget semantics use
// Submit instead.
func (r *Runner) Run(ctx context.Context, tenantID string, source domain.SourceType, raw []byte) (*jobs.IngestionJob, error) {
	job, err := r.buildJob(ctx, tenantID, source, raw)
	if err != nil {
		return nil, err
	}
	if err := r.Process(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// Process executes one ingestion job to completion or failure. It is the
// jobs.Handler the queue workers invoke.
//
// Rows are normalized in parallel (normalization is pure and row-independent)
// with results kept in input order; deduplication then runs as a sequential
// pass in file order so the first occurrence of a key always wins. Accepted
// records are written in bounded chunks; any chunk failure fails the whole
// job, with no partial-success accounting.
func (r *Runner) Process(ctx context.Context, job *jobs.IngestionJob) error {
	now := time.Now().UTC()
	job.State = jobs.JobStateProcessing
	job.StartedAt = &now
	if err := r.store.SaveJob(ctx, job); err != nil {
		return r.fail(ctx, job, fmt.Errorf("saving job state: %w", err))
	}

	normalizer := &Normalizer{
		TenantID:     job.TenantID,
		Source:       job.Source,
		Currency:     r.currency,
		Columns:      columnsFromMap(job.Columns),
		JobCreatedAt: job.CreatedAt,
	}

	type rowResult struct {
		tx     *domain.CanonicalTransaction
		reject RejectReason
	}
	results := make([]rowResult, len(job.Rows))

	g := new(errgroup.Group)
	g.SetLimit(r.parallelism)
	for i := range job.Rows {
		g.Go(func() error {
			tx, reject := normalizer.Normalize(job.Rows[i])
			results[i] = rowResult{tx: tx, reject: reject}
			return nil
		})
	}
	_ = g.Wait() // normalization never returns an error; bad rows are rejections

	var pending []*warehouse.TransactionRow
	ingestedAt := time.Now().UTC()

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := r.sink.InsertTransactions(ctx, pending); err != nil {
			return err
		}
		job.RowsAccepted += len(pending)
		pending = pending[:0]
		// Progress is persisted per chunk so a status poll mid-batch
		// shows partial counters.
		return r.store.SaveJob(ctx, job)
	}

	for i, res := range results {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, job, fmt.Errorf("job cancelled: %w", err))
		}

		if res.reject != "" {
			job.RowsRejected++
			r.log.Warn().
				Str("job_id", job.JobID).
				Int("row", i+2).
				Str("reason", string(res.reject)).
				Msg("Row rejected")
			continue
		}

		first, err := r.keys.Register(ctx, job.TenantID, res.tx.ID)
		if err != nil {
			return r.fail(ctx, job, fmt.Errorf("dedup lookup: %w", err))
		}
		if !first {
			job.RowsDuplicate++
			r.log.Debug().
				Str("job_id", job.JobID).
				Int("row", i+2).
				Str("key", res.tx.ID).
				Msg("Duplicate row suppressed")
			continue
		}

		pending = append(pending, warehouse.RowFromCanonical(res.tx, ingestedAt))
		if len(pending) >= r.chunkSize {
			if err := flush(); err != nil {
				return r.fail(ctx, job, fmt.Errorf("warehouse write: %w", err))
			}
		}
	}

	if err := flush(); err != nil {
		return r.fail(ctx, job, fmt.Errorf("warehouse write: %w", err))
	}

	done := time.Now().UTC()
	job.State = jobs.JobStateCompleted
	job.CompletedAt = &done
	job.Rows = nil
	job.Columns = nil
	if err := r.store.SaveJob(ctx, job); err != nil {
		return r.fail(ctx, job, fmt.Errorf("saving job state: %w", err))
	}

	r.log.Info().
		Str("job_id", job.JobID).
		Int("rows_accepted", job.RowsAccepted).
		Int("rows_rejected", job.RowsRejected).
		Int("rows_duplicate", job.RowsDuplicate).
		Msg("Ingestion job completed")

	return nil
}

// fail marks the job failed and records the error. Counters are left as-is
// but the failed state tells callers not to trust them: no partial-success
// accounting is attempted.
func (r *Runner) fail(ctx context.Context, job *jobs.IngestionJob, cause error) error {
	done := time.Now().UTC()
	job.State = jobs.JobStateFailed
	job.Error = cause.Error()
	job.CompletedAt = &done
	job.Rows = nil
	job.Columns = nil

	if err := r.store.SaveJob(ctx, job); err != nil {
		r.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to record job failure")
	}

	r.log.Error().Err(cause).Str("job_id", job.JobID).Msg("Ingestion job failed")
	return cause
}

func columnsToMap(cols ColumnMap) map[string]string {
	out := make(map[string]string, len(cols))
	for field, header := range cols {
		out[string(field)] = header
	}
	return out
}

func columnsFromMap(m map[string]string) ColumnMap {
	out := make(ColumnMap, len(m))
	for field, header := range m {
		out[Field(field)] = header
	}
	return out
}
