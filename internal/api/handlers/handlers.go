package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sokoledger/sokoledger/internal/api/middleware"
	"github.com/sokoledger/sokoledger/internal/archive"
	"github.com/sokoledger/sokoledger/internal/domain"
	"github.com/sokoledger/sokoledger/internal/ingest"
	"github.com/sokoledger/sokoledger/internal/jobs"
	"github.com/sokoledger/sokoledger/internal/warehouse"
)

// maxUploadBytes caps one CSV upload. Statement exports are small; this is a
// guard against accidental large bodies, not a tuning knob.
const maxUploadBytes = 32 << 20

// IngestHandler handles upload submission and job status endpoints.
type IngestHandler struct {
	runner   *ingest.Runner
	store    jobs.JobStore
	archiver *archive.Archiver
	log      zerolog.Logger
}

// NewIngestHandler creates an ingest handler. archiver may be nil when raw
// upload archiving is not configured.
func NewIngestHandler(runner *ingest.Runner, store jobs.JobStore, archiver *archive.Archiver, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		runner:   runner,
		store:    store,
		archiver: archiver,
		log:      log,
	}
}

// Upload handles POST /api/ingest/upload?tenant_id=&source_type=
// The body is the raw CSV. Precondition checks (decode, column resolution,
// mandatory fields) run synchronously; on success the job is queued and 202
// returned with the job ID for status polling.
func (h *IngestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	source, err := domain.ParseSourceType(r.URL.Query().Get("source_type"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Read one byte past the cap so an oversized body is rejected rather
	// than silently truncated mid-row.
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "failed to read upload body")
		return
	}
	if len(raw) > maxUploadBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "upload body exceeds the size limit")
		return
	}
	if len(raw) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "upload body is empty")
		return
	}

	job, err := h.runner.Submit(ctx, tenantID, source, raw)
	if err != nil {
		var precond *ingest.PreconditionError
		if errors.As(err, &precond) {
			middleware.WriteError(w, http.StatusBadRequest, precond.Error())
			return
		}
		h.log.Error().Err(err).Str("tenant_id", tenantID).Msg("Upload submission failed")
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Raw archiving is best-effort: a missing archive never blocks
	// ingestion.
	if h.archiver != nil {
		if uri, err := h.archiver.ArchiveUpload(ctx, tenantID, job.JobID, raw); err != nil {
			h.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Raw upload archiving failed")
		} else {
			h.log.Info().Str("job_id", job.JobID).Str("uri", uri).Msg("Raw upload archived")
		}
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":         job.JobID,
		"state":          string(job.State),
		"rows_submitted": job.RowsSubmitted,
	})
}

// Status handles GET /api/ingest/status/{jobID}
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/ingest/jobs?tenant_id=&state=
func (h *IngestHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		TenantID: query.Get("tenant_id"),
		State:    jobs.JobState(query.Get("state")),
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// TransactionsHandler handles transaction read endpoints.
type TransactionsHandler struct {
	reader warehouse.TransactionReader
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(reader warehouse.TransactionReader, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		reader: reader,
		log:    log,
	}
}

// List handles GET /api/transactions?tenant_id=&start_date=&end_date=
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	tenantID := query.Get("tenant_id")
	if tenantID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	var startDate, endDate time.Time
	var err error

	if s := query.Get("start_date"); s != "" {
		startDate, err = time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
	} else {
		startDate = time.Now().AddDate(-1, 0, 0)
	}

	if s := query.Get("end_date"); s != "" {
		endDate, err = time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
	} else {
		endDate = time.Now()
	}

	transactions, err := h.reader.QueryTransactionsByDateRange(ctx, tenantID, startDate, endDate)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if transactions == nil {
		transactions = []*warehouse.TransactionRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}
