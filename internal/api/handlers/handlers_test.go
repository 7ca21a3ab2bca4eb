package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/sokoledger/sokoledger/internal/dedup"
	"github.com/sokoledger/sokoledger/internal/ingest"
	"github.com/sokoledger/sokoledger/internal/jobs"
	"github.com/sokoledger/sokoledger/internal/jobs/inmemory"
	"github.com/sokoledger/sokoledger/internal/warehouse"
)

type mockSink struct {
	rows []*warehouse.TransactionRow
}

func (m *mockSink) InsertTransactions(ctx context.Context, rows []*warehouse.TransactionRow) error {
	m.rows = append(m.rows, rows...)
	return nil
}

type mockReader struct {
	rows []*warehouse.TransactionRow
	err  error
}

func (m *mockReader) QueryTransactionsByDateRange(ctx context.Context, tenantID string, start, end time.Time) ([]*warehouse.TransactionRow, error) {
	return m.rows, m.err
}

func newTestIngestHandler() (*IngestHandler, *inmemory.Store) {
	store := inmemory.NewStore()
	runner := ingest.NewRunner(store, nil, dedup.NewMemoryKeyStore(), &mockSink{}, zerolog.Nop(), ingest.Config{})
	return NewIngestHandler(runner, store, nil, zerolog.Nop()), store
}

func TestIngestHandler_Upload(t *testing.T) {
	h, store := newTestIngestHandler()

	body := "Date,Item,Amount\n2024-03-15,Phone,1500\n"
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload?tenant_id=tenant-1", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		JobID         string `json:"job_id"`
		State         string `json:"state"`
		RowsSubmitted int    `json:"rows_submitted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.JobID == "" || resp.State != "queued" || resp.RowsSubmitted != 1 {
		t.Errorf("response = %+v", resp)
	}

	if _, err := store.GetJob(context.Background(), resp.JobID); err != nil {
		t.Errorf("job %s not persisted: %v", resp.JobID, err)
	}
}

func TestIngestHandler_UploadErrors(t *testing.T) {
	h, _ := newTestIngestHandler()

	tests := []struct {
		name string
		url  string
		body string
	}{
		{
			name: "missing tenant",
			url:  "/api/ingest/upload",
			body: "Date,Amount\n2024-03-15,100\n",
		},
		{
			name: "unknown source type",
			url:  "/api/ingest/upload?tenant_id=t1&source_type=fax",
			body: "Date,Amount\n2024-03-15,100\n",
		},
		{
			name: "empty body",
			url:  "/api/ingest/upload?tenant_id=t1",
			body: "",
		},
		{
			name: "missing amount column",
			url:  "/api/ingest/upload?tenant_id=t1",
			body: "Date,Item\n2024-03-15,Phone\n",
		},
		{
			name: "no date or reference column",
			url:  "/api/ingest/upload?tenant_id=t1",
			body: "Item,Amount\nPhone,100\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			h.Upload(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestIngestHandler_UploadTooLarge(t *testing.T) {
	h, _ := newTestIngestHandler()

	body := bytes.NewReader(make([]byte, maxUploadBytes+1))
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload?tenant_id=tenant-1", body)
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestIngestHandler_Status(t *testing.T) {
	h, store := newTestIngestHandler()

	job := &jobs.IngestionJob{
		JobID:         "job-1",
		TenantID:      "tenant-1",
		State:         jobs.JobStateCompleted,
		RowsSubmitted: 5,
		RowsAccepted:  4,
		RowsRejected:  1,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ingest/status/job-1", nil)
	w := httptest.NewRecorder()

	h.Status(w, req, "job-1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got jobs.IngestionJob
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if got.State != jobs.JobStateCompleted || got.RowsAccepted != 4 {
		t.Errorf("got %+v", got)
	}
}

func TestIngestHandler_StatusNotFound(t *testing.T) {
	h, _ := newTestIngestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ingest/status/missing", nil)
	w := httptest.NewRecorder()

	h.Status(w, req, "missing")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestIngestHandler_ListJobs(t *testing.T) {
	h, store := newTestIngestHandler()

	for i := 0; i < 3; i++ {
		tenant := "tenant-1"
		if i == 2 {
			tenant = "tenant-2"
		}
		if err := store.SaveJob(context.Background(), &jobs.IngestionJob{
			JobID:    fmt.Sprintf("job-%d", i),
			TenantID: tenant,
			State:    jobs.JobStateCompleted,
		}); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ingest/jobs?tenant_id=tenant-1", nil)
	w := httptest.NewRecorder()

	h.ListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Jobs  []jobs.IngestionJob `json:"jobs"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Count != 2 || len(resp.Jobs) != 2 {
		t.Errorf("count = %d, jobs = %d, want 2", resp.Count, len(resp.Jobs))
	}
}

func TestTransactionsHandler_List(t *testing.T) {
	reader := &mockReader{rows: []*warehouse.TransactionRow{
		{
			TransactionID: "abc",
			TenantID:      "tenant-1",
			ItemName:      "Phone",
			OccurredOn:    civil.Date{Year: 2024, Month: time.March, Day: 15},
		},
	}}
	h := NewTransactionsHandler(reader, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?tenant_id=tenant-1&start_date=2024-01-01&end_date=2024-12-31", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var rows []warehouse.TransactionRow
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(rows) != 1 || rows[0].TransactionID != "abc" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestTransactionsHandler_ListValidation(t *testing.T) {
	h := NewTransactionsHandler(&mockReader{}, zerolog.Nop())

	tests := []struct {
		name string
		url  string
	}{
		{name: "missing tenant", url: "/api/transactions"},
		{name: "bad start date", url: "/api/transactions?tenant_id=t1&start_date=March-1"},
		{name: "bad end date", url: "/api/transactions?tenant_id=t1&end_date=soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()

			h.List(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestTransactionsHandler_ListEmpty(t *testing.T) {
	h := NewTransactionsHandler(&mockReader{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?tenant_id=t1", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty array", body)
	}
}
