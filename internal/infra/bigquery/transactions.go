// Package bigquery implements the warehouse sink on Google BigQuery using
// the streaming inserter. The transactions table is append-only; row
// uniqueness is enforced upstream by the deduplicator.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/sokoledger/sokoledger/internal/warehouse"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// TransactionStore is the BigQuery-backed implementation of
// warehouse.TransactionSink and warehouse.TransactionReader. It holds a
// shared client to avoid creating a new connection per operation.
type TransactionStore struct {
	client  *bigquery.Client
	project string
	dataset string

	// writeTimeout bounds each insert call; a slow warehouse surfaces as a
	// job failure upstream, never as an internal retry loop.
	writeTimeout time.Duration
}

// NewTransactionStore creates a store for the given project and dataset.
func NewTransactionStore(ctx context.Context, projectID, datasetID string, writeTimeout time.Duration) (*TransactionStore, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionStore: creating client: %w", err)
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	return &TransactionStore{
		client:       client,
		project:      projectID,
		dataset:      datasetID,
		writeTimeout: writeTimeout,
	}, nil
}

// Close closes the BigQuery client connection.
func (s *TransactionStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// InsertTransactions implements warehouse.TransactionSink.
func (s *TransactionStore) InsertTransactions(ctx context.Context, rows []*warehouse.TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	table := s.client.DatasetInProject(s.project, s.dataset).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting %d rows: %w", len(rows), err)
	}

	return nil
}

// QueryTransactionsByDateRange implements warehouse.TransactionReader,
// returning a tenant's transactions with occurred_on inside the range.
func (s *TransactionStore) QueryTransactionsByDateRange(ctx context.Context, tenantID string, startDate, endDate time.Time) ([]*warehouse.TransactionRow, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			tenant_id,
			source,
			occurred_on,
			occurred_at,
			amount,
			currency,
			category,
			item_name,
			payment_method,
			external_reference,
			ingested_at,
			metadata
		FROM %s.%s
		WHERE tenant_id = @tenant_id
		  AND occurred_on >= @start_date
		  AND occurred_on <= @end_date
		ORDER BY occurred_on, ingested_at
	`, s.dataset, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "start_date", Value: civil.DateOf(startDate)},
		{Name: "end_date", Value: civil.DateOf(endDate)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*warehouse.TransactionRow
	for {
		var r warehouse.TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

var _ warehouse.TransactionSink = (*TransactionStore)(nil)
var _ warehouse.TransactionReader = (*TransactionStore)(nil)
