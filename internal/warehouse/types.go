// Package warehouse defines the sink contract the ingestion pipeline writes
// to, and the warehouse row schema for canonical transactions. The sink is
// append-only: uniqueness is enforced upstream by the deduplicator, not by
// the warehouse.
package warehouse

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/sokoledger/sokoledger/internal/domain"
)

// TransactionSink durably appends canonical transaction rows. Implementations
// must tolerate being called with the same rows twice (re-ingestion after a
// failed job); the deduplicator keeps that from happening under normal
// operation.
type TransactionSink interface {
	// InsertTransactions appends a batch of rows. The batch is bounded by
	// the runner's chunk size to respect sink payload limits.
	InsertTransactions(ctx context.Context, rows []*TransactionRow) error
}

// TransactionReader answers the read API's tenant-scoped date-range queries.
type TransactionReader interface {
	QueryTransactionsByDateRange(ctx context.Context, tenantID string, startDate, endDate time.Time) ([]*TransactionRow, error)
}

// TransactionRow is the transactions table schema.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	TenantID      string `bigquery:"tenant_id"`      // REQUIRED
	Source        string `bigquery:"source"`         // REQUIRED

	OccurredOn civil.Date `bigquery:"occurred_on"` // REQUIRED DATE
	OccurredAt time.Time  `bigquery:"occurred_at"` // REQUIRED TIMESTAMP

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC, always > 0
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	Category      string `bigquery:"category"`       // REQUIRED
	ItemName      string `bigquery:"item_name"`      // REQUIRED
	PaymentMethod string `bigquery:"payment_method"` // REQUIRED

	ExternalReference bigquery.NullString `bigquery:"external_reference"` // NULLABLE

	IngestedAt time.Time         `bigquery:"ingested_at"` // REQUIRED
	Metadata   bigquery.NullJSON `bigquery:"metadata"`    // NULLABLE JSON
}

// RowFromCanonical maps a canonical transaction into its warehouse row.
func RowFromCanonical(tx *domain.CanonicalTransaction, ingestedAt time.Time) *TransactionRow {
	row := &TransactionRow{
		TransactionID: tx.ID,
		TenantID:      tx.TenantID,
		Source:        string(tx.Source),
		OccurredOn:    tx.OccurredOn,
		OccurredAt:    tx.OccurredAt,
		Amount:        tx.Amount.Rat(),
		Currency:      tx.Currency,
		Category:      tx.Category,
		ItemName:      tx.ItemName,
		PaymentMethod: tx.PaymentMethod,
		IngestedAt:    ingestedAt,
	}

	if tx.ExternalReference != "" {
		row.ExternalReference = bigquery.NullString{StringVal: tx.ExternalReference, Valid: true}
	}

	if len(tx.RawMetadata) > 0 {
		// Marshal of a map[string]string cannot fail.
		b, _ := json.Marshal(tx.RawMetadata)
		row.Metadata = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}

	return row
}
