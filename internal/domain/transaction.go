package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// SourceType identifies the kind of upstream system a raw export came from.
// It selects which column-alias table and normalization rules apply and is
// fixed for the life of an ingestion job.
type SourceType string

const (
	// SourceGeneric covers spreadsheet/CSV exports with no fixed layout.
	SourceGeneric SourceType = "generic"
	// SourceMobileMoney covers mobile-money statement exports (e.g. M-Pesa).
	SourceMobileMoney SourceType = "mobile_money"
	// SourcePointOfSale covers point-of-sale system exports.
	SourcePointOfSale SourceType = "point_of_sale"
)

// ParseSourceType validates a caller-supplied source type string.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceGeneric, SourceMobileMoney, SourcePointOfSale:
		return SourceType(s), nil
	case "":
		return SourceGeneric, nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// RawRecord is one row of an uploaded file: source column name (exactly as it
// appeared in the file) to raw string value. It exists only while one
// ingestion job is being parsed.
type RawRecord map[string]string

// Get returns the raw value for a source column and whether the column was
// present and non-empty after trimming.
func (r RawRecord) Get(column string) (string, bool) {
	v, ok := r[column]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// CanonicalTransaction is the normalized output unit of the ingestion
// pipeline. It is created once during normalization of one raw row, is
// immutable afterwards, and is written at most once to the warehouse.
type CanonicalTransaction struct {
	// ID is the idempotency key (content-derived, deterministic), so
	// re-running the same input is naturally a no-op.
	ID       string     `json:"id"`
	TenantID string     `json:"tenant_id"`
	Source   SourceType `json:"source"`

	// Amount is always positive; rows with non-positive or unparseable
	// amounts are rejected during normalization, never zeroed.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// OccurredOn is the calendar date; OccurredAt carries the full
	// timestamp and is OccurredOn at midnight when the source had no time
	// component.
	OccurredOn civil.Date `json:"occurred_on"`
	OccurredAt time.Time  `json:"occurred_at"`

	Category      string `json:"category"`
	ItemName      string `json:"item_name"`
	PaymentMethod string `json:"payment_method"`

	// ExternalReference is the receipt/transaction number from the source,
	// the strongest deduplication signal when present.
	ExternalReference string `json:"external_reference,omitempty"`

	// RawMetadata carries source-specific extras (quantity, unit price,
	// receipt number) that have no canonical column.
	RawMetadata map[string]string `json:"raw_metadata,omitempty"`
}

// Sentinel values used when a source column is absent or empty.
const (
	UnknownItem = "Unknown Item"

	// DefaultCurrency applies deployment-wide unless overridden by config;
	// currency is never derived per-row.
	DefaultCurrency = "KES"
)

// DefaultPaymentMethod returns the payment-method sentinel appropriate for a
// source type when the export carries no payment method column.
func DefaultPaymentMethod(source SourceType) string {
	if source == SourceMobileMoney {
		return "Mobile Money"
	}
	return "Cash"
}
