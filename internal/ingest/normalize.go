package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sokoledger/sokoledger/internal/domain"
)

// RejectReason is the per-row rejection code surfaced in logs and counters.
type RejectReason string

const (
	RejectBadDate   RejectReason = "bad_date"
	RejectBadAmount RejectReason = "bad_amount"
	// RejectDuplicate marks a row whose idempotency key was already
	// registered. Counted separately from parse failures so operators can
	// tell a re-upload from bad data.
	RejectDuplicate RejectReason = "duplicate"
)

// Normalizer turns raw rows of one ingestion job into canonical transactions.
// It is created once per job with the job's resolved column map and scoped
// tenant/source/currency; Normalize itself is pure and safe to call from
// concurrent workers.
type Normalizer struct {
	TenantID string
	Source   domain.SourceType
	Currency string
	Columns  ColumnMap

	// JobCreatedAt anchors rows that are accepted without a parseable date
	// (external reference present). One fixed timestamp per job keeps the
	// output reproducible within the job; such rows are marked in metadata.
	JobCreatedAt time.Time
}

// Normalize converts one raw row into a canonical transaction. On failure it
// returns the rejection reason; a bad row never affects any other row.
func (n *Normalizer) Normalize(row domain.RawRecord) (*domain.CanonicalTransaction, RejectReason) {
	extRef, _ := n.value(row, FieldExternalReference)

	rawDate, _ := n.value(row, FieldDate)
	occurredAt, dateOK := ParseDate(rawDate)
	if !dateOK {
		if extRef == "" {
			return nil, RejectBadDate
		}
		// A receipt number is a strong enough identity to keep the row;
		// the date is anchored to job creation and flagged below rather
		// than silently fabricated from the wall clock at parse time.
		occurredAt = n.JobCreatedAt
	}

	rawAmount, _ := n.value(row, FieldAmount)
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, RejectBadAmount
	}

	item, ok := n.value(row, FieldItem)
	if !ok {
		item = domain.UnknownItem
	}

	category, ok := n.value(row, FieldCategory)
	if !ok {
		category = Categorize(item, "")
	}

	method, ok := n.value(row, FieldPaymentMethod)
	if !ok {
		method = domain.DefaultPaymentMethod(n.Source)
	}

	meta := map[string]string{}
	if extRef != "" {
		meta["receipt_no"] = extRef
	}
	if qty, ok := n.value(row, FieldQuantity); ok {
		meta["quantity"] = qty
	}
	if unit, ok := n.value(row, FieldUnitPrice); ok {
		meta["unit_price"] = unit
	}
	if !dateOK {
		meta["date_defaulted"] = "true"
	}

	key := IdempotencyKey(extRef, occurredAt, amount.String(), item)

	return &domain.CanonicalTransaction{
		ID:                key,
		TenantID:          n.TenantID,
		Source:            n.Source,
		Amount:            amount,
		Currency:          n.Currency,
		OccurredOn:        civil.DateOf(occurredAt),
		OccurredAt:        occurredAt,
		Category:          category,
		ItemName:          item,
		PaymentMethod:     method,
		ExternalReference: extRef,
		RawMetadata:       meta,
	}, ""
}

// value looks up the raw value of a semantic field through the column map.
func (n *Normalizer) value(row domain.RawRecord, field Field) (string, bool) {
	col, ok := n.Columns[field]
	if !ok {
		return "", false
	}
	return row.Get(col)
}

// IdempotencyKey derives the stable per-record key used for deduplication and
// as the record ID. An external reference (receipt number) is the strongest
// natural key and is used alone when present; otherwise the key is hashed
// from the record's content. Truncated to 16 hex characters for storage.
func IdempotencyKey(externalRef string, occurredAt time.Time, amount, item string) string {
	var sum [16]byte
	if externalRef != "" {
		sum = md5.Sum([]byte(externalRef))
	} else {
		sum = md5.Sum([]byte(occurredAt.Format(time.RFC3339) + amount + item))
	}
	return hex.EncodeToString(sum[:])[:16]
}
