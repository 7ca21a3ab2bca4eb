package ingest

import (
	"testing"
	"time"

	"github.com/sokoledger/sokoledger/internal/domain"
)

func genericNormalizer() *Normalizer {
	return &Normalizer{
		TenantID: "tenant-1",
		Source:   domain.SourceGeneric,
		Currency: "KES",
		Columns: ColumnMap{
			FieldDate:              "Date",
			FieldAmount:            "Amount",
			FieldItem:              "Item",
			FieldCategory:          "Category",
			FieldPaymentMethod:     "Payment Method",
			FieldExternalReference: "Receipt No",
			FieldQuantity:          "Qty",
			FieldUnitPrice:         "Unit Price",
		},
		JobCreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := genericNormalizer()

	t.Run("complete row", func(t *testing.T) {
		tx, reject := n.Normalize(domain.RawRecord{
			"Date":           "2024-03-15",
			"Amount":         "KES 1,500.00",
			"Item":           "Bluetooth Speaker",
			"Payment Method": "M-Pesa",
			"Receipt No":     "ABC123",
			"Qty":            "2",
			"Unit Price":     "750",
		})
		if reject != "" {
			t.Fatalf("rejected with %s", reject)
		}
		if tx.Amount.String() != "1500" {
			t.Errorf("Amount = %s, want 1500", tx.Amount.String())
		}
		if tx.OccurredOn.String() != "2024-03-15" {
			t.Errorf("OccurredOn = %s", tx.OccurredOn)
		}
		if tx.ItemName != "Bluetooth Speaker" {
			t.Errorf("ItemName = %q", tx.ItemName)
		}
		if tx.Category != "Electronics" {
			t.Errorf("Category = %q, want Electronics", tx.Category)
		}
		if tx.PaymentMethod != "M-Pesa" {
			t.Errorf("PaymentMethod = %q", tx.PaymentMethod)
		}
		if tx.ExternalReference != "ABC123" {
			t.Errorf("ExternalReference = %q", tx.ExternalReference)
		}
		if tx.RawMetadata["quantity"] != "2" || tx.RawMetadata["unit_price"] != "750" {
			t.Errorf("RawMetadata = %v", tx.RawMetadata)
		}
		if tx.Currency != "KES" {
			t.Errorf("Currency = %q", tx.Currency)
		}
		if len(tx.ID) != 16 {
			t.Errorf("ID length = %d, want 16", len(tx.ID))
		}
	})

	t.Run("missing item gets sentinel", func(t *testing.T) {
		tx, reject := n.Normalize(domain.RawRecord{
			"Date":   "2024-03-15",
			"Amount": "100",
		})
		if reject != "" {
			t.Fatalf("rejected with %s", reject)
		}
		if tx.ItemName != domain.UnknownItem {
			t.Errorf("ItemName = %q, want %q", tx.ItemName, domain.UnknownItem)
		}
		if tx.Category != CategoryOther {
			t.Errorf("Category = %q, want %q", tx.Category, CategoryOther)
		}
		if tx.PaymentMethod != "Cash" {
			t.Errorf("PaymentMethod = %q, want Cash", tx.PaymentMethod)
		}
	})

	t.Run("explicit category wins over rules", func(t *testing.T) {
		tx, reject := n.Normalize(domain.RawRecord{
			"Date":     "2024-03-15",
			"Amount":   "100",
			"Item":     "Phone Case",
			"Category": "Inventory",
		})
		if reject != "" {
			t.Fatalf("rejected with %s", reject)
		}
		if tx.Category != "Inventory" {
			t.Errorf("Category = %q, want Inventory", tx.Category)
		}
	})

	t.Run("bad amount rejected", func(t *testing.T) {
		for _, amount := range []string{"", "abc", "0", "-50"} {
			if _, reject := n.Normalize(domain.RawRecord{
				"Date":   "2024-03-15",
				"Amount": amount,
			}); reject != RejectBadAmount {
				t.Errorf("amount %q: reject = %s, want %s", amount, reject, RejectBadAmount)
			}
		}
	})

	t.Run("bad date without reference rejected", func(t *testing.T) {
		if _, reject := n.Normalize(domain.RawRecord{
			"Date":   "not a date",
			"Amount": "100",
		}); reject != RejectBadDate {
			t.Errorf("reject = %s, want %s", reject, RejectBadDate)
		}
	})

	t.Run("bad date with reference anchors to job creation", func(t *testing.T) {
		tx, reject := n.Normalize(domain.RawRecord{
			"Date":       "not a date",
			"Amount":     "100",
			"Receipt No": "RX9",
		})
		if reject != "" {
			t.Fatalf("rejected with %s", reject)
		}
		if !tx.OccurredAt.Equal(n.JobCreatedAt) {
			t.Errorf("OccurredAt = %v, want %v", tx.OccurredAt, n.JobCreatedAt)
		}
		if tx.RawMetadata["date_defaulted"] != "true" {
			t.Errorf("date_defaulted marker missing: %v", tx.RawMetadata)
		}
	})

	t.Run("mobile money defaults", func(t *testing.T) {
		mm := &Normalizer{
			TenantID: "tenant-1",
			Source:   domain.SourceMobileMoney,
			Currency: "KES",
			Columns: ColumnMap{
				FieldDate:              "Completion Time",
				FieldAmount:            "Paid In",
				FieldItem:              "Transaction Details",
				FieldExternalReference: "Receipt No.",
			},
			JobCreatedAt: time.Now().UTC(),
		}
		tx, reject := mm.Normalize(domain.RawRecord{
			"Completion Time":     "15/03/2024 14:22",
			"Paid In":             "2,500.00",
			"Transaction Details": "Customer Payment",
			"Receipt No.":         "SFC7XK1",
		})
		if reject != "" {
			t.Fatalf("rejected with %s", reject)
		}
		if tx.PaymentMethod != "Mobile Money" {
			t.Errorf("PaymentMethod = %q, want Mobile Money", tx.PaymentMethod)
		}
		if tx.RawMetadata["receipt_no"] != "SFC7XK1" {
			t.Errorf("receipt_no metadata = %v", tx.RawMetadata)
		}
	})
}

func TestIdempotencyKey(t *testing.T) {
	at := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("reference key ignores content", func(t *testing.T) {
		a := IdempotencyKey("ABC123", at, "100", "Phone")
		b := IdempotencyKey("ABC123", at.AddDate(0, 1, 0), "999", "Laptop")
		if a != b {
			t.Errorf("same reference produced different keys: %s vs %s", a, b)
		}
	})

	t.Run("content key changes with any field", func(t *testing.T) {
		base := IdempotencyKey("", at, "100", "Phone")
		if base == IdempotencyKey("", at.Add(time.Hour), "100", "Phone") {
			t.Error("date change did not change key")
		}
		if base == IdempotencyKey("", at, "101", "Phone") {
			t.Error("amount change did not change key")
		}
		if base == IdempotencyKey("", at, "100", "Laptop") {
			t.Error("item change did not change key")
		}
	})

	t.Run("stable across calls", func(t *testing.T) {
		a := IdempotencyKey("", at, "100", "Phone")
		b := IdempotencyKey("", at, "100", "Phone")
		if a != b || len(a) != 16 {
			t.Errorf("keys %s and %s should be identical 16-char strings", a, b)
		}
	})
}
