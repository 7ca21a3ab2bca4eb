package ingest

import (
	"errors"
	"testing"

	"github.com/sokoledger/sokoledger/internal/domain"
)

func TestFieldResolver_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		source  domain.SourceType
		headers []string
		field   Field
		want    string
		wantOK  bool
	}{
		{
			name:    "exact match",
			source:  domain.SourceGeneric,
			headers: []string{"Date", "Amount", "Item"},
			field:   FieldAmount,
			want:    "Amount",
			wantOK:  true,
		},
		{
			// "Amount" is an earlier alias than "Total", so it wins even
			// though "Total" appears first in the file.
			name:    "alias order beats header order on exact match",
			source:  domain.SourceGeneric,
			headers: []string{"Total", "Amount"},
			field:   FieldAmount,
			want:    "Amount",
			wantOK:  true,
		},
		{
			// No exact match; the substring pass runs in header order.
			name:    "substring fallback uses header order",
			source:  domain.SourceGeneric,
			headers: []string{"Total Price (KES)", "Amount Due"},
			field:   FieldAmount,
			want:    "Total Price (KES)",
			wantOK:  true,
		},
		{
			name:    "substring match is case-insensitive",
			source:  domain.SourceGeneric,
			headers: []string{"TRANSACTION AMOUNT"},
			field:   FieldAmount,
			want:    "TRANSACTION AMOUNT",
			wantOK:  true,
		},
		{
			name:    "mobile money completion time",
			source:  domain.SourceMobileMoney,
			headers: []string{"Receipt No.", "Completion Time", "Transaction Details", "Paid In"},
			field:   FieldDate,
			want:    "Completion Time",
			wantOK:  true,
		},
		{
			name:    "mobile money paid in before withdrawn",
			source:  domain.SourceMobileMoney,
			headers: []string{"Withdrawn", "Paid In"},
			field:   FieldAmount,
			want:    "Paid In",
			wantOK:  true,
		},
		{
			name:    "mobile money receipt",
			source:  domain.SourceMobileMoney,
			headers: []string{"Receipt No.", "Completion Time"},
			field:   FieldExternalReference,
			want:    "Receipt No.",
			wantOK:  true,
		},
		{
			name:    "point of sale tender type",
			source:  domain.SourcePointOfSale,
			headers: []string{"Txn Date", "Net Amount", "Tender Type"},
			field:   FieldPaymentMethod,
			want:    "Tender Type",
			wantOK:  true,
		},
		{
			name:    "no match",
			source:  domain.SourceGeneric,
			headers: []string{"Foo", "Bar"},
			field:   FieldAmount,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewFieldResolver(tt.source).Resolve(tt.headers, tt.field)
			if ok != tt.wantOK {
				t.Fatalf("Resolve() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldResolver_ResolveColumns(t *testing.T) {
	t.Run("full generic header set", func(t *testing.T) {
		headers := []string{"Date", "Item", "Amount", "Category", "Payment Method", "Receipt No", "Qty", "Unit Price"}
		cols, err := NewFieldResolver(domain.SourceGeneric).ResolveColumns(headers)
		if err != nil {
			t.Fatalf("ResolveColumns failed: %v", err)
		}
		want := ColumnMap{
			FieldDate:              "Date",
			FieldAmount:            "Amount",
			FieldItem:              "Item",
			FieldCategory:          "Category",
			FieldPaymentMethod:     "Payment Method",
			FieldExternalReference: "Receipt No",
			FieldQuantity:          "Qty",
			FieldUnitPrice:         "Unit Price",
		}
		for field, header := range want {
			if cols[field] != header {
				t.Errorf("cols[%s] = %q, want %q", field, cols[field], header)
			}
		}
	})

	t.Run("missing amount is a precondition failure", func(t *testing.T) {
		_, err := NewFieldResolver(domain.SourceGeneric).ResolveColumns([]string{"Date", "Item"})
		var pre *PreconditionError
		if !errors.As(err, &pre) {
			t.Fatalf("ResolveColumns error = %v, want PreconditionError", err)
		}
		if pre.Field != FieldAmount {
			t.Errorf("PreconditionError.Field = %s, want %s", pre.Field, FieldAmount)
		}
	})

	t.Run("missing date and reference is a precondition failure", func(t *testing.T) {
		_, err := NewFieldResolver(domain.SourceGeneric).ResolveColumns([]string{"Item", "Amount"})
		var pre *PreconditionError
		if !errors.As(err, &pre) {
			t.Fatalf("ResolveColumns error = %v, want PreconditionError", err)
		}
	})

	t.Run("reference without date satisfies the precondition", func(t *testing.T) {
		cols, err := NewFieldResolver(domain.SourceMobileMoney).ResolveColumns([]string{"Receipt No.", "Paid In"})
		if err != nil {
			t.Fatalf("ResolveColumns failed: %v", err)
		}
		if cols[FieldExternalReference] != "Receipt No." {
			t.Errorf("external reference column = %q, want %q", cols[FieldExternalReference], "Receipt No.")
		}
	})

	t.Run("date without reference satisfies the precondition", func(t *testing.T) {
		if _, err := NewFieldResolver(domain.SourceGeneric).ResolveColumns([]string{"Date", "Amount"}); err != nil {
			t.Fatalf("ResolveColumns failed: %v", err)
		}
	})
}
