package ingest

import (
	"fmt"
	"strings"

	"github.com/sokoledger/sokoledger/internal/domain"
)

// Field is a canonical semantic field a source column can supply.
type Field string

const (
	FieldDate              Field = "date"
	FieldAmount            Field = "amount"
	FieldItem              Field = "item"
	FieldCategory          Field = "category"
	FieldPaymentMethod     Field = "payment_method"
	FieldExternalReference Field = "external_reference"

	// Side-channel fields captured into raw metadata when present.
	FieldQuantity  Field = "quantity"
	FieldUnitPrice Field = "unit_price"
)

// baseAliases maps each semantic field to the exact column names seen in real
// exports, in priority order. Alias order is the tie-break for exact matches,
// so more specific names come first within each list.
var baseAliases = map[Field][]string{
	FieldDate: {
		"date", "Date", "DATE", "timestamp", "Timestamp", "time", "Time",
		"transaction_date", "Transaction Date",
	},
	FieldAmount: {
		"amount", "Amount", "AMOUNT", "price", "Price", "total", "Total",
		"value", "Value",
	},
	FieldItem: {
		"item", "Item", "ITEM", "product", "Product", "description", "Description",
		"details", "Details", "name", "Name",
	},
	FieldCategory: {
		"category", "Category", "CATEGORY", "type", "Type", "class", "Class",
	},
	FieldPaymentMethod: {
		"payment_method", "Payment Method", "method", "Method",
		"payment_type", "Payment Type", "mode", "Mode",
	},
	FieldExternalReference: {
		"receipt_no", "Receipt No", "receipt", "Receipt",
		"transaction_id", "Transaction ID", "reference", "Reference",
	},
	FieldQuantity: {
		"quantity", "Quantity", "qty", "Qty",
	},
	FieldUnitPrice: {
		"unit_price", "Unit Price",
	},
}

// sourceAliases holds per-source overrides prepended to the base list. The
// mobile_money entries are the literal headers of M-Pesa statement exports;
// the point_of_sale entries cover the common POS till formats.
var sourceAliases = map[domain.SourceType]map[Field][]string{
	domain.SourceMobileMoney: {
		FieldDate:              {"Completion Time", "completion_time", "Initiation Time"},
		FieldAmount:            {"Paid In", "paid_in", "Withdrawn", "withdrawn"},
		FieldItem:              {"Transaction Details", "transaction_details", "Details"},
		FieldExternalReference: {"Receipt No.", "Receipt No", "receipt_no"},
	},
	domain.SourcePointOfSale: {
		FieldDate:              {"Txn Date", "Sale Date", "sale_date"},
		FieldAmount:            {"Net Amount", "net_amount", "Gross Amount"},
		FieldItem:              {"Product Name", "product_name", "SKU Description"},
		FieldPaymentMethod:     {"Tender Type", "tender_type", "Tender"},
		FieldExternalReference: {"Receipt #", "Receipt Number", "receipt_number"},
	},
}

// FieldResolver maps the column headers of one uploaded file to canonical
// semantic fields using the ranked alias tables for a source type.
type FieldResolver struct {
	source domain.SourceType
}

// NewFieldResolver returns a resolver for one source type.
func NewFieldResolver(source domain.SourceType) *FieldResolver {
	return &FieldResolver{source: source}
}

// aliases returns the ordered alias list for a field: source-specific
// overrides first, then the base table.
func (r *FieldResolver) aliases(field Field) []string {
	var out []string
	if overrides, ok := sourceAliases[r.source]; ok {
		out = append(out, overrides[field]...)
	}
	return append(out, baseAliases[field]...)
}

// Resolve returns the header that should supply the given semantic field, or
// false when no header matches.
//
// Resolution order: exact case-sensitive match in alias order first, then a
// case-insensitive substring pass in header order. Both orders are fixed so
// resolution is deterministic for a given file.
func (r *FieldResolver) Resolve(headers []string, field Field) (string, bool) {
	aliases := r.aliases(field)

	for _, alias := range aliases {
		for _, h := range headers {
			if h == alias {
				return h, true
			}
		}
	}

	for _, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		for _, alias := range aliases {
			if strings.Contains(lower, strings.ToLower(alias)) {
				return h, true
			}
		}
	}

	return "", false
}

// ColumnMap holds the resolved header (if any) for every semantic field of one
// ingestion job. It is computed once per job and shared by all rows.
type ColumnMap map[Field]string

// ResolveColumns builds the ColumnMap for a file's headers and enforces the
// whole-batch precondition: an amount column must resolve, and at least one of
// date or external reference must resolve. A precondition failure aborts the
// job before any row is processed.
func (r *FieldResolver) ResolveColumns(headers []string) (ColumnMap, error) {
	cols := make(ColumnMap)
	for _, field := range []Field{
		FieldDate, FieldAmount, FieldItem, FieldCategory,
		FieldPaymentMethod, FieldExternalReference,
		FieldQuantity, FieldUnitPrice,
	} {
		if h, ok := r.Resolve(headers, field); ok {
			cols[field] = h
		}
	}

	if _, ok := cols[FieldAmount]; !ok {
		return nil, &PreconditionError{
			Field:   FieldAmount,
			Headers: headers,
		}
	}

	_, hasDate := cols[FieldDate]
	_, hasRef := cols[FieldExternalReference]
	if !hasDate && !hasRef {
		return nil, &PreconditionError{
			Field:   FieldDate,
			Headers: headers,
		}
	}

	return cols, nil
}

// PreconditionError reports a mandatory column that could not be resolved.
// It is returned synchronously from submission; no job is created.
type PreconditionError struct {
	Field   Field
	Headers []string
}

func (e *PreconditionError) Error() string {
	if e.Field == FieldAmount {
		return fmt.Sprintf("file must contain an amount column; found columns: %s",
			strings.Join(e.Headers, ", "))
	}
	return fmt.Sprintf("file must contain a date or receipt/reference column; found columns: %s",
		strings.Join(e.Headers, ", "))
}
