package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateFormats is the fixed, ordered list of accepted date layouts. The first
// layout that parses wins, so ambiguous numeric dates such as "03/04/2024"
// always resolve month-first (MM/DD/YYYY is tried before DD/MM/YYYY). This
// ordering is load-bearing for reproducible ingestion and must not be
// reordered.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"02-01-2006",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04",
	"2 Jan 2006",
}

// ParseDate parses a raw date string against the fixed format list. It
// returns false for empty or unparseable input; the caller decides whether
// that is a rejection. It never fabricates a timestamp from the current
// clock.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// amountStrip removes currency symbols, thousands separators and whitespace
// before decimal parsing. The letter set covers the KES/KSh prefixes on
// mobile-money statements.
var amountStrip = strings.NewReplacer(
	"KES", "", "KSh", "", "Ksh", "",
	"K", "", "E", "", "S", "",
	"$", "", "€", "", "£", "",
	",", "", " ", "", " ", "", "\t", "",
)

// ParseAmount parses a raw amount string into a positive decimal. Negative or
// zero results are parse failures: the canonical schema guarantees amount > 0
// and rejected rows are never zeroed.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountStrip.Replace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", raw)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", raw, err)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive amount %q", raw)
	}
	return d, nil
}
