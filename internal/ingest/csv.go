package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/sokoledger/sokoledger/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeCSV parses raw uploaded bytes into headers and raw records. A UTF-8
// BOM (common in spreadsheet exports) is tolerated, and short rows are padded
// so every record has a value slot for every header. Ragged extra cells are
// dropped.
func DecodeCSV(raw []byte) ([]string, []domain.RawRecord, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CSV: %w", err)
	}
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("file has no header row")
	}

	var rows []domain.RawRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid CSV on line %d: %w", len(rows)+2, err)
		}

		row := make(domain.RawRecord, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}
