package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/recall/internal/record"
)

// CSVImporter handles .csv and .tsv files.
//
// The first row is treated as headers. Recognized columns (case- and
// separator-insensitive): id, key, text, created_at, object, category,
// emotion. Rows without an id are skipped.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a CSV file into records.
func (c *CSVImporter) Import(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}
	if len(rows) < 2 {
		// Need at least headers + one row.
		return nil, nil
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		columns[normalizeHeader(h)] = i
	}
	if _, ok := columns["id"]; !ok {
		return nil, fmt.Errorf("CSV %s has no id column", path)
	}

	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	records := make([]record.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := strings.TrimSpace(field(row, "id"))
		if id == "" {
			continue
		}
		records = append(records, record.New(
			id,
			field(row, "key"),
			field(row, "text"),
			field(row, "createdat"),
			field(row, "object"),
			field(row, "category"),
			field(row, "emotion"),
		))
	}
	return records, nil
}
