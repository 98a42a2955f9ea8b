// Package ingest parses memory record files (CSV, JSON) into normalized
// records ready for embedding and analysis.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/recall/internal/record"
)

// Importer parses one file format into records.
type Importer interface {
	CanHandle(path string) bool
	Import(path string) ([]record.Record, error)
}

// importers in match order.
var importers = []Importer{
	&CSVImporter{},
	&JSONImporter{},
}

// ImportFile dispatches a file to the importer matching its extension.
func ImportFile(path string) ([]record.Record, error) {
	for _, imp := range importers {
		if imp.CanHandle(path) {
			records, err := imp.Import(path)
			if err != nil {
				return nil, err
			}
			return dedupeByID(records), nil
		}
	}
	return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
}

// dedupeByID drops later records that reuse an id; first occurrence wins.
func dedupeByID(records []record.Record) []record.Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// normalizeHeader lowercases and strips separators so "Created At",
// "created_at" and "createdAt" all match.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	h = strings.ReplaceAll(h, "-", "")
	return h
}
