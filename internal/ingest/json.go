package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/recall/internal/record"
)

// JSONImporter handles .json files containing an array of record objects.
type JSONImporter struct{}

// rawRecord matches the external export shape before normalization.
type rawRecord struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Object    string `json:"object"`
	Category  string `json:"category"`
	Emotion   string `json:"emotion"`
}

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

// Import parses a JSON array file into records.
func (j *JSONImporter) Import(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var raw []rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	records := make([]record.Record, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		records = append(records, record.New(
			r.ID, r.Key, r.Text, r.CreatedAt, r.Object, r.Category, r.Emotion,
		))
	}
	return records, nil
}
