// Package record defines the memory record data model shared by the
// neighbor, narrative, and cluster engines.
//
// Records are immutable once constructed. Attribute strings (object,
// category, emotion) are free-form; empty values normalize to "Unknown"
// so downstream grouping never has to branch on missing metadata.
package record

import (
	"strings"
	"time"
)

// UnknownAttribute is the sentinel for missing object/category/emotion values.
const UnknownAttribute = "Unknown"

// Record is a single memory entry with its presentation metadata.
type Record struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Object    string    `json:"object"`
	Category  string    `json:"category"`
	Emotion   string    `json:"emotion"`
}

// New builds a normalized Record from raw field values. Empty attributes
// become UnknownAttribute and an unparsable timestamp becomes the Unix epoch.
func New(id, key, text, createdAt, object, category, emotion string) Record {
	return Record{
		ID:        strings.TrimSpace(id),
		Key:       strings.TrimSpace(key),
		Text:      text,
		CreatedAt: ParseCreatedAt(createdAt),
		Object:    NormalizeAttribute(object),
		Category:  NormalizeAttribute(category),
		Emotion:   NormalizeAttribute(emotion),
	}
}

// NormalizeAttribute trims an attribute value and substitutes the Unknown
// sentinel for empty strings.
func NormalizeAttribute(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return UnknownAttribute
	}
	return v
}

// createdAtLayouts are tried in order when parsing record timestamps.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseCreatedAt parses a record timestamp. Unparsable values normalize to
// the Unix epoch rather than failing; callers sorting by time will see such
// records as very old.
func ParseCreatedAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Unix(0, 0).UTC()
}

// IndexByID builds an id lookup over a record set. Later duplicates of the
// same id are ignored so the first occurrence wins.
func IndexByID(records []Record) map[string]Record {
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		if _, ok := byID[r.ID]; !ok {
			byID[r.ID] = r
		}
	}
	return byID
}
