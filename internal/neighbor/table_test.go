package neighbor

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/hurttlocker/recall/internal/record"
)

func testRecords(ids ...string) []record.Record {
	records := make([]record.Record, len(ids))
	for i, id := range ids {
		records[i] = record.Record{ID: id}
	}
	return records
}

func TestBuildTableCardinality(t *testing.T) {
	records := testRecords("a", "b", "c")
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {0.9, 0.1},
		"c": {0, 1},
	}

	table, err := BuildTable(records, vectors, 2)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}

	if len(table) != len(records) {
		t.Fatalf("expected %d table entries, got %d", len(records), len(table))
	}
	for _, r := range records {
		entries, ok := table[r.ID]
		if !ok {
			t.Fatalf("record %q missing from table", r.ID)
		}
		if len(entries) > 2 {
			t.Errorf("record %q has %d entries, want <= 2", r.ID, len(entries))
		}
		for _, e := range entries {
			if e.ID == r.ID {
				t.Errorf("record %q references itself", r.ID)
			}
		}
	}
}

func TestBuildTableSortedDescending(t *testing.T) {
	records := testRecords("a", "b", "c", "d")
	vectors := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.9, 0.4, 0},
		"c": {0.5, 0.8, 0},
		"d": {0, 0, 1},
	}

	table, err := BuildTable(records, vectors, 10)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}

	for id, entries := range table {
		for i := 1; i < len(entries); i++ {
			if entries[i].Similarity > entries[i-1].Similarity {
				t.Errorf("record %q neighbors not sorted descending at %d", id, i)
			}
		}
	}

	// a's closest neighbor is b, then c, then d.
	got := table["a"]
	if got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "d" {
		t.Errorf("unexpected neighbor order for a: %+v", got)
	}
}

func TestBuildTableRoundsToFourDecimals(t *testing.T) {
	records := testRecords("a", "b")
	vectors := map[string][]float32{
		"a": {1, 1, 0},
		"b": {1, 0, 0},
	}

	table, err := BuildTable(records, vectors, 5)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}

	sim := table["a"][0].Similarity
	if sim != math.Round(sim*10000)/10000 {
		t.Errorf("similarity %v not rounded to 4 decimals", sim)
	}
	// cos(45°) ≈ 0.70710678 → 0.7071
	if sim != 0.7071 {
		t.Errorf("expected 0.7071, got %v", sim)
	}
}

func TestBuildTableMissingVector(t *testing.T) {
	records := testRecords("a", "b")
	vectors := map[string][]float32{"a": {1, 0}}

	if _, err := BuildTable(records, vectors, 5); err == nil {
		t.Fatal("expected error for record without vector")
	}
}

func TestBuildTableNegativeK(t *testing.T) {
	if _, err := BuildTable(testRecords("a"), map[string][]float32{"a": {1}}, -1); err == nil {
		t.Fatal("expected error for negative top-k")
	}
}

func TestBuildTableSingleRecord(t *testing.T) {
	table, err := BuildTable(testRecords("only"), map[string][]float32{"only": {1, 2}}, 10)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}
	if entries := table["only"]; len(entries) != 0 {
		t.Errorf("expected empty neighbor list, got %+v", entries)
	}
}

func TestArtifactJSONShape(t *testing.T) {
	records := testRecords("a", "b")
	vectors := map[string][]float32{
		"a": {1, 1, 0},
		"b": {1, 0, 0},
	}

	table, err := BuildTable(records, vectors, 5)
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}

	artifact := NewArtifact("ollama/nomic-embed-text", 5, table)
	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshaling artifact: %v", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshaling envelope: %v", err)
	}
	for _, key := range []string{"model", "generatedAt", "recordCount", "topK", "neighbors"} {
		if _, ok := envelope[key]; !ok {
			t.Errorf("artifact JSON missing key %q", key)
		}
	}

	var decoded Artifact
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshaling artifact: %v", err)
	}
	if decoded.Model != "ollama/nomic-embed-text" {
		t.Errorf("model = %q", decoded.Model)
	}
	if decoded.RecordCount != 2 || decoded.TopK != 5 {
		t.Errorf("recordCount/topK = %d/%d", decoded.RecordCount, decoded.TopK)
	}
	if !reflect.DeepEqual(Table(decoded.Neighbors), table) {
		t.Errorf("neighbors changed over a round trip:\n got %+v\nwant %+v", decoded.Neighbors, table)
	}
	// 4-decimal similarities survive the round trip exactly.
	if decoded.Neighbors["a"][0].Similarity != 0.7071 {
		t.Errorf("similarity = %v, want 0.7071", decoded.Neighbors["a"][0].Similarity)
	}
}

func TestComputeStats(t *testing.T) {
	table := Table{
		"a": {{ID: "b", Similarity: 0.2}, {ID: "c", Similarity: 0.4}},
		"b": {{ID: "a", Similarity: 0.6}, {ID: "c", Similarity: 0.8}},
	}

	stats := ComputeStats(table)
	if stats.Count != 4 {
		t.Fatalf("expected 4 pooled values, got %d", stats.Count)
	}
	if math.Abs(stats.Mean-0.5) > 1e-9 {
		t.Errorf("mean = %v, want 0.5", stats.Mean)
	}
	// Population std dev of {0.2, 0.4, 0.6, 0.8}.
	wantStd := math.Sqrt(0.05)
	if math.Abs(stats.StdDev-wantStd) > 1e-9 {
		t.Errorf("stddev = %v, want %v", stats.StdDev, wantStd)
	}
	if stats.Min != 0.2 || stats.Max != 0.8 {
		t.Errorf("min/max = %v/%v, want 0.2/0.8", stats.Min, stats.Max)
	}
	if math.Abs(stats.P50-0.5) > 1e-9 {
		t.Errorf("p50 = %v, want 0.5", stats.P50)
	}
	if math.Abs(stats.P25-0.35) > 1e-9 {
		t.Errorf("p25 = %v, want 0.35 (linear interpolation)", stats.P25)
	}
	if math.Abs(stats.P75-0.65) > 1e-9 {
		t.Errorf("p75 = %v, want 0.65 (linear interpolation)", stats.P75)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(Table{"a": {}})
	if stats.Count != 0 {
		t.Errorf("expected zero stats for empty table, got %+v", stats)
	}
}
