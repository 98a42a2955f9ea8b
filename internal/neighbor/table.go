// Package neighbor computes per-record Top-K semantic neighbor tables from
// embedding vectors, plus distributional statistics over the retained
// similarities for calibration and debugging.
//
// The scan is a full O(N²) pairwise comparison. The target corpus is small
// (bounded in the thousands), where brute force stays cheap and keeps
// results exactly reproducible run to run.
package neighbor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hurttlocker/recall/internal/record"
)

// DefaultTopK is the per-record neighbor list cap used when callers pass no
// explicit K.
const DefaultTopK = 15

// Entry is one ranked neighbor: a record id and its cosine similarity to the
// owning record, rounded to 4 decimals. Never references the owner itself.
type Entry struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Table maps each record id to its ranked neighbor list, similarity
// descending with ties in input order. Every input record id has an entry,
// possibly empty, so lookups never need to branch on a missing key.
type Table map[string][]Entry

// Artifact is the persisted form of a neighbor table.
type Artifact struct {
	Model       string             `json:"model"`
	GeneratedAt time.Time          `json:"generatedAt"`
	RecordCount int                `json:"recordCount"`
	TopK        int                `json:"topK"`
	Neighbors   map[string][]Entry `json:"neighbors"`
}

// Stats summarizes the distribution of all retained similarities.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
}

// BuildTable computes the Top-K neighbor table for a record set. Vectors are
// keyed by record id and must all be present and non-empty; a record without
// a vector is a caller precondition violation, never silently zero-filled.
func BuildTable(records []record.Record, vectors map[string][]float32, topK int) (Table, error) {
	if topK < 0 {
		return nil, fmt.Errorf("top-k must be non-negative, got %d", topK)
	}
	for _, r := range records {
		if len(vectors[r.ID]) == 0 {
			return nil, fmt.Errorf("record %q has no embedding vector", r.ID)
		}
	}

	table := make(Table, len(records))
	for _, r := range records {
		candidates := make([]Entry, 0, len(records)-1)
		for _, other := range records {
			if other.ID == r.ID {
				continue
			}
			candidates = append(candidates, Entry{
				ID:         other.ID,
				Similarity: Cosine(vectors[r.ID], vectors[other.ID]),
			})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Similarity > candidates[j].Similarity
		})

		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		for i := range candidates {
			candidates[i].Similarity = round4(candidates[i].Similarity)
		}
		table[r.ID] = candidates
	}

	return table, nil
}

// NewArtifact wraps a table in its persisted envelope.
func NewArtifact(model string, topK int, table Table) Artifact {
	return Artifact{
		Model:       model,
		GeneratedAt: time.Now().UTC(),
		RecordCount: len(table),
		TopK:        topK,
		Neighbors:   table,
	}
}

// ComputeStats pools every retained similarity across the table and reports
// mean, population standard deviation, min, max, and quartiles. A table with
// no retained entries yields the zero Stats.
func ComputeStats(table Table) Stats {
	pool := make([]float64, 0, len(table)*8)

	// Deterministic pooling order: sorted owner ids, then list order.
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, e := range table[id] {
			pool = append(pool, e.Similarity)
		}
	}

	if len(pool) == 0 {
		return Stats{}
	}

	sum := 0.0
	min := pool[0]
	max := pool[0]
	for _, v := range pool {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(pool))

	variance := 0.0
	for _, v := range pool {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(pool))

	sorted := append([]float64(nil), pool...)
	sort.Float64s(sorted)

	return Stats{
		Count:  len(pool),
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    min,
		Max:    max,
		P25:    percentile(sorted, 0.25),
		P50:    percentile(sorted, 0.50),
		P75:    percentile(sorted, 0.75),
	}
}

// percentile interpolates linearly between order statistics of an
// ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
