// Package narrative assembles the story context around one focal record: a
// time-ordered semantic spine of its nearest neighbors, attribute-exact
// chains over object and category, and at most one moderate-similarity
// "surprise" connection from a different context.
package narrative

import (
	"sort"

	"github.com/hurttlocker/recall/internal/neighbor"
	"github.com/hurttlocker/recall/internal/record"
)

// Options tunes chain assembly. Zero values are replaced by defaults via
// DefaultOptions; callers tweaking a single knob should start from there.
type Options struct {
	SimilarityThreshold float64 // spine cutoff (default 0.4)
	UpstreamCount       int     // max strictly-earlier spine entries (default 3)
	DownstreamCount     int     // max later-or-equal spine entries (default 3)
	ObjectCount         int     // max same-object chain entries (default 5)
	CategoryCount       int     // max same-category chain entries (default 5)
	SurpriseMin         float64 // surprise band lower bound (default 0.25)
	SurpriseMax         float64 // surprise band upper bound (default 0.4)
}

// DefaultOptions returns the standard chain-building parameters.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.4,
		UpstreamCount:       3,
		DownstreamCount:     3,
		ObjectCount:         5,
		CategoryCount:       5,
		SurpriseMin:         0.25,
		SurpriseMax:         0.4,
	}
}

// Entry pairs a record with its similarity to the focal record.
type Entry struct {
	Record     record.Record `json:"record"`
	Similarity float64       `json:"similarity"`
}

// Chain is the semantic spine: upstream ordered nearest-past-first,
// downstream ordered nearest-future-first.
type Chain struct {
	Upstream   []Entry `json:"upstream"`
	Downstream []Entry `json:"downstream"`
}

// Context bundles everything derived for one focal record.
type Context struct {
	Primary       Chain           `json:"primary"`
	ObjectChain   []record.Record `json:"objectChain"`
	CategoryChain []record.Record `json:"categoryChain"`
	Surprise      *Entry          `json:"surprise,omitempty"`
}

// BuildContext derives the narrative context for focal from the record set
// and its precomputed neighbor table. The table is read, never mutated.
func BuildContext(focal record.Record, records []record.Record, table neighbor.Table, opts Options) Context {
	byID := record.IndexByID(records)

	var upstream, downstream []Entry
	for _, nb := range table[focal.ID] {
		if nb.Similarity < opts.SimilarityThreshold {
			continue
		}
		rec, ok := byID[nb.ID]
		if !ok {
			continue
		}
		entry := Entry{Record: rec, Similarity: nb.Similarity}
		if rec.CreatedAt.Before(focal.CreatedAt) {
			upstream = append(upstream, entry)
		} else {
			downstream = append(downstream, entry)
		}
	}

	sort.SliceStable(upstream, func(i, j int) bool {
		return upstream[i].Record.CreatedAt.After(upstream[j].Record.CreatedAt)
	})
	sort.SliceStable(downstream, func(i, j int) bool {
		return downstream[i].Record.CreatedAt.Before(downstream[j].Record.CreatedAt)
	})

	if len(upstream) > opts.UpstreamCount {
		upstream = upstream[:opts.UpstreamCount]
	}
	if len(downstream) > opts.DownstreamCount {
		downstream = downstream[:opts.DownstreamCount]
	}

	return Context{
		Primary:       Chain{Upstream: upstream, Downstream: downstream},
		ObjectChain:   attributeChain(focal, records, func(r record.Record) string { return r.Object }, focal.Object, opts.ObjectCount),
		CategoryChain: attributeChain(focal, records, func(r record.Record) string { return r.Category }, focal.Category, opts.CategoryCount),
		Surprise:      surpriseConnection(focal, byID, table, opts),
	}
}

// attributeChain collects other records whose attribute exactly matches the
// focal value, timestamp ascending, truncated to limit.
func attributeChain(focal record.Record, records []record.Record, attr func(record.Record) string, value string, limit int) []record.Record {
	matched := make([]record.Record, 0, limit)
	for _, r := range records {
		if r.ID == focal.ID {
			continue
		}
		if attr(r) == value {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// surpriseConnection scans the focal record's full neighbor list (not the
// spine-filtered one) for the first entry inside the surprise band whose
// record differs from the focal in both object and category. The pick is
// first-qualifying in list order, so it is deterministic but not the
// strongest candidate in the band.
func surpriseConnection(focal record.Record, byID map[string]record.Record, table neighbor.Table, opts Options) *Entry {
	for _, nb := range table[focal.ID] {
		if nb.Similarity < opts.SurpriseMin || nb.Similarity > opts.SurpriseMax {
			continue
		}
		rec, ok := byID[nb.ID]
		if !ok {
			continue
		}
		if rec.Object == focal.Object || rec.Category == focal.Category {
			continue
		}
		return &Entry{Record: rec, Similarity: nb.Similarity}
	}
	return nil
}
