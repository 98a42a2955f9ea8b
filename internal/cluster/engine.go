// Package cluster groups a record set into semantic communities via
// similarity-weighted label propagation, absorbs overflow micro-clusters
// into their nearest large neighbor, and derives inter-cluster edges.
//
// The engine is fully deterministic: identical records, neighbor table, and
// parameters always produce byte-identical assignments and edge weights.
// Callers cache results keyed by Fingerprint, so every iteration order and
// tie-break below is part of the contract, not an implementation detail.
package cluster

import (
	"fmt"
	"sort"

	"github.com/hurttlocker/recall/internal/neighbor"
	"github.com/hurttlocker/recall/internal/record"
)

// Params tunes the cluster engine.
type Params struct {
	SimilarityThreshold float64 // adjacency cutoff (default 0.35)
	MaxIterations       int     // propagation pass cap (default 20)
	MaxClusters         int     // retained cluster cap (default 12)
}

// DefaultParams returns the standard clustering parameters.
func DefaultParams() Params {
	return Params{
		SimilarityThreshold: 0.35,
		MaxIterations:       20,
		MaxClusters:         12,
	}
}

// Cluster is one retained semantic community. Label is filled in by an
// external naming step and is empty until then.
type Cluster struct {
	ID              int      `json:"id"`
	MemberIDs       []string `json:"memberIds"`
	DominantEmotion string   `json:"dominantEmotion"`
	Label           string   `json:"label,omitempty"`
}

// Edge is an undirected inter-cluster edge, canonicalized source < target,
// weight = summed similarity of all cross-cluster neighbor edges.
type Edge struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

// Result is a complete clustering of one record set. NodeClusterMap contains
// every input record id exactly once.
type Result struct {
	Clusters       []Cluster      `json:"clusters"`
	Edges          []Edge         `json:"edges"`
	NodeClusterMap map[string]int `json:"nodeClusterMap"`
}

// Engine runs label propagation with fixed parameters.
type Engine struct {
	params Params
}

// NewEngine validates parameters eagerly; out-of-range values are a caller
// error, not something to clamp.
func NewEngine(params Params) (*Engine, error) {
	if params.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", params.MaxIterations)
	}
	if params.MaxClusters <= 0 {
		return nil, fmt.Errorf("max clusters must be positive, got %d", params.MaxClusters)
	}
	return &Engine{params: params}, nil
}

// Run clusters the record set using its neighbor table. Empty input yields
// zero clusters, no edges, and an empty map, never an error.
func (e *Engine) Run(records []record.Record, table neighbor.Table) *Result {
	if len(records) == 0 {
		return &Result{NodeClusterMap: map[string]int{}}
	}

	ids := make([]string, len(records))
	inSet := make(map[string]struct{}, len(records))
	for i, r := range records {
		ids[i] = r.ID
		inSet[r.ID] = struct{}{}
	}

	// Adjacency keeps only edges at or above the threshold whose target is
	// still in the record set.
	adjacency := make(map[string][]neighbor.Entry, len(records))
	for _, id := range ids {
		var kept []neighbor.Entry
		for _, nb := range table[id] {
			if nb.Similarity < e.params.SimilarityThreshold {
				continue
			}
			if _, ok := inSet[nb.ID]; !ok {
				continue
			}
			kept = append(kept, nb)
		}
		adjacency[id] = kept
	}

	labels := propagate(ids, adjacency, e.params.MaxIterations)
	groups := groupByLabel(ids, labels)

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i]) > len(groups[j])
	})

	retained := groups
	var overflow [][]string
	if len(groups) > e.params.MaxClusters {
		retained = groups[:e.params.MaxClusters]
		overflow = groups[e.params.MaxClusters:]
	}

	// Membership of the retained clusters before absorption; overflow
	// records pick their new home by edges into this snapshot.
	clusterOf := make(map[string]int, len(ids))
	for ci, members := range retained {
		for _, id := range members {
			clusterOf[id] = ci
		}
	}

	members := make([][]string, len(retained))
	for ci, group := range retained {
		members[ci] = append([]string(nil), group...)
	}
	for _, group := range overflow {
		for _, id := range group {
			target := absorbTarget(id, adjacency, clusterOf, len(retained))
			members[target] = append(members[target], id)
		}
	}

	byID := record.IndexByID(records)
	nodeClusterMap := make(map[string]int, len(ids))
	clusters := make([]Cluster, len(members))
	for ci, group := range members {
		for _, id := range group {
			nodeClusterMap[id] = ci
		}
		clusters[ci] = Cluster{
			ID:              ci,
			MemberIDs:       group,
			DominantEmotion: dominantEmotion(group, byID),
		}
	}

	return &Result{
		Clusters:       clusters,
		Edges:          interClusterEdges(ids, adjacency, nodeClusterMap),
		NodeClusterMap: nodeClusterMap,
	}
}

// propagate runs label propagation to convergence or the pass cap. Labels
// update in place as the pass walks the fixed visit order (degree
// descending, id ascending), so later records in a pass see the votes of
// earlier ones. That in-place semantics is required for mutual pairs to
// converge instead of oscillating, and it stays fully deterministic because
// both the visit order and the vote scan order are fixed.
func propagate(ids []string, adjacency map[string][]neighbor.Entry, maxIterations int) map[string]string {
	order := append([]string(nil), ids...)
	sort.SliceStable(order, func(i, j int) bool {
		di, dj := len(adjacency[order[i]]), len(adjacency[order[j]])
		if di != dj {
			return di > dj
		}
		return order[i] < order[j]
	})

	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		labels[id] = id
	}

	for pass := 0; pass < maxIterations; pass++ {
		changed := 0
		for _, id := range order {
			votes := map[string]float64{}
			// seen preserves first-appearance order; vote maps iterate
			// randomly in Go and would break reproducibility.
			var seen []string
			for _, nb := range adjacency[id] {
				l := labels[nb.ID]
				if _, ok := votes[l]; !ok {
					seen = append(seen, l)
				}
				votes[l] += nb.Similarity
			}

			best := labels[id]
			bestWeight := votes[best]
			for _, l := range seen {
				// Strict > keeps the current label on ties.
				if votes[l] > bestWeight {
					best = l
					bestWeight = votes[l]
				}
			}

			if best != labels[id] {
				labels[id] = best
				changed++
			}
		}

		if changed == 0 {
			break
		}
	}

	return labels
}

// groupByLabel collects final label groups, ordered by the first appearance
// of each label in input order; members keep input order within a group.
func groupByLabel(ids []string, labels map[string]string) [][]string {
	index := make(map[string]int)
	var groups [][]string
	for _, id := range ids {
		l := labels[id]
		gi, ok := index[l]
		if !ok {
			gi = len(groups)
			index[l] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], id)
	}
	return groups
}

// absorbTarget picks the retained cluster an overflow record joins: the
// strongest single similarity edge wins, ties go to the first cluster in
// retained order. A record with no edge into any retained cluster falls
// back to cluster 0.
func absorbTarget(id string, adjacency map[string][]neighbor.Entry, clusterOf map[string]int, retainedCount int) int {
	best := -1
	bestSim := 0.0
	for ci := 0; ci < retainedCount; ci++ {
		for _, nb := range adjacency[id] {
			target, ok := clusterOf[nb.ID]
			if !ok || target != ci {
				continue
			}
			if nb.Similarity > bestSim {
				best = ci
				bestSim = nb.Similarity
			}
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// dominantEmotion is a plurality vote over members in member order; ties
// keep the first-encountered emotion.
func dominantEmotion(memberIDs []string, byID map[string]record.Record) string {
	counts := map[string]int{}
	var seen []string
	for _, id := range memberIDs {
		emotion := record.UnknownAttribute
		if r, ok := byID[id]; ok && r.Emotion != "" {
			emotion = r.Emotion
		}
		if _, ok := counts[emotion]; !ok {
			seen = append(seen, emotion)
		}
		counts[emotion]++
	}

	best := record.UnknownAttribute
	bestCount := 0
	for _, emotion := range seen {
		if counts[emotion] > bestCount {
			best = emotion
			bestCount = counts[emotion]
		}
	}
	return best
}

// interClusterEdges accumulates every retained adjacency edge that crosses
// cluster boundaries into an undirected weight keyed by the canonicalized
// id pair, then emits edges sorted by (source, target).
func interClusterEdges(ids []string, adjacency map[string][]neighbor.Entry, nodeClusterMap map[string]int) []Edge {
	weights := map[[2]int]float64{}
	for _, id := range ids {
		a := nodeClusterMap[id]
		for _, nb := range adjacency[id] {
			b, ok := nodeClusterMap[nb.ID]
			if !ok || a == b {
				continue
			}
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			weights[[2]int{lo, hi}] += nb.Similarity
		}
	}

	edges := make([]Edge, 0, len(weights))
	for pair, w := range weights {
		if w <= 0 {
			continue
		}
		edges = append(edges, Edge{Source: pair[0], Target: pair[1], Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}
