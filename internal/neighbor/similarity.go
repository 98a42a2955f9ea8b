package neighbor

import "math"

// Cosine computes cosine similarity between two equal-length vectors.
// Returns 0 for mismatched lengths or when either vector has zero magnitude,
// avoiding a division by zero rather than signaling an error.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// round4 fixes a similarity at 4 decimal places for stable downstream
// comparison and diff-friendly persisted artifacts.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
