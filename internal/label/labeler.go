package label

import (
	"context"
	"fmt"
	"strings"
)

const (
	// maxSampleTexts caps how many member texts go into the prompt.
	maxSampleTexts = 5
	// maxLabelWords caps the generated label length.
	maxLabelWords = 4
)

const systemPrompt = `You name groups of personal memories. Reply with a short descriptive label of at most four words. No quotes, no punctuation, no explanation.`

// ClusterSummary describes one cluster for labeling.
type ClusterSummary struct {
	ClusterID       int
	Size            int
	DominantEmotion string
	SampleTexts     []string
}

// LabelCluster asks the provider for a short name for the cluster.
func LabelCluster(ctx context.Context, p Provider, sum ClusterSummary) (string, error) {
	raw, err := p.Complete(ctx, buildPrompt(sum), CompletionOpts{
		MaxTokens:   32,
		Temperature: 0,
		System:      systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("labeling cluster %d: %w", sum.ClusterID, err)
	}
	label := sanitizeLabel(raw)
	if label == "" {
		return "", fmt.Errorf("labeling cluster %d: provider returned empty label", sum.ClusterID)
	}
	return label, nil
}

func buildPrompt(sum ClusterSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A cluster of %d personal memories. Dominant emotion: %s.\n", sum.Size, sum.DominantEmotion)
	b.WriteString("Sample memories:\n")
	samples := sum.SampleTexts
	if len(samples) > maxSampleTexts {
		samples = samples[:maxSampleTexts]
	}
	for _, text := range samples {
		fmt.Fprintf(&b, "- %s\n", text)
	}
	b.WriteString("Name this cluster.")
	return b.String()
}

// sanitizeLabel strips quotes and trailing punctuation and caps word count.
func sanitizeLabel(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	words := strings.Fields(s)
	if len(words) > maxLabelWords {
		words = words[:maxLabelWords]
	}
	return strings.Join(words, " ")
}
