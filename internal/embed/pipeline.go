package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/recall/internal/record"
)

// PipelineOptions configures a batch embedding run over a record set.
type PipelineOptions struct {
	BatchSize  int                      // texts per API call (default: 50)
	BatchDelay time.Duration            // pause between batches, rate-limit courtesy (default: 0)
	ProgressFn func(current, total int) // optional progress callback
}

// DefaultPipelineOptions returns sensible defaults for embedding runs.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{BatchSize: 50}
}

// PipelineResult is a complete embedding run: one vector per input record.
type PipelineResult struct {
	RunID       string
	Model       string
	GeneratedAt time.Time
	Vectors     map[string][]float32
}

// EmbedRecords embeds every record's text in sequential batches with a fixed
// inter-batch delay. A failed batch aborts the whole run: no partial vector
// map is ever returned, so the caller either has embeddings for the full
// record set or re-runs from scratch.
func EmbedRecords(ctx context.Context, embedder Embedder, records []record.Record, opts PipelineOptions) (*PipelineResult, error) {
	result := &PipelineResult{
		RunID:       uuid.NewString(),
		Model:       embedder.Model(),
		GeneratedAt: time.Now().UTC(),
		Vectors:     make(map[string][]float32, len(records)),
	}
	if len(records) == 0 {
		return result, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if start > 0 && opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.BatchDelay):
			}
		}

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Text
		}

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors for %d records", start, end-1, len(vectors), len(batch))
		}
		for i, r := range batch {
			if len(vectors[i]) == 0 {
				return nil, fmt.Errorf("embedding batch %d-%d: empty vector for record %q", start, end-1, r.ID)
			}
			result.Vectors[r.ID] = vectors[i]
		}

		if opts.ProgressFn != nil {
			opts.ProgressFn(end, len(records))
		}
	}

	return result, nil
}
