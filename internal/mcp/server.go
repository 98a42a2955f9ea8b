// Package mcp provides a Model Context Protocol server for Recall.
//
// It exposes the memory engine (neighbor lookup, narrative chains,
// clustering, corpus stats) as MCP tools over stdio transport, and the
// latest persisted clustering as an MCP resource.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hurttlocker/recall/internal/cluster"
	"github.com/hurttlocker/recall/internal/narrative"
	"github.com/hurttlocker/recall/internal/neighbor"
	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Version string // version string for MCP server info
	TopK    int    // neighbor table width (0 = neighbor.DefaultTopK)
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines,
// and SQLite supports only one writer at a time. A global mutex keeps
// tool calls ordered: a clustering save completes before the next read.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Recall tools and resources.
func NewServer(cfg ServerConfig) (*server.MCPServer, error) {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = neighbor.DefaultTopK
	}

	s := server.NewMCPServer(
		"Recall",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	cache, err := cluster.NewCache(16)
	if err != nil {
		return nil, fmt.Errorf("creating cluster cache: %w", err)
	}

	registerNeighborsTool(s, cfg.Store, topK)
	registerChainTool(s, cfg.Store, topK)
	registerClustersTool(s, cfg.Store, cache)
	registerStatsTool(s, cfg.Store, topK)

	registerClusteringResource(s, cfg.Store)

	return s, nil
}

// loadCorpus fetches every record plus its embedding. Records without an
// embedding are dropped so the neighbor table can always be built.
func loadCorpus(ctx context.Context, st store.Store) ([]record.Record, map[string][]float32, error) {
	records, err := st.ListRecords(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing records: %w", err)
	}
	vectors, err := st.ListEmbeddings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing embeddings: %w", err)
	}
	embedded := make([]record.Record, 0, len(records))
	for _, r := range records {
		if _, ok := vectors[r.ID]; ok {
			embedded = append(embedded, r)
		}
	}
	return embedded, vectors, nil
}

// --- Tools ---

func registerNeighborsTool(s *server.MCPServer, st store.Store, topK int) {
	tool := mcp.NewTool("recall_neighbors",
		mcp.WithDescription("Look up the most similar memories to a given record, with cosine similarity scores."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Record id to look up"),
		),
		mcp.WithNumber("k",
			mcp.Description(fmt.Sprintf("Maximum number of neighbors (default: %d)", topK)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		k := topK
		if kVal, err := req.RequireFloat("k"); err == nil && int(kVal) > 0 {
			k = int(kVal)
		}

		records, vectors, err := loadCorpus(ctx, st)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		table, err := neighbor.BuildTable(records, vectors, k)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("building neighbor table: %v", err)), nil
		}

		entries, ok := table[id]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("record %q not found or has no embedding", id)), nil
		}

		data, _ := json.MarshalIndent(map[string]interface{}{
			"id":        id,
			"neighbors": entries,
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerChainTool(s *server.MCPServer, st store.Store, topK int) {
	tool := mcp.NewTool("recall_chain",
		mcp.WithDescription("Build the narrative context around one memory: a time-ordered chain of similar memories, same-object and same-category chains, and an optional surprise connection."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Focal record id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		records, vectors, err := loadCorpus(ctx, st)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		byID := record.IndexByID(records)
		focal, ok := byID[id]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("record %q not found or has no embedding", id)), nil
		}

		// Chain building reads the full unthresholded neighbor list, so
		// build with K covering the whole corpus.
		table, err := neighbor.BuildTable(records, vectors, len(records))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("building neighbor table: %v", err)), nil
		}

		chainCtx := narrative.BuildContext(focal, records, table, narrative.DefaultOptions())

		data, _ := json.MarshalIndent(chainCtx, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClustersTool(s *server.MCPServer, st store.Store, cache *cluster.Cache) {
	tool := mcp.NewTool("recall_clusters",
		mcp.WithDescription("Cluster all memories into semantic groups via label propagation. Results are cached per corpus fingerprint and persisted."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity for cluster adjacency (default: 0.35)"),
		),
		mcp.WithNumber("max_clusters",
			mcp.Description("Maximum retained clusters (default: 12)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		params := cluster.DefaultParams()
		custom := false
		if v, err := req.RequireFloat("threshold"); err == nil && v > 0 {
			params.SimilarityThreshold = v
			custom = true
		}
		if v, err := req.RequireFloat("max_clusters"); err == nil && int(v) > 0 {
			params.MaxClusters = int(v)
			custom = true
		}

		records, vectors, err := loadCorpus(ctx, st)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		fp := cluster.Fingerprint(records)

		// Cache only holds default-parameter runs; custom parameters always
		// recompute.
		var result *cluster.Result
		if !custom {
			if cached, ok := cache.Get(fp); ok {
				result = cached
			}
		}

		if result == nil {
			engine, err := cluster.NewEngine(params)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid parameters: %v", err)), nil
			}
			table, err := neighbor.BuildTable(records, vectors, len(records))
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("building neighbor table: %v", err)), nil
			}
			result = engine.Run(records, table)
			if !custom {
				cache.Set(fp, result)
				if err := persistClustering(ctx, st, fp, result); err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("saving clustering: %v", err)), nil
				}
			}
		}

		data, _ := json.MarshalIndent(map[string]interface{}{
			"fingerprint": fp,
			"clusters":    result.Clusters,
			"edges":       result.Edges,
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store, topK int) {
	tool := mcp.NewTool("recall_stats",
		mcp.WithDescription("Summarize the memory corpus: record and embedding counts, corpus fingerprint, and the similarity distribution of the neighbor table."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		recordCount, err := st.CountRecords(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("counting records: %v", err)), nil
		}
		embeddingCount, err := st.CountEmbeddings(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("counting embeddings: %v", err)), nil
		}

		records, vectors, err := loadCorpus(ctx, st)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		payload := map[string]interface{}{
			"record_count":    recordCount,
			"embedding_count": embeddingCount,
			"fingerprint":     cluster.Fingerprint(records),
		}

		if len(records) > 1 {
			table, err := neighbor.BuildTable(records, vectors, topK)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("building neighbor table: %v", err)), nil
			}
			payload["similarity"] = neighbor.ComputeStats(table)
		}

		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerClusteringResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"recall://clusters",
		"Memory Clusters",
		mcp.WithResourceDescription("The most recently persisted clustering: cluster summaries, labels, and record assignments."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		clustering, err := st.LoadClustering(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading clustering: %w", err)
		}

		payload := map[string]interface{}{"available": clustering != nil}
		if clustering != nil {
			payload["fingerprint"] = clustering.Fingerprint
			payload["saved_at"] = clustering.SavedAt
			payload["clusters"] = clustering.Clusters
			payload["assignments"] = clustering.Assignments
		}

		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func persistClustering(ctx context.Context, st store.Store, fingerprint string, result *cluster.Result) error {
	stored := make([]store.StoredCluster, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		stored = append(stored, store.StoredCluster{
			ID:              c.ID,
			DominantEmotion: c.DominantEmotion,
			Label:           c.Label,
			MemberCount:     len(c.MemberIDs),
		})
	}
	return st.SaveClustering(ctx, fingerprint, stored, result.NodeClusterMap)
}
