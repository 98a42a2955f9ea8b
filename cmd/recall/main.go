package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hurttlocker/recall/internal/cluster"
	"github.com/hurttlocker/recall/internal/config"
	"github.com/hurttlocker/recall/internal/embed"
	"github.com/hurttlocker/recall/internal/ingest"
	"github.com/hurttlocker/recall/internal/label"
	"github.com/hurttlocker/recall/internal/mcp"
	"github.com/hurttlocker/recall/internal/narrative"
	"github.com/hurttlocker/recall/internal/neighbor"
	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/store"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
)

const version = "0.1.0-dev"

func main() {
	// Best effort; a missing .env is normal.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "embed":
		err = runEmbed(os.Args[2:])
	case "neighbors":
		err = runNeighbors(os.Args[2:])
	case "chain":
		err = runChain(os.Args[2:])
	case "clusters":
		err = runClusters(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("recall %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore resolves the database path (flag > env > config file > default)
// and opens it.
func openStore(cliDBPath string) (store.Store, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{CLIDBPath: cliDBPath})
	if err != nil {
		return nil, err
	}
	s, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// loadCorpus returns every record that has an embedding, plus the vectors.
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

func runImport(args []string) error {
	var paths []string
	var dbPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		default:
			if len(args[i]) > 0 && args[i][0] == '-' {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			paths = append(paths, args[i])
		}
	}

	if len(paths) == 0 {
		return fmt.Errorf("usage: recall import <file.csv|file.json> [--db <path>]")
	}

	s, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	total := 0
	for _, path := range paths {
		records, err := ingest.ImportFile(path)
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		if err := s.AddRecordBatch(ctx, records); err != nil {
			return fmt.Errorf("storing records from %s: %w", path, err)
		}
		fmt.Printf("Imported %d records from %s\n", len(records), path)
		total += len(records)
	}
	fmt.Printf("Done: %d records total\n", total)
	return nil
}

func runEmbed(args []string) error {
	var dbPath, embedFlag string
	opts := embed.DefaultPipelineOptions()

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		case "--embed":
			i++
			if i >= len(args) {
				return fmt.Errorf("--embed requires a value")
			}
			embedFlag = args[i]
		case "--batch-size":
			i++
			if i >= len(args) {
				return fmt.Errorf("--batch-size requires a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --batch-size: %s", args[i])
			}
			opts.BatchSize = n
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{CLIDBPath: dbPath, CLIEmbed: embedFlag})
	if err != nil {
		return err
	}

	embedProvider := cfg.EmbedProvider.Value
	if embedProvider == "" {
		embedProvider = "ollama/nomic-embed-text"
	}
	embedCfg, err := embed.ParseFlag(embedProvider)
	if err != nil {
		return err
	}
	if cfg.EmbedEndpoint.Value != "" {
		embedCfg.Endpoint = cfg.EmbedEndpoint.Value
	}
	if cfg.EmbedAPIKey.Value != "" {
		embedCfg.APIKey = cfg.EmbedAPIKey.Value
	}
	client, err := embed.NewClient(embedCfg)
	if err != nil {
		return err
	}

	s, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	records, err := s.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	// Only embed records that don't have a vector yet.
	pending := make([]record.Record, 0, len(records))
	for _, r := range records {
		vec, err := s.GetEmbedding(ctx, r.ID)
		if err != nil {
			return err
		}
		if vec == nil {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		fmt.Println("All records already embedded")
		return nil
	}

	fmt.Printf("Embedding %d records with %s\n", len(pending), client.Model())
	opts.ProgressFn = func(done, total int) {
		fmt.Printf("  [%d/%d]\n", done, total)
	}

	result, err := embed.EmbedRecords(ctx, client, pending, opts)
	if err != nil {
		return err
	}

	for id, vec := range result.Vectors {
		if err := s.AddEmbedding(ctx, id, vec); err != nil {
			return fmt.Errorf("storing embedding for %s: %w", id, err)
		}
	}
	fmt.Printf("Run %s: embedded %d records\n", result.RunID, len(result.Vectors))
	return nil
}

func runNeighbors(args []string) error {
	var id, dbPath, exportPath string
	k := neighbor.DefaultTopK

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		case "--k":
			i++
			if i >= len(args) {
				return fmt.Errorf("--k requires a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --k: %s", args[i])
			}
			k = n
		case "--export":
			i++
			if i >= len(args) {
				return fmt.Errorf("--export requires a value")
			}
			exportPath = args[i]
		default:
			if len(args[i]) > 0 && args[i][0] == '-' {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			id = args[i]
		}
	}
	if id == "" && exportPath == "" {
		return fmt.Errorf("usage: recall neighbors <id> [--k <n>] [--export <path>] [--db <path>]")
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{CLIDBPath: dbPath})
	if err != nil {
		return err
	}
	s, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	records, vectors, err := loadCorpus(ctx, s)
	if err != nil {
		return err
	}

	table, err := neighbor.BuildTable(records, vectors, k)
	if err != nil {
		return err
	}

	if exportPath != "" {
		model := cfg.EmbedProvider.Value
		if model == "" {
			model = "unknown"
		}
		artifact := neighbor.NewArtifact(model, k, table)
		data, err := json.MarshalIndent(artifact, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if exportPath == "-" {
			fmt.Print(string(data))
		} else {
			if err := os.WriteFile(exportPath, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", exportPath, err)
			}
			fmt.Printf("Wrote neighbor table for %d records to %s\n", len(table), exportPath)
		}
	}

	if id == "" {
		return nil
	}

	entries, ok := table[id]
	if !ok {
		return fmt.Errorf("record %q not found or has no embedding", id)
	}

	byID := record.IndexByID(records)
	fmt.Printf("Neighbors of %s:\n", id)
	for _, e := range entries {
		fmt.Printf("  %.4f  %s  %s\n", e.Similarity, e.ID, byID[e.ID].Text)
	}
	return nil
}

func runChain(args []string) error {
	var id, dbPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		default:
			if len(args[i]) > 0 && args[i][0] == '-' {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			id = args[i]
		}
	}
	if id == "" {
		return fmt.Errorf("usage: recall chain <id> [--db <path>]")
	}

	s, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	records, vectors, err := loadCorpus(ctx, s)
	if err != nil {
		return err
	}

	byID := record.IndexByID(records)
	focal, ok := byID[id]
	if !ok {
		return fmt.Errorf("record %q not found or has no embedding", id)
	}

	table, err := neighbor.BuildTable(records, vectors, len(records))
	if err != nil {
		return err
	}

	chainCtx := narrative.BuildContext(focal, records, table, narrative.DefaultOptions())
	data, err := json.MarshalIndent(chainCtx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runClusters(args []string) error {
	var dbPath, llmFlag string
	doLabel := false
	params := cluster.DefaultParams()

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		case "--threshold":
			i++
			if i >= len(args) {
				return fmt.Errorf("--threshold requires a value")
			}
			v, err := strconv.ParseFloat(args[i], 64)
			if err != nil || v <= 0 || v >= 1 {
				return fmt.Errorf("invalid --threshold: %s", args[i])
			}
			params.SimilarityThreshold = v
		case "--max-clusters":
			i++
			if i >= len(args) {
				return fmt.Errorf("--max-clusters requires a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid --max-clusters: %s", args[i])
			}
			params.MaxClusters = n
		case "--label":
			doLabel = true
		case "--llm":
			i++
			if i >= len(args) {
				return fmt.Errorf("--llm requires a value")
			}
			llmFlag = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{CLIDBPath: dbPath, CLILLM: llmFlag})
	if err != nil {
		return err
	}

	s, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	records, vectors, err := loadCorpus(ctx, s)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No embedded records to cluster")
		return nil
	}

	engine, err := cluster.NewEngine(params)
	if err != nil {
		return err
	}
	table, err := neighbor.BuildTable(records, vectors, len(records))
	if err != nil {
		return err
	}
	result := engine.Run(records, table)
	fp := cluster.Fingerprint(records)

	byID := record.IndexByID(records)

	stored := make([]store.StoredCluster, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		stored = append(stored, store.StoredCluster{
			ID:              c.ID,
			DominantEmotion: c.DominantEmotion,
			MemberCount:     len(c.MemberIDs),
		})
	}
	if err := s.SaveClustering(ctx, fp, stored, result.NodeClusterMap); err != nil {
		return fmt.Errorf("saving clustering: %w", err)
	}

	if doLabel {
		llmCfg, err := label.ParseFlag(cfg.LLMProvider.Value)
		if err != nil {
			return err
		}
		llmCfg.APIKey = cfg.LLMAPIKey.Value
		provider, err := label.NewProvider(llmCfg)
		if err != nil {
			return err
		}
		for i := range result.Clusters {
			c := &result.Clusters[i]
			samples := make([]string, 0, 5)
			for _, mid := range c.MemberIDs {
				if len(samples) == 5 {
					break
				}
				samples = append(samples, byID[mid].Text)
			}
			name, err := label.LabelCluster(ctx, provider, label.ClusterSummary{
				ClusterID:       c.ID,
				Size:            len(c.MemberIDs),
				DominantEmotion: c.DominantEmotion,
				SampleTexts:     samples,
			})
			if err != nil {
				return err
			}
			if err := s.SetClusterLabel(ctx, c.ID, name); err != nil {
				return fmt.Errorf("storing label for cluster %d: %w", c.ID, err)
			}
			c.Label = name
		}
	}

	fmt.Printf("Clustered %d records into %d clusters (fingerprint %s)\n", len(records), len(result.Clusters), fp)
	for _, c := range result.Clusters {
		name := c.Label
		if name == "" {
			name = "(unlabeled)"
		}
		fmt.Printf("  [%d] %s — %d records, dominant emotion %s\n", c.ID, name, len(c.MemberIDs), c.DominantEmotion)
	}
	for _, e := range result.Edges {
		fmt.Printf("  edge %d <-> %d  weight %.4f\n", e.Source, e.Target, e.Weight)
	}
	return nil
}

func runStats(args []string) error {
	var dbPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	s, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	recordCount, err := s.CountRecords(ctx)
	if err != nil {
		return err
	}
	embeddingCount, err := s.CountEmbeddings(ctx)
	if err != nil {
		return err
	}

	records, vectors, err := loadCorpus(ctx, s)
	if err != nil {
		return err
	}

	fmt.Printf("Records:    %d\n", recordCount)
	fmt.Printf("Embeddings: %d\n", embeddingCount)
	fmt.Printf("Fingerprint: %s\n", cluster.Fingerprint(records))

	if len(records) > 1 {
		table, err := neighbor.BuildTable(records, vectors, neighbor.DefaultTopK)
		if err != nil {
			return err
		}
		stats := neighbor.ComputeStats(table)
		fmt.Printf("Similarity (top-%d neighbors, %d values):\n", neighbor.DefaultTopK, stats.Count)
		fmt.Printf("  mean %.4f  stddev %.4f\n", stats.Mean, stats.StdDev)
		fmt.Printf("  min %.4f  p25 %.4f  p50 %.4f  p75 %.4f  max %.4f\n",
			stats.Min, stats.P25, stats.P50, stats.P75, stats.Max)
	}

	clustering, err := s.LoadClustering(ctx)
	if err != nil {
		return err
	}
	if clustering != nil {
		fmt.Printf("Clustering: %d clusters, saved %s (fingerprint %s)\n",
			len(clustering.Clusters), clustering.SavedAt.Format(time.RFC3339), clustering.Fingerprint)
	}
	return nil
}

func runConfig(args []string) error {
	cfg, err := config.ResolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n\n", cfg.ConfigPath)
	printResolved("db_path", cfg.DBPath)
	printResolved("embed_provider", cfg.EmbedProvider)
	printResolved("embed_endpoint", cfg.EmbedEndpoint)
	printResolved("embed_api_key", redact(cfg.EmbedAPIKey))
	printResolved("llm_provider", cfg.LLMProvider)
	printResolved("llm_api_key", redact(cfg.LLMAPIKey))
	return nil
}

func printResolved(name string, v config.ResolvedValue) {
	if v.Value == "" {
		fmt.Printf("  %-16s (unset)\n", name)
		return
	}
	from := string(v.Source)
	if v.From != "" {
		from = fmt.Sprintf("%s: %s", v.Source, v.From)
	}
	fmt.Printf("  %-16s %s  [%s]\n", name, v.Value, from)
}

func redact(v config.ResolvedValue) config.ResolvedValue {
	if len(v.Value) > 4 {
		v.Value = v.Value[:4] + "****"
	} else if v.Value != "" {
		v.Value = "****"
	}
	return v
}

func runMCP(args []string) error {
	var dbPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			i++
			if i >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			dbPath = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	s, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := mcp.NewServer(mcp.ServerConfig{Store: s, Version: version})
	if err != nil {
		return err
	}
	return server.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`recall %s — Personal memory engine: embeddings, narrative chains, clusters

Usage:
  recall <command> [arguments]

Commands:
  import <file>       Import memories from a CSV or JSON file
  embed               Embed records that don't have a vector yet
  neighbors <id>      Show the most similar memories to a record
  chain <id>          Build the narrative context around a record
  clusters            Cluster all memories via label propagation
  stats               Show corpus statistics
  config              Show resolved configuration and its sources
  mcp                 Run the MCP server on stdio
  version             Print version

Common Flags:
  --db <path>         Database path (default: ~/.recall/recall.db)

Embed Flags:
  --embed <p/m>       Embedding provider/model (e.g. ollama/nomic-embed-text)
  --batch-size <n>    Records per embedding request (default: 50)

Neighbor Flags:
  --k <n>             Neighbors per record (default: %d)
  --export <path>     Write the full neighbor table as JSON ("-" for stdout)

Cluster Flags:
  --threshold <t>     Minimum similarity for cluster adjacency (default: 0.35)
  --max-clusters <n>  Maximum retained clusters (default: 12)
  --label             Name each cluster with an LLM
  --llm <p/m>         LLM provider/model (e.g. google/gemini-2.5-flash)

Flags:
  -h, --help          Show this help message
  -v, --version       Print version

Environment:
  RECALL_DB, RECALL_EMBED, RECALL_LLM, RECALL_EMBED_ENDPOINT,
  RECALL_EMBED_API_KEY, OPENROUTER_API_KEY, GEMINI_API_KEY
`, version, neighbor.DefaultTopK)
}
