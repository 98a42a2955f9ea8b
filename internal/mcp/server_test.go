package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/store"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// helper: create a test store with three embedded records
func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []struct {
		id, text, object, category, emotion string
		offset                              time.Duration
		vector                              []float32
	}{
		{"m1", "walked the dog in the park", "dog", "outdoors", "Joy", 0, []float32{1, 0, 0}},
		{"m2", "played fetch with the dog", "dog", "outdoors", "Joy", time.Hour, []float32{0.9, 0.1, 0}},
		{"m3", "finished the quarterly report", "report", "work", "Relief", 2 * time.Hour, []float32{0, 1, 0}},
	}

	for _, r := range records {
		rec := record.New(r.id, r.id, r.text, base.Add(r.offset).Format(time.RFC3339), r.object, r.category, r.emotion)
		if err := s.AddRecord(ctx, rec); err != nil {
			t.Fatalf("adding record: %v", err)
		}
		if err := s.AddEmbedding(ctx, r.id, r.vector); err != nil {
			t.Fatalf("adding embedding: %v", err)
		}
	}

	return s
}

func newTestServer(t *testing.T, s store.Store) *server.MCPServer {
	t.Helper()
	srv, err := NewServer(ServerConfig{Store: s})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// callTool invokes an MCP tool through the JSON-RPC dispatch path.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestNewServer(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := newTestServer(t, s)
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestNeighborsTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := newTestServer(t, s)

	result := callTool(t, srv, "recall_neighbors", map[string]interface{}{"id": "m1"})
	if result.IsError {
		t.Fatalf("tool error: %s", getTextContent(t, result))
	}

	var payload struct {
		ID        string `json:"id"`
		Neighbors []struct {
			ID         string  `json:"id"`
			Similarity float64 `json:"similarity"`
		} `json:"neighbors"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing neighbors result: %v", err)
	}

	if payload.ID != "m1" {
		t.Errorf("id = %q", payload.ID)
	}
	if len(payload.Neighbors) == 0 {
		t.Fatal("expected neighbors for m1")
	}
	if payload.Neighbors[0].ID != "m2" {
		t.Errorf("nearest neighbor = %q, want m2", payload.Neighbors[0].ID)
	}
}

func TestNeighborsToolUnknownID(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := newTestServer(t, s)

	result := callTool(t, srv, "recall_neighbors", map[string]interface{}{"id": "nope"})
	if !result.IsError {
		t.Fatal("expected error result for unknown id")
	}
}

func TestChainTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := newTestServer(t, s)

	result := callTool(t, srv, "recall_chain", map[string]interface{}{"id": "m2"})
	if result.IsError {
		t.Fatalf("tool error: %s", getTextContent(t, result))
	}

	var payload struct {
		Primary struct {
			Upstream   []json.RawMessage `json:"upstream"`
			Downstream []json.RawMessage `json:"downstream"`
		} `json:"primary"`
		ObjectChain []struct {
			ID string `json:"id"`
		} `json:"objectChain"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing chain result: %v", err)
	}

	// m1 precedes m2 and they share a high similarity, so it lands upstream.
	if len(payload.Primary.Upstream) == 0 {
		t.Error("expected upstream entries for m2")
	}
	// m1 shares object "dog" with m2.
	found := false
	for _, r := range payload.ObjectChain {
		if r.ID == "m1" {
			found = true
		}
	}
	if !found {
		t.Errorf("object chain missing m1: %+v", payload.ObjectChain)
	}
}

func TestClustersTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := newTestServer(t, s)

	result := callTool(t, srv, "recall_clusters", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("tool error: %s", getTextContent(t, result))
	}

	var payload struct {
		Fingerprint string `json:"fingerprint"`
		Clusters    []struct {
			ID        int      `json:"id"`
			MemberIDs []string `json:"memberIds"`
		} `json:"clusters"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing clusters result: %v", err)
	}

	if payload.Fingerprint != "v1:3:m1:m3" {
		t.Errorf("fingerprint = %q", payload.Fingerprint)
	}
	total := 0
	for _, c := range payload.Clusters {
		total += len(c.MemberIDs)
	}
	if total != 3 {
		t.Errorf("expected all 3 records assigned, got %d", total)
	}

	// Default runs persist the clustering.
	clustering, err := s.LoadClustering(context.Background())
	if err != nil {
		t.Fatalf("LoadClustering: %v", err)
	}
	if clustering == nil || clustering.Fingerprint != "v1:3:m1:m3" {
		t.Errorf("clustering not persisted: %+v", clustering)
	}
}

func TestStatsTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := newTestServer(t, s)

	result := callTool(t, srv, "recall_stats", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("tool error: %s", getTextContent(t, result))
	}

	var payload struct {
		RecordCount    int    `json:"record_count"`
		EmbeddingCount int    `json:"embedding_count"`
		Fingerprint    string `json:"fingerprint"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &payload); err != nil {
		t.Fatalf("parsing stats result: %v", err)
	}

	if payload.RecordCount != 3 || payload.EmbeddingCount != 3 {
		t.Errorf("counts = %d/%d", payload.RecordCount, payload.EmbeddingCount)
	}
	if payload.Fingerprint != "v1:3:m1:m3" {
		t.Errorf("fingerprint = %q", payload.Fingerprint)
	}
}
