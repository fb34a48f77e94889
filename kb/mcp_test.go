package kb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "savoir-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_AddSourcesAndStatus(t *testing.T) {
	svc := testService(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "kb_add_sources", map[string]any{
		"input": "https://example.org/docs/start",
	})
	var added AddResult
	if err := json.Unmarshal([]byte(text), &added); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if added.Added != 1 {
		t.Errorf("added: %+v", added)
	}

	text = mcpCallTool(t, session, "kb_status", map[string]any{})
	var status Status
	if err := json.Unmarshal([]byte(text), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.CatalogByStatus["pending"] != 1 {
		t.Errorf("status: %+v", status.CatalogByStatus)
	}
}

func TestMCP_SearchEmptyIndex(t *testing.T) {
	svc := testService(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "kb_search", map[string]any{
		"query": "anything at all",
		"k":     3,
	})
	var out struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("empty index returned results: %s", text)
	}
}

func TestMCP_ClearQueueRejectsFetched(t *testing.T) {
	svc := testService(t)
	session := mcpSession(t, svc)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "kb_clear_queue",
		Arguments: map[string]any{"statuses": []string{"fetched"}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.GetError() == nil {
		t.Error("clearing fetched must be a tool error")
	}
}
