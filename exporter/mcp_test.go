package exporter

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "tabxport-test", Version: "0.1.0"}

// mcpSession registers the exporter tools and returns a connected client
// session that can call them end-to-end.
func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	s := testService(t)

	srv := mcp.NewServer(testImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return s, session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
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
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	_, session := mcpSession(t)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{"tabxport_export", "tabxport_list_exports", "tabxport_preview", "tabxport_put_output", "tabxport_put_task"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tools (-want +got):\n%s", diff)
	}
}

func TestMCP_PutAndExport(t *testing.T) {
	_, session := mcpSession(t)

	callTool(t, session, "tabxport_put_task", map[string]any{"id": "p1", "position": 1})
	callTool(t, session, "tabxport_put_output", map[string]any{
		"task_id":     "p1",
		"document_id": "doc1",
		"output": map[string]any{
			"orders":  []any{map[string]any{"id": 1}},
			"refunds": []any{map[string]any{"id": 2, "reason": "damaged"}},
		},
	})

	var saved Saved
	text := callTool(t, session, "tabxport_export", map[string]any{"document_id": "doc1", "mode": "sheets"})
	if err := json.Unmarshal([]byte(text), &saved); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"orders", "refunds"}, saved.Sheets); diff != "" {
		t.Errorf("sheets (-want +got):\n%s", diff)
	}
	if saved.Path == "" || saved.ExportID == "" {
		t.Errorf("saved: %s", text)
	}

	var exports []struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal([]byte(callTool(t, session, "tabxport_list_exports", map[string]any{})), &exports); err != nil {
		t.Fatal(err)
	}
	if len(exports) != 1 || exports[0].DocumentID != "doc1" {
		t.Errorf("exports: %+v", exports)
	}
}

func TestMCP_Preview(t *testing.T) {
	s, session := mcpSession(t)
	seed(t, s)

	var p Preview
	if err := json.Unmarshal([]byte(callTool(t, session, "tabxport_preview", map[string]any{"document_id": "doc2"})), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Sheets) != 1 || p.Sheets[0].Name != "Sheet1" {
		t.Errorf("preview: %+v", p)
	}
}

func TestMCP_ToolErrors(t *testing.T) {
	_, session := mcpSession(t)
	ctx := context.Background()

	for _, args := range []map[string]any{
		{"document_id": ""},
		{"document_id": "doc1", "mode": "pivot"},
	} {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "tabxport_export", Arguments: args})
		if err != nil {
			t.Fatalf("transport error: %v", err)
		}
		if !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}
