// CLAUDE:SUMMARY Registers the exporter MCP tools: export, preview, put_output, put_task, list_exports.
package exporter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabxport/kit"
	"github.com/hazyhaar/tabxport/outputstore"
)

// RegisterMCP registers exporter tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerExportTool(srv)
	s.registerPreviewTool(srv)
	s.registerPutOutputTool(srv)
	s.registerPutTaskTool(srv)
	s.registerListExportsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

var modeProperty = map[string]any{
	"type":        "string",
	"enum":        []any{"combined", "sheets"},
	"description": "combined: every row on one sheet; sheets: one sheet per table (default from config)",
}

// logCalls logs every tool invocation with its duration.
func (s *Service) logCalls(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				s.logger.WarnContext(ctx, "tool failed", "tool", tool, "error", err)
			} else {
				s.logger.DebugContext(ctx, "tool ok", "tool", tool,
					"duration_ms", time.Since(start).Milliseconds(),
					"transport", kit.GetTransport(ctx))
			}
			return resp, err
		}
	}
}

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- export ---

func (s *Service) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabxport_export",
		Description: "Export the tabular task outputs of a document as an .xlsx workbook written to the output directory. Returns the file path, sheet names and row count.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "string", "description": "Document whose outputs are exported"},
			"mode":        modeProperty,
		}, []string{"document_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.SaveToDir(ctx, *req.(*Request))
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logCalls(tool.Name))(endpoint), decodeInto[Request])
}

// --- preview ---

func (s *Service) registerPreviewTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabxport_preview",
		Description: "Preview the sheets an export of a document would contain: sheet names, columns and rows.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "string", "description": "Document to preview"},
			"mode":        modeProperty,
		}, []string{"document_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Preview(ctx, *req.(*Request))
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logCalls(tool.Name))(endpoint), decodeInto[Request])
}

// --- put_output ---

func (s *Service) registerPutOutputTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabxport_put_output",
		Description: "Record the output of a task on a document. The output may be any JSON value, or a string holding JSON.",
		InputSchema: inputSchema(map[string]any{
			"task_id":     map[string]any{"type": "string", "description": "Task (prompt) identifier"},
			"document_id": map[string]any{"type": "string", "description": "Document identifier"},
			"output":      map[string]any{"description": "Task output: JSON value or text"},
		}, []string{"task_id", "document_id", "output"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.putOutput(ctx, req.(*putOutputRequest))
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logCalls(tool.Name))(endpoint), decodeInto[putOutputRequest])
}

// --- put_task ---

func (s *Service) registerPutTaskTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabxport_put_task",
		Description: "Create or update a task. Tasks are aggregated in ascending position order.",
		InputSchema: inputSchema(map[string]any{
			"id":       map[string]any{"type": "string", "description": "Task identifier"},
			"name":     map[string]any{"type": "string", "description": "Display name"},
			"position": map[string]any{"type": "integer", "description": "Order of the task in exports"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		t := req.(*outputstore.Task)
		if err := s.store.PutTask(ctx, *t); err != nil {
			return nil, err
		}
		return map[string]string{"id": t.ID}, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logCalls(tool.Name))(endpoint), decodeInto[outputstore.Task])
}

// --- list_exports ---

type listExportsRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func (s *Service) registerListExportsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabxport_list_exports",
		Description: "List recent exports, newest first.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "string", "description": "Only exports of this document"},
			"limit":       map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listExportsRequest)
		exports, err := s.store.ListExports(ctx, r.DocumentID, r.Limit)
		if err != nil {
			return nil, err
		}
		if exports == nil {
			exports = []outputstore.Export{}
		}
		return exports, nil
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logCalls(tool.Name))(endpoint), decodeInto[listExportsRequest])
}
