// CLAUDE:SUMMARY Registers exporter service handlers (export, preview, put_output, put_task) on a connectivity Router.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/tabxport/connectivity"
	"github.com/hazyhaar/tabxport/kit"
	"github.com/hazyhaar/tabxport/outputstore"
)

// RegisterConnectivity registers exporter service handlers on a connectivity Router.
//
// Registered services:
//
//	tabxport_export      export a document into the output directory
//	tabxport_preview     preview the sheets of a document export
//	tabxport_put_output  record one raw task output
//	tabxport_put_task    create or update a task
func (s *Service) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("tabxport_export", s.handleExportCall)
	router.RegisterLocal("tabxport_preview", s.handlePreviewCall)
	router.RegisterLocal("tabxport_put_output", s.handlePutOutputCall)
	router.RegisterLocal("tabxport_put_task", s.handlePutTaskCall)
}

func (s *Service) handleExportCall(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	saved, err := s.SaveToDir(withCallTransport(ctx), req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(saved)
}

func (s *Service) handlePreviewCall(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	p, err := s.Preview(withCallTransport(ctx), req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// putOutputRequest carries an output as raw JSON. A JSON string is stored as
// its text so that textual outputs round-trip unchanged.
type putOutputRequest struct {
	TaskID     string          `json:"task_id"`
	DocumentID string          `json:"document_id"`
	Output     json.RawMessage `json:"output"`
}

func (r *putOutputRequest) value() any {
	var text string
	if err := json.Unmarshal(r.Output, &text); err == nil {
		return text
	}
	if len(r.Output) == 0 {
		return "null"
	}
	return r.Output
}

func (s *Service) putOutput(ctx context.Context, r *putOutputRequest) (map[string]string, error) {
	if err := s.store.PutOutput(ctx, r.TaskID, r.DocumentID, r.value()); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "output recorded",
		"task_id", r.TaskID, "document_id", r.DocumentID, "bytes", len(r.Output),
		"transport", kit.GetTransport(ctx))
	return map[string]string{"task_id": r.TaskID, "document_id": r.DocumentID, "status": "stored"}, nil
}

func (s *Service) handlePutOutputCall(ctx context.Context, payload []byte) ([]byte, error) {
	var req putOutputRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	resp, err := s.putOutput(withCallTransport(ctx), &req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (s *Service) handlePutTaskCall(ctx context.Context, payload []byte) ([]byte, error) {
	var t outputstore.Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := s.store.PutTask(ctx, t); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"id": t.ID})
}

func withCallTransport(ctx context.Context) context.Context {
	if _, ok := ctx.Value(kit.TransportKey).(string); ok {
		return ctx
	}
	return kit.WithTransport(ctx, "connectivity")
}
