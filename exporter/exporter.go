// CLAUDE:SUMMARY Export service: loads a document's task outputs from the store, shapes them into sheets, encodes the xlsx and records the export.
// Package exporter turns the task outputs recorded for a document into a
// spreadsheet export.
//
// It is the service layer over package tabular: tabular does the pure work
// (normalize, extract, name sheets, encode), exporter feeds it from the
// output store, logs, records history and exposes it over HTTP, MCP and
// the connectivity router.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/tabxport/horosafe"
	"github.com/hazyhaar/tabxport/kit"
	"github.com/hazyhaar/tabxport/outputstore"
	"github.com/hazyhaar/tabxport/tabular"
)

var (
	// ErrMissingDocument is returned when a request names no document.
	ErrMissingDocument = errors.New("exporter: missing document id")
	// ErrInvalidDocument is returned for document ids that cannot name a directory.
	ErrInvalidDocument = errors.New("exporter: invalid document id")
	// ErrUnknownMode is returned for an unsupported export mode.
	ErrUnknownMode = tabular.ErrUnknownMode
)

// Service builds exports for the documents of one output store.
type Service struct {
	cfg    *Config
	store  *outputstore.Store
	logger *slog.Logger
	mode   tabular.Mode
}

// New validates cfg and returns a Service reading from store.
func New(cfg *Config, store *outputstore.Store) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := tabular.ParseMode(cfg.DefaultMode)
	return &Service{
		cfg:    cfg,
		store:  store,
		logger: cfg.Logger,
		mode:   mode,
	}, nil
}

// Store returns the underlying output store.
func (s *Service) Store() *outputstore.Store { return s.store }

// Request selects what to export.
type Request struct {
	DocumentID string `json:"document_id"`
	// Mode is "combined" or "sheets"; empty selects the configured default.
	Mode string `json:"mode,omitempty"`
}

// File is an encoded export.
type File struct {
	ExportID    string   `json:"export_id,omitempty"`
	Name        string   `json:"name"`
	ContentType string   `json:"content_type"`
	Sheets      []string `json:"sheets"`
	Rows        int      `json:"rows"`
	Placeholder bool     `json:"placeholder"`
	Size        int      `json:"size_bytes"`
	Data        []byte   `json:"-"`
}

func (s *Service) resolve(req Request) (string, tabular.Mode, error) {
	doc := strings.TrimSpace(req.DocumentID)
	if doc == "" {
		return "", "", ErrMissingDocument
	}
	if req.Mode == "" {
		return doc, s.mode, nil
	}
	mode, err := tabular.ParseMode(req.Mode)
	if err != nil {
		return "", "", err
	}
	return doc, mode, nil
}

// tables reads a snapshot of the document's outputs and the task list and
// shapes them for mode.
func (s *Service) tables(ctx context.Context, documentID string, mode tabular.Mode) ([]tabular.Table, error) {
	tasks, err := s.store.TabularTasks(ctx)
	if err != nil {
		return nil, err
	}
	outputs, err := s.store.Outputs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return tabular.Collect(mode, documentID, tasks, outputs), nil
}

// build encodes the workbook for req without recording anything.
func (s *Service) build(ctx context.Context, req Request) (*File, string, tabular.Mode, error) {
	doc, mode, err := s.resolve(req)
	if err != nil {
		return nil, "", "", err
	}
	tables, err := s.tables(ctx, doc, mode)
	if err != nil {
		return nil, "", "", fmt.Errorf("exporter: load %s: %w", doc, err)
	}

	wb := tabular.BuildWorkbook(tables)
	data, err := wb.Encode()
	if err != nil {
		return nil, "", "", fmt.Errorf("exporter: encode %s: %w", doc, err)
	}
	return &File{
		Name:        s.cfg.FileName,
		ContentType: tabular.ContentType,
		Sheets:      wb.SheetNames(),
		Rows:        wb.Rows(),
		Placeholder: wb.Placeholder(),
		Size:        len(data),
		Data:        data,
	}, doc, mode, nil
}

// record adds f to the export history and logs it.
func (s *Service) record(ctx context.Context, f *File, doc string, mode tabular.Mode) error {
	rec, err := s.store.RecordExport(ctx, outputstore.Export{
		DocumentID:  doc,
		Mode:        string(mode),
		Sheets:      f.Sheets,
		Rows:        f.Rows,
		SizeBytes:   f.Size,
		Placeholder: f.Placeholder,
	})
	if err != nil {
		return err
	}
	f.ExportID = rec.ID

	s.logger.InfoContext(ctx, "export built",
		"export_id", f.ExportID,
		"document_id", doc,
		"mode", mode,
		"sheets", len(f.Sheets),
		"rows", f.Rows,
		"placeholder", f.Placeholder,
		"bytes", f.Size,
		"transport", kit.GetTransport(ctx),
		"request_id", kit.GetRequestID(ctx))
	return nil
}

// Export builds the workbook for req and records it in the export history.
// A document without tabular output still yields a workbook holding the
// placeholder sheet.
func (s *Service) Export(ctx context.Context, req Request) (*File, error) {
	f, doc, mode, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, f, doc, mode); err != nil {
		return nil, err
	}
	return f, nil
}

// Save builds the export for req and hands the file to saver. The export is
// recorded only once saver accepted it.
func (s *Service) Save(ctx context.Context, req Request, saver tabular.FileSaver) (*File, error) {
	f, doc, mode, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := saver.SaveFile(ctx, f.Name, f.ContentType, f.Data); err != nil {
		return nil, fmt.Errorf("exporter: save %s: %w", f.Name, err)
	}
	if err := s.record(ctx, f, doc, mode); err != nil {
		return nil, err
	}
	return f, nil
}

// Saved is the result of an export written to the output directory.
type Saved struct {
	*File
	Path string `json:"path"`
}

// SaveToDir exports req into <output_dir>/<document_id>/<file_name>.
func (s *Service) SaveToDir(ctx context.Context, req Request) (*Saved, error) {
	doc := strings.TrimSpace(req.DocumentID)
	if doc != "" && horosafe.FileName(doc) != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocument, doc)
	}
	dir, err := horosafe.SafePath(s.cfg.OutputDir, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocument, doc)
	}
	saver := DirSaver{Dir: dir}
	f, err := s.Save(ctx, req, saver)
	if err != nil {
		return nil, err
	}
	return &Saved{File: f, Path: saver.Path(f.Name)}, nil
}

// PreviewSheet is one sheet of a preview, with its header row.
type PreviewSheet struct {
	Name    string            `json:"name"`
	Columns []string          `json:"columns"`
	Records []*tabular.Record `json:"records"`
}

// Preview shows the sheets an export would contain, without encoding or
// recording anything.
type Preview struct {
	DocumentID  string         `json:"document_id"`
	Mode        tabular.Mode   `json:"mode"`
	Placeholder bool           `json:"placeholder"`
	Sheets      []PreviewSheet `json:"sheets"`
}

// Preview returns the sheets an export of req would produce.
func (s *Service) Preview(ctx context.Context, req Request) (*Preview, error) {
	doc, mode, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	tables, err := s.tables(ctx, doc, mode)
	if err != nil {
		return nil, fmt.Errorf("exporter: load %s: %w", doc, err)
	}
	wb := tabular.BuildWorkbook(tables)

	p := &Preview{DocumentID: doc, Mode: mode, Placeholder: wb.Placeholder()}
	for _, sh := range wb.Sheets {
		p.Sheets = append(p.Sheets, PreviewSheet{Name: sh.Name, Columns: sh.Columns(), Records: sh.Records})
	}
	s.logger.DebugContext(ctx, "export previewed", "document_id", doc, "mode", mode, "sheets", len(p.Sheets))
	return p, nil
}
