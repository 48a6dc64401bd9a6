// CLAUDE:SUMMARY SQLite store for raw task outputs keyed "<task>__<document>", the ordered task list, and export history.
// Package outputstore persists the raw outputs that tabxport exports.
//
// Outputs are stored verbatim as text under their aggregation key
// ("<task-id>__<document-id>"); interpreting them is left to package tabular.
package outputstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/tabxport/dbopen"
	"github.com/hazyhaar/tabxport/idgen"
	"github.com/hazyhaar/tabxport/tabular"
)

// ErrInvalidKey is returned for task or document ids that would break the
// aggregation key encoding.
var ErrInvalidKey = errors.New("outputstore: invalid id")

// Store is the output store database handle.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for export IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the store at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, err
	}
	return New(db, opts...), nil
}

// New wraps a database that already has Schema applied.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		DB:    db,
		newID: idgen.Prefixed("exp_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func checkID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", ErrInvalidKey, kind)
	}
	if strings.Contains(id, tabular.KeyDelimiter) {
		return fmt.Errorf("%w: %s id %q contains %q", ErrInvalidKey, kind, id, tabular.KeyDelimiter)
	}
	// "a_" + "__" + "doc" would split as ("a", "_doc").
	if kind == "task" && strings.HasSuffix(id, "_") {
		return fmt.Errorf("%w: task id %q ends with '_'", ErrInvalidKey, id)
	}
	return nil
}

// --- tasks ---

// Task is a registered extraction task.
type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// PutTask creates or updates a task.
func (s *Store) PutTask(ctx context.Context, t Task) error {
	if err := checkID("task", t.ID); err != nil {
		return err
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO tasks (task_id, name, position, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET name = excluded.name, position = excluded.position`,
		t.ID, t.Name, t.Position, s.now().Unix())
	if err != nil {
		return fmt.Errorf("outputstore: put task %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks returns tasks ordered by position, then id.
func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT task_id, name, position, created_at FROM tasks ORDER BY position, task_id`)
	if err != nil {
		return nil, fmt.Errorf("outputstore: list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var created int64
		if err := rows.Scan(&t.ID, &t.Name, &t.Position, &created); err != nil {
			return nil, fmt.Errorf("outputstore: scan task: %w", err)
		}
		t.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// TabularTasks returns the task list in the shape the aggregator consumes.
func (s *Store) TabularTasks(ctx context.Context) ([]tabular.Task, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tabular.Task, len(tasks))
	for i, t := range tasks {
		out[i] = tabular.Task{ID: t.ID, Name: t.Name}
	}
	return out, nil
}

// DeleteTask removes a task and every output it produced.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM outputs WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("outputstore: delete outputs of %s: %w", taskID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("outputstore: delete task %s: %w", taskID, err)
		}
		return nil
	})
}

// --- outputs ---

// Output is one recorded task output.
type Output struct {
	Key        string    `json:"key"`
	TaskID     string    `json:"task_id"`
	DocumentID string    `json:"document_id"`
	Output     string    `json:"output"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PutOutput records the output of taskID on documentID, replacing any
// previous one. Text is stored verbatim; other values are stored as JSON.
func (s *Store) PutOutput(ctx context.Context, taskID, documentID string, output any) error {
	if err := checkID("task", taskID); err != nil {
		return err
	}
	if err := checkID("document", documentID); err != nil {
		return err
	}

	var text string
	switch v := output.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	case json.RawMessage:
		text = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("outputstore: encode output: %w", err)
		}
		text = string(b)
	}

	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO outputs (agg_key, task_id, document_id, output, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agg_key) DO UPDATE SET output = excluded.output, updated_at = excluded.updated_at`,
		tabular.NewKey(taskID, documentID), taskID, documentID, text, s.now().Unix())
	if err != nil {
		return fmt.Errorf("outputstore: put output: %w", err)
	}
	return nil
}

// GetOutput returns the output recorded for a task/document pair, or nil.
func (s *Store) GetOutput(ctx context.Context, taskID, documentID string) (*Output, error) {
	var o Output
	var updated int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT agg_key, task_id, document_id, output, updated_at FROM outputs WHERE agg_key = ?`,
		tabular.NewKey(taskID, documentID)).Scan(&o.Key, &o.TaskID, &o.DocumentID, &o.Output, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("outputstore: get output: %w", err)
	}
	o.UpdatedAt = time.Unix(updated, 0).UTC()
	return &o, nil
}

// DeleteOutput removes one output. Deleting a missing output is not an error.
func (s *Store) DeleteOutput(ctx context.Context, taskID, documentID string) error {
	_, err := dbopen.Exec(ctx, s.DB, `DELETE FROM outputs WHERE agg_key = ?`, tabular.NewKey(taskID, documentID))
	if err != nil {
		return fmt.Errorf("outputstore: delete output: %w", err)
	}
	return nil
}

// Outputs returns the raw outputs recorded for documentID, keyed by
// aggregation key: the input map of tabular.Collect.
func (s *Store) Outputs(ctx context.Context, documentID string) (map[string]any, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT agg_key, output FROM outputs WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("outputstore: outputs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, text string
		if err := rows.Scan(&key, &text); err != nil {
			return nil, fmt.Errorf("outputstore: scan output: %w", err)
		}
		out[key] = text
	}
	return out, rows.Err()
}

// Documents lists the document ids that have at least one output.
func (s *Store) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT document_id FROM outputs ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("outputstore: documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- exports ---

// Export is one export run, recorded for history.
type Export struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Mode        string    `json:"mode"`
	Sheets      []string  `json:"sheets"`
	Rows        int       `json:"rows"`
	SizeBytes   int       `json:"size_bytes"`
	Placeholder bool      `json:"placeholder"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordExport stores e and returns it with its ID and timestamp set.
func (s *Store) RecordExport(ctx context.Context, e Export) (*Export, error) {
	e.ID = s.newID()
	e.CreatedAt = s.now().UTC().Truncate(time.Second)
	sheets, err := json.Marshal(e.Sheets)
	if err != nil {
		return nil, fmt.Errorf("outputstore: encode sheets: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT INTO exports (export_id, document_id, mode, sheets, rows, size_bytes, placeholder, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DocumentID, e.Mode, string(sheets), e.Rows, e.SizeBytes, e.Placeholder, e.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("outputstore: record export: %w", err)
	}
	return &e, nil
}

// ListExports returns the most recent exports first. An empty documentID
// lists every document.
func (s *Store) ListExports(ctx context.Context, documentID string, limit int) ([]Export, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT export_id, document_id, mode, sheets, rows, size_bytes, placeholder, created_at FROM exports`
	args := []any{}
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY created_at DESC, export_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("outputstore: list exports: %w", err)
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		var e Export
		var sheets string
		var created int64
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Mode, &sheets, &e.Rows, &e.SizeBytes, &e.Placeholder, &created); err != nil {
			return nil, fmt.Errorf("outputstore: scan export: %w", err)
		}
		if err := json.Unmarshal([]byte(sheets), &e.Sheets); err != nil {
			return nil, fmt.Errorf("outputstore: decode sheets of %s: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
