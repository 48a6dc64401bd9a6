package tabular

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// KeyDelimiter separates the task and document segments of an aggregation key.
// Every writer of the output map must use the same encoding.
const KeyDelimiter = "__"

// Key identifies one recorded output: the task that produced it and the
// document it ran against.
type Key struct {
	TaskID     string
	DocumentID string
}

// NewKey encodes a task/document pair as "<task>__<document>".
func NewKey(taskID, documentID string) string {
	return taskID + KeyDelimiter + documentID
}

func (k Key) String() string { return NewKey(k.TaskID, k.DocumentID) }

// ParseKey splits an aggregation key. Segments after the document id are
// ignored. It reports false when the key has fewer than two segments.
func ParseKey(s string) (Key, bool) {
	parts := strings.Split(s, KeyDelimiter)
	if len(parts) < 2 {
		return Key{}, false
	}
	return Key{TaskID: parts[0], DocumentID: parts[1]}, true
}

// Task describes one extraction task. Only ID takes part in aggregation.
type Task struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Mode selects how aggregated tables are shaped for export.
type Mode string

const (
	// ModeCombined concatenates every extracted row into one sheet.
	ModeCombined Mode = "combined"
	// ModeSheets keeps each extracted table as its own sheet.
	ModeSheets Mode = "sheets"
)

// ErrUnknownMode is returned by ParseMode for names other than "combined"
// and "sheets".
var ErrUnknownMode = errors.New("tabular: unknown mode")

// ParseMode validates a mode name. The empty string selects ModeCombined.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCombined:
		return ModeCombined, nil
	case ModeSheets:
		return ModeSheets, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
}

// CombinedSheetName is the sheet used by ModeCombined exports.
const CombinedSheetName = "Sheet1"

// Aggregate collects, in task order, every table extracted from the outputs
// recorded for documentID. Entries belonging to other documents, or to tasks
// not listed, never contribute. Outputs without tables contribute nothing.
func Aggregate(documentID string, tasks []Task, outputs map[string]any) []Table {
	var out []Table
	visit(documentID, tasks, outputs, func(v Value) {
		out = append(out, Extract(v)...)
	})
	return out
}

// Combined returns every aggregated row as one sequence.
func Combined(documentID string, tasks []Task, outputs map[string]any) []*Record {
	var rows []*Record
	for _, t := range Aggregate(documentID, tasks, outputs) {
		rows = append(rows, t.Records...)
	}
	return rows
}

// Named returns the aggregated tables for a multi-sheet export. Flat outputs
// are split by schema so mixed row shapes land on separate sheets.
func Named(documentID string, tasks []Task, outputs map[string]any) []Table {
	var out []Table
	visit(documentID, tasks, outputs, func(v Value) {
		if Classify(v) == ShapeFlat {
			out = append(out, GroupBySchema(records(v))...)
			return
		}
		out = append(out, Extract(v)...)
	})
	return out
}

// visit calls fn with the normalized value of every output recorded for
// documentID, task by task, keys in lexical order within a task.
func visit(documentID string, tasks []Task, outputs map[string]any, fn func(Value)) {
	if documentID == "" || len(outputs) == 0 {
		return
	}

	byTask := make(map[string][]string)
	for k := range outputs {
		key, ok := ParseKey(k)
		if !ok || key.DocumentID != documentID {
			continue
		}
		byTask[key.TaskID] = append(byTask[key.TaskID], k)
	}

	for _, t := range tasks {
		keys := byTask[t.ID]
		sort.Strings(keys)
		for _, k := range keys {
			fn(Normalize(outputs[k]))
		}
		// A task listed twice contributes once.
		delete(byTask, t.ID)
	}
}

// Collect shapes the aggregation for mode, ready for BuildWorkbook.
func Collect(mode Mode, documentID string, tasks []Task, outputs map[string]any) []Table {
	if mode == ModeSheets {
		return Named(documentID, tasks, outputs)
	}
	rows := Combined(documentID, tasks, outputs)
	if len(rows) == 0 {
		return nil
	}
	return []Table{{Name: CombinedSheetName, Records: rows}}
}
