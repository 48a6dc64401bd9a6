package tabular

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// DefaultFileName is the name every export is saved under.
const DefaultFileName = "prompt-export.xlsx"

// ContentType is the MIME type of an encoded workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Placeholder text used when an export has nothing to show.
const (
	PlaceholderColumn = "No data"
	PlaceholderText   = "Run prompts and ensure JSON/table output to export."
)

// maxCellChars is the spreadsheet limit on characters in one cell.
const maxCellChars = 32767

// Sheet is one worksheet of a workbook: a legal, unique name and its rows.
type Sheet struct {
	Name    string
	Records []*Record
}

// Columns returns the union of the sheet's record keys, in first-seen order.
func (s Sheet) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range s.Records {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// Workbook is an ordered set of sheets, built fresh for each export.
type Workbook struct {
	Sheets []Sheet
}

// BuildWorkbook lays tables out as sheets in the order given. When there is
// no table, or no record with at least one column, the workbook holds a single
// placeholder sheet instead, so it never ends up empty.
func BuildWorkbook(tables []Table) *Workbook {
	if !hasColumns(tables) {
		return &Workbook{Sheets: []Sheet{placeholderSheet()}}
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	names = UniqueSheetNames(names)

	wb := &Workbook{Sheets: make([]Sheet, len(tables))}
	for i, t := range tables {
		wb.Sheets[i] = Sheet{Name: names[i], Records: t.Records}
	}
	return wb
}

// Placeholder reports whether wb is the "no data" workbook.
func (wb *Workbook) Placeholder() bool {
	if len(wb.Sheets) != 1 || len(wb.Sheets[0].Records) != 1 {
		return false
	}
	v, ok := wb.Sheets[0].Records[0].Get(PlaceholderColumn)
	return ok && v.Str() == PlaceholderText && wb.Sheets[0].Records[0].Len() == 1
}

// SheetNames returns the sheet names in order.
func (wb *Workbook) SheetNames() []string {
	out := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		out[i] = s.Name
	}
	return out
}

// Rows returns the number of data rows across all sheets.
func (wb *Workbook) Rows() int {
	n := 0
	for _, s := range wb.Sheets {
		n += len(s.Records)
	}
	return n
}

func hasColumns(tables []Table) bool {
	for _, t := range tables {
		for _, r := range t.Records {
			if r.Len() > 0 {
				return true
			}
		}
	}
	return false
}

func placeholderSheet() Sheet {
	rec := NewRecord().Set(PlaceholderColumn, String(PlaceholderText))
	return Sheet{Name: CombinedSheetName, Records: []*Record{rec}}
}

// WriteTo encodes wb as an xlsx document. Each sheet gets a header row of its
// columns followed by one row per record; missing fields are left blank.
func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	sheets := wb.Sheets
	if len(sheets) == 0 {
		sheets = []Sheet{placeholderSheet()}
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return 0, fmt.Errorf("tabular: rename sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return 0, fmt.Errorf("tabular: new sheet %q: %w", s.Name, err)
		}
		if err := writeSheet(f, s); err != nil {
			return 0, fmt.Errorf("tabular: sheet %q: %w", s.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.WriteTo(w)
}

// Encode returns wb as xlsx bytes.
func (wb *Workbook) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return err
	}
	cols := s.Columns()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = clipCell(c)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for r, rec := range s.Records {
		row := make([]any, len(cols))
		for i, c := range cols {
			if v, ok := rec.Get(c); ok {
				row[i] = cellValue(v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// cellValue flattens a Value into something a spreadsheet cell can hold.
// Nested arrays and objects become their compact JSON text.
func cellValue(v Value) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if n, err := strconv.ParseInt(v.num.String(), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.num.String(), 64); err == nil {
			return f
		}
		return clipCell(v.num.String())
	case KindString:
		return clipCell(v.str)
	case KindArray, KindObject:
		b, err := v.MarshalJSON()
		if err != nil {
			return nil
		}
		return clipCell(string(b))
	}
	return nil
}

func clipCell(s string) string {
	if utf8.RuneCountInString(s) <= maxCellChars {
		return s
	}
	return truncateRunes(s, maxCellChars)
}

// FileSaver is the side effect that delivers an encoded workbook, e.g. as a
// browser download or a file on disk.
type FileSaver interface {
	SaveFile(ctx context.Context, name, contentType string, data []byte) error
}

// Export builds, encodes and saves the workbook for tables under DefaultFileName.
func Export(ctx context.Context, saver FileSaver, tables []Table) (*Workbook, error) {
	wb := BuildWorkbook(tables)
	data, err := wb.Encode()
	if err != nil {
		return nil, err
	}
	if err := saver.SaveFile(ctx, DefaultFileName, ContentType, data); err != nil {
		return nil, fmt.Errorf("tabular: save %s: %w", DefaultFileName, err)
	}
	return wb, nil
}
