// CLAUDE:SUMMARY Turns loosely-typed task outputs into named tables and encodes them as an xlsx workbook.
// Package tabular aggregates table-shaped task outputs and exports them as a spreadsheet.
//
// Pipeline, per export:
//
//	raw output → Normalize → Extract → (GroupBySchema) → Aggregate → BuildWorkbook → Encode
//
// Outputs are keyed "<task-id>__<document-id>". Accepted output shapes:
//   - a JSON array of objects (one table)
//   - an object with one field holding such an array (one table named after the field)
//   - an object with several such fields (one table per field)
//
// Anything else, including text that is not JSON, contributes no rows. Malformed
// input never fails an export: an export with no rows yields a single
// placeholder sheet.
//
// Usage:
//
//	tables := tabular.Collect(tabular.ModeSheets, docID, tasks, outputs)
//	data, err := tabular.BuildWorkbook(tables).Encode()
package tabular
