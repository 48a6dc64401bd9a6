package tabular

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func parseRows(t *testing.T, s string) []*Record {
	t.Helper()
	v := mustParse(t, s)
	if !IsTableLike(v) {
		t.Fatalf("not table-like: %s", s)
	}
	return records(v)
}

func TestGroupBySchema_SingleSchemaIsNoop(t *testing.T) {
	rows := parseRows(t, `[{"a":1,"b":2},{"b":3,"a":4},{"a":5,"b":6}]`)
	tables := GroupBySchema(rows)
	if len(tables) != 1 {
		t.Fatalf("tables: got %d, want 1", len(tables))
	}
	if tables[0].Name != "Table 1" {
		t.Errorf("name: got %q", tables[0].Name)
	}
	for i := range rows {
		if tables[0].Records[i] != rows[i] {
			t.Errorf("row %d moved", i)
		}
	}
}

func TestGroupBySchema_BucketOrder(t *testing.T) {
	// F1, F2, F1 → [F1, F2]; the second F1 joins the first bucket.
	rows := parseRows(t, `[{"a":1},{"b":2},{"a":3},{"c":4},{"b":5}]`)
	tables := GroupBySchema(rows)

	var names []string
	for _, tb := range tables {
		names = append(names, tb.Name)
	}
	if diff := cmp.Diff([]string{"Table 1", "Table 2", "Table 3"}, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}

	want := [][]*Record{
		{rows[0], rows[2]},
		{rows[1], rows[4]},
		{rows[3]},
	}
	for i, tb := range tables {
		if len(tb.Records) != len(want[i]) {
			t.Fatalf("bucket %d: got %d rows, want %d", i, len(tb.Records), len(want[i]))
		}
		for j := range tb.Records {
			if tb.Records[j] != want[i][j] {
				t.Errorf("bucket %d row %d: wrong record", i, j)
			}
		}
	}
}

func TestGroupBySchema_KeyOrderInvariant(t *testing.T) {
	rows := parseRows(t, `[{"x":1,"y":2,"z":3},{"z":1,"y":2,"x":3},{"y":0,"x":0,"z":0},{"q":1}]`)
	tables := GroupBySchema(rows)
	if len(tables) != 2 {
		t.Fatalf("tables: got %d, want 2", len(tables))
	}
	if len(tables[0].Records) != 3 {
		t.Errorf("first bucket: got %d rows, want 3", len(tables[0].Records))
	}
}

func TestGroupBySchema_ValuesIgnored(t *testing.T) {
	rows := parseRows(t, `[{"a":1},{"a":"text"},{"a":null},{"a":[1,2]}]`)
	if tables := GroupBySchema(rows); len(tables) != 1 {
		t.Errorf("tables: got %d, want 1", len(tables))
	}
}

func TestGroupBySchema_Empty(t *testing.T) {
	if tables := GroupBySchema(nil); tables != nil {
		t.Errorf("got %+v, want nil", tables)
	}
}
