package tabular

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  string
	}{
		{"invoices", 0, "invoices"},
		{"Table 1", 3, "Table 1"},
		{"a/b\\c:d*e?f[g]h", 0, "a_b_c_d_e_f_g_h"},
		{"", 0, "Sheet1"},
		{"", 4, "Sheet5"},
		{"'quoted'", 0, "_quoted_"},
		{"it's", 0, "it's"},
		{"History", 0, "History_"},
		{"history", 2, "history_"},
		{"History 2024", 0, "History 2024"},
	}
	for _, tt := range tests {
		if got := SanitizeSheetName(tt.name, tt.index); got != tt.want {
			t.Errorf("SanitizeSheetName(%q, %d) = %q, want %q", tt.name, tt.index, got, tt.want)
		}
	}
}

func TestSanitizeSheetName_Length(t *testing.T) {
	long := strings.Repeat("x", 50)
	if got := SanitizeSheetName(long, 0); len(got) != 31 {
		t.Errorf("50 chars: got %d chars", len(got))
	}

	wide := strings.Repeat("é", 40)
	got := SanitizeSheetName(wide, 0)
	if n := utf8.RuneCountInString(got); n != 31 {
		t.Errorf("multibyte: got %d characters", n)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a character")
	}
}

func TestSanitizeSheetName_ReservedOnly(t *testing.T) {
	if got := SanitizeSheetName("[]:*?/\\", 2); got != "Sheet3" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeSheetName("??", 0); got != "Sheet1" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeSheetName("?a?", 0); got != "_a_" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeSheetName("", 2); got != "Sheet3" {
		t.Errorf("got %q", got)
	}
}

func TestUniqueSheetNames(t *testing.T) {
	long := strings.Repeat("n", 40)
	got := UniqueSheetNames([]string{"rows", "ROWS", "a/b", "a:b", "rows", "", "", long, long})
	want := []string{
		"rows",
		"ROWS (2)",
		"a_b",
		"a_b (2)",
		"rows (3)",
		"Sheet6",
		"Sheet7",
		strings.Repeat("n", 31),
		strings.Repeat("n", 27) + " (2)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	for _, n := range got {
		if utf8.RuneCountInString(n) > MaxSheetNameLen {
			t.Errorf("%q exceeds %d characters", n, MaxSheetNameLen)
		}
	}
}
