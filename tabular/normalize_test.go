package tabular

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v := Parse([]byte(s))
	if v.IsNull() {
		t.Fatalf("Parse(%q) = null", s)
	}
	return v
}

func rowsOf(t Table) []any {
	out := make([]any, len(t.Records))
	for i, r := range t.Records {
		out[i] = Object(r).Interface()
	}
	return out
}

func TestParse_KeepsKeyOrder(t *testing.T) {
	v := mustParse(t, `{"zeta":1,"alpha":{"y":true,"x":null},"mid":[1,"two"]}`)
	if v.Kind() != KindObject {
		t.Fatalf("kind: got %s", v.Kind())
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, v.Record().Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	nested, _ := v.Record().Get("alpha")
	if diff := cmp.Diff([]string{"y", "x"}, nested.Record().Keys()); diff != "" {
		t.Errorf("nested keys (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"zeta":1,"alpha":{"y":true,"x":null},"mid":[1,"two"]}`
	if string(out) != want {
		t.Errorf("round trip: got %s, want %s", out, want)
	}
}

func TestParse_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	v := mustParse(t, `{"a":1,"b":2,"a":3}`)
	if diff := cmp.Diff([]string{"a", "b"}, v.Record().Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	a, _ := v.Record().Get("a")
	if a.Number() != "3" {
		t.Errorf("a: got %s, want 3", a.Number())
	}
}

func TestNormalize_TextFailuresAreNull(t *testing.T) {
	for _, in := range []string{
		"",
		"not json at all",
		`{"a":1`,
		`[{"a":1},]`,
		`{"a":1} trailing`,
		`[1] [2]`,
	} {
		if v := Normalize(in); !v.IsNull() {
			t.Errorf("Normalize(%q): got %s, want null", in, v.Kind())
		}
	}
}

func TestNormalize_DeepNestingIsNull(t *testing.T) {
	for _, in := range []string{
		strings.Repeat("[", 1<<20),
		strings.Repeat("[", MaxDepth+1) + strings.Repeat("]", MaxDepth+1),
		strings.Repeat(`{"a":`, MaxDepth+1) + "1" + strings.Repeat("}", MaxDepth+1),
	} {
		if v := Normalize(in); !v.IsNull() {
			t.Errorf("Normalize(%d bytes): got %s, want null", len(in), v.Kind())
		}
	}

	ok := strings.Repeat("[", MaxDepth) + strings.Repeat("]", MaxDepth)
	if v := Normalize(ok); v.Kind() != KindArray {
		t.Errorf("depth %d: got %s, want array", MaxDepth, v.Kind())
	}

	var nested any = map[string]any{"a": 1}
	for i := 0; i < MaxDepth+1; i++ {
		nested = []any{nested}
	}
	if v := Normalize(nested); !v.IsNull() {
		t.Errorf("nested Go value: got %s, want null", v.Kind())
	}
}

func TestNormalize_Inputs(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"json text", `[{"a":1}]`, KindArray},
		{"bytes", []byte(`{"a":1}`), KindObject},
		{"raw message", json.RawMessage(`"hello"`), KindString},
		{"nil", nil, KindNull},
		{"map", map[string]any{"b": 1, "a": []any{map[string]any{"x": 1.5}}}, KindObject},
		{"slice of maps", []map[string]any{{"a": 1}}, KindArray},
		{"bool", true, KindBool},
		{"value", String("x"), KindString},
		{"record", NewRecord().Set("a", Bool(true)), KindObject},
		{"struct", struct {
			A int `json:"a"`
		}{1}, KindObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in).Kind(); got != tt.kind {
				t.Errorf("kind: got %s, want %s", got, tt.kind)
			}
		})
	}
}

func TestNormalize_MapKeysSorted(t *testing.T) {
	v := Normalize(map[string]any{"c": 1, "a": 2, "b": 3})
	if diff := cmp.Diff([]string{"a", "b", "c"}, v.Record().Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestNormalize_StructuredPassThrough(t *testing.T) {
	in := mustParse(t, `[{"a":1}]`)
	out := Normalize(in)
	if out.Items()[0].Record() != in.Items()[0].Record() {
		t.Error("already-normalized value was copied")
	}
}

func TestNormalize_NonFiniteFloat(t *testing.T) {
	var zero float64
	if v := Normalize([]any{map[string]any{"a": 1 / zero}}); !v.IsNull() {
		t.Errorf("got %s, want null", v.Kind())
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := mustParse(t, `{"x":1,"y":2,"z":3}`).Record()
	b := mustParse(t, `{"z":"q","x":null,"y":[1]}`).Record()
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
	c := mustParse(t, `{"x":1,"y":2}`).Record()
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different key sets share a fingerprint")
	}
	// NUL separation keeps {"ab"} and {"a","b"} apart.
	d := mustParse(t, `{"ab":1}`).Record()
	e := mustParse(t, `{"a":1,"b":1}`).Record()
	if d.Fingerprint() == e.Fingerprint() {
		t.Error("concatenation collision")
	}
}
