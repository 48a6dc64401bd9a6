// CLAUDE:SUMMARY Tagged Value variant and insertion-ordered Record used by every stage of the tabular pipeline.
package tabular

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a JSON-shaped cell or document value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  *Record
}

// Null is the sentinel for "no usable data".
var Null = Value{}

func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Array(vs ...Value) Value    { return Value{kind: KindArray, arr: vs} }

// Object wraps a record. A nil record yields Null.
func Object(r *Record) Value {
	if r == nil {
		return Null
	}
	return Value{kind: KindObject, obj: r}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; false for other kinds.
func (v Value) Bool() bool { return v.b }

// Number returns the decimal text of a number; "" for other kinds.
func (v Value) Number() json.Number { return v.num }

// Str returns the string payload; "" for other kinds.
func (v Value) Str() string { return v.str }

// Items returns the elements of an array; nil for other kinds.
func (v Value) Items() []Value { return v.arr }

// Record returns the record of an object; nil for other kinds.
func (v Value) Record() *Record { return v.obj }

// Interface converts v to plain Go values (map[string]any loses key order).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, it := range v.arr {
			out[i] = it.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		for _, k := range v.obj.keys {
			out[k] = v.obj.vals[k].Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v, keeping object keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.num.String())
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return v.obj.encode(buf)
	default:
		buf.WriteString("null")
	}
	return nil
}

// Record is a mapping from column name to Value that remembers insertion order.
type Record struct {
	keys []string
	vals map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]Value)}
}

// Set stores val under key. Re-setting a key keeps its original position.
func (r *Record) Set(key string, val Value) *Record {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = val
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Null, false
	}
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns the column names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Fingerprint identifies the record's shape: its sorted column names joined by NUL.
// Two records share a fingerprint iff they have the same key set.
func (r *Record) Fingerprint() string {
	keys := r.Keys()
	sort.Strings(keys)
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(k)
	}
	return buf.String()
}

// MarshalJSON encodes the record as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := r.vals[k].encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// Table is a named sequence of records.
type Table struct {
	Name    string    `json:"name"`
	Records []*Record `json:"records"`
}
