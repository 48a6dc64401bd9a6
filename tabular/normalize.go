package tabular

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// MaxDepth bounds array/object nesting. Deeper outputs normalize to Null.
const MaxDepth = 512

var errTooDeep = errors.New("tabular: nesting exceeds MaxDepth")

// Normalize turns a raw task output into a Value.
//
// Text and raw bytes are parsed as JSON; a parse failure yields Null rather than
// an error, since unparseable output simply carries no table data. Structured
// Go values pass through. Maps are converted with sorted keys because Go maps
// have no insertion order to preserve.
func Normalize(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null
	case Value:
		return x
	case *Record:
		return Object(x)
	case string:
		return Parse([]byte(x))
	case []byte:
		return Parse(x)
	case json.RawMessage:
		return Parse(x)
	default:
		v, err := fromAny(raw, 0)
		if err != nil {
			return Null
		}
		return v
	}
}

// Parse decodes a JSON document, keeping object keys in document order.
// Anything that is not exactly one well-formed JSON value yields Null.
func Parse(data []byte) Value {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec, 0)
	if err != nil {
		return Null
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Null
	}
	return v
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if depth >= MaxDepth {
			return Null, errTooDeep
		}
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				it, err := decodeValue(dec, depth+1)
				if err != nil {
					return Null, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Null, err
			}
			return Array(items...), nil
		case '{':
			rec := NewRecord()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Null, err
				}
				key, ok := kt.(string)
				if !ok {
					return Null, fmt.Errorf("object key is %T", kt)
				}
				val, err := decodeValue(dec, depth+1)
				if err != nil {
					return Null, err
				}
				rec.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Null, err
			}
			return Object(rec), nil
		}
		return Null, fmt.Errorf("unexpected delimiter %q", t)
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case nil:
		return Null, nil
	}
	return Null, fmt.Errorf("unexpected token %T", tok)
}

func fromAny(raw any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Null, errTooDeep
	}
	switch x := raw.(type) {
	case nil:
		return Null, nil
	case Value:
		return x, nil
	case *Record:
		return Object(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return Number(x), nil
	case int:
		return Number(json.Number(strconv.FormatInt(int64(x), 10))), nil
	case int32:
		return Number(json.Number(strconv.FormatInt(int64(x), 10))), nil
	case int64:
		return Number(json.Number(strconv.FormatInt(x, 10))), nil
	case uint64:
		return Number(json.Number(strconv.FormatUint(x, 10))), nil
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case []any:
		items := make([]Value, 0, len(x))
		for _, it := range x {
			v, err := fromAny(it, depth+1)
			if err != nil {
				return Null, err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case []map[string]any:
		items := make([]Value, 0, len(x))
		for _, it := range x {
			v, err := fromAny(it, depth+1)
			if err != nil {
				return Null, err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := NewRecord()
		for _, k := range keys {
			v, err := fromAny(x[k], depth+1)
			if err != nil {
				return Null, err
			}
			rec.Set(k, v)
		}
		return Object(rec), nil
	}
	// Anything else (structs, typed slices) round-trips through encoding/json.
	data, err := json.Marshal(raw)
	if err != nil {
		return Null, err
	}
	v := Parse(data)
	if v.IsNull() && !bytes.Equal(data, []byte("null")) {
		return Null, fmt.Errorf("unsupported output type %T", raw)
	}
	return v, nil
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null, fmt.Errorf("non-finite number %v", f)
	}
	return Number(json.Number(strconv.FormatFloat(f, 'f', -1, 64))), nil
}
