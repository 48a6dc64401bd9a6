package tabular

// DefaultTableName names a table that has no key of its own.
const DefaultTableName = "Table 1"

// IsTableLike reports whether v is a non-empty array whose every element is an object.
func IsTableLike(v Value) bool {
	if v.kind != KindArray || len(v.arr) == 0 {
		return false
	}
	for _, it := range v.arr {
		if it.kind != KindObject {
			return false
		}
	}
	return true
}

// Shape is the outcome of classifying a normalized output.
type Shape int

const (
	ShapeNone Shape = iota
	// ShapeFlat is a bare array of records.
	ShapeFlat
	// ShapeSingle is an object with exactly one field, holding a table.
	ShapeSingle
	// ShapeMulti is an object with at least one table-valued field.
	ShapeMulti
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeSingle:
		return "single"
	case ShapeMulti:
		return "multi"
	default:
		return "none"
	}
}

// Classify decides which extraction shape v has.
func Classify(v Value) Shape {
	if IsTableLike(v) {
		return ShapeFlat
	}
	if v.kind != KindObject {
		return ShapeNone
	}
	rec := v.obj
	if rec.Len() == 1 {
		if only, _ := rec.Get(rec.keys[0]); IsTableLike(only) {
			return ShapeSingle
		}
		return ShapeNone
	}
	for _, k := range rec.keys {
		if IsTableLike(rec.vals[k]) {
			return ShapeMulti
		}
	}
	return ShapeNone
}

// Extract returns the tables held by v, in document order. A flat array comes
// back as one table named DefaultTableName; use GroupBySchema to split it.
func Extract(v Value) []Table {
	switch Classify(v) {
	case ShapeFlat:
		return []Table{{Name: DefaultTableName, Records: records(v)}}
	case ShapeSingle:
		key := v.obj.keys[0]
		name := key
		if name == "" {
			name = DefaultTableName
		}
		return []Table{{Name: name, Records: records(v.obj.vals[key])}}
	case ShapeMulti:
		var out []Table
		for _, k := range v.obj.keys {
			field := v.obj.vals[k]
			if !IsTableLike(field) {
				continue
			}
			name := k
			if name == "" {
				name = DefaultTableName
			}
			out = append(out, Table{Name: name, Records: records(field)})
		}
		return out
	}
	return nil
}

// ExtractOutput normalizes a raw output and extracts its tables.
func ExtractOutput(raw any) []Table {
	return Extract(Normalize(raw))
}

func records(v Value) []*Record {
	out := make([]*Record, len(v.arr))
	for i, it := range v.arr {
		out[i] = it.obj
	}
	return out
}
