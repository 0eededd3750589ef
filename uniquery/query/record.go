package query

import (
	"fmt"
	"strings"
	"time"
)

// Record is a single row of data. Relation fields hold nested records
// (or nil when the relation did not match).
type Record map[string]any

// Get resolves a possibly relation-prefixed path ("owner:country:name")
// against the record. Missing segments and nil sub-records yield nil.
func (r Record) Get(path string) any {
	field, rest, nested := strings.Cut(path, ":")
	value, ok := r[field]
	if !ok || !nested {
		return value
	}
	switch sub := value.(type) {
	case Record:
		return sub.Get(rest)
	case map[string]any:
		return Record(sub).Get(rest)
	default:
		return nil
	}
}

// Set writes a value under a possibly relation-prefixed path, creating
// intermediate sub-records as needed.
func (r Record) Set(path string, value any) {
	field, rest, nested := strings.Cut(path, ":")
	if !nested {
		r[field] = value
		return
	}
	sub := asRecord(r[field])
	if sub == nil {
		sub = Record{}
		r[field] = sub
	}
	sub.Set(rest, value)
}

// Clone returns a copy of the record, copying nested sub-records as well.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if sub := asRecord(v); sub != nil {
			out[k] = sub.Clone()
		} else {
			out[k] = v
		}
	}
	return out
}

func asRecord(v any) Record {
	switch sub := v.(type) {
	case Record:
		return sub
	case map[string]any:
		return Record(sub)
	default:
		return nil
	}
}

// ValueKey returns a string that identifies a scalar value for grouping and
// joining purposes. Numeric values compare equal across int/float
// representations.
func ValueKey(v any) string {
	if v == nil {
		return "\x00"
	}
	if f, ok := asFloat(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	if t, ok := asTime(v); ok {
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("v:%v", v)
}

// ValuesEqual compares two scalar values leniently: numeric types compare by
// value, times compare by instant, everything else by string rendering.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return ValueKey(a) == ValueKey(b)
}

// CompareValues orders two scalar values. The second return is false when the
// values are not comparable (either side nil or of mismatched kinds).
func CompareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// ValueSlice normalizes an In/NotIn operand into a flat []any.
func ValueSlice(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out
	case []int64:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out
	default:
		return []any{v}
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
