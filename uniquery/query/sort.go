package query

import "sort"

// SortClause orders records by a single, possibly relation-prefixed field.
type SortClause struct {
	Field     string
	Ascending bool
}

// Sort is an ordered list of sort clauses, most significant first.
type Sort []SortClause

// Projection lists the fields the sort reads.
func (s Sort) Projection() Projection {
	p := make(Projection, 0, len(s))
	for _, clause := range s {
		p = append(p, clause.Field)
	}
	return p.dedupe()
}

// ReplaceClauses rebuilds the sort, substituting each clause with the
// clauses returned by fn (order preserved).
func (s Sort) ReplaceClauses(fn func(SortClause) Sort) Sort {
	out := make(Sort, 0, len(s))
	for _, clause := range s {
		out = append(out, fn(clause)...)
	}
	return out
}

// Invert flips the direction of every clause.
func (s Sort) Invert() Sort {
	out := make(Sort, len(s))
	for i, clause := range s {
		out[i] = SortClause{Field: clause.Field, Ascending: !clause.Ascending}
	}
	return out
}

// Nest prefixes every clause field with "prefix:".
func (s Sort) Nest(prefix string) Sort {
	if prefix == "" {
		return s
	}
	out := make(Sort, len(s))
	for i, clause := range s {
		out[i] = SortClause{Field: prefix + ":" + clause.Field, Ascending: clause.Ascending}
	}
	return out
}

// Apply returns a copy of records ordered by the sort. Nil values order
// first ascending, last descending. The sort is stable.
func (s Sort) Apply(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		for _, clause := range s {
			a := out[i].Get(clause.Field)
			b := out[j].Get(clause.Field)
			cmp := compareForSort(a, b)
			if cmp == 0 {
				continue
			}
			if clause.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	return out
}

func compareForSort(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if cmp, ok := CompareValues(a, b); ok {
		return cmp
	}
	return 0
}
