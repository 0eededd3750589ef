package query

import "strings"

// Projection is the set of field paths a caller wants returned. Relation
// fields use "relation:field" paths, nested arbitrarily deep.
type Projection []string

// Columns returns the non-relation paths.
func (p Projection) Columns() []string {
	var out []string
	for _, f := range p {
		if !strings.Contains(f, ":") {
			out = append(out, f)
		}
	}
	return out
}

// Relations groups relation-prefixed paths by their first segment, with the
// prefix stripped.
func (p Projection) Relations() map[string]Projection {
	out := map[string]Projection{}
	for _, f := range p {
		if prefix, rest, ok := strings.Cut(f, ":"); ok {
			out[prefix] = append(out[prefix], rest)
		}
	}
	return out
}

// Replace rebuilds the projection, substituting each path with the paths
// returned by fn, deduplicated.
func (p Projection) Replace(fn func(string) Projection) Projection {
	out := make(Projection, 0, len(p))
	for _, f := range p {
		out = append(out, fn(f)...)
	}
	return out.dedupe()
}

// Union merges projections, deduplicated, order preserved.
func (p Projection) Union(others ...Projection) Projection {
	out := make(Projection, 0, len(p))
	out = append(out, p...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out.dedupe()
}

// Nest prefixes every path with "prefix:".
func (p Projection) Nest(prefix string) Projection {
	if prefix == "" {
		return p
	}
	out := make(Projection, len(p))
	for i, f := range p {
		out[i] = prefix + ":" + f
	}
	return out
}

// Equals reports set equality with another projection.
func (p Projection) Equals(other Projection) bool {
	if len(p.dedupe()) != len(other.dedupe()) {
		return false
	}
	seen := map[string]bool{}
	for _, f := range p {
		seen[f] = true
	}
	for _, f := range other {
		if !seen[f] {
			return false
		}
	}
	return true
}

// Contains reports whether the projection includes the exact path.
func (p Projection) Contains(field string) bool {
	for _, f := range p {
		if f == field {
			return true
		}
	}
	return false
}

// ApplyOne strips a record down to the projected paths. Relation paths
// recurse into sub-records; a nil sub-record stays nil.
func (p Projection) ApplyOne(record Record) Record {
	if record == nil {
		return nil
	}
	out := Record{}
	for _, column := range p.Columns() {
		out[column] = record[column]
	}
	for name, sub := range p.Relations() {
		nested := asRecord(record[name])
		if nested == nil {
			out[name] = nil
			continue
		}
		out[name] = sub.ApplyOne(nested)
	}
	return out
}

// Apply strips every record down to the projected paths.
func (p Projection) Apply(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = p.ApplyOne(r)
	}
	return out
}

func (p Projection) dedupe() Projection {
	seen := map[string]bool{}
	out := make(Projection, 0, len(p))
	for _, f := range p {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
