package query

import (
	"sort"
	"time"
)

// AggregationOperation is the reducing function of an aggregate query.
type AggregationOperation string

const (
	Count AggregationOperation = "Count"
	Sum   AggregationOperation = "Sum"
	Avg   AggregationOperation = "Avg"
	Max   AggregationOperation = "Max"
	Min   AggregationOperation = "Min"
)

// AggregationGroup is one grouping key of an aggregate query.
type AggregationGroup struct {
	Field string
}

// Aggregation describes an aggregate query: reduce Field with Operation,
// bucketed by Groups. Count with an empty Field counts records.
type Aggregation struct {
	Operation AggregationOperation
	Field     string
	Groups    []AggregationGroup
}

// AggregateResult is one bucket of an aggregate query result.
type AggregateResult struct {
	Value any
	Group map[string]any
}

// Projection lists the fields the aggregation reads.
func (a Aggregation) Projection() Projection {
	var p Projection
	if a.Field != "" {
		p = append(p, a.Field)
	}
	for _, g := range a.Groups {
		p = append(p, g.Field)
	}
	return p.dedupe()
}

// Apply computes the aggregate in memory. Buckets come back sorted by value
// descending; limit zero keeps everything.
func (a Aggregation) Apply(records []Record, tz *time.Location, limit int) []AggregateResult {
	type bucket struct {
		group  map[string]any
		count  int
		sum    float64
		max    any
		min    any
	}
	buckets := map[string]*bucket{}
	var order []string

	for _, r := range records {
		key := ""
		group := map[string]any{}
		for _, g := range a.Groups {
			v := r.Get(g.Field)
			group[g.Field] = v
			key += ValueKey(v) + "\x1f"
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{group: group}
			buckets[key] = b
			order = append(order, key)
		}

		var value any
		if a.Field != "" {
			value = r.Get(a.Field)
		}
		if a.Operation == Count {
			if a.Field == "" || value != nil {
				b.count++
			}
			continue
		}
		if value == nil {
			continue
		}
		b.count++
		if f, ok := asFloat(value); ok {
			b.sum += f
		}
		if b.max == nil {
			b.max = value
		} else if cmp, ok := CompareValues(value, b.max); ok && cmp > 0 {
			b.max = value
		}
		if b.min == nil {
			b.min = value
		} else if cmp, ok := CompareValues(value, b.min); ok && cmp < 0 {
			b.min = value
		}
	}

	results := make([]AggregateResult, 0, len(buckets))
	for _, key := range order {
		b := buckets[key]
		var value any
		switch a.Operation {
		case Count:
			value = b.count
		case Sum:
			value = b.sum
		case Avg:
			if b.count > 0 {
				value = b.sum / float64(b.count)
			}
		case Max:
			value = b.max
		case Min:
			value = b.min
		}
		results = append(results, AggregateResult{Value: value, Group: b.group})
	}

	sort.SliceStable(results, func(i, j int) bool {
		cmp, ok := CompareValues(results[i].Value, results[j].Value)
		return ok && cmp > 0
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
