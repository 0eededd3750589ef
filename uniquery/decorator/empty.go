package decorator

import (
	"context"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// EmptyCollectionDecorator short-circuits operations whose condition tree is
// statically provably empty, a frequent byproduct of composed scopes,
// segments and emulated joins. Detection is conservative: it may miss empty
// sets but never claims emptiness wrongly.
type EmptyCollectionDecorator struct {
	collectionDecorator
}

func newEmptyCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource) *EmptyCollectionDecorator {
	d := &EmptyCollectionDecorator{}
	d.init(child, ds)
	return d
}

func (d *EmptyCollectionDecorator) List(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	if returnsEmptySet(filter.ConditionTree) {
		return []query.Record{}, nil
	}
	return d.collectionDecorator.List(ctx, caller, filter, projection)
}

func (d *EmptyCollectionDecorator) Aggregate(ctx context.Context, caller uniquery.Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error) {
	if returnsEmptySet(filter.ConditionTree) {
		return []query.AggregateResult{}, nil
	}
	return d.collectionDecorator.Aggregate(ctx, caller, filter, aggregation, limit)
}

func (d *EmptyCollectionDecorator) Update(ctx context.Context, caller uniquery.Caller, filter query.Filter, patch query.Record) error {
	if returnsEmptySet(filter.ConditionTree) {
		return nil
	}
	return d.collectionDecorator.Update(ctx, caller, filter, patch)
}

func (d *EmptyCollectionDecorator) Delete(ctx context.Context, caller uniquery.Caller, filter query.Filter) error {
	if returnsEmptySet(filter.ConditionTree) {
		return nil
	}
	return d.collectionDecorator.Delete(ctx, caller, filter)
}

func returnsEmptySet(tree query.ConditionTree) bool {
	switch t := tree.(type) {
	case *query.Leaf:
		return t.Operator == query.In && len(query.ValueSlice(t.Value)) == 0
	case *query.Branch:
		if t.Aggregator == query.Or {
			if len(t.Conditions) == 0 {
				return true
			}
			for _, c := range t.Conditions {
				if !returnsEmptySet(c) {
					return false
				}
			}
			return true
		}
		for _, c := range t.Conditions {
			if returnsEmptySet(c) {
				return true
			}
		}
		return andHasContradiction(t)
	default:
		return false
	}
}

// andHasContradiction intersects the Equal/In value sets of the direct leaf
// children of an And branch, per field. An empty intersection proves the
// branch empty. Leaves nested inside sub-branches are deliberately ignored
// so the check stays cheap and never over-claims.
func andHasContradiction(branch *query.Branch) bool {
	intersections := map[string][]any{}
	for _, c := range branch.Conditions {
		leaf, ok := c.(*query.Leaf)
		if !ok {
			continue
		}
		var values []any
		switch leaf.Operator {
		case query.Equal:
			values = []any{leaf.Value}
		case query.In:
			values = query.ValueSlice(leaf.Value)
		default:
			continue
		}
		current, seen := intersections[leaf.Field]
		if !seen {
			intersections[leaf.Field] = values
			continue
		}
		var kept []any
		for _, v := range current {
			for _, w := range values {
				if query.ValuesEqual(v, w) {
					kept = append(kept, v)
					break
				}
			}
		}
		if len(kept) == 0 {
			return true
		}
		intersections[leaf.Field] = kept
	}
	return false
}
