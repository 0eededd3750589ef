package decorator

import (
	"time"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// alternative rewrites one operator into a subtree built from other
// operators. The rewrite is valid only when every operator in dependsOn is
// available and the column type matches forTypes (empty means any type).
type alternative struct {
	dependsOn []query.Operator
	forTypes  []uniquery.ColumnType
	replace   func(leaf *query.Leaf, tz *time.Location) query.ConditionTree
}

var alternatives = map[query.Operator][]alternative{
	query.Blank: {
		{
			dependsOn: []query.Operator{query.In},
			forTypes:  []uniquery.ColumnType{uniquery.String},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.In, []any{nil, ""})
			},
		},
		{
			dependsOn: []query.Operator{query.Equal},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.Equal, nil)
			},
		},
	},
	query.Present: {
		{
			dependsOn: []query.Operator{query.NotIn},
			forTypes:  []uniquery.ColumnType{uniquery.String},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.NotIn, []any{nil, ""})
			},
		},
		{
			dependsOn: []query.Operator{query.NotEqual},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.NotEqual, nil)
			},
		},
	},
	query.Equal: {
		{
			dependsOn: []query.Operator{query.In},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.In, []any{leaf.Value})
			},
		},
	},
	query.NotEqual: {
		{
			dependsOn: []query.Operator{query.NotIn},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.NotIn, []any{leaf.Value})
			},
		},
	},
	query.In: {
		{
			dependsOn: []query.Operator{query.Equal},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				values := query.ValueSlice(leaf.Value)
				conditions := make([]query.ConditionTree, 0, len(values))
				for _, v := range values {
					conditions = append(conditions, query.NewLeaf(leaf.Field, query.Equal, v))
				}
				return query.Union(conditions...)
			},
		},
	},
	query.NotIn: {
		{
			dependsOn: []query.Operator{query.NotEqual},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				values := query.ValueSlice(leaf.Value)
				conditions := make([]query.ConditionTree, 0, len(values))
				for _, v := range values {
					conditions = append(conditions, query.NewLeaf(leaf.Field, query.NotEqual, v))
				}
				return query.Intersect(conditions...)
			},
		},
	},
	query.StartsWith: {
		{
			dependsOn: []query.Operator{query.Like},
			forTypes:  []uniquery.ColumnType{uniquery.String},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.Like, stringValue(leaf)+"%")
			},
		},
	},
	query.EndsWith: {
		{
			dependsOn: []query.Operator{query.Like},
			forTypes:  []uniquery.ColumnType{uniquery.String},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.Like, "%"+stringValue(leaf))
			},
		},
	},
	query.Contains: {
		{
			dependsOn: []query.Operator{query.Like},
			forTypes:  []uniquery.ColumnType{uniquery.String},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.Like, "%"+stringValue(leaf)+"%")
			},
		},
	},
	query.IContains: {
		{
			dependsOn: []query.Operator{query.ILike},
			forTypes:  []uniquery.ColumnType{uniquery.String},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.ILike, "%"+stringValue(leaf)+"%")
			},
		},
	},
	query.Before: {
		{
			dependsOn: []query.Operator{query.LessThan},
			forTypes:  []uniquery.ColumnType{uniquery.Date, uniquery.Dateonly},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.LessThan, leaf.Value)
			},
		},
	},
	query.After: {
		{
			dependsOn: []query.Operator{query.GreaterThan},
			forTypes:  []uniquery.ColumnType{uniquery.Date, uniquery.Dateonly},
			replace: func(leaf *query.Leaf, _ *time.Location) query.ConditionTree {
				return query.NewLeaf(leaf.Field, query.GreaterThan, leaf.Value)
			},
		},
	},
	query.Today: {
		{
			dependsOn: []query.Operator{query.GreaterThan, query.LessThan},
			forTypes:  []uniquery.ColumnType{uniquery.Date, uniquery.Dateonly},
			replace: func(leaf *query.Leaf, tz *time.Location) query.ConditionTree {
				start, end := dayBounds(tz, 0)
				return query.Intersect(
					query.NewLeaf(leaf.Field, query.GreaterThan, start),
					query.NewLeaf(leaf.Field, query.LessThan, end),
				)
			},
		},
	},
	query.Yesterday: {
		{
			dependsOn: []query.Operator{query.GreaterThan, query.LessThan},
			forTypes:  []uniquery.ColumnType{uniquery.Date, uniquery.Dateonly},
			replace: func(leaf *query.Leaf, tz *time.Location) query.ConditionTree {
				start, end := dayBounds(tz, -1)
				return query.Intersect(
					query.NewLeaf(leaf.Field, query.GreaterThan, start),
					query.NewLeaf(leaf.Field, query.LessThan, end),
				)
			},
		},
	},
}

func stringValue(leaf *query.Leaf) string {
	s, _ := leaf.Value.(string)
	return s
}

func dayBounds(tz *time.Location, dayOffset int) (time.Time, time.Time) {
	if tz == nil {
		tz = time.UTC
	}
	now := time.Now().In(tz)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tz).AddDate(0, 0, dayOffset)
	return start, start.AddDate(0, 0, 1)
}

func typeMatches(types []uniquery.ColumnType, t uniquery.ColumnType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// supportedOperators computes the fixpoint of operators expressible for a
// column: everything natively supported plus every operator some
// alternative chain can reduce to the native set.
func supportedOperators(col *uniquery.ColumnSchema) query.OperatorSet {
	supported := col.FilterOperators.Clone()
	if supported == nil {
		supported = query.NewOperatorSet()
	}
	for changed := true; changed; {
		changed = false
		for _, op := range query.AllOperators {
			if supported.Has(op) {
				continue
			}
			for _, alt := range alternatives[op] {
				if !typeMatches(alt.forTypes, col.ColumnType) {
					continue
				}
				ok := true
				for _, dep := range alt.dependsOn {
					if !supported.Has(dep) {
						ok = false
						break
					}
				}
				if ok {
					supported.Add(op)
					changed = true
					break
				}
			}
		}
	}
	return supported
}

const maxEquivalenceDepth = 10

// equivalentTree rewrites a leaf into a tree using only natively supported
// operators, recursing through chained alternatives.
func equivalentTree(leaf *query.Leaf, native query.OperatorSet, col *uniquery.ColumnSchema, tz *time.Location, depth int) (query.ConditionTree, error) {
	if native.Has(leaf.Operator) {
		return leaf, nil
	}
	if depth >= maxEquivalenceDepth {
		return nil, uniquery.UnsupportedOperatorError(leaf.Field, "equivalence chain too deep for operator "+string(leaf.Operator))
	}
	resolvable := supportedOperators(col)
	for _, alt := range alternatives[leaf.Operator] {
		if !typeMatches(alt.forTypes, col.ColumnType) {
			continue
		}
		ok := true
		for _, dep := range alt.dependsOn {
			if !resolvable.Has(dep) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		replaced := alt.replace(leaf, tz)
		var walkErr error
		out := replaced.ReplaceLeafs(func(sub *query.Leaf) query.ConditionTree {
			if walkErr != nil {
				return sub
			}
			rewritten, err := equivalentTree(sub, native, col, tz, depth+1)
			if err != nil {
				walkErr = err
				return sub
			}
			return rewritten
		})
		if walkErr != nil {
			return nil, walkErr
		}
		return out, nil
	}
	return nil, uniquery.UnsupportedOperatorError(leaf.Field, "no equivalent for operator "+string(leaf.Operator))
}
