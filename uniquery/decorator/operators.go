package decorator

import (
	"context"
	"strings"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// OperatorsEquivalenceCollectionDecorator lets every later decorator and all
// customization code assume the full operator set is available on every
// column, substituting unsupported operators with equivalent subtrees built
// from what the backend supports natively.
type OperatorsEquivalenceCollectionDecorator struct {
	collectionDecorator
}

func newOperatorsEquivalenceCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource) *OperatorsEquivalenceCollectionDecorator {
	d := &OperatorsEquivalenceCollectionDecorator{}
	d.init(child, ds)
	d.refineSchema = d.refineOperatorsSchema
	d.refineFilter = d.refineOperatorsFilter
	return d
}

func (d *OperatorsEquivalenceCollectionDecorator) refineOperatorsSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	for _, field := range schema.Fields {
		if col, ok := field.(*uniquery.ColumnSchema); ok {
			col.FilterOperators = supportedOperators(col)
		}
	}
	return schema, nil
}

func (d *OperatorsEquivalenceCollectionDecorator) refineOperatorsFilter(_ context.Context, caller uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error) {
	if filter.ConditionTree == nil {
		return filter, nil
	}
	childSchema, err := d.child.Schema()
	if err != nil {
		return filter, err
	}
	var walkErr error
	tree := filter.ConditionTree.ReplaceLeafs(func(leaf *query.Leaf) query.ConditionTree {
		if walkErr != nil || strings.Contains(leaf.Field, ":") {
			return leaf
		}
		col, ok := childSchema.Column(leaf.Field)
		if !ok {
			return leaf
		}
		rewritten, err := equivalentTree(leaf, col.FilterOperators, col, caller.Location(), 0)
		if err != nil {
			walkErr = err
			return leaf
		}
		return rewritten
	})
	if walkErr != nil {
		return filter, walkErr
	}
	return filter.WithConditionTree(tree), nil
}
