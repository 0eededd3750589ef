package decorator

import (
	"context"
	"sort"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// SegmentDefinition produces the predicate of a named segment. Definitions
// run on every query carrying the segment, so they may derive the tree from
// request context.
type SegmentDefinition func(ctx context.Context) (query.ConditionTree, error)

// StaticSegment wraps a precomputed condition tree as a definition.
func StaticSegment(tree query.ConditionTree) SegmentDefinition {
	return func(context.Context) (query.ConditionTree, error) {
		return tree, nil
	}
}

// SegmentCollectionDecorator resolves named predicate segments into the
// condition tree. Segment names it does not know pass through untouched for
// the backend or a later layer to handle.
type SegmentCollectionDecorator struct {
	collectionDecorator
	segments map[string]SegmentDefinition
}

func newSegmentCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource) *SegmentCollectionDecorator {
	d := &SegmentCollectionDecorator{segments: map[string]SegmentDefinition{}}
	d.init(child, ds)
	d.refineSchema = d.refineSegmentSchema
	d.refineFilter = d.refineSegmentFilter
	return d
}

// AddSegment registers a named segment.
func (d *SegmentCollectionDecorator) AddSegment(name string, definition SegmentDefinition) error {
	if name == "" {
		return uniquery.NewError(uniquery.ErrValidation, "segment name cannot be empty")
	}
	if definition == nil {
		return uniquery.NewError(uniquery.ErrValidation, "segment definition cannot be nil")
	}
	d.segments[name] = definition
	d.markDirty()
	return nil
}

func (d *SegmentCollectionDecorator) refineSegmentSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	names := make([]string, 0, len(d.segments))
	for name := range d.segments {
		names = append(names, name)
	}
	sort.Strings(names)
	schema.Segments = append(schema.Segments, names...)
	return schema, nil
}

func (d *SegmentCollectionDecorator) refineSegmentFilter(ctx context.Context, _ uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error) {
	definition, ok := d.segments[filter.Segment]
	if filter.Segment == "" || !ok {
		return filter, nil
	}
	tree, err := definition(ctx)
	if err != nil {
		return filter, err
	}
	schema, err := d.Schema()
	if err != nil {
		return filter, err
	}
	if err := uniquery.ValidateConditionTree(tree, schema, d.ds); err != nil {
		return filter, err
	}
	filter.Filter = filter.Filter.WithConditionTree(query.Intersect(filter.ConditionTree, tree))
	filter.Segment = ""
	return filter, nil
}
