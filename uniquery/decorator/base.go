// Package decorator implements the capability-emulation pipeline: a fixed
// chain of wrappers around a base collection that presents a uniform,
// maximal query surface regardless of what the backend supports natively.
package decorator

import (
	"context"
	"sync"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

type refineSchemaFunc func(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error)

type refineFilterFunc func(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error)

// collectionDecorator wraps exactly one child collection. It forwards all
// five operations, letting the embedding decorator plug in refineSchema and
// refineFilter hooks, and caches the refined schema until marked dirty.
type collectionDecorator struct {
	child uniquery.Collection
	ds    uniquery.DataSource

	refineSchema refineSchemaFunc
	refineFilter refineFilterFunc

	mu       sync.Mutex
	schema   *uniquery.CollectionSchema
	version  uint64
	onMutate func()
}

func (d *collectionDecorator) init(child uniquery.Collection, ds uniquery.DataSource) {
	d.child = child
	d.ds = ds
}

func (d *collectionDecorator) Name() string { return d.child.Name() }

func (d *collectionDecorator) Schema() (*uniquery.CollectionSchema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.schema != nil {
		return d.schema, nil
	}
	schema, err := d.child.Schema()
	if err != nil {
		return nil, err
	}
	if d.refineSchema != nil {
		schema, err = d.refineSchema(schema)
		if err != nil {
			return nil, err
		}
	}
	d.schema = schema
	return schema, nil
}

// SchemaVersion is the invalidation token: it increases every time the
// cached schema is discarded.
func (d *collectionDecorator) SchemaVersion() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// invalidateCache discards the cached schema without broadcasting.
func (d *collectionDecorator) invalidateCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = nil
	d.version++
}

// markDirty discards the cached schema and broadcasts the invalidation to
// every decorator that may depend on it. Mutators must call this before
// returning so no stale schema is ever read afterwards.
func (d *collectionDecorator) markDirty() {
	d.invalidateCache()
	if d.onMutate != nil {
		d.onMutate()
	}
}

func (d *collectionDecorator) applyRefineFilter(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error) {
	if d.refineFilter == nil {
		return filter, nil
	}
	return d.refineFilter(ctx, caller, filter)
}

func (d *collectionDecorator) List(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	refined, err := d.applyRefineFilter(ctx, caller, filter)
	if err != nil {
		return nil, err
	}
	return d.child.List(ctx, caller, refined, projection)
}

func (d *collectionDecorator) Aggregate(ctx context.Context, caller uniquery.Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error) {
	refined, err := d.applyRefineFilter(ctx, caller, query.PaginatedFilter{Filter: filter})
	if err != nil {
		return nil, err
	}
	return d.child.Aggregate(ctx, caller, refined.Filter, aggregation, limit)
}

func (d *collectionDecorator) Create(ctx context.Context, caller uniquery.Caller, records []query.Record) ([]query.Record, error) {
	return d.child.Create(ctx, caller, records)
}

func (d *collectionDecorator) Update(ctx context.Context, caller uniquery.Caller, filter query.Filter, patch query.Record) error {
	refined, err := d.applyRefineFilter(ctx, caller, query.PaginatedFilter{Filter: filter})
	if err != nil {
		return err
	}
	return d.child.Update(ctx, caller, refined.Filter, patch)
}

func (d *collectionDecorator) Delete(ctx context.Context, caller uniquery.Caller, filter query.Filter) error {
	refined, err := d.applyRefineFilter(ctx, caller, query.PaginatedFilter{Filter: filter})
	if err != nil {
		return err
	}
	return d.child.Delete(ctx, caller, refined.Filter)
}

// dataSourceDecorator is one layer of the pipeline: every collection of the
// child datasource wrapped by the same decorator kind. Collections resolve
// siblings through their own layer so recursive rewrites stay consistent.
type dataSourceDecorator struct {
	child       uniquery.DataSource
	collections map[string]uniquery.Collection
	order       []string
}

func newDataSourceDecorator(child uniquery.DataSource, wrap func(uniquery.Collection, *dataSourceDecorator) uniquery.Collection) *dataSourceDecorator {
	ds := &dataSourceDecorator{
		child:       child,
		collections: map[string]uniquery.Collection{},
	}
	for _, c := range child.Collections() {
		ds.collections[c.Name()] = wrap(c, ds)
		ds.order = append(ds.order, c.Name())
	}
	return ds
}

func (ds *dataSourceDecorator) Collections() []uniquery.Collection {
	out := make([]uniquery.Collection, 0, len(ds.order))
	for _, name := range ds.order {
		out = append(out, ds.collections[name])
	}
	return out
}

func (ds *dataSourceDecorator) Collection(name string) (uniquery.Collection, error) {
	c, ok := ds.collections[name]
	if !ok {
		return nil, uniquery.UnknownCollectionError(name)
	}
	return c, nil
}
