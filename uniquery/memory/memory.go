// Package memory implements an in-memory datasource. Collections declare
// their native capabilities explicitly and reject anything beyond them, which
// makes the package double as the reference backend for pipeline tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

type Collection struct {
	name   string
	schema *uniquery.CollectionSchema

	mu      sync.RWMutex
	records []query.Record
	nextID  int64
}

// NewCollection builds a collection from a schema and seed records. Seed
// records are deep-copied; the caller keeps ownership of its slices.
func NewCollection(name string, schema *uniquery.CollectionSchema, seed ...query.Record) *Collection {
	c := &Collection{name: name, schema: schema.Clone(), nextID: 1}
	for _, r := range seed {
		clone := r.Clone()
		c.bumpNextID(clone)
		c.records = append(c.records, clone)
	}
	return c
}

// NewDataSource registers the given collections in a fresh registry.
func NewDataSource(collections ...*Collection) (*uniquery.Registry, error) {
	registry := uniquery.NewRegistry()
	for _, c := range collections {
		if err := registry.AddCollection(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Schema() (*uniquery.CollectionSchema, error) {
	return c.schema.Clone(), nil
}

// checkFilter rejects everything outside the declared surface. The decorator
// pipeline above is responsible for rewriting before reaching this point.
func (c *Collection) checkFilter(filter query.PaginatedFilter) error {
	if filter.Search != "" && !c.schema.Searchable {
		return uniquery.UnprocessableError(c.name + " does not support native search")
	}
	if filter.Segment != "" {
		return uniquery.UnprocessableError(c.name + " does not support native segments")
	}
	for _, clause := range filter.Sort {
		col, ok := c.schema.Column(clause.Field)
		if !ok {
			return uniquery.UnknownFieldError(c.name + "." + clause.Field)
		}
		if !col.IsSortable {
			return uniquery.UnprocessableError(fmt.Sprintf("%s.%s is not sortable", c.name, clause.Field))
		}
	}
	if filter.ConditionTree == nil {
		return nil
	}
	var failed error
	filter.ConditionTree.EveryLeaf(func(l *query.Leaf) bool {
		col, ok := c.schema.Column(l.Field)
		if !ok {
			failed = uniquery.UnknownFieldError(c.name + "." + l.Field)
			return false
		}
		if !col.FilterOperators.Has(l.Operator) {
			failed = uniquery.UnsupportedOperatorError(l.Field, fmt.Sprintf(
				"%s.%s does not support operator %s", c.name, l.Field, l.Operator))
			return false
		}
		return true
	})
	return failed
}

func (c *Collection) List(_ context.Context, caller uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	if err := c.checkFilter(filter); err != nil {
		return nil, err
	}
	c.mu.RLock()
	out := make([]query.Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Clone())
	}
	c.mu.RUnlock()

	out = query.Apply(filter.ConditionTree, out, caller.Location())
	out = filter.Sort.Apply(out)
	out = filter.Page.Apply(out)
	return projection.Apply(out), nil
}

func (c *Collection) Aggregate(ctx context.Context, caller uniquery.Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error) {
	records, err := c.List(ctx, caller, query.PaginatedFilter{Filter: filter}, aggregation.Projection())
	if err != nil {
		return nil, err
	}
	return aggregation.Apply(records, caller.Location(), limit), nil
}

func (c *Collection) Create(_ context.Context, _ uniquery.Caller, records []query.Record) ([]query.Record, error) {
	for _, r := range records {
		for field := range r {
			if _, ok := c.schema.Fields[field]; !ok {
				return nil, uniquery.UnknownFieldError(c.name + "." + field)
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]query.Record, 0, len(records))
	for _, r := range records {
		clone := r.Clone()
		c.fillPrimaryKey(clone)
		c.bumpNextID(clone)
		c.records = append(c.records, clone)
		out = append(out, clone.Clone())
	}
	return out, nil
}

func (c *Collection) Update(_ context.Context, caller uniquery.Caller, filter query.Filter, patch query.Record) error {
	if err := c.checkFilter(query.PaginatedFilter{Filter: filter}); err != nil {
		return err
	}
	for field := range patch {
		if _, ok := c.schema.Fields[field]; !ok {
			return uniquery.UnknownFieldError(c.name + "." + field)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if filter.ConditionTree == nil || filter.ConditionTree.Match(r, caller.Location()) {
			for k, v := range patch {
				r[k] = v
			}
		}
	}
	return nil
}

func (c *Collection) Delete(_ context.Context, caller uniquery.Caller, filter query.Filter) error {
	if err := c.checkFilter(query.PaginatedFilter{Filter: filter}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.records[:0]
	for _, r := range c.records {
		if filter.ConditionTree != nil && !filter.ConditionTree.Match(r, caller.Location()) {
			kept = append(kept, r)
		}
	}
	c.records = kept
	return nil
}

// fillPrimaryKey assigns the next sequence value when the collection has a
// single numeric primary key and the record does not carry one.
func (c *Collection) fillPrimaryKey(r query.Record) {
	pk, ok := c.autoKey()
	if !ok {
		return
	}
	if v, present := r[pk]; present && v != nil {
		return
	}
	r[pk] = c.nextID
}

func (c *Collection) bumpNextID(r query.Record) {
	pk, ok := c.autoKey()
	if !ok {
		return
	}
	switch id := r[pk].(type) {
	case int:
		if int64(id) >= c.nextID {
			c.nextID = int64(id) + 1
		}
	case int64:
		if id >= c.nextID {
			c.nextID = id + 1
		}
	case float64:
		if int64(id) >= c.nextID {
			c.nextID = int64(id) + 1
		}
	}
}

func (c *Collection) autoKey() (string, bool) {
	pks := c.schema.PrimaryKeys()
	if len(pks) != 1 {
		return "", false
	}
	col, ok := c.schema.Column(pks[0])
	if !ok || col.ColumnType != uniquery.Number {
		return "", false
	}
	return pks[0], true
}
