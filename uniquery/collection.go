package uniquery

import (
	"context"
	"sort"
	"time"

	"github.com/nonibytes/uniquery/uniquery/query"
)

// Caller identifies who issues an operation. The timezone drives every
// date-dependent rewrite and in-memory evaluation.
type Caller struct {
	ID       string
	Timezone *time.Location
}

// Location returns the caller timezone, defaulting to UTC.
func (c Caller) Location() *time.Location {
	if c.Timezone == nil {
		return time.UTC
	}
	return c.Timezone
}

// Collection is a named, queryable and writable entity type. Implementations
// declare what they support natively through their schema; anything beyond
// that surface is an error, the decorator pipeline is responsible for never
// letting unsupported queries through.
type Collection interface {
	Name() string
	Schema() (*CollectionSchema, error)

	List(ctx context.Context, caller Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error)
	Aggregate(ctx context.Context, caller Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error)
	Create(ctx context.Context, caller Caller, records []query.Record) ([]query.Record, error)
	Update(ctx context.Context, caller Caller, filter query.Filter, patch query.Record) error
	Delete(ctx context.Context, caller Caller, filter query.Filter) error
}

// DataSource is a named registry of collections.
type DataSource interface {
	Collections() []Collection
	Collection(name string) (Collection, error)
}

// Registry is a reusable DataSource implementation for concrete backends.
type Registry struct {
	collections map[string]Collection
}

func NewRegistry() *Registry {
	return &Registry{collections: map[string]Collection{}}
}

func (r *Registry) AddCollection(c Collection) error {
	if _, ok := r.collections[c.Name()]; ok {
		return NewError(ErrValidation, "duplicate collection: "+c.Name())
	}
	r.collections[c.Name()] = c
	return nil
}

func (r *Registry) Collections() []Collection {
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Collection, 0, len(names))
	for _, name := range names {
		out = append(out, r.collections[name])
	}
	return out
}

func (r *Registry) Collection(name string) (Collection, error) {
	c, ok := r.collections[name]
	if !ok {
		return nil, UnknownCollectionError(name)
	}
	return c, nil
}

// MatchRecords builds a condition tree selecting exactly the given records
// by primary key. Single-column keys compile to one In leaf; composite keys
// to an Or of per-record And branches.
func MatchRecords(schema *CollectionSchema, records []query.Record) query.ConditionTree {
	pks := schema.PrimaryKeys()
	if len(records) == 0 {
		return query.MatchNone()
	}
	if len(pks) == 1 {
		values := make([]any, 0, len(records))
		for _, r := range records {
			values = append(values, r.Get(pks[0]))
		}
		return query.NewLeaf(pks[0], query.In, values)
	}
	matches := make([]query.ConditionTree, 0, len(records))
	for _, r := range records {
		conditions := make([]query.ConditionTree, 0, len(pks))
		for _, pk := range pks {
			conditions = append(conditions, query.NewLeaf(pk, query.Equal, r.Get(pk)))
		}
		matches = append(matches, &query.Branch{Aggregator: query.And, Conditions: conditions})
	}
	return query.Union(matches...)
}
