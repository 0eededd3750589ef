package decorator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// strictCollection is an in-memory backend that rejects any capability it did
// not declare, the way a picky SQL or API datasource would. Decorator tests
// rely on this strictness to prove that emulation, not passthrough, happened.
type strictCollection struct {
	name       string
	schema     *uniquery.CollectionSchema
	searchable bool

	mu      sync.Mutex
	records []query.Record

	listCalls   int
	lastFilter  query.PaginatedFilter
	lastProject query.Projection
}

func newStrictCollection(name string, schema *uniquery.CollectionSchema, records ...query.Record) *strictCollection {
	return &strictCollection{name: name, schema: schema, records: records}
}

func (c *strictCollection) Name() string { return c.name }

func (c *strictCollection) Schema() (*uniquery.CollectionSchema, error) {
	s := c.schema.Clone()
	s.Searchable = c.searchable
	return s, nil
}

func (c *strictCollection) checkTree(tree query.ConditionTree) error {
	if tree == nil {
		return nil
	}
	var err error
	tree.EveryLeaf(func(l *query.Leaf) bool {
		col, ok := c.schema.Column(l.Field)
		if !ok {
			err = uniquery.UnknownFieldError(c.name + "." + l.Field)
			return false
		}
		if !col.FilterOperators.Has(l.Operator) {
			err = uniquery.UnsupportedOperatorError(l.Field, fmt.Sprintf(
				"%s does not support %s", c.name+"."+l.Field, l.Operator))
			return false
		}
		return true
	})
	return err
}

func (c *strictCollection) checkFilter(filter query.PaginatedFilter) error {
	if filter.Search != "" && !c.searchable {
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
			return uniquery.UnprocessableError(c.name + "." + clause.Field + " is not sortable")
		}
	}
	return c.checkTree(filter.ConditionTree)
}

func (c *strictCollection) List(_ context.Context, caller uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	c.lastFilter = filter
	c.lastProject = projection
	if err := c.checkFilter(filter); err != nil {
		return nil, err
	}
	out := make([]query.Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Clone())
	}
	out = query.Apply(filter.ConditionTree, out, caller.Location())
	out = filter.Sort.Apply(out)
	out = filter.Page.Apply(out)
	return projection.Apply(out), nil
}

func (c *strictCollection) Aggregate(ctx context.Context, caller uniquery.Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error) {
	records, err := c.List(ctx, caller, query.PaginatedFilter{Filter: filter}, aggregation.Projection())
	if err != nil {
		return nil, err
	}
	return aggregation.Apply(records, caller.Location(), limit), nil
}

func (c *strictCollection) Create(_ context.Context, _ uniquery.Caller, records []query.Record) ([]query.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]query.Record, 0, len(records))
	for _, r := range records {
		clone := r.Clone()
		c.records = append(c.records, clone)
		out = append(out, clone.Clone())
	}
	return out, nil
}

func (c *strictCollection) Update(_ context.Context, caller uniquery.Caller, filter query.Filter, patch query.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkTree(filter.ConditionTree); err != nil {
		return err
	}
	for _, r := range c.records {
		if filter.ConditionTree == nil || filter.ConditionTree.Match(r, caller.Location()) {
			for k, v := range patch {
				r[k] = v
			}
		}
	}
	return nil
}

func (c *strictCollection) Delete(_ context.Context, caller uniquery.Caller, filter query.Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkTree(filter.ConditionTree); err != nil {
		return err
	}
	kept := c.records[:0]
	for _, r := range c.records {
		if filter.ConditionTree != nil && !filter.ConditionTree.Match(r, caller.Location()) {
			kept = append(kept, r)
		}
	}
	c.records = kept
	return nil
}

func pkColumn(t uniquery.ColumnType, ops ...query.Operator) *uniquery.ColumnSchema {
	col := column(t, ops...)
	col.IsPrimaryKey = true
	return col
}

func column(t uniquery.ColumnType, ops ...query.Operator) *uniquery.ColumnSchema {
	return &uniquery.ColumnSchema{
		ColumnType:      t,
		FilterOperators: query.NewOperatorSet(ops...),
		IsSortable:      true,
	}
}

// bookStoreFixture builds the canonical two-collection fixture used across
// decorator tests: books with a nullable ownerId pointing at persons.
func bookStoreFixture() (*strictCollection, *strictCollection, *uniquery.Registry) {
	books := uniquery.NewCollectionSchema()
	books.Fields["id"] = pkColumn(uniquery.Number, query.Equal, query.In, query.NotIn)
	books.Fields["title"] = column(uniquery.String, query.Equal, query.In, query.Contains)
	books.Fields["ownerId"] = column(uniquery.Number, query.Equal, query.In, query.NotIn)

	persons := uniquery.NewCollectionSchema()
	persons.Fields["id"] = pkColumn(uniquery.Number, query.Equal, query.In)
	persons.Fields["name"] = column(uniquery.String, query.Equal, query.In, query.Contains)

	bookData := newStrictCollection("books", books,
		query.Record{"id": 1, "title": "Dune", "ownerId": 5},
		query.Record{"id": 2, "title": "Solaris", "ownerId": 6},
		query.Record{"id": 3, "title": "Ubik", "ownerId": nil},
	)
	personData := newStrictCollection("persons", persons,
		query.Record{"id": 5, "name": "Ada"},
		query.Record{"id": 6, "name": "Blaise"},
	)

	registry := uniquery.NewRegistry()
	_ = registry.AddCollection(bookData)
	_ = registry.AddCollection(personData)
	return bookData, personData, registry
}

func ownerRelation() *uniquery.ManyToOneSchema {
	return &uniquery.ManyToOneSchema{
		ForeignCollection: "persons",
		ForeignKey:        "ownerId",
		ForeignKeyTarget:  "id",
	}
}

func recordIDs(records []query.Record) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		switch id := r["id"].(type) {
		case int:
			out = append(out, id)
		case float64:
			out = append(out, int(id))
		}
	}
	return out
}

func sortedInts(values []int) []int {
	out := append([]int{}, values...)
	sort.Ints(out)
	return out
}
