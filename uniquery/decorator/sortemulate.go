package decorator

import (
	"context"
	"strings"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// SortEmulateCollectionDecorator supports sorting on fields the backend
// cannot sort natively. Emulation fetches the entire matching set once per
// query, sorts and paginates it in memory, then re-fetches the window with
// the full projection; exact ordering at the cost of one unpaginated scan.
type SortEmulateCollectionDecorator struct {
	collectionDecorator

	// sorts maps field name to a native replacement sort; a nil value means
	// full in-memory emulation.
	sorts    map[string]query.Sort
	disabled map[string]bool
}

func newSortEmulateCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource) *SortEmulateCollectionDecorator {
	d := &SortEmulateCollectionDecorator{
		sorts:    map[string]query.Sort{},
		disabled: map[string]bool{},
	}
	d.init(child, ds)
	d.refineSchema = d.refineSortSchema
	return d
}

// EmulateFieldSorting marks a field as sortable through full in-memory
// emulation.
func (d *SortEmulateCollectionDecorator) EmulateFieldSorting(name string) error {
	return d.replaceOrEmulate(name, nil)
}

// ReplaceFieldSorting substitutes sorting on a field with an equivalent
// native sort, cheaper than emulation but approximate.
func (d *SortEmulateCollectionDecorator) ReplaceFieldSorting(name string, equivalent query.Sort) error {
	if len(equivalent) == 0 {
		return uniquery.NewError(uniquery.ErrValidation, "equivalent sort cannot be empty")
	}
	return d.replaceOrEmulate(name, equivalent)
}

// DisableFieldSorting hides a field's sortability from end users. Trusted
// code paths may still sort on it if the backend allows.
func (d *SortEmulateCollectionDecorator) DisableFieldSorting(name string) error {
	schema, err := d.child.Schema()
	if err != nil {
		return err
	}
	if _, ok := schema.Column(name); !ok {
		return uniquery.UnknownFieldError(name)
	}
	d.disabled[name] = true
	d.markDirty()
	return nil
}

func (d *SortEmulateCollectionDecorator) replaceOrEmulate(name string, equivalent query.Sort) error {
	schema, err := d.child.Schema()
	if err != nil {
		return err
	}
	if _, ok := schema.Fields[name]; !ok {
		return uniquery.UnknownFieldError(name)
	}
	if _, ok := schema.Column(name); !ok {
		return uniquery.TypeMismatchError(name, "cannot sort on a relation field")
	}
	for _, clause := range equivalent {
		if err := uniquery.ValidateConditionTree(query.NewLeaf(clause.Field, query.Present, nil), schema, d.ds); err != nil {
			return err
		}
	}
	d.sorts[name] = equivalent
	d.markDirty()
	return nil
}

func (d *SortEmulateCollectionDecorator) refineSortSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	for name, field := range schema.Fields {
		col, ok := field.(*uniquery.ColumnSchema)
		if !ok {
			continue
		}
		if _, customized := d.sorts[name]; customized {
			col.IsSortable = true
		}
		if d.disabled[name] {
			col.IsSortable = false
		}
	}
	return schema, nil
}

// rewritePlainSortClause maps one clause to its native equivalent, recursing
// through relation prefixes. Clauses on fully-emulated fields come back
// unchanged and are detected later by isEmulated.
func (d *SortEmulateCollectionDecorator) rewritePlainSortClause(clause query.SortClause) (query.Sort, error) {
	if prefix, rest, nested := strings.Cut(clause.Field, ":"); nested {
		foreign, err := d.foreignSortDecorator(prefix)
		if err != nil {
			return nil, err
		}
		sub, err := foreign.rewritePlainSortClause(query.SortClause{Field: rest, Ascending: clause.Ascending})
		if err != nil {
			return nil, err
		}
		return sub.Nest(prefix), nil
	}
	if equivalent, ok := d.sorts[clause.Field]; ok && equivalent != nil {
		if clause.Ascending {
			return equivalent, nil
		}
		return equivalent.Invert(), nil
	}
	return query.Sort{clause}, nil
}

// isEmulated reports whether a (possibly relation-prefixed) sort field needs
// in-memory emulation.
func (d *SortEmulateCollectionDecorator) isEmulated(field string) bool {
	if prefix, rest, nested := strings.Cut(field, ":"); nested {
		foreign, err := d.foreignSortDecorator(prefix)
		if err != nil {
			return false
		}
		return foreign.isEmulated(rest)
	}
	equivalent, ok := d.sorts[field]
	return ok && equivalent == nil
}

func (d *SortEmulateCollectionDecorator) foreignSortDecorator(prefix string) (*SortEmulateCollectionDecorator, error) {
	schema, err := d.Schema()
	if err != nil {
		return nil, err
	}
	foreignName := ""
	switch rel := schema.Fields[prefix].(type) {
	case *uniquery.ManyToOneSchema:
		foreignName = rel.ForeignCollection
	case *uniquery.OneToOneSchema:
		foreignName = rel.ForeignCollection
	case *uniquery.OneToManySchema:
		foreignName = rel.ForeignCollection
	case *uniquery.ManyToManySchema:
		foreignName = rel.ForeignCollection
	default:
		return nil, uniquery.UnknownFieldError(prefix)
	}
	c, err := d.ds.Collection(foreignName)
	if err != nil {
		return nil, err
	}
	foreign, ok := c.(*SortEmulateCollectionDecorator)
	if !ok {
		return nil, uniquery.UnprocessableError("collection " + foreignName + " is not sort-decorated")
	}
	return foreign, nil
}

func (d *SortEmulateCollectionDecorator) List(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	var rewriteErr error
	rewritten := filter.Sort.ReplaceClauses(func(clause query.SortClause) query.Sort {
		sub, err := d.rewritePlainSortClause(clause)
		if err != nil {
			rewriteErr = err
			return query.Sort{clause}
		}
		return sub
	})
	if rewriteErr != nil {
		return nil, rewriteErr
	}

	needsEmulation := false
	native := make(query.Sort, 0, len(rewritten))
	for _, clause := range rewritten {
		if d.isEmulated(clause.Field) {
			needsEmulation = true
			continue
		}
		native = append(native, clause)
	}
	if !needsEmulation {
		return d.child.List(ctx, caller, filter.WithSort(rewritten), projection)
	}

	schema, err := d.Schema()
	if err != nil {
		return nil, err
	}
	pks := query.Projection(schema.PrimaryKeys())

	// Full scan restricted to the sort fields plus primary keys.
	references, err := d.child.List(ctx, caller,
		filter.WithSort(native).WithPage(nil),
		rewritten.Projection().Union(pks))
	if err != nil {
		return nil, err
	}
	references = rewritten.Apply(references)
	references = filter.Page.Apply(references)

	if len(references) == 0 {
		return []query.Record{}, nil
	}

	fullProjection := projection.Union(pks)
	window, err := d.child.List(ctx, caller,
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: uniquery.MatchRecords(schema, references)}},
		fullProjection)
	if err != nil {
		return nil, err
	}

	// Restore the in-memory order: the window fetch guarantees membership,
	// not position.
	positions := map[string]int{}
	for i, r := range references {
		positions[primaryKeyHash(pks, r)] = i
	}
	ordered := make([]query.Record, len(references))
	for _, r := range window {
		if pos, ok := positions[primaryKeyHash(pks, r)]; ok {
			ordered[pos] = r
		}
	}
	out := make([]query.Record, 0, len(ordered))
	for _, r := range ordered {
		if r != nil {
			out = append(out, r)
		}
	}
	if fullProjection.Equals(projection) {
		return out, nil
	}
	return projection.Apply(out), nil
}

func primaryKeyHash(pks query.Projection, record query.Record) string {
	var sb strings.Builder
	for _, pk := range pks {
		sb.WriteString(query.ValueKey(record.Get(pk)))
		sb.WriteString("|")
	}
	return sb.String()
}
