package decorator

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// SearchReplacer compiles a free-text search string into a condition tree,
// taking over from the built-in rule set.
type SearchReplacer func(ctx context.Context, search string, extended bool) (query.ConditionTree, error)

// SearchCollectionDecorator makes every collection searchable: when the
// backend cannot search natively (or a replacer is registered), the search
// string is compiled into a condition tree and the raw text never reaches
// downstream layers.
type SearchCollectionDecorator struct {
	collectionDecorator
	replacer SearchReplacer
}

func newSearchCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource) *SearchCollectionDecorator {
	d := &SearchCollectionDecorator{}
	d.init(child, ds)
	d.refineSchema = d.refineSearchSchema
	d.refineFilter = d.refineSearchFilter
	return d
}

// ReplaceSearch registers a custom search compiler for this collection.
func (d *SearchCollectionDecorator) ReplaceSearch(fn SearchReplacer) {
	d.replacer = fn
	d.markDirty()
}

func (d *SearchCollectionDecorator) refineSearchSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	schema.Searchable = true
	return schema, nil
}

func (d *SearchCollectionDecorator) refineSearchFilter(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error) {
	search := strings.TrimSpace(filter.Search)
	if search == "" {
		filter.Search = ""
		return filter, nil
	}
	childSchema, err := d.child.Schema()
	if err != nil {
		return filter, err
	}
	if d.replacer == nil && childSchema.Searchable {
		return filter, nil
	}

	var tree query.ConditionTree
	if d.replacer != nil {
		tree, err = d.replacer(ctx, search, filter.SearchExtended)
		if err != nil {
			return filter, err
		}
	} else {
		tree, err = d.defaultSearchTree(childSchema, search, filter.SearchExtended)
		if err != nil {
			return filter, err
		}
	}
	filter.Filter = filter.Filter.WithConditionTree(query.Intersect(filter.ConditionTree, tree))
	filter.Search = ""
	return filter, nil
}

// defaultSearchTree ORs one condition per matching column. Zero contributing
// fields yield a universally-false condition so no filter silently leaks all
// records.
func (d *SearchCollectionDecorator) defaultSearchTree(schema *uniquery.CollectionSchema, search string, extended bool) (query.ConditionTree, error) {
	var conditions []query.ConditionTree
	for _, name := range sortedFieldNames(schema) {
		if condition := searchCondition(name, schema.Fields[name], search); condition != nil {
			conditions = append(conditions, condition)
		}
	}
	if extended {
		for _, name := range sortedFieldNames(schema) {
			field := schema.Fields[name]
			foreignName := ""
			switch rel := field.(type) {
			case *uniquery.ManyToOneSchema:
				foreignName = rel.ForeignCollection
			case *uniquery.OneToOneSchema:
				foreignName = rel.ForeignCollection
			default:
				continue
			}
			foreign, err := d.ds.Collection(foreignName)
			if err != nil {
				return nil, err
			}
			foreignSchema, err := foreign.Schema()
			if err != nil {
				return nil, err
			}
			for _, subName := range sortedFieldNames(foreignSchema) {
				if condition := searchCondition(subName, foreignSchema.Fields[subName], search); condition != nil {
					conditions = append(conditions, condition.Nest(name))
				}
			}
		}
	}
	if len(conditions) == 0 {
		return query.MatchNone(), nil
	}
	return query.Union(conditions...), nil
}

func sortedFieldNames(schema *uniquery.CollectionSchema) []string {
	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// searchCondition builds the per-column search condition, or nil when the
// column cannot contribute.
func searchCondition(name string, field uniquery.FieldSchema, search string) query.ConditionTree {
	col, ok := field.(*uniquery.ColumnSchema)
	if !ok {
		return nil
	}
	switch col.ColumnType {
	case uniquery.Number:
		if !col.FilterOperators.Has(query.Equal) {
			return nil
		}
		if number, err := strconv.ParseFloat(search, 64); err == nil {
			return query.NewLeaf(name, query.Equal, number)
		}
	case uniquery.Enum:
		if !col.FilterOperators.Has(query.Equal) {
			return nil
		}
		needle := strings.ToLower(strings.TrimSpace(search))
		for _, value := range col.EnumValues {
			if strings.ToLower(strings.TrimSpace(value)) == needle {
				return query.NewLeaf(name, query.Equal, value)
			}
		}
	case uniquery.String:
		// Contains beats IContains when the search term carries no case
		// information: the backend can then use a plain index.
		lowered := strings.ToLower(search)
		switch {
		case lowered == search && col.FilterOperators.Has(query.Contains):
			return query.NewLeaf(name, query.Contains, search)
		case col.FilterOperators.Has(query.IContains):
			return query.NewLeaf(name, query.IContains, search)
		case col.FilterOperators.Has(query.Contains):
			return query.NewLeaf(name, query.Contains, search)
		case col.FilterOperators.Has(query.Equal):
			return query.NewLeaf(name, query.Equal, search)
		}
	case uniquery.Uuid:
		if !col.FilterOperators.Has(query.Equal) {
			return nil
		}
		if parsed, err := uuid.Parse(search); err == nil {
			return query.NewLeaf(name, query.Equal, parsed.String())
		}
	}
	return nil
}
