package sqldata

import (
	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// Column declares one table column.
type Column struct {
	Name       string
	Type       uniquery.ColumnType
	PrimaryKey bool
	ReadOnly   bool
	EnumValues []string
}

// Table declares a backend table exposed as a collection.
type Table struct {
	Name    string
	Columns []Column
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// schema derives the collection schema: every column is sortable, the filter
// operators are exactly what the dialect compiles for the column type.
func (t Table) schema(dialect Dialect) *uniquery.CollectionSchema {
	schema := uniquery.NewCollectionSchema()
	for _, c := range t.Columns {
		schema.Fields[c.Name] = &uniquery.ColumnSchema{
			ColumnType:      c.Type,
			FilterOperators: query.NewOperatorSet(dialect.ColumnOperators(c.Type)...),
			IsPrimaryKey:    c.PrimaryKey,
			IsSortable:      true,
			IsReadOnly:      c.ReadOnly,
			EnumValues:      append([]string(nil), c.EnumValues...),
		}
	}
	return schema
}
