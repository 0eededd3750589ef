package uniquery

import (
	"sort"
	"strings"

	"github.com/nonibytes/uniquery/uniquery/query"
)

// ColumnType is the declared type of a column.
type ColumnType string

const (
	Boolean  ColumnType = "Boolean"
	Date     ColumnType = "Date"
	Dateonly ColumnType = "Dateonly"
	Enum     ColumnType = "Enum"
	Number   ColumnType = "Number"
	String   ColumnType = "String"
	Uuid     ColumnType = "Uuid"
	Json     ColumnType = "Json"
)

// ValidationRule constrains values written to a column. The rule holds iff
// a leaf with its operator and value matches the written value.
type ValidationRule struct {
	Operator query.Operator
	Value    any
}

// FieldSchema is the closed union of field kinds a collection schema can
// hold: a concrete column or one of the four relation kinds.
type FieldSchema interface {
	isFieldSchema()
}

// ColumnSchema describes a concrete column.
type ColumnSchema struct {
	ColumnType      ColumnType
	FilterOperators query.OperatorSet
	IsPrimaryKey    bool
	IsSortable      bool
	IsReadOnly      bool
	EnumValues      []string
	Validations     []ValidationRule
}

// ManyToOneSchema links through a foreign key held on this collection.
type ManyToOneSchema struct {
	ForeignCollection string
	ForeignKey        string
	ForeignKeyTarget  string
}

// OneToOneSchema links through an origin key held on the foreign collection.
type OneToOneSchema struct {
	ForeignCollection string
	OriginKey         string
	OriginKeyTarget   string
}

// OneToManySchema links through an origin key held on the foreign collection.
type OneToManySchema struct {
	ForeignCollection string
	OriginKey         string
	OriginKeyTarget   string
}

// ManyToManySchema links through an intermediary collection.
type ManyToManySchema struct {
	ThroughCollection string
	ForeignCollection string
	ForeignKey        string
	ForeignKeyTarget  string
	OriginKey         string
	OriginKeyTarget   string
}

func (*ColumnSchema) isFieldSchema()     {}
func (*ManyToOneSchema) isFieldSchema()  {}
func (*OneToOneSchema) isFieldSchema()   {}
func (*OneToManySchema) isFieldSchema()  {}
func (*ManyToManySchema) isFieldSchema() {}

// IsRelation reports whether the field is one of the relation kinds.
func IsRelation(f FieldSchema) bool {
	_, ok := f.(*ColumnSchema)
	return !ok
}

// CollectionSchema is the derived description of a collection.
type CollectionSchema struct {
	Fields     map[string]FieldSchema
	Segments   []string
	Searchable bool
}

// NewCollectionSchema returns an empty schema.
func NewCollectionSchema() *CollectionSchema {
	return &CollectionSchema{Fields: map[string]FieldSchema{}}
}

// Column looks up a field and returns it as a column.
func (s *CollectionSchema) Column(name string) (*ColumnSchema, bool) {
	col, ok := s.Fields[name].(*ColumnSchema)
	return col, ok
}

// PrimaryKeys lists the primary key columns in lexical order.
func (s *CollectionSchema) PrimaryKeys() []string {
	var pks []string
	for name, field := range s.Fields {
		if col, ok := field.(*ColumnSchema); ok && col.IsPrimaryKey {
			pks = append(pks, name)
		}
	}
	sort.Strings(pks)
	return pks
}

// Clone deep-copies the schema so decorators can refine it without
// mutating their child's cached copy.
func (s *CollectionSchema) Clone() *CollectionSchema {
	out := &CollectionSchema{
		Fields:     make(map[string]FieldSchema, len(s.Fields)),
		Segments:   append([]string(nil), s.Segments...),
		Searchable: s.Searchable,
	}
	for name, field := range s.Fields {
		switch f := field.(type) {
		case *ColumnSchema:
			clone := *f
			clone.FilterOperators = f.FilterOperators.Clone()
			clone.EnumValues = append([]string(nil), f.EnumValues...)
			clone.Validations = append([]ValidationRule(nil), f.Validations...)
			out.Fields[name] = &clone
		case *ManyToOneSchema:
			clone := *f
			out.Fields[name] = &clone
		case *OneToOneSchema:
			clone := *f
			out.Fields[name] = &clone
		case *OneToManySchema:
			clone := *f
			out.Fields[name] = &clone
		case *ManyToManySchema:
			clone := *f
			out.Fields[name] = &clone
		}
	}
	return out
}

// ValidateConditionTree checks that every leaf of the tree references a
// declared field. Relation-prefixed paths are resolved through ds.
func ValidateConditionTree(tree query.ConditionTree, schema *CollectionSchema, ds DataSource) error {
	if tree == nil {
		return nil
	}
	var failed error
	tree.EveryLeaf(func(l *query.Leaf) bool {
		if err := validateFieldPath(l.Field, schema, ds); err != nil {
			failed = err
			return false
		}
		return true
	})
	return failed
}

func validateFieldPath(path string, schema *CollectionSchema, ds DataSource) error {
	head, rest, nested := strings.Cut(path, ":")
	field, ok := schema.Fields[head]
	if !ok {
		return UnknownFieldError(path)
	}
	if !nested {
		if IsRelation(field) {
			return TypeMismatchError(path, "expected a column, found a relation")
		}
		return nil
	}
	foreignName := ""
	switch f := field.(type) {
	case *ManyToOneSchema:
		foreignName = f.ForeignCollection
	case *OneToOneSchema:
		foreignName = f.ForeignCollection
	case *OneToManySchema:
		foreignName = f.ForeignCollection
	case *ManyToManySchema:
		foreignName = f.ForeignCollection
	default:
		return TypeMismatchError(path, "expected a relation, found a column")
	}
	if ds == nil {
		return nil
	}
	foreign, err := ds.Collection(foreignName)
	if err != nil {
		return err
	}
	foreignSchema, err := foreign.Schema()
	if err != nil {
		return err
	}
	return validateFieldPath(rest, foreignSchema, ds)
}
