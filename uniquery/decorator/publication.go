package decorator

import (
	"context"
	"strings"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// PublicationDataSourceDecorator is the outermost layer. It controls which
// collections and fields outer consumers can see at all; hidden elements
// behave exactly as if they never existed.
type PublicationDataSourceDecorator struct {
	*dataSourceDecorator
	hidden   map[string]bool
	onMutate func()
}

func newPublicationDataSourceDecorator(child uniquery.DataSource) *PublicationDataSourceDecorator {
	pub := &PublicationDataSourceDecorator{hidden: map[string]bool{}}
	pub.dataSourceDecorator = newDataSourceDecorator(child, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		return newPublicationCollectionDecorator(c, ds, pub)
	})
	return pub
}

func (pub *PublicationDataSourceDecorator) Collections() []uniquery.Collection {
	out := make([]uniquery.Collection, 0, len(pub.order))
	for _, name := range pub.order {
		if !pub.hidden[name] {
			out = append(out, pub.collections[name])
		}
	}
	return out
}

// Collection distinguishes a collection removed by customization from one
// that never existed: the former raises the missing-schema-element kind so
// enclosing layers can downgrade it.
func (pub *PublicationDataSourceDecorator) Collection(name string) (uniquery.Collection, error) {
	if pub.hidden[name] {
		return nil, uniquery.MissingSchemaError("collection removed from the published surface: " + name)
	}
	return pub.dataSourceDecorator.Collection(name)
}

// IsPublished reports whether outer consumers can see the collection.
func (pub *PublicationDataSourceDecorator) IsPublished(name string) bool {
	_, exists := pub.collections[name]
	return exists && !pub.hidden[name]
}

// RemoveCollection hides a collection. Every relation pointing at it
// disappears from sibling schemas, so all cached schemas are discarded.
func (pub *PublicationDataSourceDecorator) RemoveCollection(name string) error {
	if _, exists := pub.collections[name]; !exists {
		return uniquery.UnknownCollectionError(name)
	}
	pub.hidden[name] = true
	pub.markAllDirty()
	return nil
}

// KeepCollectionsMatching hides everything outside the include list plus
// everything on the exclude list. An empty include list means keep all.
func (pub *PublicationDataSourceDecorator) KeepCollectionsMatching(include, exclude []string) error {
	for _, name := range append(append([]string{}, include...), exclude...) {
		if _, exists := pub.collections[name]; !exists {
			return uniquery.UnknownCollectionError(name)
		}
	}
	if len(include) > 0 {
		keep := map[string]bool{}
		for _, name := range include {
			keep[name] = true
		}
		for name := range pub.collections {
			if !keep[name] {
				pub.hidden[name] = true
			}
		}
	}
	for _, name := range exclude {
		pub.hidden[name] = true
	}
	pub.markAllDirty()
	return nil
}

func (pub *PublicationDataSourceDecorator) markAllDirty() {
	for _, c := range pub.collections {
		if p, ok := c.(*PublicationCollectionDecorator); ok {
			p.invalidateCache()
		}
	}
	if pub.onMutate != nil {
		pub.onMutate()
	}
}

// PublicationCollectionDecorator hides individual fields and prunes relations
// whose endpoints are no longer visible.
type PublicationCollectionDecorator struct {
	collectionDecorator
	pub          *PublicationDataSourceDecorator
	hiddenFields map[string]bool
}

func newPublicationCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource, pub *PublicationDataSourceDecorator) *PublicationCollectionDecorator {
	d := &PublicationCollectionDecorator{pub: pub, hiddenFields: map[string]bool{}}
	d.init(child, ds)
	d.refineSchema = d.refinePublicationSchema
	d.refineFilter = d.refinePublicationFilter
	return d
}

// refinePublicationFilter rejects references to fields this layer hid. The
// field still exists below, so the error carries the missing-schema-element
// kind rather than unknown-field.
func (d *PublicationCollectionDecorator) refinePublicationFilter(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error) {
	hidden := ""
	if filter.ConditionTree != nil {
		filter.ConditionTree.EveryLeaf(func(l *query.Leaf) bool {
			head, _, _ := strings.Cut(l.Field, ":")
			if d.hiddenFields[head] {
				hidden = l.Field
				return false
			}
			return true
		})
	}
	for _, clause := range filter.Sort {
		if hidden != "" {
			break
		}
		if head, _, _ := strings.Cut(clause.Field, ":"); d.hiddenFields[head] {
			hidden = clause.Field
		}
	}
	if hidden != "" {
		return filter, uniquery.MissingSchemaError("field removed from the published surface: " + hidden)
	}
	return filter, nil
}

// ChangeFieldVisibility shows or hides one field. Primary keys cannot be
// hidden, identity must survive publication.
func (d *PublicationCollectionDecorator) ChangeFieldVisibility(name string, visible bool) error {
	schema, err := d.child.Schema()
	if err != nil {
		return err
	}
	field, ok := schema.Fields[name]
	if !ok {
		return uniquery.UnknownFieldError(name)
	}
	if col, isColumn := field.(*uniquery.ColumnSchema); isColumn && col.IsPrimaryKey && !visible {
		return uniquery.ValidationError(name, "cannot hide a primary key")
	}
	if visible {
		delete(d.hiddenFields, name)
	} else {
		d.hiddenFields[name] = true
	}
	d.pub.markAllDirty()
	return nil
}

func (d *PublicationCollectionDecorator) refinePublicationSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	for name, field := range schema.Fields {
		if d.hiddenFields[name] || !d.relationPublished(field) {
			delete(schema.Fields, name)
		}
	}
	return schema, nil
}

// relationPublished checks the single-hop visibility requirements of a
// relation: the foreign (and through) collections must be published and
// every key column on both ends must be visible.
func (d *PublicationCollectionDecorator) relationPublished(field uniquery.FieldSchema) bool {
	switch rel := field.(type) {
	case *uniquery.ManyToOneSchema:
		return d.pub.IsPublished(rel.ForeignCollection) &&
			d.fieldVisible(rel.ForeignKey) &&
			d.pub.fieldVisible(rel.ForeignCollection, rel.ForeignKeyTarget)
	case *uniquery.OneToOneSchema:
		return d.pub.IsPublished(rel.ForeignCollection) &&
			d.fieldVisible(rel.OriginKeyTarget) &&
			d.pub.fieldVisible(rel.ForeignCollection, rel.OriginKey)
	case *uniquery.OneToManySchema:
		return d.pub.IsPublished(rel.ForeignCollection) &&
			d.fieldVisible(rel.OriginKeyTarget) &&
			d.pub.fieldVisible(rel.ForeignCollection, rel.OriginKey)
	case *uniquery.ManyToManySchema:
		return d.pub.IsPublished(rel.ForeignCollection) &&
			d.pub.IsPublished(rel.ThroughCollection) &&
			d.fieldVisible(rel.OriginKeyTarget) &&
			d.pub.fieldVisible(rel.ForeignCollection, rel.ForeignKeyTarget) &&
			d.pub.fieldVisible(rel.ThroughCollection, rel.OriginKey) &&
			d.pub.fieldVisible(rel.ThroughCollection, rel.ForeignKey)
	default:
		return true
	}
}

func (d *PublicationCollectionDecorator) fieldVisible(name string) bool {
	return !d.hiddenFields[name]
}

func (pub *PublicationDataSourceDecorator) fieldVisible(collection, field string) bool {
	c, ok := pub.collections[collection]
	if !ok {
		return false
	}
	p, ok := c.(*PublicationCollectionDecorator)
	if !ok {
		return false
	}
	return p.fieldVisible(field)
}
