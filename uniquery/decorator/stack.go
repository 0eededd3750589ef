package decorator

import (
	"github.com/rs/zerolog"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

type cacheInvalidator interface {
	invalidateCache()
}

// Stack assembles the full decorator pipeline over a base datasource and
// exposes one customization entry point per capability. Layer order is fixed;
// each layer only ever sees the surface of the layer below it.
type Stack struct {
	base   uniquery.DataSource
	logger zerolog.Logger

	empty       map[string]*EmptyCollectionDecorator
	operators   map[string]*OperatorsEquivalenceCollectionDecorator
	relation    map[string]*RelationCollectionDecorator
	search      map[string]*SearchCollectionDecorator
	segment     map[string]*SegmentCollectionDecorator
	sortEmulate map[string]*SortEmulateCollectionDecorator
	validation  map[string]*ValidationCollectionDecorator
	publication *PublicationDataSourceDecorator

	caches []cacheInvalidator
}

// StackOption customizes stack construction.
type StackOption func(*Stack)

// WithLogger routes pipeline diagnostics through the given logger. The
// default discards everything.
func WithLogger(logger zerolog.Logger) StackOption {
	return func(s *Stack) { s.logger = logger }
}

// NewStack wraps every collection of the base datasource in the full
// pipeline. The base datasource must not gain or lose collections afterwards.
func NewStack(base uniquery.DataSource, opts ...StackOption) *Stack {
	s := &Stack{
		base:        base,
		logger:      zerolog.Nop(),
		empty:       map[string]*EmptyCollectionDecorator{},
		operators:   map[string]*OperatorsEquivalenceCollectionDecorator{},
		relation:    map[string]*RelationCollectionDecorator{},
		search:      map[string]*SearchCollectionDecorator{},
		segment:     map[string]*SegmentCollectionDecorator{},
		sortEmulate: map[string]*SortEmulateCollectionDecorator{},
		validation:  map[string]*ValidationCollectionDecorator{},
	}
	for _, opt := range opts {
		opt(s)
	}

	layer := newDataSourceDecorator(base, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newEmptyCollectionDecorator(c, ds)
		s.register(c.Name(), &d.collectionDecorator)
		s.empty[c.Name()] = d
		return d
	})
	layer = newDataSourceDecorator(layer, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newOperatorsEquivalenceCollectionDecorator(c, ds)
		s.register(c.Name(), &d.collectionDecorator)
		s.operators[c.Name()] = d
		return d
	})
	layer = newDataSourceDecorator(layer, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newRelationCollectionDecorator(c, ds, s.logger)
		s.register(c.Name(), &d.collectionDecorator)
		s.relation[c.Name()] = d
		return d
	})
	layer = newDataSourceDecorator(layer, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newSearchCollectionDecorator(c, ds)
		s.register(c.Name(), &d.collectionDecorator)
		s.search[c.Name()] = d
		return d
	})
	layer = newDataSourceDecorator(layer, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newSegmentCollectionDecorator(c, ds)
		s.register(c.Name(), &d.collectionDecorator)
		s.segment[c.Name()] = d
		return d
	})
	layer = newDataSourceDecorator(layer, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newSortEmulateCollectionDecorator(c, ds)
		s.register(c.Name(), &d.collectionDecorator)
		s.sortEmulate[c.Name()] = d
		return d
	})
	layer = newDataSourceDecorator(layer, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		d := newValidationCollectionDecorator(c, ds)
		s.register(c.Name(), &d.collectionDecorator)
		s.validation[c.Name()] = d
		return d
	})
	s.publication = newPublicationDataSourceDecorator(layer)
	s.publication.onMutate = s.invalidateAll
	for _, c := range s.publication.dataSourceDecorator.Collections() {
		if p, ok := c.(*PublicationCollectionDecorator); ok {
			s.register(c.Name(), &p.collectionDecorator)
		}
	}
	return s
}

func (s *Stack) register(name string, d *collectionDecorator) {
	d.onMutate = s.invalidateAll
	s.caches = append(s.caches, d)
}

// invalidateAll discards every cached schema in the stack. A mutation on any
// layer can change what a sibling exposes through a relation, so invalidation
// is always global.
func (s *Stack) invalidateAll() {
	for _, c := range s.caches {
		c.invalidateCache()
	}
}

// DataSource returns the outermost surface of the pipeline.
func (s *Stack) DataSource() uniquery.DataSource {
	return s.publication
}

// Collection returns the outermost decorated collection.
func (s *Stack) Collection(name string) (uniquery.Collection, error) {
	return s.publication.Collection(name)
}

// AddRelation declares an emulated relation on a collection.
func (s *Stack) AddRelation(collection, name string, definition uniquery.FieldSchema) error {
	d, ok := s.relation[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return d.AddRelation(name, definition)
}

// AddSegment registers a named segment on a collection.
func (s *Stack) AddSegment(collection, name string, definition SegmentDefinition) error {
	d, ok := s.segment[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return d.AddSegment(name, definition)
}

// ReplaceSearch swaps the built-in search compiler of a collection.
func (s *Stack) ReplaceSearch(collection string, fn SearchReplacer) error {
	d, ok := s.search[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	d.ReplaceSearch(fn)
	return nil
}

// EmulateFieldSorting enables in-memory sorting on a field.
func (s *Stack) EmulateFieldSorting(collection, field string) error {
	d, ok := s.sortEmulate[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return d.EmulateFieldSorting(field)
}

// ReplaceFieldSorting substitutes an equivalent native sort for a field.
func (s *Stack) ReplaceFieldSorting(collection, field string, equivalent query.Sort) error {
	d, ok := s.sortEmulate[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return d.ReplaceFieldSorting(field, equivalent)
}

// DisableFieldSorting hides a field's sortability.
func (s *Stack) DisableFieldSorting(collection, field string) error {
	d, ok := s.sortEmulate[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return d.DisableFieldSorting(field)
}

// AddValidation attaches a write-time validation rule to a column.
func (s *Stack) AddValidation(collection, field string, rule uniquery.ValidationRule) error {
	d, ok := s.validation[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return d.AddValidation(field, rule)
}

// ChangeFieldVisibility shows or hides a field on the published surface.
func (s *Stack) ChangeFieldVisibility(collection, field string, visible bool) error {
	c, ok := s.publication.collections[collection]
	if !ok {
		return uniquery.UnknownCollectionError(collection)
	}
	return c.(*PublicationCollectionDecorator).ChangeFieldVisibility(field, visible)
}

// RemoveCollection hides a collection from the published surface.
func (s *Stack) RemoveCollection(name string) error {
	return s.publication.RemoveCollection(name)
}

// KeepCollectionsMatching restricts the published surface to the include
// list minus the exclude list.
func (s *Stack) KeepCollectionsMatching(include, exclude []string) error {
	return s.publication.KeepCollectionsMatching(include, exclude)
}
