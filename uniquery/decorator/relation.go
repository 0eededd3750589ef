package decorator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// RelationCollectionDecorator lets customization code declare relations that
// do not exist in the backend and makes them behave as if they were native
// for filtering, sorting and projection, without backend join support. Joins
// are emulated with In queries on the key columns, which is why every key
// column involved must support the In operator.
type RelationCollectionDecorator struct {
	collectionDecorator
	relations map[string]uniquery.FieldSchema
	logger    zerolog.Logger
}

func newRelationCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource, logger zerolog.Logger) *RelationCollectionDecorator {
	d := &RelationCollectionDecorator{
		relations: map[string]uniquery.FieldSchema{},
		logger:    logger.With().Str("component", "relation").Str("collection", child.Name()).Logger(),
	}
	d.init(child, ds)
	d.refineSchema = d.refineRelationSchema
	d.refineFilter = d.refineRelationFilter
	return d
}

// AddRelation declares an emulated relation. It fails without touching the
// registry when a referenced collection or column is missing, when key and
// target column types mismatch, or when a key column lacks the In operator.
func (d *RelationCollectionDecorator) AddRelation(name string, definition uniquery.FieldSchema) error {
	var checked uniquery.FieldSchema
	switch rel := definition.(type) {
	case *uniquery.ManyToOneSchema:
		r := *rel
		foreignSchema, err := d.foreignSchema(r.ForeignCollection)
		if err != nil {
			return err
		}
		if r.ForeignKeyTarget == "" {
			if r.ForeignKeyTarget, err = singlePrimaryKey(r.ForeignCollection, foreignSchema); err != nil {
				return err
			}
		}
		if err := d.checkKeyPair(d.Name(), r.ForeignKey, r.ForeignCollection, r.ForeignKeyTarget); err != nil {
			return err
		}
		checked = &r
	case *uniquery.OneToOneSchema:
		r := *rel
		if err := d.checkOriginKeys(r.ForeignCollection, &r.OriginKey, &r.OriginKeyTarget); err != nil {
			return err
		}
		checked = &r
	case *uniquery.OneToManySchema:
		r := *rel
		if err := d.checkOriginKeys(r.ForeignCollection, &r.OriginKey, &r.OriginKeyTarget); err != nil {
			return err
		}
		checked = &r
	case *uniquery.ManyToManySchema:
		r := *rel
		foreignSchema, err := d.foreignSchema(r.ForeignCollection)
		if err != nil {
			return err
		}
		ownSchema, err := d.Schema()
		if err != nil {
			return err
		}
		if r.ForeignKeyTarget == "" {
			if r.ForeignKeyTarget, err = singlePrimaryKey(r.ForeignCollection, foreignSchema); err != nil {
				return err
			}
		}
		if r.OriginKeyTarget == "" {
			if r.OriginKeyTarget, err = singlePrimaryKey(d.Name(), ownSchema); err != nil {
				return err
			}
		}
		if err := d.checkKeyPair(r.ThroughCollection, r.OriginKey, d.Name(), r.OriginKeyTarget); err != nil {
			return err
		}
		if err := d.checkKeyPair(r.ThroughCollection, r.ForeignKey, r.ForeignCollection, r.ForeignKeyTarget); err != nil {
			return err
		}
		checked = &r
	default:
		return uniquery.NewError(uniquery.ErrValidation, fmt.Sprintf("field %s is not a relation definition", name))
	}

	d.relations[name] = checked
	d.markDirty()
	return nil
}

func (d *RelationCollectionDecorator) checkOriginKeys(foreignCollection string, originKey, originKeyTarget *string) error {
	ownSchema, err := d.Schema()
	if err != nil {
		return err
	}
	if _, err := d.foreignSchema(foreignCollection); err != nil {
		return err
	}
	if *originKeyTarget == "" {
		if *originKeyTarget, err = singlePrimaryKey(d.Name(), ownSchema); err != nil {
			return err
		}
	}
	return d.checkKeyPair(foreignCollection, *originKey, d.Name(), *originKeyTarget)
}

// checkKeyPair verifies that both columns exist, share a column type, and
// support the In operator required to execute the emulated join.
func (d *RelationCollectionDecorator) checkKeyPair(keyCollection, keyField, targetCollection, targetField string) error {
	keyCol, err := d.column(keyCollection, keyField)
	if err != nil {
		return err
	}
	targetCol, err := d.column(targetCollection, targetField)
	if err != nil {
		return err
	}
	if keyCol.ColumnType != targetCol.ColumnType {
		return uniquery.TypeMismatchError(keyField, fmt.Sprintf(
			"column types of '%s.%s' (%s) and '%s.%s' (%s) do not match",
			keyCollection, keyField, keyCol.ColumnType, targetCollection, targetField, targetCol.ColumnType))
	}
	for _, ref := range []struct {
		collection, field string
		col               *uniquery.ColumnSchema
	}{
		{keyCollection, keyField, keyCol},
		{targetCollection, targetField, targetCol},
	} {
		if !ref.col.FilterOperators.Has(query.In) {
			return uniquery.UnsupportedOperatorError(ref.field, fmt.Sprintf(
				"column '%s.%s' does not support the In operator required for join emulation",
				ref.collection, ref.field))
		}
	}
	return nil
}

func (d *RelationCollectionDecorator) column(collection, field string) (*uniquery.ColumnSchema, error) {
	schema, err := d.collectionSchema(collection)
	if err != nil {
		return nil, err
	}
	col, ok := schema.Column(field)
	if !ok {
		return nil, uniquery.UnknownFieldError(collection + "." + field)
	}
	return col, nil
}

func (d *RelationCollectionDecorator) collectionSchema(collection string) (*uniquery.CollectionSchema, error) {
	if collection == d.Name() {
		return d.Schema()
	}
	return d.foreignSchema(collection)
}

func (d *RelationCollectionDecorator) foreignSchema(collection string) (*uniquery.CollectionSchema, error) {
	c, err := d.ds.Collection(collection)
	if err != nil {
		return nil, err
	}
	return c.Schema()
}

func singlePrimaryKey(collection string, schema *uniquery.CollectionSchema) (string, error) {
	pks := schema.PrimaryKeys()
	if len(pks) != 1 {
		return "", uniquery.NewError(uniquery.ErrValidation, fmt.Sprintf(
			"cannot default key target: collection %s has %d primary keys", collection, len(pks)))
	}
	return pks[0], nil
}

func (d *RelationCollectionDecorator) refineRelationSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	for name, rel := range d.relations {
		schema.Fields[name] = rel
	}
	return schema, nil
}

func (d *RelationCollectionDecorator) refineRelationFilter(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter) (query.PaginatedFilter, error) {
	if filter.ConditionTree != nil {
		tree, err := filter.ConditionTree.ReplaceLeafsCtx(ctx, func(ctx context.Context, leaf *query.Leaf) (query.ConditionTree, error) {
			return d.rewriteLeaf(ctx, caller, leaf)
		})
		if err != nil {
			return filter, err
		}
		filter = filter.WithConditionTree(tree)
	}
	if len(filter.Sort) > 0 {
		var sortErr error
		sort := filter.Sort.ReplaceClauses(func(clause query.SortClause) query.Sort {
			fields, err := d.rewriteField(clause.Field)
			if err != nil {
				sortErr = err
				return query.Sort{clause}
			}
			out := make(query.Sort, 0, len(fields))
			for _, f := range fields {
				out = append(out, query.SortClause{Field: f, Ascending: clause.Ascending})
			}
			return out
		})
		if sortErr != nil {
			return filter, sortErr
		}
		filter = filter.WithSort(sort)
	}
	return filter, nil
}

// rewriteField converts a relation-prefixed path into the concrete native
// field(s) the child collection understands.
func (d *RelationCollectionDecorator) rewriteField(field string) (query.Projection, error) {
	prefix, rest, nested := strings.Cut(field, ":")
	if !nested {
		return query.Projection{field}, nil
	}
	if rel, emulated := d.relations[prefix]; emulated {
		switch r := rel.(type) {
		case *uniquery.ManyToOneSchema:
			return query.Projection{r.ForeignKey}, nil
		case *uniquery.OneToOneSchema:
			return query.Projection{r.OriginKeyTarget}, nil
		case *uniquery.OneToManySchema:
			return query.Projection{r.OriginKeyTarget}, nil
		case *uniquery.ManyToManySchema:
			return query.Projection{r.OriginKeyTarget}, nil
		}
	}
	foreign, err := d.foreignRelationDecorator(prefix)
	if err != nil {
		return nil, err
	}
	sub, err := foreign.rewriteField(rest)
	if err != nil {
		return nil, err
	}
	return sub.Nest(prefix), nil
}

// rewriteLeaf converts a leaf filtering through a relation path into an
// equivalent leaf on concrete fields, fetching the foreign match set when
// the relation is emulated.
func (d *RelationCollectionDecorator) rewriteLeaf(ctx context.Context, caller uniquery.Caller, leaf *query.Leaf) (query.ConditionTree, error) {
	prefix, rest, nested := strings.Cut(leaf.Field, ":")
	if !nested {
		return leaf, nil
	}
	subLeaf := query.NewLeaf(rest, leaf.Operator, leaf.Value)

	rel, emulated := d.relations[prefix]
	if !emulated {
		schema, err := d.Schema()
		if err != nil {
			return nil, err
		}
		if _, ok := schema.Fields[prefix]; !ok {
			return nil, uniquery.UnknownFieldError(leaf.Field)
		}
		foreign, err := d.foreignRelationDecorator(prefix)
		if err != nil {
			return nil, err
		}
		rewritten, err := foreign.rewriteLeaf(ctx, caller, subLeaf)
		if err != nil {
			return nil, err
		}
		return rewritten.Nest(prefix), nil
	}

	switch r := rel.(type) {
	case *uniquery.ManyToOneSchema:
		return d.rewriteJoinLeaf(ctx, caller, subLeaf, r.ForeignCollection, r.ForeignKeyTarget, r.ForeignKey)
	case *uniquery.OneToOneSchema:
		return d.rewriteJoinLeaf(ctx, caller, subLeaf, r.ForeignCollection, r.OriginKey, r.OriginKeyTarget)
	default:
		return nil, uniquery.UnprocessableError(
			"filtering through a to-many relation is not supported: " + leaf.Field)
	}
}

// rewriteJoinLeaf fetches the foreign records matching the condition and
// rewrites the leaf as localField In {matched remoteField values}. When the
// original operator is NotEqual and the local column supports NotIn, the
// inverted condition is fetched instead, avoiding the complement set.
func (d *RelationCollectionDecorator) rewriteJoinLeaf(ctx context.Context, caller uniquery.Caller, subLeaf *query.Leaf, foreignCollection, remoteField, localField string) (query.ConditionTree, error) {
	foreign, err := d.ds.Collection(foreignCollection)
	if err != nil {
		return nil, err
	}
	schema, err := d.Schema()
	if err != nil {
		return nil, err
	}
	localCol, ok := schema.Column(localField)
	if !ok {
		return nil, uniquery.UnknownFieldError(d.Name() + "." + localField)
	}

	if subLeaf.Operator == query.NotEqual && localCol.FilterOperators.Has(query.NotIn) {
		inverted, err := subLeaf.Invert()
		if err != nil {
			return nil, err
		}
		values, err := fetchKeys(ctx, caller, foreign, remoteField, inverted)
		if err != nil {
			return nil, err
		}
		return query.NewLeaf(localField, query.NotIn, values), nil
	}

	if subLeaf.Operator == query.NotEqual || subLeaf.Operator == query.NotIn || subLeaf.Operator == query.NotContains {
		// Materializing the complement of the foreign set paginates badly.
		d.logger.Warn().
			Str("field", localField).
			Str("foreign", foreignCollection).
			Str("operator", string(subLeaf.Operator)).
			Msg("emulating negated condition through relation with In over the match set")
	}
	values, err := fetchKeys(ctx, caller, foreign, remoteField, subLeaf)
	if err != nil {
		return nil, err
	}
	return query.NewLeaf(localField, query.In, values), nil
}

// fetchKeys lists the distinct non-null values of keyField among foreign
// records matching condition.
func fetchKeys(ctx context.Context, caller uniquery.Caller, foreign uniquery.Collection, keyField string, condition query.ConditionTree) ([]any, error) {
	records, err := foreign.List(ctx, caller,
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: condition}},
		query.Projection{keyField})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	values := make([]any, 0, len(records))
	for _, r := range records {
		v := r.Get(keyField)
		if v == nil {
			continue
		}
		key := query.ValueKey(v)
		if !seen[key] {
			seen[key] = true
			values = append(values, v)
		}
	}
	return values, nil
}

func embeddedRecord(v any) query.Record {
	switch s := v.(type) {
	case query.Record:
		return s
	case map[string]any:
		return query.Record(s)
	default:
		return nil
	}
}

func (d *RelationCollectionDecorator) foreignRelationDecorator(prefix string) (*RelationCollectionDecorator, error) {
	schema, err := d.Schema()
	if err != nil {
		return nil, err
	}
	field, ok := schema.Fields[prefix]
	if !ok {
		return nil, uniquery.UnknownFieldError(prefix)
	}
	foreignName := ""
	switch r := field.(type) {
	case *uniquery.ManyToOneSchema:
		foreignName = r.ForeignCollection
	case *uniquery.OneToOneSchema:
		foreignName = r.ForeignCollection
	case *uniquery.OneToManySchema:
		foreignName = r.ForeignCollection
	case *uniquery.ManyToManySchema:
		foreignName = r.ForeignCollection
	default:
		return nil, uniquery.TypeMismatchError(prefix, "expected a relation, found a column")
	}
	c, err := d.ds.Collection(foreignName)
	if err != nil {
		return nil, err
	}
	foreign, ok := c.(*RelationCollectionDecorator)
	if !ok {
		return nil, uniquery.UnprocessableError("collection " + foreignName + " is not relation-decorated")
	}
	return foreign, nil
}

func (d *RelationCollectionDecorator) List(ctx context.Context, caller uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	schema, err := d.Schema()
	if err != nil {
		return nil, err
	}
	refined, err := d.refineRelationFilter(ctx, caller, filter)
	if err != nil {
		return nil, err
	}

	var fieldErr error
	childProjection := projection.Replace(func(f string) query.Projection {
		fields, err := d.rewriteField(f)
		if err != nil {
			fieldErr = err
			return query.Projection{f}
		}
		return fields
	}).Union(query.Projection(schema.PrimaryKeys()))
	if fieldErr != nil {
		return nil, fieldErr
	}

	records, err := d.child.List(ctx, caller, refined, childProjection)
	if err != nil {
		return nil, err
	}
	if childProjection.Equals(projection) {
		return records, nil
	}
	if err := d.reprojectInPlace(ctx, caller, records, projection); err != nil {
		return nil, err
	}
	return projection.Apply(records), nil
}

// reprojectInPlace fetches and merges related records for every relation
// path of the projection. Independent branches run concurrently; the first
// failure cancels the whole request.
func (d *RelationCollectionDecorator) reprojectInPlace(ctx context.Context, caller uniquery.Caller, records []query.Record, projection query.Projection) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for name, sub := range projection.Relations() {
		name, sub := name, sub
		g.Go(func() error {
			return d.reprojectRelationInPlace(gctx, caller, records, name, sub, &mu)
		})
	}
	return g.Wait()
}

func (d *RelationCollectionDecorator) reprojectRelationInPlace(ctx context.Context, caller uniquery.Caller, records []query.Record, name string, sub query.Projection, mu *sync.Mutex) error {
	rel, emulated := d.relations[name]
	if !emulated {
		foreign, err := d.foreignRelationDecorator(name)
		if err != nil {
			return err
		}
		mu.Lock()
		var nested []query.Record
		for _, r := range records {
			if subRecord := embeddedRecord(r[name]); subRecord != nil {
				nested = append(nested, subRecord)
			}
		}
		mu.Unlock()
		return foreign.reprojectInPlace(ctx, caller, nested, sub)
	}

	var localKey, remoteKey, foreignCollection string
	switch r := rel.(type) {
	case *uniquery.ManyToOneSchema:
		localKey, remoteKey, foreignCollection = r.ForeignKey, r.ForeignKeyTarget, r.ForeignCollection
	case *uniquery.OneToOneSchema:
		localKey, remoteKey, foreignCollection = r.OriginKeyTarget, r.OriginKey, r.ForeignCollection
	case *uniquery.OneToManySchema:
		localKey, remoteKey, foreignCollection = r.OriginKeyTarget, r.OriginKey, r.ForeignCollection
	default:
		return uniquery.UnprocessableError(
			"projecting through a many-to-many relation is not supported: " + name)
	}

	mu.Lock()
	seen := map[string]bool{}
	var values []any
	for _, r := range records {
		v := r.Get(localKey)
		if v == nil {
			continue
		}
		if key := query.ValueKey(v); !seen[key] {
			seen[key] = true
			values = append(values, v)
		}
	}
	mu.Unlock()

	var related []query.Record
	if len(values) > 0 {
		foreign, err := d.ds.Collection(foreignCollection)
		if err != nil {
			return err
		}
		related, err = foreign.List(ctx, caller,
			query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf(remoteKey, query.In, values)}},
			sub.Union(query.Projection{remoteKey}))
		if err != nil {
			return err
		}
	}

	index := map[string]query.Record{}
	for _, r := range related {
		key := query.ValueKey(r.Get(remoteKey))
		if _, ok := index[key]; !ok {
			index[key] = r
		}
	}

	mu.Lock()
	for _, r := range records {
		v := r.Get(localKey)
		if v == nil {
			r[name] = nil
			continue
		}
		if match, ok := index[query.ValueKey(v)]; ok {
			r[name] = match
		} else {
			r[name] = nil
		}
	}
	mu.Unlock()
	return nil
}

func (d *RelationCollectionDecorator) Aggregate(ctx context.Context, caller uniquery.Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error) {
	emulated := false
	for name := range aggregation.Projection().Relations() {
		if _, ok := d.relations[name]; ok {
			emulated = true
			break
		}
	}
	if !emulated {
		refined, err := d.refineRelationFilter(ctx, caller, query.PaginatedFilter{Filter: filter})
		if err != nil {
			return nil, err
		}
		return d.child.Aggregate(ctx, caller, refined.Filter, aggregation, limit)
	}
	records, err := d.List(ctx, caller, query.PaginatedFilter{Filter: filter}, aggregation.Projection())
	if err != nil {
		return nil, err
	}
	return aggregation.Apply(records, caller.Location(), limit), nil
}
