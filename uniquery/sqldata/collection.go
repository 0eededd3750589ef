package sqldata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// Collection exposes one declared table through the collection contract.
type Collection struct {
	db      *sql.DB
	dialect Dialect
	table   Table
	schema  *uniquery.CollectionSchema
	logger  zerolog.Logger
}

func NewCollection(db *sql.DB, dialect Dialect, table Table, logger zerolog.Logger) *Collection {
	return &Collection{
		db:      db,
		dialect: dialect,
		table:   table,
		schema:  table.schema(dialect),
		logger:  logger.With().Str("component", "sqldata").Str("collection", table.Name).Logger(),
	}
}

// NewDataSource registers one collection per declared table.
func NewDataSource(db *sql.DB, dialect Dialect, logger zerolog.Logger, tables ...Table) (*uniquery.Registry, error) {
	registry := uniquery.NewRegistry()
	for _, table := range tables {
		if err := registry.AddCollection(NewCollection(db, dialect, table, logger)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (c *Collection) Name() string { return c.table.Name }

func (c *Collection) Schema() (*uniquery.CollectionSchema, error) {
	return c.schema.Clone(), nil
}

func (c *Collection) List(ctx context.Context, _ uniquery.Caller, filter query.PaginatedFilter, projection query.Projection) ([]query.Record, error) {
	if filter.Search != "" {
		return nil, uniquery.UnprocessableError(c.table.Name + " does not support native search")
	}
	if filter.Segment != "" {
		return nil, uniquery.UnprocessableError(c.table.Name + " does not support native segments")
	}

	columns := projection.Columns()
	if len(columns) == 0 {
		for _, col := range c.table.Columns {
			columns = append(columns, col.Name)
		}
	}
	selected := make([]string, 0, len(columns))
	for _, name := range columns {
		if _, ok := c.table.column(name); !ok {
			return nil, uniquery.UnknownFieldError(c.table.Name + "." + name)
		}
		selected = append(selected, quoteIdent(name))
	}

	b := NewBuilder(c.dialect.PlaceholderStyle())
	stmt := "SELECT " + strings.Join(selected, ", ") + " FROM " + quoteIdent(c.table.Name)
	where, err := c.compileTree(b, filter.ConditionTree)
	if err != nil {
		return nil, err
	}
	if where != "" {
		stmt += " WHERE " + where
	}
	orderBy, err := c.compileSort(filter.Sort)
	if err != nil {
		return nil, err
	}
	stmt += orderBy
	if filter.Page != nil {
		stmt += c.dialect.LimitOffset(filter.Page.Limit, filter.Page.Skip)
	}

	c.logger.Debug().Str("sql", stmt).Msg("list")
	rows, err := c.db.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []query.Record
	for rows.Next() {
		dest := make([]any, len(columns))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		record := query.Record{}
		for i, name := range columns {
			record[name] = normalizeValue(*dest[i].(*any))
		}
		out = append(out, record)
	}
	if out == nil {
		out = []query.Record{}
	}
	return out, rows.Err()
}

func (c *Collection) Aggregate(ctx context.Context, _ uniquery.Caller, filter query.Filter, aggregation query.Aggregation, limit int) ([]query.AggregateResult, error) {
	expr, err := c.aggregateExpr(aggregation)
	if err != nil {
		return nil, err
	}
	groupCols := make([]string, 0, len(aggregation.Groups))
	for _, g := range aggregation.Groups {
		if _, ok := c.table.column(g.Field); !ok {
			return nil, uniquery.UnknownFieldError(c.table.Name + "." + g.Field)
		}
		groupCols = append(groupCols, quoteIdent(g.Field))
	}

	b := NewBuilder(c.dialect.PlaceholderStyle())
	parts := append(append([]string{}, groupCols...), expr)
	stmt := "SELECT " + strings.Join(parts, ", ") + " FROM " + quoteIdent(c.table.Name)
	where, err := c.compileTree(b, filter.ConditionTree)
	if err != nil {
		return nil, err
	}
	if where != "" {
		stmt += " WHERE " + where
	}
	if len(groupCols) > 0 {
		stmt += " GROUP BY " + strings.Join(groupCols, ", ")
	}
	stmt += " ORDER BY " + expr + " DESC"
	stmt += c.dialect.LimitOffset(limit, 0)

	c.logger.Debug().Str("sql", stmt).Msg("aggregate")
	rows, err := c.db.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []query.AggregateResult
	for rows.Next() {
		dest := make([]any, len(groupCols)+1)
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result := query.AggregateResult{Group: map[string]any{}}
		for i, g := range aggregation.Groups {
			result.Group[g.Field] = normalizeValue(*dest[i].(*any))
		}
		result.Value = normalizeValue(*dest[len(dest)-1].(*any))
		out = append(out, result)
	}
	if out == nil {
		out = []query.AggregateResult{}
	}
	return out, rows.Err()
}

func (c *Collection) aggregateExpr(aggregation query.Aggregation) (string, error) {
	if aggregation.Field != "" {
		if _, ok := c.table.column(aggregation.Field); !ok {
			return "", uniquery.UnknownFieldError(c.table.Name + "." + aggregation.Field)
		}
	}
	target := "*"
	if aggregation.Field != "" {
		target = quoteIdent(aggregation.Field)
	}
	switch aggregation.Operation {
	case query.Count:
		return "COUNT(" + target + ")", nil
	case query.Sum:
		return "SUM(" + target + ")", nil
	case query.Avg:
		return "AVG(" + target + ")", nil
	case query.Max:
		return "MAX(" + target + ")", nil
	case query.Min:
		return "MIN(" + target + ")", nil
	default:
		return "", uniquery.UnprocessableError("unknown aggregation operation " + string(aggregation.Operation))
	}
}

func (c *Collection) Create(ctx context.Context, _ uniquery.Caller, records []query.Record) ([]query.Record, error) {
	allColumns := make([]string, 0, len(c.table.Columns))
	for _, col := range c.table.Columns {
		allColumns = append(allColumns, col.Name)
	}
	returning := make([]string, 0, len(allColumns))
	for _, name := range allColumns {
		returning = append(returning, quoteIdent(name))
	}

	out := make([]query.Record, 0, len(records))
	for _, record := range records {
		b := NewBuilder(c.dialect.PlaceholderStyle())
		names := make([]string, 0, len(record))
		placeholders := make([]string, 0, len(record))
		for _, col := range c.table.Columns {
			v, present := record[col.Name]
			if !present {
				continue
			}
			names = append(names, quoteIdent(col.Name))
			placeholders = append(placeholders, b.Arg(v))
		}
		for name := range record {
			if _, ok := c.table.column(name); !ok {
				return nil, uniquery.UnknownFieldError(c.table.Name + "." + name)
			}
		}

		stmt := "INSERT INTO " + quoteIdent(c.table.Name) +
			" (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")" +
			" RETURNING " + strings.Join(returning, ", ")
		c.logger.Debug().Str("sql", stmt).Msg("create")

		dest := make([]any, len(allColumns))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := c.db.QueryRowContext(ctx, stmt, b.Args()...).Scan(dest...); err != nil {
			return nil, err
		}
		created := query.Record{}
		for i, name := range allColumns {
			created[name] = normalizeValue(*dest[i].(*any))
		}
		out = append(out, created)
	}
	return out, nil
}

func (c *Collection) Update(ctx context.Context, _ uniquery.Caller, filter query.Filter, patch query.Record) error {
	if len(patch) == 0 {
		return nil
	}
	b := NewBuilder(c.dialect.PlaceholderStyle())
	assignments := make([]string, 0, len(patch))
	for _, col := range c.table.Columns {
		v, present := patch[col.Name]
		if !present {
			continue
		}
		assignments = append(assignments, quoteIdent(col.Name)+" = "+b.Arg(v))
	}
	for name := range patch {
		if _, ok := c.table.column(name); !ok {
			return uniquery.UnknownFieldError(c.table.Name + "." + name)
		}
	}

	stmt := "UPDATE " + quoteIdent(c.table.Name) + " SET " + strings.Join(assignments, ", ")
	where, err := c.compileTree(b, filter.ConditionTree)
	if err != nil {
		return err
	}
	if where != "" {
		stmt += " WHERE " + where
	}
	c.logger.Debug().Str("sql", stmt).Msg("update")
	_, err = c.db.ExecContext(ctx, stmt, b.Args()...)
	return err
}

func (c *Collection) Delete(ctx context.Context, _ uniquery.Caller, filter query.Filter) error {
	b := NewBuilder(c.dialect.PlaceholderStyle())
	stmt := "DELETE FROM " + quoteIdent(c.table.Name)
	where, err := c.compileTree(b, filter.ConditionTree)
	if err != nil {
		return err
	}
	if where != "" {
		stmt += " WHERE " + where
	}
	c.logger.Debug().Str("sql", stmt).Msg("delete")
	_, err = c.db.ExecContext(ctx, stmt, b.Args()...)
	return err
}

func (c *Collection) compileSort(sort query.Sort) (string, error) {
	if len(sort) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(sort))
	for _, clause := range sort {
		if _, ok := c.table.column(clause.Field); !ok {
			return "", uniquery.UnknownFieldError(c.table.Name + "." + clause.Field)
		}
		direction := " ASC"
		if !clause.Ascending {
			direction = " DESC"
		}
		clauses = append(clauses, quoteIdent(clause.Field)+direction)
	}
	return " ORDER BY " + strings.Join(clauses, ", "), nil
}

func (c *Collection) compileTree(b *Builder, tree query.ConditionTree) (string, error) {
	if tree == nil {
		return "", nil
	}
	switch t := tree.(type) {
	case *query.Leaf:
		return c.compileLeaf(b, t)
	case *query.Branch:
		if len(t.Conditions) == 0 {
			if t.Aggregator == query.Or {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		joiner := " AND "
		if t.Aggregator == query.Or {
			joiner = " OR "
		}
		parts := make([]string, 0, len(t.Conditions))
		for _, child := range t.Conditions {
			part, err := c.compileTree(b, child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	default:
		return "", uniquery.UnprocessableError("unknown condition tree node")
	}
}

func (c *Collection) compileLeaf(b *Builder, leaf *query.Leaf) (string, error) {
	col, ok := c.table.column(leaf.Field)
	if !ok {
		return "", uniquery.UnknownFieldError(c.table.Name + "." + leaf.Field)
	}
	supported := query.NewOperatorSet(c.dialect.ColumnOperators(col.Type)...)
	if !supported.Has(leaf.Operator) {
		return "", uniquery.UnsupportedOperatorError(leaf.Field, fmt.Sprintf(
			"%s dialect cannot compile operator %s on %s.%s",
			c.dialect.Name(), leaf.Operator, c.table.Name, leaf.Field))
	}
	ident := quoteIdent(leaf.Field)

	switch leaf.Operator {
	case query.Equal:
		if leaf.Value == nil {
			return ident + " IS NULL", nil
		}
		return ident + " = " + b.Arg(leaf.Value), nil
	case query.NotEqual:
		if leaf.Value == nil {
			return ident + " IS NOT NULL", nil
		}
		return "(" + ident + " <> " + b.Arg(leaf.Value) + " OR " + ident + " IS NULL)", nil
	case query.LessThan:
		return ident + " < " + b.Arg(leaf.Value), nil
	case query.GreaterThan:
		return ident + " > " + b.Arg(leaf.Value), nil
	case query.Like:
		return ident + " LIKE " + b.Arg(leaf.Value), nil
	case query.ILike:
		return ident + " ILIKE " + b.Arg(leaf.Value), nil
	case query.Present:
		if col.Type == uniquery.String {
			return "(" + ident + " IS NOT NULL AND " + ident + " <> '')", nil
		}
		return ident + " IS NOT NULL", nil
	case query.Blank:
		if col.Type == uniquery.String {
			return "(" + ident + " IS NULL OR " + ident + " = '')", nil
		}
		return ident + " IS NULL", nil
	case query.In, query.NotIn:
		return c.compileInLeaf(b, ident, leaf)
	default:
		return "", uniquery.UnsupportedOperatorError(leaf.Field, "operator "+string(leaf.Operator)+" cannot be compiled to SQL")
	}
}

// compileInLeaf handles null membership explicitly: SQL IN never matches NULL
// rows, while the condition tree semantics treat null as a plain value.
func (c *Collection) compileInLeaf(b *Builder, ident string, leaf *query.Leaf) (string, error) {
	values := query.ValueSlice(leaf.Value)
	hasNull := false
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			hasNull = true
			continue
		}
		placeholders = append(placeholders, b.Arg(v))
	}

	if leaf.Operator == query.In {
		switch {
		case len(placeholders) == 0 && !hasNull:
			return "1 = 0", nil
		case len(placeholders) == 0:
			return ident + " IS NULL", nil
		case hasNull:
			return "(" + ident + " IN (" + strings.Join(placeholders, ", ") + ") OR " + ident + " IS NULL)", nil
		default:
			return ident + " IN (" + strings.Join(placeholders, ", ") + ")", nil
		}
	}

	switch {
	case len(placeholders) == 0 && !hasNull:
		return "1 = 1", nil
	case len(placeholders) == 0:
		return ident + " IS NOT NULL", nil
	case hasNull:
		return "(" + ident + " NOT IN (" + strings.Join(placeholders, ", ") + ") AND " + ident + " IS NOT NULL)", nil
	default:
		return "(" + ident + " NOT IN (" + strings.Join(placeholders, ", ") + ") OR " + ident + " IS NULL)", nil
	}
}

func normalizeValue(v any) any {
	if raw, ok := v.([]byte); ok {
		return string(raw)
	}
	return v
}
