package sqldata_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/decorator"
	"github.com/nonibytes/uniquery/uniquery/query"
	"github.com/nonibytes/uniquery/uniquery/sqldata"
)

func bookTables() []sqldata.Table {
	return []sqldata.Table{
		{
			Name: "books",
			Columns: []sqldata.Column{
				{Name: "id", Type: uniquery.Number, PrimaryKey: true},
				{Name: "title", Type: uniquery.String},
				{Name: "ownerId", Type: uniquery.Number},
			},
		},
		{
			Name: "persons",
			Columns: []sqldata.Column{
				{Name: "id", Type: uniquery.Number, PrimaryKey: true},
				{Name: "name", Type: uniquery.String},
			},
		},
	}
}

func newSQLiteSource(t *testing.T) *uniquery.Registry {
	t.Helper()
	ctx := context.Background()
	dialect := sqldata.SQLiteDialect{}
	db, err := dialect.Connect(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ddl := []string{
		`CREATE TABLE "books" ("id" INTEGER PRIMARY KEY, "title" TEXT, "ownerId" INTEGER)`,
		`CREATE TABLE "persons" ("id" INTEGER PRIMARY KEY, "name" TEXT)`,
		`INSERT INTO "persons" ("id", "name") VALUES (5, 'Ada'), (6, 'Blaise')`,
		`INSERT INTO "books" ("id", "title", "ownerId") VALUES (1, 'Dune', 5), (2, 'Solaris', 6), (3, 'Ubik', NULL)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("ddl: %v", err)
		}
	}

	source, err := sqldata.NewDataSource(db, dialect, zerolog.Nop(), bookTables()...)
	if err != nil {
		t.Fatalf("datasource: %v", err)
	}
	return source
}

func TestSQLiteListWithConditionAndSort(t *testing.T) {
	source := newSQLiteSource(t)
	books, err := source.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{
			Filter: query.Filter{ConditionTree: query.NewLeaf("id", query.In, []any{1, 2, 3})},
			Sort:   query.Sort{{Field: "title", Ascending: false}},
			Page:   &query.Page{Limit: 2},
		},
		query.Projection{"id", "title"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0]["title"] != "Ubik" || records[1]["title"] != "Solaris" {
		t.Fatalf("expected [Ubik Solaris], got %v", records)
	}
}

func TestSQLiteNullSemantics(t *testing.T) {
	source := newSQLiteSource(t)
	books, _ := source.Collection("books")

	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("ownerId", query.Equal, nil)}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != int64(3) {
		t.Fatalf("expected book 3 for null owner, got %v", records)
	}

	records, err = books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("ownerId", query.In, []any{5, nil})}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("In with null must match null rows, got %v", records)
	}

	records, err = books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("ownerId", query.NotEqual, 5)}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("NotEqual must match null rows, got %v", records)
	}
}

func TestSQLiteRejectsUncompilableOperator(t *testing.T) {
	source := newSQLiteSource(t)
	books, _ := source.Collection("books")
	_, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("title", query.IContains, "x")}},
		query.Projection{"id"})
	if !uniquery.IsKind(err, uniquery.ErrUnsupportedOperator) {
		t.Fatalf("expected unsupported operator error, got %v", err)
	}
}

func TestSQLiteCreateReturnsRow(t *testing.T) {
	source := newSQLiteSource(t)
	books, _ := source.Collection("books")
	created, err := books.Create(context.Background(), uniquery.Caller{}, []query.Record{
		{"id": 9, "title": "Blindsight", "ownerId": 5},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 1 || created[0]["title"] != "Blindsight" || created[0]["id"] != int64(9) {
		t.Fatalf("unexpected created row: %v", created)
	}
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	source := newSQLiteSource(t)
	books, _ := source.Collection("books")
	ctx := context.Background()

	err := books.Update(ctx, uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 1)},
		query.Record{"title": "Dune Messiah"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := books.Delete(ctx, uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 2)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, err := books.List(ctx, uniquery.Caller{},
		query.PaginatedFilter{Sort: query.Sort{{Field: "id", Ascending: true}}},
		query.Projection{"id", "title"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0]["title"] != "Dune Messiah" {
		t.Fatalf("unexpected rows after update/delete: %v", records)
	}
}

func TestSQLiteAggregateGroupBy(t *testing.T) {
	source := newSQLiteSource(t)
	books, _ := source.Collection("books")
	results, err := books.Aggregate(context.Background(), uniquery.Caller{},
		query.Filter{},
		query.Aggregation{Operation: query.Count, Groups: []query.AggregationGroup{{Field: "ownerId"}}}, 0)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 buckets, got %v", results)
	}
}

// TestSQLiteFullStack runs the whole pipeline against a real database:
// emulated relation, free-text search and operator equivalence on top of the
// sqlite collection surface.
func TestSQLiteFullStack(t *testing.T) {
	source := newSQLiteSource(t)
	stack := decorator.NewStack(source)
	if err := stack.AddRelation("books", "owner", &uniquery.ManyToOneSchema{
		ForeignCollection: "persons",
		ForeignKey:        "ownerId",
		ForeignKeyTarget:  "id",
	}); err != nil {
		t.Fatalf("add relation: %v", err)
	}

	books, err := stack.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}

	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("owner:name", query.Equal, "Ada")}},
		query.Projection{"title", "owner:name"})
	if err != nil {
		t.Fatalf("list through relation: %v", err)
	}
	if len(records) != 1 || records[0]["title"] != "Dune" {
		t.Fatalf("expected Dune, got %v", records)
	}
	owner, _ := records[0]["owner"].(query.Record)
	if owner == nil || owner["name"] != "Ada" {
		t.Fatalf("expected embedded owner, got %v", records[0]["owner"])
	}

	records, err = books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("title", query.Contains, "olari")}},
		query.Projection{"id", "title"})
	if err != nil {
		t.Fatalf("list with rewritten operator: %v", err)
	}
	if len(records) != 1 || records[0]["title"] != "Solaris" {
		t.Fatalf("expected Solaris via Like rewrite, got %v", records)
	}

	records, err = books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{Search: "Ubik"}},
		query.Projection{"id", "title"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 1 || records[0]["title"] != "Ubik" {
		t.Fatalf("expected Ubik via search, got %v", records)
	}
}
