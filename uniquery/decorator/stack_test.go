package decorator

import (
	"context"
	"testing"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

func stackFixture(t *testing.T) (*Stack, *strictCollection) {
	t.Helper()
	bookData, _, registry := bookStoreFixture()
	return NewStack(registry), bookData
}

func TestStackExposesFullQuerySurface(t *testing.T) {
	stack, _ := stackFixture(t)
	if err := stack.AddRelation("books", "owner", ownerRelation()); err != nil {
		t.Fatalf("add relation: %v", err)
	}
	if err := stack.AddSegment("books", "orphans", StaticSegment(query.NewLeaf("ownerId", query.Equal, nil))); err != nil {
		t.Fatalf("add segment: %v", err)
	}

	books, err := stack.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	schema, err := books.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !schema.Searchable {
		t.Fatalf("stacked collection must be searchable")
	}
	if _, ok := schema.Fields["owner"]; !ok {
		t.Fatalf("emulated relation missing from outer schema")
	}
	if len(schema.Segments) != 1 || schema.Segments[0] != "orphans" {
		t.Fatalf("segment missing from outer schema, got %v", schema.Segments)
	}
	title, _ := schema.Column("title")
	if !title.FilterOperators.Has(query.Blank) {
		t.Fatalf("operator equivalence must widen the declared operators")
	}
}

func TestStackListThroughEmulatedRelation(t *testing.T) {
	stack, _ := stackFixture(t)
	if err := stack.AddRelation("books", "owner", ownerRelation()); err != nil {
		t.Fatalf("add relation: %v", err)
	}
	books, err := stack.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("owner:name", query.Equal, "Ada")}},
		query.Projection{"id", "owner:name"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	owner := embeddedRecord(records[0]["owner"])
	if owner == nil || owner["name"] != "Ada" {
		t.Fatalf("expected embedded owner Ada, got %v", records[0]["owner"])
	}
}

func TestStackSegmentAndSearchCompose(t *testing.T) {
	stack, _ := stackFixture(t)
	if err := stack.AddSegment("books", "owned", StaticSegment(query.NewLeaf("ownerId", query.In, []any{5, 6}))); err != nil {
		t.Fatalf("add segment: %v", err)
	}
	books, err := stack.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{Segment: "owned", Search: "Solaris"}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := recordIDs(records); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected [2], got %v", ids)
	}
}

func TestStackSchemaVersionAdvancesOnCustomization(t *testing.T) {
	stack, _ := stackFixture(t)
	books, err := stack.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	versioned, ok := books.(interface{ SchemaVersion() uint64 })
	if !ok {
		t.Fatalf("outermost collection must expose a schema version")
	}
	if _, err := books.Schema(); err != nil {
		t.Fatalf("schema: %v", err)
	}
	before := versioned.SchemaVersion()
	if err := stack.AddSegment("books", "all", StaticSegment(nil)); err != nil {
		t.Fatalf("add segment: %v", err)
	}
	if versioned.SchemaVersion() == before {
		t.Fatalf("customizing an inner layer must advance the outer version token")
	}
	schema, err := books.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(schema.Segments) != 1 {
		t.Fatalf("outer schema must reflect the new segment, got %v", schema.Segments)
	}
}

func TestStackRemoveCollectionPrunesRelation(t *testing.T) {
	stack, _ := stackFixture(t)
	if err := stack.AddRelation("books", "owner", ownerRelation()); err != nil {
		t.Fatalf("add relation: %v", err)
	}
	if err := stack.RemoveCollection("persons"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	books, err := stack.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	schema, err := books.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, exists := schema.Fields["owner"]; exists {
		t.Fatalf("relation to a removed collection must be pruned")
	}
}

func TestStackUnknownCollectionErrors(t *testing.T) {
	stack, _ := stackFixture(t)
	if err := stack.AddRelation("nope", "owner", ownerRelation()); !uniquery.IsKind(err, uniquery.ErrUnknownCollection) {
		t.Fatalf("AddRelation: expected unknown collection, got %v", err)
	}
	if err := stack.AddSegment("nope", "s", StaticSegment(nil)); !uniquery.IsKind(err, uniquery.ErrUnknownCollection) {
		t.Fatalf("AddSegment: expected unknown collection, got %v", err)
	}
	if err := stack.EmulateFieldSorting("nope", "f"); !uniquery.IsKind(err, uniquery.ErrUnknownCollection) {
		t.Fatalf("EmulateFieldSorting: expected unknown collection, got %v", err)
	}
	if err := stack.AddValidation("nope", "f", uniquery.ValidationRule{Operator: query.Present}); !uniquery.IsKind(err, uniquery.ErrUnknownCollection) {
		t.Fatalf("AddValidation: expected unknown collection, got %v", err)
	}
	if err := stack.ChangeFieldVisibility("nope", "f", false); !uniquery.IsKind(err, uniquery.ErrUnknownCollection) {
		t.Fatalf("ChangeFieldVisibility: expected unknown collection, got %v", err)
	}
}
