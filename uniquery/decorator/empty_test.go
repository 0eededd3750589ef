package decorator

import (
	"context"
	"testing"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

func emptyFixture(t *testing.T) (*strictCollection, uniquery.Collection) {
	t.Helper()
	bookData, _, registry := bookStoreFixture()
	layer := newDataSourceDecorator(registry, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		return newEmptyCollectionDecorator(c, ds)
	})
	books, err := layer.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	return bookData, books
}

func TestEmptyInWithNoValuesSkipsBackend(t *testing.T) {
	bookData, books := emptyFixture(t)
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("id", query.In, []any{})}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if bookData.listCalls != 0 {
		t.Fatalf("backend was called %d times", bookData.listCalls)
	}
}

func TestEmptyAndContradictionSkipsBackend(t *testing.T) {
	bookData, books := emptyFixture(t)
	tree := query.Intersect(
		query.NewLeaf("id", query.Equal, 1),
		query.NewLeaf("id", query.In, []any{2, 3}),
	)
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: tree}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 || bookData.listCalls != 0 {
		t.Fatalf("expected short-circuit, got %d records after %d calls", len(records), bookData.listCalls)
	}
}

func TestEmptyOverlappingAndReachesBackend(t *testing.T) {
	bookData, books := emptyFixture(t)
	tree := query.Intersect(
		query.NewLeaf("id", query.In, []any{1, 2}),
		query.NewLeaf("id", query.In, []any{2, 3}),
	)
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: tree}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if bookData.listCalls != 1 {
		t.Fatalf("expected one backend call, got %d", bookData.listCalls)
	}
	if ids := recordIDs(records); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("expected [2], got %v", ids)
	}
}

func TestEmptyUpdateAndDeleteShortCircuit(t *testing.T) {
	bookData, books := emptyFixture(t)
	none := query.Filter{ConditionTree: query.MatchNone()}
	if err := books.Update(context.Background(), uniquery.Caller{}, none, query.Record{"title": "x"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := books.Delete(context.Background(), uniquery.Caller{}, none); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(bookData.records) != 3 {
		t.Fatalf("backend rows changed: %d", len(bookData.records))
	}
	for _, r := range bookData.records {
		if r["title"] == "x" {
			t.Fatalf("backend row was patched: %v", r)
		}
	}
}
