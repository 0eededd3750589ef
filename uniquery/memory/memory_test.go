package memory

import (
	"context"
	"testing"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

func userCollection() *Collection {
	schema := uniquery.NewCollectionSchema()
	schema.Fields["id"] = &uniquery.ColumnSchema{
		ColumnType:      uniquery.Number,
		FilterOperators: query.NewOperatorSet(query.Equal, query.In),
		IsPrimaryKey:    true,
		IsSortable:      true,
	}
	schema.Fields["name"] = &uniquery.ColumnSchema{
		ColumnType:      uniquery.String,
		FilterOperators: query.NewOperatorSet(query.Equal, query.In, query.Contains),
		IsSortable:      true,
	}
	return NewCollection("users", schema,
		query.Record{"id": 1, "name": "ada"},
		query.Record{"id": 2, "name": "grace"},
	)
}

func TestListFiltersAndProjects(t *testing.T) {
	users := userCollection()
	records, err := users.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("name", query.Contains, "ad")}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != 1 {
		t.Fatalf("expected user 1, got %v", records)
	}
	if _, leaked := records[0]["name"]; leaked {
		t.Fatalf("projection must strip unrequested fields")
	}
}

func TestListRejectsUndeclaredOperator(t *testing.T) {
	users := userCollection()
	_, err := users.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("name", query.StartsWith, "a")}},
		query.Projection{"id"})
	if !uniquery.IsKind(err, uniquery.ErrUnsupportedOperator) {
		t.Fatalf("expected unsupported operator error, got %v", err)
	}
}

func TestListRejectsUndeclaredSearch(t *testing.T) {
	users := userCollection()
	_, err := users.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{Search: "ada"}},
		query.Projection{"id"})
	if !uniquery.IsKind(err, uniquery.ErrUnprocessable) {
		t.Fatalf("expected unprocessable error, got %v", err)
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	users := userCollection()
	created, err := users.Create(context.Background(), uniquery.Caller{}, []query.Record{
		{"name": "linus"},
		{"name": "dennis"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created[0]["id"] != int64(3) || created[1]["id"] != int64(4) {
		t.Fatalf("expected ids 3 and 4, got %v and %v", created[0]["id"], created[1]["id"])
	}
}

func TestCreateRejectsUnknownField(t *testing.T) {
	users := userCollection()
	_, err := users.Create(context.Background(), uniquery.Caller{}, []query.Record{
		{"name": "x", "nope": true},
	})
	if !uniquery.IsKind(err, uniquery.ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	users := userCollection()
	records, err := users.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{}, query.Projection{"id", "name"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	records[0]["name"] = "mutated"
	again, _ := users.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Filter: query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, records[0]["id"])}},
		query.Projection{"name"})
	if again[0]["name"] == "mutated" {
		t.Fatalf("mutating a returned record must not affect storage")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	users := userCollection()
	err := users.Update(context.Background(), uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 1)},
		query.Record{"name": "ada lovelace"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := users.Delete(context.Background(), uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 2)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, _ := users.List(context.Background(), uniquery.Caller{}, query.PaginatedFilter{}, query.Projection{"id", "name"})
	if len(records) != 1 || records[0]["name"] != "ada lovelace" {
		t.Fatalf("expected only the renamed user, got %v", records)
	}
}

func TestAggregateCountByGroup(t *testing.T) {
	users := userCollection()
	results, err := users.Aggregate(context.Background(), uniquery.Caller{},
		query.Filter{},
		query.Aggregation{Operation: query.Count, Groups: []query.AggregationGroup{{Field: "name"}}}, 0)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(results))
	}
}
