package decorator

import (
	"context"
	"testing"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

func sortFixture(t *testing.T) (*strictCollection, *SortEmulateCollectionDecorator) {
	t.Helper()
	schema := uniquery.NewCollectionSchema()
	schema.Fields["id"] = pkColumn(uniquery.Number, query.Equal, query.In)
	title := column(uniquery.String, query.Equal, query.In)
	title.IsSortable = false
	schema.Fields["title"] = title

	data := newStrictCollection("books", schema,
		query.Record{"id": 1, "title": "Ubik"},
		query.Record{"id": 2, "title": "Dune"},
		query.Record{"id": 3, "title": "Solaris"},
		query.Record{"id": 4, "title": "Blindsight"},
	)
	registry := uniquery.NewRegistry()
	_ = registry.AddCollection(data)
	layer := newDataSourceDecorator(registry, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		return newSortEmulateCollectionDecorator(c, ds)
	})
	c, err := layer.Collection("books")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	return data, c.(*SortEmulateCollectionDecorator)
}

func sortedTitles(t *testing.T, c uniquery.Collection, ascending bool, page *query.Page) []string {
	t.Helper()
	records, err := c.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{
			Sort: query.Sort{{Field: "title", Ascending: ascending}},
			Page: page,
		},
		query.Projection{"title"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r["title"].(string))
	}
	return out
}

func TestSortEmulateUnknownFieldRejected(t *testing.T) {
	_, books := sortFixture(t)
	if err := books.EmulateFieldSorting("nope"); !uniquery.IsKind(err, uniquery.ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestSortEmulateSchemaMarksSortable(t *testing.T) {
	_, books := sortFixture(t)
	if err := books.EmulateFieldSorting("title"); err != nil {
		t.Fatalf("emulate: %v", err)
	}
	schema, err := books.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	title, _ := schema.Column("title")
	if !title.IsSortable {
		t.Fatalf("emulated field must advertise sortability")
	}
}

func TestSortEmulateAscending(t *testing.T) {
	_, books := sortFixture(t)
	if err := books.EmulateFieldSorting("title"); err != nil {
		t.Fatalf("emulate: %v", err)
	}
	titles := sortedTitles(t, books, true, nil)
	want := []string{"Blindsight", "Dune", "Solaris", "Ubik"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, titles)
		}
	}
}

func TestSortEmulateDescendingMirrorsAscending(t *testing.T) {
	_, books := sortFixture(t)
	if err := books.EmulateFieldSorting("title"); err != nil {
		t.Fatalf("emulate: %v", err)
	}
	asc := sortedTitles(t, books, true, nil)
	desc := sortedTitles(t, books, false, nil)
	if len(asc) != len(desc) {
		t.Fatalf("lengths differ: %v vs %v", asc, desc)
	}
	for i := range asc {
		if asc[i] != desc[len(desc)-1-i] {
			t.Fatalf("descending order %v is not the reverse of ascending %v", desc, asc)
		}
	}
}

func TestSortEmulatePaginationMatchesFullSort(t *testing.T) {
	_, books := sortFixture(t)
	if err := books.EmulateFieldSorting("title"); err != nil {
		t.Fatalf("emulate: %v", err)
	}
	full := sortedTitles(t, books, false, nil)
	window := sortedTitles(t, books, false, &query.Page{Skip: 1, Limit: 2})
	if len(window) != 2 || window[0] != full[1] || window[1] != full[2] {
		t.Fatalf("paginated window %v does not match full sort %v", window, full)
	}
}

func TestSortReplacementUsesNativeSort(t *testing.T) {
	data, books := sortFixture(t)
	err := books.ReplaceFieldSorting("title", query.Sort{{Field: "id", Ascending: true}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	records, err := books.List(context.Background(), uniquery.Caller{},
		query.PaginatedFilter{Sort: query.Sort{{Field: "title", Ascending: false}}},
		query.Projection{"id"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(data.lastFilter.Sort) != 1 || data.lastFilter.Sort[0].Field != "id" || data.lastFilter.Sort[0].Ascending {
		t.Fatalf("expected inverted native replacement sort, got %v", data.lastFilter.Sort)
	}
	if ids := recordIDs(records); ids[0] != 4 {
		t.Fatalf("descending replacement should start at the highest id, got %v", ids)
	}
}

func TestSortDisableHidesSortability(t *testing.T) {
	_, books := sortFixture(t)
	if err := books.DisableFieldSorting("id"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	schema, err := books.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	id, _ := schema.Column("id")
	if id.IsSortable {
		t.Fatalf("disabled field must not advertise sortability")
	}
}

func TestSortEmulateOnlyTwoBackendQueries(t *testing.T) {
	data, books := sortFixture(t)
	if err := books.EmulateFieldSorting("title"); err != nil {
		t.Fatalf("emulate: %v", err)
	}
	sortedTitles(t, books, true, &query.Page{Skip: 0, Limit: 2})
	if data.listCalls != 2 {
		t.Fatalf("emulated sort should scan then window, got %d backend calls", data.listCalls)
	}
}
