package decorator

import (
	"context"
	"testing"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

func validationFixture(t *testing.T) (*strictCollection, *ValidationCollectionDecorator) {
	t.Helper()
	schema := uniquery.NewCollectionSchema()
	schema.Fields["id"] = pkColumn(uniquery.Number, query.Equal, query.In)
	schema.Fields["name"] = column(uniquery.String, query.Equal, query.In)
	schema.Fields["age"] = column(uniquery.Number, query.Equal, query.In)
	readonly := column(uniquery.String, query.Equal)
	readonly.IsReadOnly = true
	schema.Fields["createdBy"] = readonly
	schema.Fields["owner"] = &uniquery.ManyToOneSchema{ForeignCollection: "persons", ForeignKey: "ownerId"}

	data := newStrictCollection("users", schema,
		query.Record{"id": 1, "name": "ada", "age": 36},
	)
	registry := uniquery.NewRegistry()
	_ = registry.AddCollection(data)
	layer := newDataSourceDecorator(registry, func(c uniquery.Collection, ds *dataSourceDecorator) uniquery.Collection {
		return newValidationCollectionDecorator(c, ds)
	})
	c, err := layer.Collection("users")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	return data, c.(*ValidationCollectionDecorator)
}

func TestValidationRejectsRelationAndReadOnlyTargets(t *testing.T) {
	_, users := validationFixture(t)
	if err := users.AddValidation("owner", uniquery.ValidationRule{Operator: query.Present}); !uniquery.IsKind(err, uniquery.ErrValidation) {
		t.Fatalf("expected validation error for relation target, got %v", err)
	}
	if err := users.AddValidation("createdBy", uniquery.ValidationRule{Operator: query.Present}); !uniquery.IsKind(err, uniquery.ErrValidation) {
		t.Fatalf("expected validation error for read-only target, got %v", err)
	}
	if err := users.AddValidation("nope", uniquery.ValidationRule{Operator: query.Present}); !uniquery.IsKind(err, uniquery.ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidationRulesAppearInSchema(t *testing.T) {
	_, users := validationFixture(t)
	rule := uniquery.ValidationRule{Operator: query.GreaterThan, Value: 0}
	if err := users.AddValidation("age", rule); err != nil {
		t.Fatalf("add validation: %v", err)
	}
	schema, err := users.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	age, _ := schema.Column("age")
	if len(age.Validations) != 1 || age.Validations[0].Operator != query.GreaterThan {
		t.Fatalf("expected rule in schema, got %v", age.Validations)
	}
}

func TestValidationBlocksInvalidCreate(t *testing.T) {
	data, users := validationFixture(t)
	if err := users.AddValidation("age", uniquery.ValidationRule{Operator: query.GreaterThan, Value: 0}); err != nil {
		t.Fatalf("add validation: %v", err)
	}
	_, err := users.Create(context.Background(), uniquery.Caller{}, []query.Record{
		{"id": 2, "name": "kid", "age": -1},
	})
	if !uniquery.IsKind(err, uniquery.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(data.records) != 1 {
		t.Fatalf("invalid record must not reach the backend")
	}
}

func TestValidationAllowsValidCreate(t *testing.T) {
	data, users := validationFixture(t)
	_ = users.AddValidation("age", uniquery.ValidationRule{Operator: query.GreaterThan, Value: 0})
	_ = users.AddValidation("name", uniquery.ValidationRule{Operator: query.Present})
	created, err := users.Create(context.Background(), uniquery.Caller{}, []query.Record{
		{"id": 2, "name": "grace", "age": 40},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 1 || len(data.records) != 2 {
		t.Fatalf("valid record should be stored")
	}
}

func TestValidationUpdateChecksOnlyPatchedFields(t *testing.T) {
	_, users := validationFixture(t)
	_ = users.AddValidation("age", uniquery.ValidationRule{Operator: query.GreaterThan, Value: 0})
	_ = users.AddValidation("name", uniquery.ValidationRule{Operator: query.Present})

	err := users.Update(context.Background(), uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 1)},
		query.Record{"name": "ada lovelace"})
	if err != nil {
		t.Fatalf("patch without age must not trigger the age rule: %v", err)
	}

	err = users.Update(context.Background(), uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 1)},
		query.Record{"age": -5})
	if !uniquery.IsKind(err, uniquery.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidationNullValueOnlyAnswersPresent(t *testing.T) {
	_, users := validationFixture(t)
	_ = users.AddValidation("age", uniquery.ValidationRule{Operator: query.GreaterThan, Value: 0})

	err := users.Update(context.Background(), uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 1)},
		query.Record{"age": nil})
	if err != nil {
		t.Fatalf("null must satisfy non-Present rules vacuously: %v", err)
	}

	_ = users.AddValidation("name", uniquery.ValidationRule{Operator: query.Present})
	err = users.Update(context.Background(), uniquery.Caller{},
		query.Filter{ConditionTree: query.NewLeaf("id", query.Equal, 1)},
		query.Record{"name": nil})
	if !uniquery.IsKind(err, uniquery.ErrValidation) {
		t.Fatalf("explicit null must fail a Present rule, got %v", err)
	}
}
