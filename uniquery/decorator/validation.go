package decorator

import (
	"context"
	"fmt"
	"sort"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// ValidationCollectionDecorator enforces field validation rules on writes,
// before anything reaches the child collection.
type ValidationCollectionDecorator struct {
	collectionDecorator
	validations map[string][]uniquery.ValidationRule
}

func newValidationCollectionDecorator(child uniquery.Collection, ds uniquery.DataSource) *ValidationCollectionDecorator {
	d := &ValidationCollectionDecorator{validations: map[string][]uniquery.ValidationRule{}}
	d.init(child, ds)
	d.refineSchema = d.refineValidationSchema
	return d
}

// AddValidation registers a rule for a column. Relations cannot carry rules
// (validate the foreign key instead), nor can read-only columns.
func (d *ValidationCollectionDecorator) AddValidation(name string, rule uniquery.ValidationRule) error {
	schema, err := d.child.Schema()
	if err != nil {
		return err
	}
	field, ok := schema.Fields[name]
	if !ok {
		return uniquery.UnknownFieldError(name)
	}
	col, ok := field.(*uniquery.ColumnSchema)
	if !ok {
		return uniquery.ValidationError(name, "cannot add a validation rule on a relation, add it on the foreign key instead")
	}
	if col.IsReadOnly {
		return uniquery.ValidationError(name, "cannot add a validation rule on a read-only column")
	}
	d.validations[name] = append(d.validations[name], rule)
	d.markDirty()
	return nil
}

func (d *ValidationCollectionDecorator) refineValidationSchema(sub *uniquery.CollectionSchema) (*uniquery.CollectionSchema, error) {
	schema := sub.Clone()
	for name, rules := range d.validations {
		if col, ok := schema.Column(name); ok {
			col.Validations = append(col.Validations, rules...)
		}
	}
	return schema, nil
}

func (d *ValidationCollectionDecorator) Create(ctx context.Context, caller uniquery.Caller, records []query.Record) ([]query.Record, error) {
	for _, record := range records {
		for _, name := range d.validatedFields() {
			if err := d.validateValue(caller, name, record[name]); err != nil {
				return nil, err
			}
		}
	}
	return d.collectionDecorator.Create(ctx, caller, records)
}

func (d *ValidationCollectionDecorator) Update(ctx context.Context, caller uniquery.Caller, filter query.Filter, patch query.Record) error {
	for _, name := range d.validatedFields() {
		if _, present := patch[name]; !present {
			continue
		}
		if err := d.validateValue(caller, name, patch[name]); err != nil {
			return err
		}
	}
	return d.collectionDecorator.Update(ctx, caller, filter, patch)
}

func (d *ValidationCollectionDecorator) validatedFields() []string {
	names := make([]string, 0, len(d.validations))
	for name := range d.validations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateValue applies the field's rules to one value. A null value only
// answers to Present rules; every other rule is vacuously satisfied by null.
func (d *ValidationCollectionDecorator) validateValue(caller uniquery.Caller, name string, value any) error {
	for _, rule := range d.validations[name] {
		if value == nil && rule.Operator != query.Present {
			continue
		}
		leaf := query.NewLeaf(name, rule.Operator, rule.Value)
		if !leaf.Match(query.Record{name: value}, caller.Location()) {
			return uniquery.ValidationError(name, fmt.Sprintf(
				"value %v does not satisfy rule %s", value, describeRule(rule)))
		}
	}
	return nil
}

func describeRule(rule uniquery.ValidationRule) string {
	if rule.Value == nil {
		return string(rule.Operator)
	}
	return fmt.Sprintf("%s(%v)", rule.Operator, rule.Value)
}
