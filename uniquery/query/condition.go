package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Aggregator combines the children of a condition tree branch.
type Aggregator string

const (
	And Aggregator = "And"
	Or  Aggregator = "Or"
)

// ConditionTree is a boolean predicate over record fields: either a single
// comparison (*Leaf) or a combination of sub-trees (*Branch). The sum is
// closed; both shapes are immutable by convention, rewrites return new trees.
type ConditionTree interface {
	// ReplaceLeafs rebuilds the tree, substituting every leaf with the
	// result of fn. Returning the leaf itself keeps it unchanged; returning
	// nil drops it from its parent branch.
	ReplaceLeafs(fn func(*Leaf) ConditionTree) ConditionTree

	// ReplaceLeafsCtx is ReplaceLeafs for substitutions that perform I/O.
	ReplaceLeafsCtx(ctx context.Context, fn func(context.Context, *Leaf) (ConditionTree, error)) (ConditionTree, error)

	// EveryLeaf reports whether fn holds for all leaves.
	EveryLeaf(fn func(*Leaf) bool) bool

	// Match evaluates the predicate against an in-memory record.
	Match(record Record, tz *time.Location) bool

	// Invert returns the boolean negation of the tree. Not every operator
	// has a negation; an error identifies the offending leaf.
	Invert() (ConditionTree, error)

	// Nest prefixes every leaf field with "prefix:".
	Nest(prefix string) ConditionTree

	// Unnest strips the leading path segment shared by every leaf. It fails
	// when some leaf is not nested under a common prefix.
	Unnest() (ConditionTree, error)

	// ProjectionFields lists the distinct fields referenced by leaves.
	ProjectionFields() []string

	isConditionTree()
}

// Leaf is a single field comparison.
type Leaf struct {
	Field    string
	Operator Operator
	Value    any
}

// Branch combines sub-trees with And or Or.
type Branch struct {
	Aggregator Aggregator
	Conditions []ConditionTree
}

func (*Leaf) isConditionTree()   {}
func (*Branch) isConditionTree() {}

// NewLeaf is a convenience constructor.
func NewLeaf(field string, op Operator, value any) *Leaf {
	return &Leaf{Field: field, Operator: op, Value: value}
}

// Intersect combines trees under And, skipping nils. It returns nil when
// nothing remains, and the tree itself when only one remains.
func Intersect(trees ...ConditionTree) ConditionTree {
	var kept []ConditionTree
	for _, t := range trees {
		switch tt := t.(type) {
		case nil:
			continue
		case *Branch:
			if tt.Aggregator == And {
				kept = append(kept, tt.Conditions...)
				continue
			}
			kept = append(kept, tt)
		default:
			kept = append(kept, t)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Branch{Aggregator: And, Conditions: kept}
	}
}

// Union combines trees under Or, skipping nils.
func Union(trees ...ConditionTree) ConditionTree {
	var kept []ConditionTree
	for _, t := range trees {
		if t != nil {
			kept = append(kept, t)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return &Branch{Aggregator: Or, Conditions: kept}
}

// MatchNone is a predicate that no record satisfies.
func MatchNone() ConditionTree {
	return &Branch{Aggregator: Or}
}

func (l *Leaf) ReplaceLeafs(fn func(*Leaf) ConditionTree) ConditionTree {
	return fn(l)
}

func (b *Branch) ReplaceLeafs(fn func(*Leaf) ConditionTree) ConditionTree {
	conditions := make([]ConditionTree, 0, len(b.Conditions))
	for _, c := range b.Conditions {
		if replaced := c.ReplaceLeafs(fn); replaced != nil {
			conditions = append(conditions, replaced)
		}
	}
	return &Branch{Aggregator: b.Aggregator, Conditions: conditions}
}

func (l *Leaf) ReplaceLeafsCtx(ctx context.Context, fn func(context.Context, *Leaf) (ConditionTree, error)) (ConditionTree, error) {
	return fn(ctx, l)
}

func (b *Branch) ReplaceLeafsCtx(ctx context.Context, fn func(context.Context, *Leaf) (ConditionTree, error)) (ConditionTree, error) {
	conditions := make([]ConditionTree, 0, len(b.Conditions))
	for _, c := range b.Conditions {
		replaced, err := c.ReplaceLeafsCtx(ctx, fn)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			conditions = append(conditions, replaced)
		}
	}
	return &Branch{Aggregator: b.Aggregator, Conditions: conditions}, nil
}

func (l *Leaf) EveryLeaf(fn func(*Leaf) bool) bool { return fn(l) }

func (b *Branch) EveryLeaf(fn func(*Leaf) bool) bool {
	for _, c := range b.Conditions {
		if !c.EveryLeaf(fn) {
			return false
		}
	}
	return true
}

func (l *Leaf) Invert() (ConditionTree, error) {
	inverses := map[Operator]Operator{
		Equal:       NotEqual,
		NotEqual:    Equal,
		In:          NotIn,
		NotIn:       In,
		Contains:    NotContains,
		NotContains: Contains,
		Present:     Blank,
		Blank:       Present,
		LessThan:    GreaterThan,
		GreaterThan: LessThan,
	}
	op, ok := inverses[l.Operator]
	if !ok {
		return nil, fmt.Errorf("operator %s cannot be inverted (field %s)", l.Operator, l.Field)
	}
	return &Leaf{Field: l.Field, Operator: op, Value: l.Value}, nil
}

func (b *Branch) Invert() (ConditionTree, error) {
	aggregator := And
	if b.Aggregator == And {
		aggregator = Or
	}
	conditions := make([]ConditionTree, len(b.Conditions))
	for i, c := range b.Conditions {
		inverted, err := c.Invert()
		if err != nil {
			return nil, err
		}
		conditions[i] = inverted
	}
	return &Branch{Aggregator: aggregator, Conditions: conditions}, nil
}

func (l *Leaf) Nest(prefix string) ConditionTree {
	if prefix == "" {
		return l
	}
	return &Leaf{Field: prefix + ":" + l.Field, Operator: l.Operator, Value: l.Value}
}

func (b *Branch) Nest(prefix string) ConditionTree {
	if prefix == "" {
		return b
	}
	conditions := make([]ConditionTree, len(b.Conditions))
	for i, c := range b.Conditions {
		conditions[i] = c.Nest(prefix)
	}
	return &Branch{Aggregator: b.Aggregator, Conditions: conditions}
}

func (l *Leaf) Unnest() (ConditionTree, error) {
	_, rest, ok := strings.Cut(l.Field, ":")
	if !ok {
		return nil, fmt.Errorf("cannot unnest leaf on field %s", l.Field)
	}
	return &Leaf{Field: rest, Operator: l.Operator, Value: l.Value}, nil
}

func (b *Branch) Unnest() (ConditionTree, error) {
	prefix := ""
	ok := b.EveryLeaf(func(l *Leaf) bool {
		head, _, nested := strings.Cut(l.Field, ":")
		if !nested {
			return false
		}
		if prefix == "" {
			prefix = head
		}
		return head == prefix
	})
	if !ok {
		return nil, fmt.Errorf("cannot unnest branch: leaves do not share a prefix")
	}
	return b.ReplaceLeafs(func(l *Leaf) ConditionTree {
		_, rest, _ := strings.Cut(l.Field, ":")
		return &Leaf{Field: rest, Operator: l.Operator, Value: l.Value}
	}), nil
}

func (l *Leaf) ProjectionFields() []string { return []string{l.Field} }

func (b *Branch) ProjectionFields() []string {
	seen := map[string]bool{}
	var fields []string
	for _, c := range b.Conditions {
		for _, f := range c.ProjectionFields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
