package query

import "sort"

// Operator is a comparison operator usable in a condition tree leaf.
type Operator string

const (
	Equal       Operator = "Equal"
	NotEqual    Operator = "NotEqual"
	LessThan    Operator = "LessThan"
	GreaterThan Operator = "GreaterThan"
	In          Operator = "In"
	NotIn       Operator = "NotIn"
	Present     Operator = "Present"
	Blank       Operator = "Blank"
	Like        Operator = "Like"
	ILike       Operator = "ILike"
	Contains    Operator = "Contains"
	NotContains Operator = "NotContains"
	IContains   Operator = "IContains"
	StartsWith  Operator = "StartsWith"
	EndsWith    Operator = "EndsWith"
	Before      Operator = "Before"
	After       Operator = "After"
	Today       Operator = "Today"
	Yesterday   Operator = "Yesterday"
)

// AllOperators lists every operator the emulation layer knows about.
var AllOperators = []Operator{
	Equal, NotEqual, LessThan, GreaterThan, In, NotIn, Present, Blank,
	Like, ILike, Contains, NotContains, IContains, StartsWith, EndsWith,
	Before, After, Today, Yesterday,
}

// OperatorSet is a set of operators.
type OperatorSet map[Operator]struct{}

// NewOperatorSet builds a set from the given operators.
func NewOperatorSet(ops ...Operator) OperatorSet {
	s := make(OperatorSet, len(ops))
	for _, op := range ops {
		s[op] = struct{}{}
	}
	return s
}

// Has reports whether op is in the set. A nil set has nothing.
func (s OperatorSet) Has(op Operator) bool {
	_, ok := s[op]
	return ok
}

// Add inserts the given operators.
func (s OperatorSet) Add(ops ...Operator) {
	for _, op := range ops {
		s[op] = struct{}{}
	}
}

// Clone returns an independent copy of the set.
func (s OperatorSet) Clone() OperatorSet {
	out := make(OperatorSet, len(s))
	for op := range s {
		out[op] = struct{}{}
	}
	return out
}

// Slice returns the operators in lexical order.
func (s OperatorSet) Slice() []Operator {
	out := make([]Operator, 0, len(s))
	for op := range s {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
