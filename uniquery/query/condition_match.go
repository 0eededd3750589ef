package query

import (
	"regexp"
	"strings"
	"time"
)

// Match evaluates the leaf against a record. Unknown operators and
// incomparable values never match.
func (l *Leaf) Match(record Record, tz *time.Location) bool {
	value := record.Get(l.Field)
	switch l.Operator {
	case Equal:
		return ValuesEqual(value, l.Value)
	case NotEqual:
		return !ValuesEqual(value, l.Value)
	case LessThan:
		cmp, ok := CompareValues(value, l.Value)
		return ok && cmp < 0
	case GreaterThan:
		cmp, ok := CompareValues(value, l.Value)
		return ok && cmp > 0
	case In:
		for _, candidate := range ValueSlice(l.Value) {
			if ValuesEqual(value, candidate) {
				return true
			}
		}
		return false
	case NotIn:
		for _, candidate := range ValueSlice(l.Value) {
			if ValuesEqual(value, candidate) {
				return false
			}
		}
		return true
	case Present:
		return value != nil && value != ""
	case Blank:
		return value == nil || value == ""
	case Like:
		return likeMatch(l.Value, value, false)
	case ILike:
		return likeMatch(l.Value, value, true)
	case Contains:
		s, p, ok := stringPair(value, l.Value)
		return ok && strings.Contains(s, p)
	case NotContains:
		s, p, ok := stringPair(value, l.Value)
		return ok && !strings.Contains(s, p)
	case IContains:
		s, p, ok := stringPair(value, l.Value)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(p))
	case StartsWith:
		s, p, ok := stringPair(value, l.Value)
		return ok && strings.HasPrefix(s, p)
	case EndsWith:
		s, p, ok := stringPair(value, l.Value)
		return ok && strings.HasSuffix(s, p)
	case Before:
		cmp, ok := CompareValues(value, l.Value)
		return ok && cmp < 0
	case After:
		cmp, ok := CompareValues(value, l.Value)
		return ok && cmp > 0
	case Today:
		return inDayWindow(value, tz, 0)
	case Yesterday:
		return inDayWindow(value, tz, -1)
	default:
		return false
	}
}

// Match evaluates the branch against a record. An empty And matches
// everything, an empty Or matches nothing.
func (b *Branch) Match(record Record, tz *time.Location) bool {
	if b.Aggregator == And {
		for _, c := range b.Conditions {
			if !c.Match(record, tz) {
				return false
			}
		}
		return true
	}
	for _, c := range b.Conditions {
		if c.Match(record, tz) {
			return true
		}
	}
	return false
}

// Apply returns the records matching the tree. A nil tree matches everything.
func Apply(tree ConditionTree, records []Record, tz *time.Location) []Record {
	if tree == nil {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if tree.Match(r, tz) {
			out = append(out, r)
		}
	}
	return out
}

func stringPair(value, operand any) (string, string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", "", false
	}
	p, ok := operand.(string)
	if !ok {
		return "", "", false
	}
	return s, p, true
}

// likeMatch implements SQL LIKE semantics: % matches any run, _ one rune.
func likeMatch(pattern, value any, caseInsensitive bool) bool {
	s, p, ok := stringPair(value, pattern)
	if !ok {
		return false
	}
	if caseInsensitive {
		s = strings.ToLower(s)
		p = strings.ToLower(p)
	}
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range p {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	matched, err := regexp.MatchString(sb.String(), s)
	return err == nil && matched
}

func inDayWindow(value any, tz *time.Location, dayOffset int) bool {
	t, ok := asTime(value)
	if !ok {
		return false
	}
	if tz == nil {
		tz = time.UTC
	}
	now := time.Now().In(tz)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tz).AddDate(0, 0, dayOffset)
	end := start.AddDate(0, 0, 1)
	t = t.In(tz)
	return !t.Before(start) && t.Before(end)
}
