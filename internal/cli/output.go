package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nonibytes/uniquery/uniquery/decorator"
	"github.com/nonibytes/uniquery/uniquery/query"
)

func newLogger() zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// openStack loads the model and builds the decorated datasource.
func openStack(ctx context.Context) (*decorator.Stack, func(), error) {
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, nil, err
	}
	return model.Build(ctx, newLogger())
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// parseWhere turns repeated "field Operator value" flags into an And tree.
// Fields may be relation paths like owner:name. The value part is decoded as
// JSON when possible, otherwise taken verbatim; a missing value means nil.
func parseWhere(clauses []string) (query.ConditionTree, error) {
	conditions := make([]query.ConditionTree, 0, len(clauses))
	for _, clause := range clauses {
		parts := strings.SplitN(strings.TrimSpace(clause), " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid --where clause %q, want \"field Operator [value]\"", clause)
		}
		op, err := parseOperator(parts[1])
		if err != nil {
			return nil, fmt.Errorf("--where clause %q: %w", clause, err)
		}
		var value any
		if len(parts) == 3 {
			if err := json.Unmarshal([]byte(parts[2]), &value); err != nil {
				value = parts[2]
			}
		}
		conditions = append(conditions, query.NewLeaf(parts[0], op, value))
	}
	return query.Intersect(conditions...), nil
}

// parseSort turns repeated "field" or "field desc" flags into a sort.
func parseSort(clauses []string) query.Sort {
	sort := make(query.Sort, 0, len(clauses))
	for _, clause := range clauses {
		field, direction, _ := strings.Cut(strings.TrimSpace(clause), " ")
		sort = append(sort, query.SortClause{
			Field:     field,
			Ascending: !strings.EqualFold(direction, "desc"),
		})
	}
	return sort
}
