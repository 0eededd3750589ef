// Package sqldata implements the collection contract over database/sql.
// Tables are declared up front; the derived schema advertises exactly the
// operators the dialect can compile, leaving everything else to the decorator
// pipeline above.
package sqldata

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// PlaceholderStyle selects the bind-parameter syntax of a dialect.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
)

// Dialect abstracts the database-specific parts of SQL generation and
// connection handling.
type Dialect interface {
	Name() string
	DriverName() string
	PlaceholderStyle() PlaceholderStyle

	// Connect opens and pings a database handle for the dialect's driver.
	Connect(ctx context.Context, dsn string) (*sql.DB, error)

	// ColumnOperators lists the operators the dialect compiles natively for
	// a column type.
	ColumnOperators(t uniquery.ColumnType) []query.Operator

	// LimitOffset renders the pagination clause, empty when unpaginated.
	LimitOffset(limit, skip int) string
}

// Builder accumulates bind arguments and renders placeholders.
type Builder struct {
	style PlaceholderStyle
	args  []any
}

func NewBuilder(style PlaceholderStyle) *Builder {
	return &Builder{style: style, args: make([]any, 0)}
}

func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	if b.style == PlaceholderDollar {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

func (b *Builder) Args() []any { return b.args }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
