package sqldata

import (
	"context"
	"database/sql"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// SQLiteDialect targets the modernc.org/sqlite driver.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string                       { return "sqlite" }
func (SQLiteDialect) DriverName() string                 { return "sqlite" }
func (SQLiteDialect) PlaceholderStyle() PlaceholderStyle { return PlaceholderQuestion }

func (d SQLiteDialect) Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys=ON;")
	return db, nil
}

func (SQLiteDialect) ColumnOperators(t uniquery.ColumnType) []query.Operator {
	ops := []query.Operator{
		query.Equal, query.NotEqual, query.In, query.NotIn,
		query.LessThan, query.GreaterThan, query.Present, query.Blank,
	}
	if t == uniquery.String || t == uniquery.Enum || t == uniquery.Uuid {
		ops = append(ops, query.Like)
	}
	return ops
}

// LimitOffset always emits a LIMIT: sqlite rejects a bare OFFSET, -1 means
// unbounded.
func (SQLiteDialect) LimitOffset(limit, skip int) string {
	if limit <= 0 && skip <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	clause := " LIMIT " + strconv.Itoa(limit)
	if skip > 0 {
		clause += " OFFSET " + strconv.Itoa(skip)
	}
	return clause
}
