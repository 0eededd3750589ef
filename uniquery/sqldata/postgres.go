package sqldata

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

// PostgresDialect targets the pgx stdlib driver.
type PostgresDialect struct{}

func (PostgresDialect) Name() string                       { return "postgres" }
func (PostgresDialect) DriverName() string                 { return "pgx" }
func (PostgresDialect) PlaceholderStyle() PlaceholderStyle { return PlaceholderDollar }

func (PostgresDialect) Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (PostgresDialect) ColumnOperators(t uniquery.ColumnType) []query.Operator {
	ops := []query.Operator{
		query.Equal, query.NotEqual, query.In, query.NotIn,
		query.LessThan, query.GreaterThan, query.Present, query.Blank,
	}
	if t == uniquery.String || t == uniquery.Enum || t == uniquery.Uuid {
		ops = append(ops, query.Like, query.ILike)
	}
	return ops
}

func (PostgresDialect) LimitOffset(limit, skip int) string {
	clause := ""
	if limit > 0 {
		clause += " LIMIT " + strconv.Itoa(limit)
	}
	if skip > 0 {
		clause += " OFFSET " + strconv.Itoa(skip)
	}
	return clause
}
