package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/sqlstore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/querysql"
)

// Name is the backend name.
const Name = "postgres"

// Schemes are the connection-string schemes served by this backend.
var Schemes = []string{"postgres", "postgresql"}

// uniqueViolation is the SQLSTATE of unique and primary key violations.
const uniqueViolation = "23505"

// Driver is the sqlstore driver for PostgreSQL.
var Driver = &sqlstore.Driver{
	Name:        Name,
	Dialect:     querysql.Postgres,
	Open:        open,
	IsDuplicate: isDuplicate,
	Columns:     columns,
}

// New returns an unconnected PostgreSQL store.
func New(opts datastore.Options) *sqlstore.Store {
	return sqlstore.New(Driver, opts)
}

// pool adapts a pgx pool to sqlstore.Conn.
type pool struct {
	p *pgxpool.Pool
}

func open(ctx context.Context, connectionString string) (sqlstore.Conn, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool{p: p}, nil
}

func (c pool) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	tag, err := c.p.Exec(ctx, statement, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pool) Query(ctx context.Context, statement string, args ...any) (*ir.ResultSet, error) {
	rows, err := c.p.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	rs := ir.NewResultSet(names)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(ir.Row, len(vals))
		for i, v := range vals {
			row[i] = sqlstore.Cell(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

func (c pool) Close() error {
	c.p.Close()
	return nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// columnsQuery lists the live columns of one table in the current search
// path, in declaration order.
const columnsQuery = `SELECT a.attname AS name,
       format_type(a.atttypid, a.atttypmod) AS type,
       COALESCE(pg_get_expr(d.adbin, d.adrelid), '') AS dflt,
       (i.indexrelid IS NOT NULL) AS pk
FROM pg_attribute a
LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
LEFT JOIN pg_index i ON i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY(i.indkey)
WHERE a.attrelid = to_regclass(quote_ident($1)) AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

func columns(ctx context.Context, conn sqlstore.Conn, table string) ([]datastore.ColumnDefinition, error) {
	rs, err := conn.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, err
	}
	return parseColumns(rs)
}

// parseColumns maps rows of columnsQuery to column definitions. SERIAL
// columns report a nextval default and come back as auto-increment.
func parseColumns(rs *ir.ResultSet) ([]datastore.ColumnDefinition, error) {
	out := make([]datastore.ColumnDefinition, 0, rs.Len())
	for _, r := range rs.Maps() {
		typ, err := querysql.Postgres.ParseType(r["type"].String())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", r["name"], err)
		}
		c := datastore.ColumnDefinition{
			Name:      r["name"].String(),
			Type:      typ,
			IsPrimary: r["pk"] == ir.Bool(true),
		}
		if d := strings.TrimSpace(r["dflt"].String()); d != "" {
			c.Default, c.AutoIncrement = querysql.ParseDefault(d)
		}
		out = append(out, c)
	}
	return out, nil
}
