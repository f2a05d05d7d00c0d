package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/querysql"
)

// Conn is an open relational connection. Statements use the dialect's
// positional placeholders.
type Conn interface {
	Exec(ctx context.Context, statement string, args ...any) (int64, error)
	Query(ctx context.Context, statement string, args ...any) (*ir.ResultSet, error)
	Close() error
}

// Driver supplies the backend-specific parts of a relational store.
type Driver struct {
	Name    string
	Dialect *querysql.Dialect

	// Open connects to the database named by connectionString.
	Open func(ctx context.Context, connectionString string) (Conn, error)

	// IsDuplicate reports whether err is a unique or primary key violation.
	IsDuplicate func(err error) bool

	// Columns reads a table's live column definitions. It returns no
	// columns for a missing table.
	Columns func(ctx context.Context, conn Conn, table string) ([]datastore.ColumnDefinition, error)
}

// SQLDB adapts a database/sql handle to Conn.
type SQLDB struct {
	DB *sql.DB
}

func (d SQLDB) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	res, err := d.DB.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some statements (DDL) have no meaningful count.
		return 0, nil
	}
	return n, nil
}

func (d SQLDB) Query(ctx context.Context, statement string, args ...any) (*ir.ResultSet, error) {
	rows, err := d.DB.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

func (d SQLDB) Close() error { return d.DB.Close() }

// ScanRows reads every row of rows into a result set.
func ScanRows(rows *sql.Rows) (*ir.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := ir.NewResultSet(cols)
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(ir.Row, len(cols))
		for i, v := range raw {
			row[i] = Cell(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

// Cell converts a driver value to a typed cell. Values ir does not know are
// kept in their printed form.
func Cell(v any) ir.Value {
	val, err := ir.FromAny(v)
	if err != nil {
		return ir.String(fmt.Sprint(v))
	}
	return val
}
