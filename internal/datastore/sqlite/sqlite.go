package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/sqlstore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/querysql"
)

// Name is the backend name and connection-string scheme.
const Name = "sqlite"

// Schemes are the connection-string schemes served by this backend. The
// empty scheme takes plain file paths.
var Schemes = []string{"sqlite", "file", ""}

// Driver is the sqlstore driver for SQLite.
var Driver = &sqlstore.Driver{
	Name:        Name,
	Dialect:     querysql.SQLite,
	Open:        open,
	IsDuplicate: isDuplicate,
	Columns:     columns,
}

// New returns an unconnected SQLite store.
func New(opts datastore.Options) *sqlstore.Store {
	return sqlstore.New(Driver, opts)
}

// Path extracts the driver DSN from a connection string.
func Path(connectionString string) string {
	if rest, ok := strings.CutPrefix(connectionString, Name+"://"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(connectionString, Name+":"); ok {
		return rest
	}
	return connectionString
}

func open(ctx context.Context, connectionString string) (sqlstore.Conn, error) {
	path := Path(connectionString)
	if path == "" {
		return nil, fmt.Errorf("empty database path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return sqlstore.SQLDB{DB: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// columns reads PRAGMA table_info. SQLite only auto-increments an INTEGER
// PRIMARY KEY declared AUTOINCREMENT, which table_info does not report, so
// the table's CREATE statement is checked for it.
func columns(ctx context.Context, conn sqlstore.Conn, table string) ([]datastore.ColumnDefinition, error) {
	rs, err := conn.Query(ctx, "PRAGMA table_info("+querysql.Quote(table)+")")
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return nil, nil
	}

	master, err := conn.Query(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return nil, err
	}
	autoInc := false
	if master.Len() > 0 {
		autoInc = strings.Contains(strings.ToUpper(master.Rows[0][0].String()), "AUTOINCREMENT")
	}

	byName := rs.Maps()
	out := make([]datastore.ColumnDefinition, 0, len(byName))
	for _, r := range byName {
		typ, err := querysql.SQLite.ParseType(r["type"].String())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", r["name"], err)
		}
		c := datastore.ColumnDefinition{
			Name:      r["name"].String(),
			Type:      typ,
			IsPrimary: isTrue(r["pk"]),
		}
		if d := r["dflt_value"]; d != nil && d.Kind() != ir.KindNull {
			c.Default, _ = querysql.ParseDefault(d.String())
		}
		if autoInc && c.IsPrimary && typ.Kind == datastore.Integer {
			c.AutoIncrement = true
			c.Default = nil
		}
		out = append(out, c)
	}
	return out, nil
}

func isTrue(v ir.Value) bool {
	n, ok := v.(ir.Int)
	return ok && n > 0
}
