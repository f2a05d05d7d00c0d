package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

// Dialect renders filters and statements for one SQL backend.
//
// Statement builders return a Statement with positional arguments ready for
// the driver. Table and column names are trusted identifiers; values only
// ever travel as arguments.
type Dialect struct {
	// Name is the backend name, e.g. "sqlite".
	Name string

	// Style is the driver's positional placeholder syntax.
	Style PlaceholderStyle

	// Prefix starts every named placeholder before binding.
	Prefix byte

	lowerer lowerer

	types map[datastore.ColumnKind]string

	// rowID names the physical row locator used for limited updates.
	rowID string

	// now is the server's current UTC time as an SQL expression; nowShift
	// formats it shifted by a signed number of minutes.
	now      string
	nowShift string

	// replaceInto is the statement head for Replace, empty when Replace is
	// emulated with ON CONFLICT.
	replaceInto string

	// conflictTargetRequired is set when ON CONFLICT ... DO UPDATE needs an
	// explicit conflict target.
	conflictTargetRequired bool

	// offsetOnly renders an OFFSET without LIMIT.
	offsetOnly string

	// autoIncrement renders an auto-increment primary key column;
	// autoIncrementKind is the kind introspection reports for it.
	autoIncrement     func(c datastore.ColumnDefinition) string
	autoIncrementKind func(k datastore.ColumnKind) datastore.ColumnKind

	// tableExists selects one row for an existing table named by the
	// single argument.
	tableExists string
}

// Statement is a bound SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// SQLite is the dialect of mattn/go-sqlite3.
var SQLite = &Dialect{
	Name:    "sqlite",
	Style:   Question,
	Prefix:  '?',
	lowerer: genericLowerer,
	types: map[datastore.ColumnKind]string{
		datastore.Integer:     "INTEGER",
		datastore.BigInteger:  "BIGINT",
		datastore.TinyInteger: "TINYINT",
		datastore.Char:        "CHAR",
		datastore.String:      "VARCHAR",
		datastore.Text:        "TEXT",
		datastore.Blob:        "BLOB",
		datastore.Date:        "DATE",
		datastore.DateTime:    "DATETIME",
		datastore.Boolean:     "BOOLEAN",
		datastore.Float:       "REAL",
	},
	rowID:       "rowid",
	now:         "datetime('now')",
	nowShift:    "datetime('now', '%+d minutes')",
	replaceInto: "INSERT OR REPLACE INTO",
	offsetOnly:  "LIMIT -1 OFFSET %d",
	autoIncrement: func(c datastore.ColumnDefinition) string {
		// Only INTEGER PRIMARY KEY auto-increments in SQLite.
		return Quote(c.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	},
	autoIncrementKind: func(datastore.ColumnKind) datastore.ColumnKind { return datastore.Integer },
	tableExists: "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
}

// Postgres is the dialect of jackc/pgx.
var Postgres = &Dialect{
	Name:   "postgres",
	Style:  Dollar,
	Prefix: '?',
	lowerer: lowerer{
		field: quoteIfIdent,
		compare: func(op queryir.Op, field, placeholder string) string {
			switch op {
			case queryir.OpBitAnd:
				return "(" + field + " & " + placeholder + ") <> 0"
			case queryir.OpLike:
				// LIKE is case-insensitive in SQLite; match it.
				return field + " ILIKE " + placeholder
			default:
				return field + " " + comparisonOps[op] + " " + placeholder
			}
		},
	},
	types: map[datastore.ColumnKind]string{
		datastore.Integer:     "INTEGER",
		datastore.BigInteger:  "BIGINT",
		datastore.TinyInteger: "SMALLINT",
		datastore.Char:        "CHAR",
		datastore.String:      "VARCHAR",
		datastore.Text:        "TEXT",
		datastore.Blob:        "BYTEA",
		datastore.Date:        "DATE",
		datastore.DateTime:    "TIMESTAMP",
		datastore.Boolean:     "BOOLEAN",
		datastore.Float:       "DOUBLE PRECISION",
	},
	rowID:                  "ctid",
	now:                    "(now() AT TIME ZONE 'UTC')",
	nowShift:               "((now() AT TIME ZONE 'UTC') + interval '%d minutes')",
	conflictTargetRequired: true,
	offsetOnly:             "OFFSET %d",
	autoIncrement: func(c datastore.ColumnDefinition) string {
		if c.Type.Kind == datastore.BigInteger {
			return Quote(c.Name) + " BIGSERIAL PRIMARY KEY"
		}
		return Quote(c.Name) + " SERIAL PRIMARY KEY"
	},
	autoIncrementKind: func(k datastore.ColumnKind) datastore.ColumnKind {
		if k == datastore.BigInteger {
			return k
		}
		return datastore.Integer
	},
	tableExists: "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
}

// NeedsConflictTarget reports whether upserts must name the conflicting
// key columns.
func (d *Dialect) NeedsConflictTarget() bool { return d.conflictTargetRequired }

// Lower renders f in this dialect. See the package-level Lower for the
// placeholder scheme.
func (d *Dialect) Lower(f *queryir.Filter, start int) (Fragment, int) {
	return d.lowerer.lower(f, d.Prefix, start)
}

// Quote quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// quoteIfIdent quotes plain identifiers and leaves expressions such as
// COALESCE(a, 0) or COUNT(*) untouched.
func quoteIfIdent(name string) string {
	if name == "" || name == "*" {
		return name
	}
	for i, r := range name {
		if !isIdentRune(r) || (i == 0 && r >= '0' && r <= '9') {
			return name
		}
	}
	return Quote(name)
}

// bind resolves the named placeholders of sql. Parameter values are
// normalized through ir so drivers only see int64, float64, string, []byte,
// bool and nil.
func (d *Dialect) bind(sql string, params map[string]any) (Statement, error) {
	norm := make(map[string]any, len(params))
	for k, v := range params {
		val, err := ir.FromAny(v)
		if err != nil {
			return Statement{}, fmt.Errorf("parameter %s: %w", k, err)
		}
		norm[k] = ir.ToAny(val)
	}
	bound, args, err := Bind(sql, norm, d.Prefix, d.Style)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: bound, Args: args}, nil
}

// IsNull returns an expression yielding def when field is NULL.
func (d *Dialect) IsNull(field, def string) string {
	return "COALESCE(" + field + ", " + def + ")"
}

// ConCat returns an expression concatenating the given expressions.
func (d *Dialect) ConCat(exprs ...string) string {
	return strings.Join(exprs, " || ")
}

// Now returns the server's current UTC time as an SQL expression.
func (d *Dialect) Now() string { return d.now }

// FormatDateTimeString returns an SQL expression for the current UTC time
// shifted by offsetMinutes. Zero yields plain Now.
func (d *Dialect) FormatDateTimeString(offsetMinutes int) string {
	if offsetMinutes == 0 {
		return d.now
	}
	return fmt.Sprintf(d.nowShift, offsetMinutes)
}
