package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/datamgr/internal/datastore"
)

// typeAliases maps extra type names reported by schema introspection to
// portable kinds, per dialect.
var typeAliases = map[string]map[string]datastore.ColumnKind{
	"sqlite": {
		"int":      datastore.Integer,
		"smallint": datastore.TinyInteger,
		"float":    datastore.Float,
		"double":   datastore.Float,
		"bool":     datastore.Boolean,
	},
	"postgres": {
		"character varying":           datastore.String,
		"character":                   datastore.Char,
		"bpchar":                      datastore.Char,
		"timestamp without time zone": datastore.DateTime,
		"int4":                        datastore.Integer,
		"int8":                        datastore.BigInteger,
		"int2":                        datastore.TinyInteger,
		"bool":                        datastore.Boolean,
		"float8":                      datastore.Float,
	},
}

// TypeName renders a column type, e.g. VARCHAR(36).
func (d *Dialect) TypeName(t datastore.ColumnType) (string, error) {
	name, ok := d.types[t.Kind]
	if !ok {
		return "", fmt.Errorf("%s: unsupported column kind %q", d.Name, t.Kind)
	}
	if t.Kind.Sized() {
		return fmt.Sprintf("%s(%d)", name, t.Size), nil
	}
	return name, nil
}

// ParseType maps a type name reported by the database back to a portable
// column type.
func (d *Dialect) ParseType(sqlType string) (datastore.ColumnType, error) {
	s := strings.ToLower(strings.TrimSpace(sqlType))
	base, size := s, 0
	if open := strings.IndexByte(s, '('); open >= 0 && strings.HasSuffix(s, ")") {
		base = strings.TrimSpace(s[:open])
		n, err := strconv.Atoi(strings.TrimSpace(s[open+1 : len(s)-1]))
		if err != nil {
			return datastore.ColumnType{}, fmt.Errorf("%s: malformed type %q", d.Name, sqlType)
		}
		size = n
	}

	for kind, name := range d.types {
		if strings.ToLower(name) == base {
			return sized(kind, size), nil
		}
	}
	if kind, ok := typeAliases[d.Name][base]; ok {
		return sized(kind, size), nil
	}
	return datastore.ColumnType{}, fmt.Errorf("%s: unknown column type %q", d.Name, sqlType)
}

func sized(kind datastore.ColumnKind, size int) datastore.ColumnType {
	if !kind.Sized() {
		size = 0
	}
	return datastore.ColumnType{Kind: kind, Size: size}
}

// ColumnSQL renders a column definition for CREATE TABLE and ADD COLUMN.
// Auto-increment columns carry their own PRIMARY KEY clause.
func (d *Dialect) ColumnSQL(c datastore.ColumnDefinition) (string, error) {
	if c.AutoIncrement {
		return d.autoIncrement(c), nil
	}
	typ, err := d.TypeName(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", c.Name, err)
	}
	s := Quote(c.Name) + " " + typ
	if c.Default != nil {
		s += " DEFAULT " + DefaultLiteral(*c.Default)
	}
	return s, nil
}

// DefaultLiteral renders a column default. Numbers and the keywords NULL,
// TRUE, FALSE and CURRENT_TIMESTAMP are emitted as is; anything else
// becomes a quoted string literal.
func DefaultLiteral(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	switch strings.ToUpper(v) {
	case "NULL", "TRUE", "FALSE", "CURRENT_TIMESTAMP":
		return strings.ToUpper(v)
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// CreateTable returns the CREATE TABLE statement followed by one CREATE
// INDEX per index.
func (d *Dialect) CreateTable(def datastore.TableDefinition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return d.createTableAs(def, def.Name)
}

// createTableAs renders def under another table name, for table rebuilds.
func (d *Dialect) createTableAs(def datastore.TableDefinition, name string) ([]string, error) {
	var (
		cols    []string
		pk      []string
		autoInc bool
	)
	for _, c := range def.Columns {
		s, err := d.ColumnSQL(c)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", def.Name, err)
		}
		cols = append(cols, s)
		if c.AutoIncrement {
			autoInc = true
		}
		if c.IsPrimary {
			pk = append(pk, Quote(c.Name))
		}
	}
	if len(pk) > 0 && !autoInc {
		cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Quote(name), strings.Join(cols, ", "))}
	for _, idx := range def.Indices {
		stmts = append(stmts, d.CreateIndex(name, idx))
	}
	return stmts, nil
}

// CreateIndex renders CREATE [UNIQUE] INDEX IF NOT EXISTS.
func (d *Dialect) CreateIndex(table string, idx datastore.IndexDefinition) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = Quote(c)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, Quote(idx.Name), Quote(table), strings.Join(cols, ", "))
}

// AddColumn renders ALTER TABLE ... ADD COLUMN.
func (d *Dialect) AddColumn(table string, c datastore.ColumnDefinition) (string, error) {
	s, err := d.ColumnSQL(c)
	if err != nil {
		return "", err
	}
	return "ALTER TABLE " + Quote(table) + " ADD COLUMN " + s, nil
}

func (d *Dialect) DropColumn(table, column string) string {
	return "ALTER TABLE " + Quote(table) + " DROP COLUMN " + Quote(column)
}

func (d *Dialect) RenameColumn(table, from, to string) string {
	return "ALTER TABLE " + Quote(table) + " RENAME COLUMN " + Quote(from) + " TO " + Quote(to)
}

func (d *Dialect) RenameTable(from, to string) string {
	return "ALTER TABLE " + Quote(from) + " RENAME TO " + Quote(to)
}

func (d *Dialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + Quote(table)
}

// CopyColumns copies the named columns of every row from one table into
// another.
func (d *Dialect) CopyColumns(from, to string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = Quote(c)
	}
	list := strings.Join(quoted, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", Quote(to), list, list, Quote(from))
}

// RebuildTable returns the statements that recreate table under def while
// keeping the data of the columns listed in keep: create a temporary copy,
// move the rows, drop the original and rename the copy.
func (d *Dialect) RebuildTable(def datastore.TableDefinition, keep []string) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	tmp := def.Name + "__rebuild"
	create, err := d.createTableAs(datastore.TableDefinition{Name: def.Name, Columns: def.Columns}, tmp)
	if err != nil {
		return nil, err
	}
	stmts := append([]string{d.DropTable(tmp)}, create...)
	if len(keep) > 0 {
		stmts = append(stmts, d.CopyColumns(def.Name, tmp, keep))
	}
	stmts = append(stmts, d.DropTable(def.Name), d.RenameTable(tmp, def.Name))
	for _, idx := range def.Indices {
		stmts = append(stmts, d.CreateIndex(def.Name, idx))
	}
	return stmts, nil
}

// TableExists returns a query yielding one row when table exists.
func (d *Dialect) TableExists(table string) Statement {
	return Statement{SQL: d.tableExists, Args: []any{table}}
}

// NormalizeColumn maps a column definition onto the shape schema
// introspection reports for it in this dialect.
func (d *Dialect) NormalizeColumn(c datastore.ColumnDefinition) datastore.ColumnDefinition {
	if c.AutoIncrement {
		c.Type = datastore.ColumnType{Kind: d.autoIncrementKind(c.Type.Kind)}
		c.Default = nil
	} else if name, err := d.TypeName(c.Type); err == nil {
		if parsed, err := d.ParseType(name); err == nil {
			c.Type = parsed
		}
	}
	if c.Default != nil {
		v := NormalizeDefault(*c.Default)
		c.Default = &v
	}
	return c
}

// NormalizeDefault upper-cases keyword defaults and keeps everything else.
func NormalizeDefault(v string) string {
	if lit := DefaultLiteral(v); !strings.HasPrefix(lit, "'") {
		return lit
	}
	return v
}

// ParseDefault reads a column default expression as reported by the
// database. Quoted literals are unquoted, casts such as ::text dropped and
// sequence defaults reported as auto-increment.
func ParseDefault(expr string) (value *string, autoIncrement bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(expr), "nextval(") {
		return nil, true
	}
	if expr[0] == '\'' {
		inner := expr[1:]
		if end := literalEnd(expr, 0); end > 1 && expr[end-1] == '\'' {
			inner = expr[1 : end-1]
		}
		v := strings.ReplaceAll(inner, "''", "'")
		return &v, false
	}
	if base, _, ok := strings.Cut(expr, "::"); ok {
		expr = base
	}
	expr = strings.TrimSuffix(strings.TrimPrefix(expr, "("), ")")
	v := NormalizeDefault(expr)
	return &v, false
}
