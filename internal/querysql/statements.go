package querysql

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/queryir"
)

// Select builds SELECT columns FROM table with the filter, sort and paging
// of opts. datastore.All selects "*".
func (d *Dialect) Select(table string, columns []string, f *queryir.Filter, opts datastore.QueryOptions) (Statement, error) {
	frag, _ := d.Lower(f, 0)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(d.selectList(columns))
	b.WriteString(" FROM ")
	b.WriteString(Quote(table))
	b.WriteString(frag.Where())

	if len(opts.Sort) > 0 {
		parts := make([]string, len(opts.Sort))
		for i, s := range opts.Sort {
			dir := "ASC"
			if s.Descending {
				dir = "DESC"
			}
			parts[i] = quoteIfIdent(s.Field) + " " + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	b.WriteString(d.paging(opts.Offset, opts.Limit))

	return d.bind(b.String(), frag.Params)
}

func (d *Dialect) selectList(columns []string) string {
	if datastore.IsAll(columns) {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIfIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func (d *Dialect) paging(offset, limit *uint64) string {
	switch {
	case limit != nil && offset != nil:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", *limit, *offset)
	case limit != nil:
		return fmt.Sprintf(" LIMIT %d", *limit)
	case offset != nil:
		return " " + fmt.Sprintf(d.offsetOnly, *offset)
	default:
		return ""
	}
}

// valueList names one placeholder per row column, in sorted column order.
func (d *Dialect) valueList(tag string, row datastore.Row, params map[string]any) (cols, vals []string) {
	for i, k := range slices.Sorted(maps.Keys(row)) {
		key := placeholder(d.Prefix, tag, i+1, k)
		params[key] = row[k]
		cols = append(cols, Quote(k))
		vals = append(vals, key)
	}
	return cols, vals
}

func (d *Dialect) insertHead(verb, table string, row datastore.Row, params map[string]any) (string, error) {
	if len(row) == 0 {
		return "", fmt.Errorf("insert into %s: row has no columns", table)
	}
	cols, vals := d.valueList("val_", row, params)
	return fmt.Sprintf("%s %s (%s) VALUES (%s)", verb, Quote(table), strings.Join(cols, ", "), strings.Join(vals, ", ")), nil
}

// Insert builds a single-row INSERT. Columns are emitted in sorted order.
func (d *Dialect) Insert(table string, row datastore.Row) (Statement, error) {
	params := make(map[string]any)
	sql, err := d.insertHead("INSERT INTO", table, row, params)
	if err != nil {
		return Statement{}, err
	}
	return d.bind(sql, params)
}

// InsertOrUpdate builds an upsert that inserts row or, on a conflict with
// target (the primary key), sets conflictKey to conflictValue. SQLite
// accepts an empty target and then reacts to any uniqueness conflict.
func (d *Dialect) InsertOrUpdate(table string, row datastore.Row, conflictKey string, conflictValue any, target []string) (Statement, error) {
	if conflictKey == "" {
		return Statement{}, fmt.Errorf("insert or update %s: conflict key is empty", table)
	}
	if d.conflictTargetRequired && len(target) == 0 {
		return Statement{}, fmt.Errorf("insert or update %s: %s needs a primary key as conflict target", table, d.Name)
	}
	params := make(map[string]any)
	sql, err := d.insertHead("INSERT INTO", table, row, params)
	if err != nil {
		return Statement{}, err
	}
	key := placeholder(d.Prefix, "upd_", 1, conflictKey)
	params[key] = conflictValue
	sql += " ON CONFLICT" + conflictTarget(target) + " DO UPDATE SET " + Quote(conflictKey) + " = " + key
	return d.bind(sql, params)
}

// Replace builds an insert that overwrites any row with the same primary key.
func (d *Dialect) Replace(table string, row datastore.Row, primaryKey []string) (Statement, error) {
	params := make(map[string]any)
	if d.replaceInto != "" {
		sql, err := d.insertHead(d.replaceInto, table, row, params)
		if err != nil {
			return Statement{}, err
		}
		return d.bind(sql, params)
	}

	if len(primaryKey) == 0 {
		return Statement{}, fmt.Errorf("replace into %s: %s needs a primary key", table, d.Name)
	}
	sql, err := d.insertHead("INSERT INTO", table, row, params)
	if err != nil {
		return Statement{}, err
	}
	var sets []string
	for _, k := range slices.Sorted(maps.Keys(row)) {
		if containsFold(primaryKey, k) {
			continue
		}
		sets = append(sets, Quote(k)+" = EXCLUDED."+Quote(k))
	}
	if len(sets) == 0 {
		sql += " ON CONFLICT" + conflictTarget(primaryKey) + " DO NOTHING"
	} else {
		sql += " ON CONFLICT" + conflictTarget(primaryKey) + " DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return d.bind(sql, params)
}

func conflictTarget(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = Quote(c)
	}
	return " (" + strings.Join(quoted, ", ") + ")"
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(x string) bool { return strings.EqualFold(x, s) })
}

// Update builds an UPDATE assigning set and adding increment. With a limit
// or offset, the touched rows are picked by the dialect's row locator in a
// sub-select.
func (d *Dialect) Update(table string, set datastore.Row, increment map[string]int64, f *queryir.Filter, opts datastore.LimitOptions) (Statement, error) {
	if len(set) == 0 && len(increment) == 0 {
		return Statement{}, fmt.Errorf("update %s: nothing to set", table)
	}

	params := make(map[string]any)
	var assigns []string
	for i, k := range slices.Sorted(maps.Keys(set)) {
		key := placeholder(d.Prefix, "set_", i+1, k)
		params[key] = set[k]
		assigns = append(assigns, Quote(k)+" = "+key)
	}
	for i, k := range slices.Sorted(maps.Keys(increment)) {
		if _, dup := set[k]; dup {
			return Statement{}, fmt.Errorf("update %s: column %s is both set and incremented", table, k)
		}
		key := placeholder(d.Prefix, "inc_", i+1, k)
		params[key] = increment[k]
		assigns = append(assigns, Quote(k)+" = "+Quote(k)+" + "+key)
	}

	frag, _ := d.Lower(f, 0)
	maps.Copy(params, frag.Params)

	sql := "UPDATE " + Quote(table) + " SET " + strings.Join(assigns, ", ")
	if opts.Limited() {
		sql += fmt.Sprintf(" WHERE %s IN (SELECT %s FROM %s%s%s)",
			d.rowID, d.rowID, Quote(table), frag.Where(), d.paging(opts.Offset, opts.Limit))
	} else {
		sql += frag.Where()
	}
	return d.bind(sql, params)
}

// Delete builds a DELETE of the matching rows.
func (d *Dialect) Delete(table string, f *queryir.Filter) (Statement, error) {
	frag, _ := d.Lower(f, 0)
	return d.bind("DELETE FROM "+Quote(table)+frag.Where(), frag.Params)
}

// DeleteByTime builds a DELETE of rows whose timeColumn is before the
// server's current UTC time.
func (d *Dialect) DeleteByTime(table, timeColumn string) Statement {
	return Statement{SQL: "DELETE FROM " + Quote(table) + " WHERE " + Quote(timeColumn) + " < " + d.now}
}
