package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/datamgr/internal/queryir"
)

// Fragment is a parenthesized WHERE expression with named placeholders.
//
// Values are never interpolated into SQL; each lives in Params under the
// placeholder name that appears in SQL. Bind turns the names into the
// driver's positional form.
type Fragment struct {
	SQL    string
	Params map[string]any
}

// Empty reports whether the fragment matches all rows (no WHERE clause).
func (f Fragment) Empty() bool { return f.SQL == "" }

// Where returns " WHERE <sql>", or "" for an empty fragment.
func (f Fragment) Where() string {
	if f.Empty() {
		return ""
	}
	return " WHERE " + f.SQL
}

// placeholderTags are the per-category placeholder infixes. EqualsOr and
// EqualsOrMulti share a tag, as do LikeOr and LikeOrMulti; the counter keeps
// the names unique.
var placeholderTags = map[queryir.Category]string{
	queryir.CatEqualsAnd:         "where_AND_",
	queryir.CatEqualsOr:          "where_OR_",
	queryir.CatEqualsOrMulti:     "where_OR_",
	queryir.CatNotEquals:         "where_AND_NOT_",
	queryir.CatLikeAnd:           "where_ANDLIKE_",
	queryir.CatLikeOr:            "where_ORLIKE_",
	queryir.CatLikeOrMulti:       "where_ORLIKE_",
	queryir.CatBitAnd:            "where_bAND_",
	queryir.CatBitOr:             "where_bOR_",
	queryir.CatGreaterThanAnd:    "where_gtAND_",
	queryir.CatGreaterThanOr:     "where_gtOR_",
	queryir.CatGreaterOrEqualAnd: "where_gteqAND_",
	queryir.CatLessThanAnd:       "where_ltAND_",
	queryir.CatLessThanOr:        "where_ltOR_",
	queryir.CatLessOrEqualAnd:    "where_lteqAND_",
}

var comparisonOps = map[queryir.Op]string{
	queryir.OpEq:     "=",
	queryir.OpNe:     "!=",
	queryir.OpLike:   "LIKE",
	queryir.OpBitAnd: "&",
	queryir.OpGt:     ">",
	queryir.OpGte:    ">=",
	queryir.OpLt:     "<",
	queryir.OpLte:    "<=",
}

// Lower renders a filter as a WHERE fragment in the generic dialect: fields
// are interpolated as written, LIKE is the plain operator and bit tests are
// bare "field & mask" expressions (truthy in SQLite and MySQL).
//
// Placeholders are prefix + category tag + counter + sanitized field, with
// "_" before a field that starts with a digit. The counter starts after
// start and is shared across sub-filters; the returned int is its final
// value, so several filters lowered into one statement can chain their
// counters. An empty filter yields an empty fragment.
//
//	Lower(queryir.New().Eq("UUID", id).Eq("accountType", "grid"), '?', 0)
//	// (UUID = ?where_AND_1UUID AND accountType = ?where_AND_2accountType)
func Lower(f *queryir.Filter, prefix byte, start int) (Fragment, int) {
	return genericLowerer.lower(f, prefix, start)
}

// lowerer holds the dialect-specific rendering hooks.
type lowerer struct {
	field   func(name string) string
	compare func(op queryir.Op, field, placeholder string) string
}

var genericLowerer = lowerer{
	field: func(name string) string { return name },
	compare: func(op queryir.Op, field, placeholder string) string {
		return field + " " + comparisonOps[op] + " " + placeholder
	},
}

func (l lowerer) lower(f *queryir.Filter, prefix byte, start int) (Fragment, int) {
	params := make(map[string]any)
	sql, next := l.compileFilter(f, prefix, start, params)
	return Fragment{SQL: sql, Params: params}, next
}

// compileFilter appends f's placeholders to params and returns its SQL.
func (l lowerer) compileFilter(f *queryir.Filter, prefix byte, i int, params map[string]any) (string, int) {
	if f.Count() == 0 {
		return "", i
	}

	var groups []string
	for _, c := range queryir.Categories {
		var group string
		group, i = l.compileCategory(f, c, prefix, i, params)
		if group != "" {
			groups = append(groups, "("+group+")")
		}
	}
	for _, sub := range f.SubFilters {
		var sql string
		sql, i = l.compileFilter(sub, prefix, i, params)
		if sql != "" {
			groups = append(groups, sql)
		}
	}

	// Multi categories whose value lists are all empty render nothing.
	if len(groups) == 0 {
		return "", i
	}
	// A single category group already carries its parentheses.
	if len(groups) == 1 {
		return groups[0], i
	}
	return "(" + strings.Join(groups, " AND ") + ")", i
}

// compileCategory renders one category's entries joined by its connective.
func (l lowerer) compileCategory(f *queryir.Filter, c queryir.Category, prefix byte, i int, params map[string]any) (string, int) {
	entries := f.Entries(c)
	if len(entries) == 0 {
		return "", i
	}

	var parts []string
	for _, e := range entries {
		for _, v := range e.Values {
			i++
			key := placeholder(prefix, placeholderTags[c], i, e.Field)
			params[key] = v
			parts = append(parts, l.compare(c.Op(), l.field(e.Field), key))
		}
	}

	joiner := " AND "
	if c.Connective() == queryir.ConnOr {
		joiner = " OR "
	}
	return strings.Join(parts, joiner), i
}

func placeholder(prefix byte, tag string, i int, field string) string {
	var b strings.Builder
	b.WriteByte(prefix)
	b.WriteString(tag)
	b.WriteString(strconv.Itoa(i))
	name := SanitizeField(field)
	// The counter must stay the only digit run after the tag.
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		b.WriteByte('_')
	}
	b.WriteString(name)
	return b.String()
}

// SanitizeField turns a field expression into placeholder-safe text:
// backticks and quotes are dropped, "(" becomes "__", ")" is dropped, a
// space becomes "___" and any other rune outside [A-Za-z0-9_] becomes "_".
func SanitizeField(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r == '`' || r == '"' || r == '\'' || r == ')':
		case r == '(':
			b.WriteString("__")
		case r == ' ':
			b.WriteString("___")
		case isIdentRune(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
