package queryir

import (
	"maps"
	"slices"
)

// Filter is a composable, backend-neutral WHERE expression.
//
// Each map is one predicate category. Categories suffixed "And" join their
// entries with AND, categories suffixed "Or" join them with OR, and "Multi"
// categories OR every value of every field. The categories themselves are
// always ANDed together, and SubFilters are lowered recursively and ANDed
// into the parent.
//
// Semantics (SQL rendering, values are always bound as parameters):
//
//	EqualsAnd         (a = ? AND b = ?)
//	EqualsOr          (a = ? OR b = ?)
//	EqualsOrMulti     (a = ? OR a = ? OR b = ?)
//	NotEquals         (a != ? AND b != ?)
//	LikeAnd/LikeOr    (a LIKE ? ...)
//	LikeOrMulti       (a LIKE ? OR a LIKE ? ...)
//	BitAnd/BitOr      (a & ? ...)  truthy when any masked bit is set
//	GreaterThan*      (a > ? ...), GreaterOrEqualAnd (a >= ? AND ...)
//	LessThan*         (a < ? ...), LessOrEqualAnd (a <= ? AND ...)
//
// A nil or empty Filter matches every row.
//
// Filters carry no backend state. Lowering never mutates a filter, so the
// same value can be lowered any number of times, by any backend.
type Filter struct {
	EqualsAnd     map[string]any   `yaml:"equals_and,omitempty" json:"equals_and,omitempty"`
	EqualsOr      map[string]any   `yaml:"equals_or,omitempty" json:"equals_or,omitempty"`
	EqualsOrMulti map[string][]any `yaml:"equals_or_multi,omitempty" json:"equals_or_multi,omitempty"`

	NotEquals map[string]any `yaml:"not_equals,omitempty" json:"not_equals,omitempty"`

	LikeAnd     map[string]string   `yaml:"like_and,omitempty" json:"like_and,omitempty"`
	LikeOr      map[string]string   `yaml:"like_or,omitempty" json:"like_or,omitempty"`
	LikeOrMulti map[string][]string `yaml:"like_or_multi,omitempty" json:"like_or_multi,omitempty"`

	BitAnd map[string]uint32 `yaml:"bit_and,omitempty" json:"bit_and,omitempty"`
	BitOr  map[string]uint32 `yaml:"bit_or,omitempty" json:"bit_or,omitempty"`

	GreaterThanAnd    map[string]int64 `yaml:"greater_than_and,omitempty" json:"greater_than_and,omitempty"`
	GreaterThanOr     map[string]int64 `yaml:"greater_than_or,omitempty" json:"greater_than_or,omitempty"`
	GreaterOrEqualAnd map[string]int64 `yaml:"greater_or_equal_and,omitempty" json:"greater_or_equal_and,omitempty"`

	LessThanAnd    map[string]int64 `yaml:"less_than_and,omitempty" json:"less_than_and,omitempty"`
	LessThanOr     map[string]int64 `yaml:"less_than_or,omitempty" json:"less_than_or,omitempty"`
	LessOrEqualAnd map[string]int64 `yaml:"less_or_equal_and,omitempty" json:"less_or_equal_and,omitempty"`

	SubFilters []*Filter `yaml:"sub_filters,omitempty" json:"sub_filters,omitempty"`
}

// Category identifies one predicate map of a Filter.
type Category int

// Categories in lowering order. Every backend emits groups in this order so
// generated queries are reproducible.
const (
	CatEqualsAnd Category = iota
	CatEqualsOr
	CatEqualsOrMulti
	CatNotEquals
	CatLikeAnd
	CatLikeOr
	CatLikeOrMulti
	CatBitAnd
	CatBitOr
	CatGreaterThanAnd
	CatGreaterThanOr
	CatGreaterOrEqualAnd
	CatLessThanAnd
	CatLessThanOr
	CatLessOrEqualAnd
)

// Categories lists every category in lowering order.
var Categories = []Category{
	CatEqualsAnd, CatEqualsOr, CatEqualsOrMulti,
	CatNotEquals,
	CatLikeAnd, CatLikeOr, CatLikeOrMulti,
	CatBitAnd, CatBitOr,
	CatGreaterThanAnd, CatGreaterThanOr, CatGreaterOrEqualAnd,
	CatLessThanAnd, CatLessThanOr, CatLessOrEqualAnd,
}

// Op is the comparison a category applies.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLike
	OpBitAnd
	OpGt
	OpGte
	OpLt
	OpLte
)

// Connective joins the entries of one category.
type Connective int

const (
	ConnAnd Connective = iota
	ConnOr
)

type categoryInfo struct {
	name  string
	op    Op
	conn  Connective
	multi bool
}

var categoryTable = map[Category]categoryInfo{
	CatEqualsAnd:         {"equals_and", OpEq, ConnAnd, false},
	CatEqualsOr:          {"equals_or", OpEq, ConnOr, false},
	CatEqualsOrMulti:     {"equals_or_multi", OpEq, ConnOr, true},
	CatNotEquals:         {"not_equals", OpNe, ConnAnd, false},
	CatLikeAnd:           {"like_and", OpLike, ConnAnd, false},
	CatLikeOr:            {"like_or", OpLike, ConnOr, false},
	CatLikeOrMulti:       {"like_or_multi", OpLike, ConnOr, true},
	CatBitAnd:            {"bit_and", OpBitAnd, ConnAnd, false},
	CatBitOr:             {"bit_or", OpBitAnd, ConnOr, false},
	CatGreaterThanAnd:    {"greater_than_and", OpGt, ConnAnd, false},
	CatGreaterThanOr:     {"greater_than_or", OpGt, ConnOr, false},
	CatGreaterOrEqualAnd: {"greater_or_equal_and", OpGte, ConnAnd, false},
	CatLessThanAnd:       {"less_than_and", OpLt, ConnAnd, false},
	CatLessThanOr:        {"less_than_or", OpLt, ConnOr, false},
	CatLessOrEqualAnd:    {"less_or_equal_and", OpLte, ConnAnd, false},
}

func (c Category) String() string { return categoryTable[c].name }

// Op returns the comparison applied by the category.
func (c Category) Op() Op { return categoryTable[c].op }

// Connective returns how the category joins its entries.
func (c Category) Connective() Connective { return categoryTable[c].conn }

// Multi reports whether each field carries a list of values.
func (c Category) Multi() bool { return categoryTable[c].multi }

// Entry is one field of a category with its value(s). Single-valued
// categories have exactly one element in Values.
type Entry struct {
	Field  string
	Values []any
}

// Entries returns the category's entries sorted by field name. Multi values
// keep their slice order. Sorting makes lowering deterministic regardless of
// map iteration order.
func (f *Filter) Entries(c Category) []Entry {
	if f == nil {
		return nil
	}
	switch c {
	case CatEqualsAnd:
		return single(f.EqualsAnd)
	case CatEqualsOr:
		return single(f.EqualsOr)
	case CatEqualsOrMulti:
		return multi(f.EqualsOrMulti)
	case CatNotEquals:
		return single(f.NotEquals)
	case CatLikeAnd:
		return single(f.LikeAnd)
	case CatLikeOr:
		return single(f.LikeOr)
	case CatLikeOrMulti:
		return multi(f.LikeOrMulti)
	case CatBitAnd:
		return single(f.BitAnd)
	case CatBitOr:
		return single(f.BitOr)
	case CatGreaterThanAnd:
		return single(f.GreaterThanAnd)
	case CatGreaterThanOr:
		return single(f.GreaterThanOr)
	case CatGreaterOrEqualAnd:
		return single(f.GreaterOrEqualAnd)
	case CatLessThanAnd:
		return single(f.LessThanAnd)
	case CatLessThanOr:
		return single(f.LessThanOr)
	case CatLessOrEqualAnd:
		return single(f.LessOrEqualAnd)
	default:
		return nil
	}
}

func single[V any](m map[string]V) []Entry {
	if len(m) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, Entry{Field: k, Values: []any{m[k]}})
	}
	return out
}

func multi[V any](m map[string][]V) []Entry {
	if len(m) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		vals := make([]any, len(m[k]))
		for i, v := range m[k] {
			vals[i] = v
		}
		out = append(out, Entry{Field: k, Values: vals})
	}
	return out
}

// CategoryLen returns the number of fields in one category.
func (f *Filter) CategoryLen(c Category) int {
	if f == nil {
		return 0
	}
	switch c {
	case CatEqualsAnd:
		return len(f.EqualsAnd)
	case CatEqualsOr:
		return len(f.EqualsOr)
	case CatEqualsOrMulti:
		return len(f.EqualsOrMulti)
	case CatNotEquals:
		return len(f.NotEquals)
	case CatLikeAnd:
		return len(f.LikeAnd)
	case CatLikeOr:
		return len(f.LikeOr)
	case CatLikeOrMulti:
		return len(f.LikeOrMulti)
	case CatBitAnd:
		return len(f.BitAnd)
	case CatBitOr:
		return len(f.BitOr)
	case CatGreaterThanAnd:
		return len(f.GreaterThanAnd)
	case CatGreaterThanOr:
		return len(f.GreaterThanOr)
	case CatGreaterOrEqualAnd:
		return len(f.GreaterOrEqualAnd)
	case CatLessThanAnd:
		return len(f.LessThanAnd)
	case CatLessThanOr:
		return len(f.LessThanOr)
	case CatLessOrEqualAnd:
		return len(f.LessOrEqualAnd)
	default:
		return 0
	}
}

// Count returns the number of predicates across all categories, recursing
// into sub-filters. A multi category counts once per field. Count is the
// activation test for lowering: a filter with Count() == 0 matches all rows.
func (f *Filter) Count() int {
	if f == nil {
		return 0
	}
	total := 0
	for _, c := range Categories {
		total += f.CategoryLen(c)
	}
	for _, sub := range f.SubFilters {
		total += sub.Count()
	}
	return total
}

// IsEmpty reports whether the filter matches every row.
func (f *Filter) IsEmpty() bool {
	return f.Count() == 0
}
