package queryir

import "maps"

// New returns an empty filter ready for chaining.
//
//	f := queryir.New().Eq("UUID", id).Eq("accountType", "grid")
func New() *Filter {
	return &Filter{}
}

// Eq adds field = value to the AND equality group.
func (f *Filter) Eq(field string, value any) *Filter {
	f.EqualsAnd = put(f.EqualsAnd, field, value)
	return f
}

// Or adds field = value to the OR equality group.
func (f *Filter) Or(field string, value any) *Filter {
	f.EqualsOr = put(f.EqualsOr, field, value)
	return f
}

// In matches field against any of values.
func (f *Filter) In(field string, values ...any) *Filter {
	if f.EqualsOrMulti == nil {
		f.EqualsOrMulti = make(map[string][]any)
	}
	f.EqualsOrMulti[field] = append(f.EqualsOrMulti[field], values...)
	return f
}

// NotEq adds field != value.
func (f *Filter) NotEq(field string, value any) *Filter {
	f.NotEquals = put(f.NotEquals, field, value)
	return f
}

// Like adds an ANDed LIKE pattern.
func (f *Filter) Like(field, pattern string) *Filter {
	f.LikeAnd = put(f.LikeAnd, field, pattern)
	return f
}

// OrLike adds an ORed LIKE pattern.
func (f *Filter) OrLike(field, pattern string) *Filter {
	f.LikeOr = put(f.LikeOr, field, pattern)
	return f
}

// LikeAny matches field against any of patterns.
func (f *Filter) LikeAny(field string, patterns ...string) *Filter {
	if f.LikeOrMulti == nil {
		f.LikeOrMulti = make(map[string][]string)
	}
	f.LikeOrMulti[field] = append(f.LikeOrMulti[field], patterns...)
	return f
}

// BitsAll requires field & mask to be non-zero (ANDed with other bit tests).
func (f *Filter) BitsAll(field string, mask uint32) *Filter {
	f.BitAnd = put(f.BitAnd, field, mask)
	return f
}

// BitsAny ORs field & mask with the other bit tests of the group.
func (f *Filter) BitsAny(field string, mask uint32) *Filter {
	f.BitOr = put(f.BitOr, field, mask)
	return f
}

func (f *Filter) Gt(field string, v int64) *Filter {
	f.GreaterThanAnd = put(f.GreaterThanAnd, field, v)
	return f
}

func (f *Filter) OrGt(field string, v int64) *Filter {
	f.GreaterThanOr = put(f.GreaterThanOr, field, v)
	return f
}

func (f *Filter) Gte(field string, v int64) *Filter {
	f.GreaterOrEqualAnd = put(f.GreaterOrEqualAnd, field, v)
	return f
}

func (f *Filter) Lt(field string, v int64) *Filter {
	f.LessThanAnd = put(f.LessThanAnd, field, v)
	return f
}

func (f *Filter) OrLt(field string, v int64) *Filter {
	f.LessThanOr = put(f.LessThanOr, field, v)
	return f
}

func (f *Filter) Lte(field string, v int64) *Filter {
	f.LessOrEqualAnd = put(f.LessOrEqualAnd, field, v)
	return f
}

// Sub appends nested filters that are ANDed into f.
func (f *Filter) Sub(subs ...*Filter) *Filter {
	f.SubFilters = append(f.SubFilters, subs...)
	return f
}

// Clone returns a deep copy. Multi value slices and sub-filters are copied;
// the individual values are shared.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	out := &Filter{
		EqualsAnd:         maps.Clone(f.EqualsAnd),
		EqualsOr:          maps.Clone(f.EqualsOr),
		EqualsOrMulti:     cloneMulti(f.EqualsOrMulti),
		NotEquals:         maps.Clone(f.NotEquals),
		LikeAnd:           maps.Clone(f.LikeAnd),
		LikeOr:            maps.Clone(f.LikeOr),
		LikeOrMulti:       cloneMulti(f.LikeOrMulti),
		BitAnd:            maps.Clone(f.BitAnd),
		BitOr:             maps.Clone(f.BitOr),
		GreaterThanAnd:    maps.Clone(f.GreaterThanAnd),
		GreaterThanOr:     maps.Clone(f.GreaterThanOr),
		GreaterOrEqualAnd: maps.Clone(f.GreaterOrEqualAnd),
		LessThanAnd:       maps.Clone(f.LessThanAnd),
		LessThanOr:        maps.Clone(f.LessThanOr),
		LessOrEqualAnd:    maps.Clone(f.LessOrEqualAnd),
	}
	if f.SubFilters != nil {
		out.SubFilters = make([]*Filter, len(f.SubFilters))
		for i, sub := range f.SubFilters {
			out.SubFilters[i] = sub.Clone()
		}
	}
	return out
}

func put[V any](m map[string]V, k string, v V) map[string]V {
	if m == nil {
		m = make(map[string]V)
	}
	m[k] = v
	return m
}

func cloneMulti[V any](m map[string][]V) map[string][]V {
	if m == nil {
		return nil
	}
	out := make(map[string][]V, len(m))
	for k, vs := range m {
		out[k] = append([]V(nil), vs...)
	}
	return out
}
