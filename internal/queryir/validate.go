package queryir

import (
	"fmt"

	"github.com/roach88/datamgr/internal/ir"
)

// ValidationResult lists structural problems found in a filter.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	// Errors describes each problem with the path of the offending filter,
	// e.g. "sub_filters[1].equals_and: empty field name".
	Errors []string
}

// Err returns the problems as a single error, or nil when the filter is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 1 {
		return fmt.Errorf("invalid filter: %s", r.Errors[0])
	}
	return fmt.Errorf("invalid filter: %s (and %d more)", r.Errors[0], len(r.Errors)-1)
}

// Validate checks a filter before it is lowered.
//
// Rules:
//  1. Field names are non-empty
//  2. Multi categories carry at least one value per field
//  3. Sub-filters are non-nil and never reference an ancestor
//  4. Values of equality categories are scalars ir.FromAny accepts
//
// A nil filter is valid and matches everything. Validate is a pure function.
func Validate(f *Filter) ValidationResult {
	v := &validator{errors: []string{}, seen: map[*Filter]bool{}}
	v.validateFilter(f, "")
	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

type validator struct {
	errors []string
	seen   map[*Filter]bool
}

func (v *validator) addError(path, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if path != "" {
		msg = path + ": " + msg
	}
	v.errors = append(v.errors, msg)
}

func (v *validator) validateFilter(f *Filter, path string) {
	if f == nil {
		return
	}
	if v.seen[f] {
		v.addError(path, "sub-filter cycle")
		return
	}
	v.seen[f] = true
	defer delete(v.seen, f)

	for _, c := range Categories {
		cpath := join(path, c.String())
		for _, e := range f.Entries(c) {
			if e.Field == "" {
				v.addError(cpath, "empty field name")
			}
			if c.Multi() && len(e.Values) == 0 {
				v.addError(cpath, "field %q has no values", e.Field)
			}
			if c.Op() == OpEq || c.Op() == OpNe {
				for _, val := range e.Values {
					v.validateValue(cpath, e.Field, val)
				}
			}
		}
	}

	for i, sub := range f.SubFilters {
		spath := join(path, fmt.Sprintf("sub_filters[%d]", i))
		if sub == nil {
			v.addError(spath, "nil sub-filter")
			continue
		}
		v.validateFilter(sub, spath)
	}
}

func (v *validator) validateValue(path, field string, val any) {
	switch val.(type) {
	case nil, ir.Null:
		// = NULL is never true in SQL but matches missing fields in documents.
		v.addError(path, "field %q compared to null", field)
		return
	}
	if _, err := ir.FromAny(val); err != nil {
		v.addError(path, "field %q: %v", field, err)
	}
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}
