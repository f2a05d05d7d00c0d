package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
)

// AssertionError is a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
	if len(e.Trace) > 0 {
		buf.WriteString("\ntrace:")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "\n  [%d] %s %s", ev.Seq, ev.Op, ev.Table)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " -> %s", ev.Error)
			}
		}
	}
	return buf.String()
}

func evaluate(ctx context.Context, ds datastore.DataStore, trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertRowCount:
		rs, err := ds.Query(ctx, datastore.All, a.Table, a.Where, datastore.QueryOptions{})
		if err != nil {
			return err
		}
		if rs.Len() != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
				Actual:   strconv.Itoa(rs.Len()),
				Trace:    trace,
			}
		}
	case AssertFinalState:
		return assertFinalState(ctx, ds, trace, a)
	case AssertTableExists:
		sm, err := datastore.AsSchema(ds)
		if err != nil {
			return err
		}
		exists, err := sm.TableExists(ctx, a.Table)
		if err != nil {
			return err
		}
		want := a.Exists == nil || *a.Exists
		if exists != want {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("table %s exists=%t", a.Table, want),
				Actual:   fmt.Sprintf("exists=%t", exists),
			}
		}
	case AssertTraceCount:
		n := 0
		for _, ev := range trace {
			if ev.Op == a.Op && (a.Table == "" || ev.Table == a.Table) {
				n++
			}
		}
		if n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s steps", a.Count, a.Op),
				Actual:   strconv.Itoa(n),
				Trace:    trace,
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertFinalState requires exactly one matching row and compares the
// expected columns only.
func assertFinalState(ctx context.Context, ds datastore.DataStore, trace []TraceEvent, a Assertion) error {
	rs, err := ds.Query(ctx, datastore.All, a.Table, a.Where, datastore.QueryOptions{})
	if err != nil {
		return err
	}
	if rs.Len() != 1 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("exactly one row in %s", a.Table),
			Actual:   fmt.Sprintf("%d rows", rs.Len()),
			Trace:    trace,
		}
	}
	row := rs.Maps()[0]
	for _, col := range slices.Sorted(maps.Keys(a.Expect)) {
		want := a.Expect[col]
		got, ok := lookupFold(row, col)
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("column %q", col),
				Actual:   fmt.Sprintf("columns %v", rs.Columns),
			}
		}
		if !matchValue(want, got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s = %v", col, want),
				Actual:   fmt.Sprintf("%s = %s (%s)", col, renderValue(got), got.Kind()),
				Trace:    trace,
			}
		}
	}
	return nil
}

func lookupFold(row map[string]ir.Value, col string) (ir.Value, bool) {
	if v, ok := row[col]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, col) {
			return v, true
		}
	}
	return nil, false
}

// matchValue compares a YAML value with a stored cell. Backends without a
// boolean type store 0 and 1; numbers may come back as strings from
// schemaless tables.
func matchValue(want any, got ir.Value) bool {
	if got == nil {
		got = ir.Null{}
	}
	switch w := want.(type) {
	case nil:
		return got.Kind() == ir.KindNull
	case bool:
		switch g := got.(type) {
		case ir.Bool:
			return bool(g) == w
		case ir.Int:
			return (g != 0) == w
		}
		return false
	case int:
		return matchInt(int64(w), got)
	case int64:
		return matchInt(w, got)
	case float64:
		switch g := got.(type) {
		case ir.Float:
			return float64(g) == w
		case ir.Int:
			return float64(g) == w
		}
		return false
	case string:
		return got.Kind() != ir.KindNull && got.String() == w
	default:
		return fmt.Sprint(want) == got.String()
	}
}

func matchInt(w int64, got ir.Value) bool {
	switch g := got.(type) {
	case ir.Int:
		return int64(g) == w
	case ir.Float:
		return float64(g) == float64(w)
	case ir.String:
		return string(g) == strconv.FormatInt(w, 10)
	}
	return false
}
