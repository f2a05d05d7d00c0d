package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
)

// Target selects the backend a scenario runs on.
type Target struct {
	// Backend is a registry name; empty resolves it from the
	// connection string scheme.
	Backend          string
	ConnectionString string
}

// Harness runs scenarios through a registry. Backends in the registry
// must be configured with a migrator for scenarios naming a migration set.
type Harness struct {
	registry *datastore.Registry
	log      *slog.Logger
}

func New(registry *datastore.Registry, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{registry: registry, log: logger}
}

// Run connects a store for target, executes the scenario and evaluates
// its assertions. Expectation failures land in Result.Errors; the error
// return is reserved for scenarios that could not run at all.
func (h *Harness) Run(ctx context.Context, s *Scenario, target Target) (*Result, error) {
	ds, err := h.registry.Open(ctx, target.Backend, target.ConnectionString, s.MigrationSet, false)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target.ConnectionString, err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			h.log.ErrorContext(ctx, "closing scenario store", "backend", ds.Kind(), "error", err)
		}
	}()
	return h.RunOn(ctx, s, ds)
}

// RunOn executes the scenario on a connected store.
func (h *Harness) RunOn(ctx context.Context, s *Scenario, ds datastore.DataStore) (*Result, error) {
	log := h.log.With("scenario", s.Name, "backend", ds.Kind())
	if len(s.Tables) > 0 {
		sm, err := datastore.AsSchema(ds)
		if err != nil {
			return nil, err
		}
		for _, def := range s.Tables {
			if err := sm.CreateTable(ctx, def); err != nil {
				return nil, fmt.Errorf("create table %s: %w", def.Name, err)
			}
		}
	}

	result := NewResult(s.Name, ds.Kind())
	for i, st := range s.Steps {
		ev := execute(ctx, ds, st)
		ev.Seq = i + 1
		result.Trace = append(result.Trace, ev.TraceEvent)
		checkStep(result, i, st, ev)
		log.DebugContext(ctx, "scenario step", "seq", ev.Seq, "op", st.Op, "table", st.Table, "error", ev.Error)
	}
	for i, a := range s.Assertions {
		if err := evaluate(ctx, ds, result.Trace, a); err != nil {
			result.AddError("assertions[%d]: %v", i, err)
		}
	}
	log.InfoContext(ctx, "scenario finished", "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

// outcome is a trace event plus the raw error for expectation checks.
type outcome struct {
	TraceEvent
	err error
}

func execute(ctx context.Context, ds datastore.DataStore, st Step) outcome {
	ev := outcome{TraceEvent: TraceEvent{Op: st.Op, Table: st.Table}}
	var (
		n   int64
		err error
	)
	switch st.Op {
	case OpInsert:
		err = ds.Insert(ctx, st.Table, st.Row)
	case OpInsertMultiple:
		rows := make([]datastore.Row, len(st.Rows))
		for i, r := range st.Rows {
			rows[i] = r
		}
		err = ds.InsertMultiple(ctx, st.Table, rows)
	case OpInsertOrUpdate:
		err = ds.InsertOrUpdate(ctx, st.Table, st.Row, st.ConflictKey, st.ConflictValue)
	case OpReplace:
		err = ds.Replace(ctx, st.Table, st.Row)
	case OpUpdate:
		n, err = ds.Update(ctx, st.Table, st.Set, st.Increment, st.Where,
			datastore.LimitOptions{Offset: st.Offset, Limit: st.Limit})
		ev.Affected = &n
	case OpDelete:
		n, err = ds.Delete(ctx, st.Table, st.Where)
		ev.Affected = &n
	case OpDeleteByTime:
		n, err = ds.DeleteByTime(ctx, st.Table, st.TimeColumn)
		ev.Affected = &n
	case OpQuery:
		columns := st.Columns
		if len(columns) == 0 {
			columns = datastore.All
		}
		var rs *ir.ResultSet
		rs, err = ds.Query(ctx, columns, st.Table, st.Where,
			datastore.QueryOptions{Sort: st.Sort, Offset: st.Offset, Limit: st.Limit})
		if err == nil {
			ev.Columns = rs.Columns
			ev.Rows = renderRows(rs)
		}
	default:
		err = fmt.Errorf("unknown op %q", st.Op)
	}

	if err != nil {
		ev.err = err
		ev.Affected = nil
		var de *datastore.Error
		if errors.As(err, &de) {
			ev.Error = string(de.Kind)
			if de.Row >= 0 && st.Op == OpInsertMultiple {
				row := de.Row
				ev.FailedRow = &row
			}
		} else {
			ev.Error = "UNKNOWN"
		}
		ev.Duplicate = errors.Is(err, datastore.ErrDuplicateKey)
	}
	return ev
}

// Null renders as NULL in traces and expectations.
const Null = "NULL"

func renderRows(rs *ir.ResultSet) [][]string {
	rows := make([][]string, 0, rs.Len())
	for _, r := range rs.Rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = renderValue(v)
		}
		rows = append(rows, cells)
	}
	return rows
}

func renderValue(v ir.Value) string {
	if v == nil || v.Kind() == ir.KindNull {
		return Null
	}
	return v.String()
}

func checkStep(result *Result, i int, st Step, ev outcome) {
	exp := st.Expect
	if exp == nil {
		exp = &Expect{}
	}
	prefix := fmt.Sprintf("steps[%d] %s %s", i, st.Op, st.Table)

	if exp.Error == "" {
		if ev.err != nil {
			result.AddError("%s: unexpected error: %v", prefix, ev.err)
			return
		}
	} else {
		switch {
		case ev.err == nil:
			result.AddError("%s: expected %s, got success", prefix, exp.Error)
		case ev.Error != string(exp.Error):
			result.AddError("%s: expected %s, got %v", prefix, exp.Error, ev.err)
		case exp.Duplicate && !ev.Duplicate:
			result.AddError("%s: expected a duplicate key error, got %v", prefix, ev.err)
		case exp.FailedRow != nil && (ev.FailedRow == nil || *ev.FailedRow != *exp.FailedRow):
			result.AddError("%s: expected failure at row %d, got %v", prefix, *exp.FailedRow, ev.err)
		}
		return
	}

	if exp.Count != nil {
		got := int64(len(ev.Rows))
		if ev.Affected != nil {
			got = *ev.Affected
		}
		if got != *exp.Count {
			result.AddError("%s: expected count %d, got %d", prefix, *exp.Count, got)
		}
	}
	if len(exp.Rows) > 0 && !slices.EqualFunc(exp.Rows, ev.Rows, slices.Equal[[]string]) {
		result.AddError("%s: expected rows %v, got %v", prefix, exp.Rows, ev.Rows)
	}
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
