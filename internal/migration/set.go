package migration

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
)

// DataHook runs inside a step after its schema changes.
type DataHook func(ctx context.Context, ds datastore.DataStore) error

// Step is one schema version.
type Step struct {
	Version int `yaml:"version" json:"version"`

	// Tables are created when missing and updated otherwise.
	Tables []datastore.TableDefinition `yaml:"tables,omitempty" json:"tables,omitempty"`

	// RenameColumns maps table name to old column name to new column name.
	RenameColumns map[string]map[string]string `yaml:"rename_columns,omitempty" json:"rename_columns,omitempty"`

	DropTables []string `yaml:"drop_tables,omitempty" json:"drop_tables,omitempty"`

	// RenameTables maps old table names to new ones.
	RenameTables map[string]string `yaml:"rename_tables,omitempty" json:"rename_tables,omitempty"`

	Data DataHook `yaml:"-" json:"-"`
}

// Set is a named, ordered list of steps.
type Set struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Validate checks the set has a name, versions ascend from 1 without
// repeats, and every table definition is valid.
func (s Set) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("migration set has no name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("migration set %s has no steps", s.Name)
	}
	last := 0
	for _, st := range s.Steps {
		if st.Version <= last {
			return fmt.Errorf("migration set %s: step version %d must be greater than %d", s.Name, st.Version, last)
		}
		last = st.Version
		for _, def := range st.Tables {
			if err := def.Validate(); err != nil {
				return fmt.Errorf("migration set %s step %d: %w", s.Name, st.Version, err)
			}
		}
		for table, renames := range st.RenameColumns {
			if !slices.ContainsFunc(st.Tables, func(d datastore.TableDefinition) bool { return d.Name == table }) {
				return fmt.Errorf("migration set %s step %d: column renames for %s without its definition", s.Name, st.Version, table)
			}
			for from, to := range renames {
				if from == "" || to == "" {
					return fmt.Errorf("migration set %s step %d: empty column rename on %s", s.Name, st.Version, table)
				}
			}
		}
	}
	return nil
}

// Latest returns the highest step version, or 0 for an empty set.
func (s Set) Latest() int {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[len(s.Steps)-1].Version
}

// Pending returns the steps after version current.
func (s Set) Pending(current int) []Step {
	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.Version > current })
	if i < 0 {
		return nil
	}
	return s.Steps[i:]
}

// Step returns the step with the given version.
func (s Set) Step(version int) (Step, bool) {
	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.Version == version })
	if i < 0 {
		return Step{}, false
	}
	return s.Steps[i], true
}

// Schema returns the table definitions in effect after the last step,
// sorted by table name.
func (s Set) Schema() []datastore.TableDefinition {
	tables := make(map[string]datastore.TableDefinition)
	for _, st := range s.Steps {
		for _, def := range st.Tables {
			tables[def.Name] = def
		}
		for _, name := range st.DropTables {
			delete(tables, name)
		}
		for _, from := range slices.Sorted(maps.Keys(st.RenameTables)) {
			def, ok := tables[from]
			if !ok {
				continue
			}
			delete(tables, from)
			def.Name = st.RenameTables[from]
			tables[def.Name] = def
		}
	}
	out := make([]datastore.TableDefinition, 0, len(tables))
	for _, name := range slices.Sorted(maps.Keys(tables)) {
		out = append(out, tables[name])
	}
	return out
}

// Checksum identifies the step's schema changes. Data hooks only count by
// presence.
func (st Step) Checksum() (string, error) {
	tables := make([]any, len(st.Tables))
	for i, def := range st.Tables {
		tables[i] = canonicalTable(def)
	}
	renames := make(map[string]any, len(st.RenameColumns))
	for table, cols := range st.RenameColumns {
		renames[table] = stringMap(cols)
	}
	drops := slices.Clone(st.DropTables)
	if drops == nil {
		drops = []string{}
	}
	return ir.Checksum(ir.DomainSchemaStep, map[string]any{
		"version":        int64(st.Version),
		"tables":         tables,
		"rename_columns": renames,
		"drop_tables":    drops,
		"rename_tables":  stringMap(st.RenameTables),
		"data":           st.Data != nil,
	})
}

func canonicalTable(def datastore.TableDefinition) map[string]any {
	cols := make([]any, len(def.Columns))
	for i, c := range def.Columns {
		col := map[string]any{
			"name":           c.Name,
			"type":           c.Type.String(),
			"primary":        c.IsPrimary,
			"auto_increment": c.AutoIncrement,
		}
		if c.Default != nil {
			col["default"] = *c.Default
		}
		cols[i] = col
	}
	indices := make([]any, len(def.Indices))
	for i, idx := range def.Indices {
		indices[i] = map[string]any{
			"name":    idx.Name,
			"columns": slices.Clone(idx.Columns),
			"unique":  idx.Unique,
		}
	}
	return map[string]any{"name": def.Name, "columns": cols, "indices": indices}
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
