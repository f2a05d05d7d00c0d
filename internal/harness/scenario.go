package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/queryir"
)

// Scenario is a sequence of data-store operations with expectations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// MigrationSet is migrated when the store connects.
	MigrationSet string `yaml:"migration_set,omitempty"`

	// Tables are created after connecting, before the first step.
	Tables []datastore.TableDefinition `yaml:"tables,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Operation names.
const (
	OpInsert         = "insert"
	OpInsertMultiple = "insert_multiple"
	OpInsertOrUpdate = "insert_or_update"
	OpReplace        = "replace"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpDeleteByTime   = "delete_by_time"
	OpQuery          = "query"
)

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op    string `yaml:"op"`
	Table string `yaml:"table"`

	Row  map[string]any   `yaml:"row,omitempty"`
	Rows []map[string]any `yaml:"rows,omitempty"`

	ConflictKey   string `yaml:"conflict_key,omitempty"`
	ConflictValue any    `yaml:"conflict_value,omitempty"`

	Set       map[string]any   `yaml:"set,omitempty"`
	Increment map[string]int64 `yaml:"increment,omitempty"`

	TimeColumn string `yaml:"time_column,omitempty"`

	Columns []string              `yaml:"columns,omitempty"`
	Where   *queryir.Filter       `yaml:"where,omitempty"`
	Sort    []datastore.SortField `yaml:"sort,omitempty"`
	Offset  *uint64               `yaml:"offset,omitempty"`
	Limit   *uint64               `yaml:"limit,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step. Without Error, the step must
// succeed.
type Expect struct {
	// Rows are the exact query result, one string per cell; NULL is
	// written as "NULL".
	Rows [][]string `yaml:"rows,omitempty"`

	// Count is the number of affected or returned rows.
	Count *int64 `yaml:"count,omitempty"`

	// Error is the expected datastore.Kind, e.g. INSERT_ERROR.
	Error datastore.Kind `yaml:"error,omitempty"`

	// Duplicate requires the error to be a key conflict.
	Duplicate bool `yaml:"duplicate,omitempty"`

	// FailedRow is the index reported by a failed insert_multiple.
	FailedRow *int `yaml:"failed_row,omitempty"`
}

// Assertion types.
const (
	AssertRowCount    = "row_count"
	AssertFinalState  = "final_state"
	AssertTableExists = "table_exists"
	AssertTraceCount  = "trace_count"
)

// Assertion checks the store or the trace after the last step.
type Assertion struct {
	Type  string          `yaml:"type"`
	Table string          `yaml:"table,omitempty"`
	Where *queryir.Filter `yaml:"where,omitempty"`

	// Expect holds column values of the single matching row (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of rows (row_count) or of trace events
	// with Op (trace_count).
	Count int `yaml:"count,omitempty"`

	Op string `yaml:"op,omitempty"`

	// Exists is the expected outcome of table_exists.
	Exists *bool `yaml:"exists,omitempty"`
}

// LoadScenario reads one scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks required fields per operation and assertion type.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	for i, def := range s.Tables {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
	}
	for i, st := range s.Steps {
		if err := validateStep(st); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(st Step) error {
	if st.Table == "" {
		return errors.New("table is required")
	}
	if st.Where != nil {
		if err := queryir.Validate(st.Where).Err(); err != nil {
			return err
		}
	}
	switch st.Op {
	case OpInsert, OpReplace:
		if len(st.Row) == 0 {
			return fmt.Errorf("row is required for %s", st.Op)
		}
	case OpInsertMultiple:
		if len(st.Rows) == 0 {
			return errors.New("rows is required for insert_multiple")
		}
	case OpInsertOrUpdate:
		if len(st.Row) == 0 || st.ConflictKey == "" {
			return errors.New("row and conflict_key are required for insert_or_update")
		}
	case OpUpdate:
		if len(st.Set) == 0 && len(st.Increment) == 0 {
			return errors.New("set or increment is required for update")
		}
	case OpDeleteByTime:
		if st.TimeColumn == "" {
			return errors.New("time_column is required for delete_by_time")
		}
	case OpDelete, OpQuery:
	case "":
		return errors.New("op is required")
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	if st.Expect != nil && len(st.Expect.Rows) > 0 && st.Op != OpQuery {
		return fmt.Errorf("expect.rows only applies to query, not %s", st.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertRowCount:
		if a.Table == "" || a.Count < 0 {
			return errors.New("row_count needs a table and a non-negative count")
		}
	case AssertFinalState:
		if a.Table == "" || len(a.Expect) == 0 {
			return errors.New("final_state needs a table and expect")
		}
	case AssertTableExists:
		if a.Table == "" {
			return errors.New("table_exists needs a table")
		}
	case AssertTraceCount:
		if a.Op == "" || a.Count < 0 {
			return errors.New("trace_count needs an op and a non-negative count")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Where != nil {
		return queryir.Validate(a.Where).Err()
	}
	return nil
}
