package harness

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Seq   int    `json:"seq"`
	Op    string `json:"op"`
	Table string `json:"table"`

	// Affected is the row count returned by update and delete operations.
	Affected *int64 `json:"affected,omitempty"`

	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`

	// Error is the datastore.Kind of a failed step; Duplicate marks key
	// conflicts and FailedRow the index reported by insert_multiple.
	Error     string `json:"error,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	FailedRow *int   `json:"failed_row,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string `json:"scenario"`
	Backend  string `json:"backend"`

	// Pass is true when every expectation and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(scenario, backend string) *Result {
	return &Result{
		Scenario: scenario,
		Backend:  backend,
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, sprintf(format, args...))
	r.Pass = false
}
