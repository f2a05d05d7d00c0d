package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/datamgr/internal/ir"
)

// Snapshot is the backend-independent part of a result.
type Snapshot struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
}

// canonical converts the snapshot into the value shapes accepted by
// ir.MarshalCanonical.
func (s Snapshot) canonical() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return normalizeNumbers(m).(map[string]any), nil
}

// normalizeNumbers turns JSON numbers, which are all integral here, into
// int64.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = normalizeNumbers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = normalizeNumbers(x)
		}
		return t
	case float64:
		return int64(t)
	default:
		return v
	}
}

// MarshalSnapshot renders the trace of r as canonical JSON.
func MarshalSnapshot(r *Result) ([]byte, error) {
	m, err := Snapshot{Scenario: r.Scenario, Trace: r.Trace}.canonical()
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(m)
}

// AssertGolden compares the trace of r against
// testdata/golden/<name>.golden. Run the tests with -update to rewrite it.
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()
	data, err := MarshalSnapshot(r)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// RunWithGolden runs s on target, fails the test on scenario errors and
// compares the trace with the golden file named after the scenario.
func (h *Harness) RunWithGolden(t *testing.T, s *Scenario, target Target) *Result {
	t.Helper()
	r, err := h.Run(context.Background(), s, target)
	if err != nil {
		t.Fatalf("run %s: %v", s.Name, err)
	}
	for _, e := range r.Errors {
		t.Error(e)
	}
	AssertGolden(t, s.Name, r)
	return r
}
