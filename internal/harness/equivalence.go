package harness

import (
	"context"
	"fmt"
	"slices"
)

// Divergence is the first step at which two backends disagree.
type Divergence struct {
	Backends [2]string  `json:"backends"`
	Seq      int        `json:"seq"`
	Left     TraceEvent `json:"left"`
	Right    TraceEvent `json:"right"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("step %d differs between %s and %s: %+v vs %+v",
		d.Seq, d.Backends[0], d.Backends[1], d.Left, d.Right)
}

// Comparison holds the results of one scenario on several backends.
type Comparison struct {
	Results     []*Result    `json:"results"`
	Divergences []Divergence `json:"divergences,omitempty"`
}

// Equivalent reports whether every run passed with identical traces.
func (c *Comparison) Equivalent() bool {
	if len(c.Divergences) > 0 {
		return false
	}
	for _, r := range c.Results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Compare runs s on every target and diffs each trace against the first.
func (h *Harness) Compare(ctx context.Context, s *Scenario, targets ...Target) (*Comparison, error) {
	if len(targets) < 2 {
		return nil, fmt.Errorf("compare needs at least two targets, got %d", len(targets))
	}
	c := &Comparison{}
	for _, target := range targets {
		r, err := h.Run(ctx, s, target)
		if err != nil {
			return nil, err
		}
		c.Results = append(c.Results, r)
	}
	base := c.Results[0]
	for _, r := range c.Results[1:] {
		if d, ok := diverge(base, r); ok {
			c.Divergences = append(c.Divergences, d)
		}
	}
	return c, nil
}

func diverge(a, b *Result) (Divergence, bool) {
	n := max(len(a.Trace), len(b.Trace))
	for i := range n {
		var left, right TraceEvent
		if i < len(a.Trace) {
			left = a.Trace[i]
		}
		if i < len(b.Trace) {
			right = b.Trace[i]
		}
		if !sameEvent(left, right) {
			return Divergence{Backends: [2]string{a.Backend, b.Backend}, Seq: i + 1, Left: left, Right: right}, true
		}
	}
	return Divergence{}, false
}

func sameEvent(a, b TraceEvent) bool {
	return a.Seq == b.Seq && a.Op == b.Op && a.Table == b.Table &&
		equalPtr(a.Affected, b.Affected) && equalPtr(a.FailedRow, b.FailedRow) &&
		a.Error == b.Error && a.Duplicate == b.Duplicate &&
		slices.Equal(a.Columns, b.Columns) &&
		slices.EqualFunc(a.Rows, b.Rows, slices.Equal[[]string])
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
