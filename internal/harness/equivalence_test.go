package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiverge(t *testing.T) {
	one, two := int64(1), int64(2)
	a := NewResult("s", "sqlite")
	a.Trace = []TraceEvent{
		{Seq: 1, Op: OpInsert, Table: "t"},
		{Seq: 2, Op: OpDelete, Table: "t", Affected: &one},
	}
	same := NewResult("s", "memdoc")
	same.Trace = []TraceEvent{
		{Seq: 1, Op: OpInsert, Table: "t"},
		{Seq: 2, Op: OpDelete, Table: "t", Affected: &one},
	}

	_, ok := diverge(a, same)
	assert.False(t, ok)

	other := NewResult("s", "memdoc")
	other.Trace = []TraceEvent{
		{Seq: 1, Op: OpInsert, Table: "t"},
		{Seq: 2, Op: OpDelete, Table: "t", Affected: &two},
	}
	d, ok := diverge(a, other)
	assert.True(t, ok)
	assert.Equal(t, 2, d.Seq)
	assert.Equal(t, [2]string{"sqlite", "memdoc"}, d.Backends)
	assert.Contains(t, d.String(), "step 2 differs between sqlite and memdoc")

	short := NewResult("s", "memdoc")
	short.Trace = a.Trace[:1]
	d, ok = diverge(a, short)
	assert.True(t, ok)
	assert.Equal(t, 2, d.Seq)
	assert.Empty(t, d.Right.Op)
}

func TestSameEvent_Rows(t *testing.T) {
	a := TraceEvent{Seq: 1, Op: OpQuery, Table: "t", Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	b := a
	b.Rows = [][]string{{"1"}}
	assert.True(t, sameEvent(a, b))

	b.Rows = [][]string{{"2"}}
	assert.False(t, sameEvent(a, b))

	c := a
	c.Columns = []string{"A"}
	assert.False(t, sameEvent(a, c))
}

func TestComparison_Equivalent(t *testing.T) {
	pass := NewResult("s", "a")
	fail := NewResult("s", "b")
	fail.AddError("boom")

	assert.True(t, (&Comparison{Results: []*Result{pass, pass}}).Equivalent())
	assert.False(t, (&Comparison{Results: []*Result{pass, fail}}).Equivalent())
	assert.False(t, (&Comparison{Results: []*Result{pass, pass}, Divergences: []Divergence{{}}}).Equivalent())
}
