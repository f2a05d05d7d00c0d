package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/backends"
	"github.com/roach88/datamgr/internal/datastore/memdoc"
	"github.com/roach88/datamgr/internal/migration"
	"github.com/roach88/datamgr/internal/testutil"
)

func newHarness(t *testing.T) *Harness {
	t.Helper()
	catalog, err := migration.NewCatalog(migration.Auth())
	require.NoError(t, err)
	clock := testutil.NewFakeClock(testutil.Epoch)
	mgr := migration.NewManager(catalog, migration.Options{Logger: datastore.DiscardLogger(), Clock: clock})
	registry := backends.NewRegistry(backends.Options{
		Options: datastore.Options{Logger: datastore.DiscardLogger(), Migrator: mgr, Clock: clock},
		Memdoc:  memdoc.NewServer(),
	})
	return New(registry, datastore.DiscardLogger())
}

func targets(t *testing.T) map[string]Target {
	return map[string]Target{
		"memdoc": {ConnectionString: "memdoc://scenario"},
		"sqlite": {Backend: "sqlite", ConnectionString: filepath.Join(t.TempDir(), "scenario.db")},
	}
}

func loadFixture(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"auth_token_lifecycle", "counters"} {
		for backend := range targets(t) {
			t.Run(name+"/"+backend, func(t *testing.T) {
				h := newHarness(t)
				r := h.RunWithGolden(t, loadFixture(t, name), targets(t)[backend])
				assert.True(t, r.Pass)
				assert.Equal(t, backend, r.Backend)
			})
		}
	}
}

func TestCompare_MemdocMatchesSQLite(t *testing.T) {
	h := newHarness(t)
	tg := targets(t)

	for _, name := range []string{"auth_token_lifecycle", "counters", "filter_equivalence"} {
		c, err := h.Compare(context.Background(), loadFixture(t, name), tg["sqlite"], Target{ConnectionString: "memdoc://" + name})
		require.NoError(t, err)
		assert.True(t, c.Equivalent(), "%s: %v", name, c.Divergences)
		require.Len(t, c.Results, 2)
		tg["sqlite"] = Target{Backend: "sqlite", ConnectionString: filepath.Join(t.TempDir(), name+".db")}
	}
}

func TestRun_FilterEquivalence(t *testing.T) {
	for backend, target := range targets(t) {
		t.Run(backend, func(t *testing.T) {
			r, err := newHarness(t).Run(context.Background(), loadFixture(t, "filter_equivalence"), target)
			require.NoError(t, err)
			assert.True(t, r.Pass, "%v", r.Errors)
			require.Len(t, r.Trace, 9)
			assert.Equal(t, [][]string{{"b"}, {"f"}}, r.Trace[1].Rows)
			assert.Empty(t, r.Trace[4].Rows)
		})
	}
}

func TestCompare_NeedsTwoTargets(t *testing.T) {
	_, err := newHarness(t).Compare(context.Background(), loadFixture(t, "counters"), Target{ConnectionString: "memdoc://x"})
	assert.ErrorContains(t, err, "at least two targets")
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
tables:
  - name: t
    columns: [{name: id, type: integer, primary: true}, {name: v, type: string(8)}]
steps:
  - {op: insert, table: t, row: {id: 1, v: x}}
  - {op: insert, table: t, row: {id: 2, v: y}, expect: {error: INSERT_ERROR}}
  - {op: insert, table: t, row: {id: 1, v: z}}
  - {op: query, table: t, columns: [v], sort: [{field: id}], expect: {rows: [[y]], count: 5}}
  - {op: delete, table: t, where: {equals_and: {id: 9}}, expect: {count: 1}}
assertions:
  - {type: row_count, table: t, count: 3}
  - {type: final_state, table: t, where: {equals_and: {id: 1}}, expect: {v: nope}}
  - {type: table_exists, table: t, exists: false}
  - {type: trace_count, op: insert, count: 1}
`))
	require.NoError(t, err)

	r, err := newHarness(t).Run(context.Background(), s, Target{ConnectionString: "memdoc://wrong"})
	require.NoError(t, err)

	assert.False(t, r.Pass)
	require.Len(t, r.Errors, 9)
	assert.Contains(t, r.Errors[0], "steps[1] insert t: expected INSERT_ERROR, got success")
	assert.Contains(t, r.Errors[1], "steps[2] insert t: unexpected error")
	assert.Contains(t, r.Errors[2], "expected count 5, got 2")
	assert.Contains(t, r.Errors[3], "expected rows [[y]], got [[x] [y]]")
	assert.Contains(t, r.Errors[4], "expected count 1, got 0")
	assert.Contains(t, r.Errors[5], "row_count: expected 3 rows in t, got 2")
	assert.Contains(t, r.Errors[6], "final_state: expected v = nope, got v = x")
	assert.Contains(t, r.Errors[7], "table_exists")
	assert.Contains(t, r.Errors[8], "trace_count: expected 1 insert steps, got 3")

	require.Len(t, r.Trace, 5)
	assert.Equal(t, "INSERT_ERROR", r.Trace[2].Error)
	assert.True(t, r.Trace[2].Duplicate)
}

func TestRun_OpenFailure(t *testing.T) {
	s := loadFixture(t, "auth_token_lifecycle")
	s.MigrationSet = "Missing"

	_, err := newHarness(t).Run(context.Background(), s, Target{ConnectionString: "memdoc://x"})
	require.Error(t, err)
	assert.True(t, datastore.IsKind(err, datastore.KindMigrationFailed))

	_, err = newHarness(t).Run(context.Background(), s, Target{ConnectionString: "nope://x"})
	assert.Error(t, err)
}

func TestMarshalSnapshot_OmitsBackend(t *testing.T) {
	n := int64(0)
	r := NewResult("s", "sqlite")
	r.Trace = append(r.Trace, TraceEvent{Seq: 1, Op: OpDelete, Table: "t", Affected: &n})

	data, err := MarshalSnapshot(r)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"s","trace":[{"affected":0,"op":"delete","seq":1,"table":"t"}]}`, string(data))
}
