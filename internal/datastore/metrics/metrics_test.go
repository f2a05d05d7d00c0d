package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/memdoc"
	"github.com/roach88/datamgr/internal/datastore/sqlite"
	"github.com/roach88/datamgr/internal/queryir"
)

func newMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	return m, reg
}

func openMemdoc(t *testing.T, m *Metrics) *Store {
	t.Helper()
	s := m.Wrap(memdoc.New(memdoc.NewServer(), datastore.Options{Logger: datastore.DiscardLogger()}))
	require.NoError(t, s.ConnectToDatabase(context.Background(), "memdoc://metrics", "", false))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_RejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestStore_CountsOperations(t *testing.T) {
	m, _ := newMetrics(t)
	s := openMemdoc(t, m)
	ctx := context.Background()

	require.NoError(t, s.InsertMultiple(ctx, "t", []datastore.Row{{"k": 1}, {"k": 2}, {"k": 3}}))
	_, err := s.Query(ctx, datastore.All, "t", nil, datastore.QueryOptions{})
	require.NoError(t, err)
	n, err := s.Delete(ctx, "t", queryir.New().Gt("k", 1))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memdoc", "connect", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memdoc", "query", ResultOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rows.WithLabelValues("memdoc", "insert_multiple")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rows.WithLabelValues("memdoc", "query")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues("memdoc", "delete")))
}

func TestStore_LabelsFailuresWithKind(t *testing.T) {
	m, _ := newMetrics(t)
	s := m.Wrap(memdoc.New(memdoc.NewServer(), datastore.Options{Logger: datastore.DiscardLogger()}))

	err := s.Insert(context.Background(), "t", datastore.Row{"k": 1})

	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.operations.WithLabelValues("memdoc", "insert", string(datastore.KindBackendUnavailable))))
	assert.Equal(t, 0, testutil.CollectAndCount(m.rows))
}

func TestStore_PartialInsertCountsAppliedRows(t *testing.T) {
	m, _ := newMetrics(t)
	s := openMemdoc(t, m)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, datastore.TableDefinition{
		Name:    "t",
		Columns: []datastore.ColumnDefinition{{Name: "k", Type: datastore.ColumnType{Kind: datastore.Integer}, IsPrimary: true}},
	}))

	err := s.InsertMultiple(ctx, "t", []datastore.Row{{"k": 1}, {"k": 2}, {"k": 1}})

	assert.ErrorIs(t, err, datastore.ErrDuplicateKey)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues("memdoc", "insert_multiple")))
}

func TestStore_KeepsTraits(t *testing.T) {
	m, _ := newMetrics(t)
	ctx := context.Background()

	doc := openMemdoc(t, m)
	_, err := datastore.AsSchema(doc)
	assert.NoError(t, err)
	_, err = datastore.AsRawSQL(doc)
	assert.True(t, datastore.IsKind(err, datastore.KindNotSupported))
	_, err = doc.ExecRaw(ctx, "SELECT 1")
	assert.True(t, datastore.IsKind(err, datastore.KindNotSupported))

	rel := m.Wrap(sqlite.New(datastore.Options{Logger: datastore.DiscardLogger()}))
	require.NoError(t, rel.ConnectToDatabase(ctx, "sqlite://"+filepath.Join(t.TempDir(), "m.db"), "", false))
	defer rel.Close()
	raw, err := datastore.AsRawSQL(rel)
	require.NoError(t, err)
	rs, err := raw.QueryRaw(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	id := datastore.ColumnDefinition{Name: "id", Type: datastore.ColumnType{Kind: datastore.BigInteger}, AutoIncrement: true, IsPrimary: true}
	assert.Equal(t, datastore.Integer, rel.NormalizeColumn(id).Type.Kind)
	assert.Equal(t, id, doc.NormalizeColumn(id))
}

func TestStore_CopyIsInstrumented(t *testing.T) {
	m, _ := newMetrics(t)
	s := openMemdoc(t, m)

	c := s.Copy()

	require.IsType(t, &Store{}, c)
	require.NoError(t, c.ConnectToDatabase(context.Background(), "memdoc://other", "", false))
	defer c.Close()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("memdoc", "connect", ResultOK)))
}

func TestHandler(t *testing.T) {
	m, reg := newMetrics(t)
	s := openMemdoc(t, m)
	_, err := s.Query(context.Background(), datastore.All, "t", nil, datastore.QueryOptions{})
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `datamgr_store_operations_total{backend="memdoc",op="query",result="ok"} 1`))
}
