// Package metrics instruments data stores with Prometheus counters and
// histograms.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

// ResultOK labels successful operations; failures are labeled with their
// datastore.Kind.
const ResultOK = "ok"

// Metrics holds the collectors shared by every wrapped store.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datamgr_store_operations_total",
			Help: "Data store operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datamgr_store_operation_seconds",
			Help:    "Data store operation latency.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"backend", "op"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datamgr_store_rows_total",
			Help: "Rows returned by queries or affected by mutations.",
		}, []string{"backend", "op"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.duration, m.rows} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(backend, op string, start time.Time, rows int64, err error) {
	result := ResultOK
	if err != nil {
		result = "unknown"
		var de *datastore.Error
		if errors.As(err, &de) {
			result = string(de.Kind)
		}
	}
	m.operations.WithLabelValues(backend, op, result).Inc()
	m.duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if rows > 0 {
		m.rows.WithLabelValues(backend, op).Add(float64(rows))
	}
}

// Wrap returns ds instrumented with m. The wrapper keeps the schema and raw
// SQL traits of ds; Copy returns an instrumented copy.
func (m *Metrics) Wrap(ds datastore.DataStore) *Store {
	return &Store{inner: ds, m: m}
}

// Store is an instrumented DataStore.
type Store struct {
	inner datastore.DataStore
	m     *Metrics
}

var (
	_ datastore.DataStore        = (*Store)(nil)
	_ datastore.SchemaManager    = (*Store)(nil)
	_ datastore.RawSQL           = (*Store)(nil)
	_ datastore.ColumnNormalizer = (*Store)(nil)
)

// Unwrap returns the instrumented store.
func (s *Store) Unwrap() datastore.DataStore { return s.inner }

func (s *Store) Kind() string                       { return s.inner.Kind() }
func (s *Store) Capabilities() datastore.Capability { return s.inner.Capabilities() }

func (s *Store) ConnectToDatabase(ctx context.Context, connectionString, migrationSet string, validateTables bool) error {
	start := time.Now()
	err := s.inner.ConnectToDatabase(ctx, connectionString, migrationSet, validateTables)
	s.m.observe(s.Kind(), "connect", start, 0, err)
	return err
}

func (s *Store) Query(ctx context.Context, columns []string, table string, f *queryir.Filter, opts datastore.QueryOptions) (*ir.ResultSet, error) {
	start := time.Now()
	rs, err := s.inner.Query(ctx, columns, table, f, opts)
	var n int64
	if rs != nil {
		n = int64(rs.Len())
	}
	s.m.observe(s.Kind(), "query", start, n, err)
	return rs, err
}

func (s *Store) Insert(ctx context.Context, table string, row datastore.Row) error {
	start := time.Now()
	err := s.inner.Insert(ctx, table, row)
	s.m.observe(s.Kind(), "insert", start, affected(1, err), err)
	return err
}

func (s *Store) InsertMultiple(ctx context.Context, table string, rows []datastore.Row) error {
	start := time.Now()
	err := s.inner.InsertMultiple(ctx, table, rows)
	n := int64(len(rows))
	var de *datastore.Error
	if errors.As(err, &de) && de.Row >= 0 {
		n = int64(de.Row)
	}
	s.m.observe(s.Kind(), "insert_multiple", start, n, err)
	return err
}

func (s *Store) InsertOrUpdate(ctx context.Context, table string, row datastore.Row, conflictKey string, conflictValue any) error {
	start := time.Now()
	err := s.inner.InsertOrUpdate(ctx, table, row, conflictKey, conflictValue)
	s.m.observe(s.Kind(), "insert_or_update", start, affected(1, err), err)
	return err
}

func (s *Store) Replace(ctx context.Context, table string, row datastore.Row) error {
	start := time.Now()
	err := s.inner.Replace(ctx, table, row)
	s.m.observe(s.Kind(), "replace", start, affected(1, err), err)
	return err
}

func (s *Store) Update(ctx context.Context, table string, set datastore.Row, increment map[string]int64, f *queryir.Filter, opts datastore.LimitOptions) (int64, error) {
	start := time.Now()
	n, err := s.inner.Update(ctx, table, set, increment, f, opts)
	s.m.observe(s.Kind(), "update", start, n, err)
	return n, err
}

func (s *Store) Delete(ctx context.Context, table string, f *queryir.Filter) (int64, error) {
	start := time.Now()
	n, err := s.inner.Delete(ctx, table, f)
	s.m.observe(s.Kind(), "delete", start, n, err)
	return n, err
}

func (s *Store) DeleteByTime(ctx context.Context, table, timeColumn string) (int64, error) {
	start := time.Now()
	n, err := s.inner.DeleteByTime(ctx, table, timeColumn)
	s.m.observe(s.Kind(), "delete_by_time", start, n, err)
	return n, err
}

func (s *Store) Copy() datastore.DataStore { return s.m.Wrap(s.inner.Copy()) }

func (s *Store) Close() error { return s.inner.Close() }

func affected(n int64, err error) int64 {
	if err != nil {
		return 0
	}
	return n
}

func (s *Store) schema() (datastore.SchemaManager, error) { return datastore.AsSchema(s.inner) }

func (s *Store) CreateTable(ctx context.Context, def datastore.TableDefinition) error {
	sm, err := s.schema()
	if err == nil {
		start := time.Now()
		err = sm.CreateTable(ctx, def)
		s.m.observe(s.Kind(), "create_table", start, 0, err)
	}
	return err
}

func (s *Store) UpdateTable(ctx context.Context, def datastore.TableDefinition, renameColumns map[string]string) error {
	sm, err := s.schema()
	if err == nil {
		start := time.Now()
		err = sm.UpdateTable(ctx, def, renameColumns)
		s.m.observe(s.Kind(), "update_table", start, 0, err)
	}
	return err
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	sm, err := s.schema()
	if err == nil {
		start := time.Now()
		err = sm.DropTable(ctx, table)
		s.m.observe(s.Kind(), "drop_table", start, 0, err)
	}
	return err
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	sm, err := s.schema()
	if err != nil {
		return false, err
	}
	return sm.TableExists(ctx, table)
}

func (s *Store) ForceRenameTable(ctx context.Context, oldName, newName string) error {
	sm, err := s.schema()
	if err == nil {
		start := time.Now()
		err = sm.ForceRenameTable(ctx, oldName, newName)
		s.m.observe(s.Kind(), "rename_table", start, 0, err)
	}
	return err
}

func (s *Store) Columns(ctx context.Context, table string) ([]datastore.ColumnDefinition, error) {
	sm, err := s.schema()
	if err != nil {
		return nil, err
	}
	return sm.Columns(ctx, table)
}

// NormalizeColumn delegates to the wrapped store's normalizer, if any.
func (s *Store) NormalizeColumn(c datastore.ColumnDefinition) datastore.ColumnDefinition {
	if n, ok := s.inner.(datastore.ColumnNormalizer); ok {
		return n.NormalizeColumn(c)
	}
	return c
}

func (s *Store) ExecRaw(ctx context.Context, statement string, args ...any) (int64, error) {
	raw, err := datastore.AsRawSQL(s.inner)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := raw.ExecRaw(ctx, statement, args...)
	s.m.observe(s.Kind(), "exec_raw", start, n, err)
	return n, err
}

func (s *Store) QueryRaw(ctx context.Context, statement string, args ...any) (*ir.ResultSet, error) {
	raw, err := datastore.AsRawSQL(s.inner)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rs, err := raw.QueryRaw(ctx, statement, args...)
	var n int64
	if rs != nil {
		n = int64(rs.Len())
	}
	s.m.observe(s.Kind(), "query_raw", start, n, err)
	return rs, err
}
