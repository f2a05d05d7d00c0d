package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
	"github.com/roach88/datamgr/internal/querysql"
)

// Store is a relational data store. It implements datastore.DataStore,
// datastore.SchemaManager and datastore.RawSQL.
//
// A Store is not safe for concurrent use; use Copy for each goroutine.
type Store struct {
	driver *Driver
	opts   datastore.Options
	log    *slog.Logger
	conn   Conn
	gate   datastore.Gate

	// keys caches primary keys by table for upserts.
	keys map[string][]string
}

var (
	_ datastore.DataStore        = (*Store)(nil)
	_ datastore.SchemaManager    = (*Store)(nil)
	_ datastore.RawSQL           = (*Store)(nil)
	_ datastore.ColumnNormalizer = (*Store)(nil)
)

// New returns an unconnected store for driver.
func New(driver *Driver, opts datastore.Options) *Store {
	opts = opts.WithDefaults()
	return &Store{
		driver: driver,
		opts:   opts,
		log:    opts.Logger.With("backend", driver.Name),
		keys:   make(map[string][]string),
	}
}

func (s *Store) Kind() string { return s.driver.Name }

func (s *Store) Capabilities() datastore.Capability {
	return datastore.CapSchema | datastore.CapRawSQL | datastore.CapNativeUpsert | datastore.CapServerClock
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() *querysql.Dialect { return s.driver.Dialect }

// ConnectToDatabase opens the connection and, when migrationSet is not
// empty, runs the configured migrator before any data operation is allowed.
// A migration failure leaves the store refusing every operation.
func (s *Store) ConnectToDatabase(ctx context.Context, connectionString, migrationSet string, validateTables bool) error {
	if s.conn != nil {
		return datastore.Errorf(datastore.KindConnection, "connect", "", "already connected")
	}
	conn, err := s.driver.Open(ctx, connectionString)
	if err != nil {
		return datastore.NewError(datastore.KindConnection, "connect", "", err)
	}
	s.conn = conn
	s.gate.Begin()
	s.log.InfoContext(ctx, "connected", "migration_set", migrationSet)

	if migrationSet != "" {
		if s.opts.Migrator == nil {
			return s.gate.Fail("", fmt.Errorf("no migrator configured for set %q", migrationSet))
		}
		if err := s.opts.Migrator.Migrate(ctx, s, migrationSet, validateTables); err != nil {
			s.log.ErrorContext(ctx, "migration failed", "migration_set", migrationSet, "error", err)
			return s.gate.Fail("", err)
		}
	}
	s.gate.Open()
	return nil
}

// Copy returns a new unconnected store with the same driver and options.
func (s *Store) Copy() datastore.DataStore {
	return New(s.driver, s.opts)
}

func (s *Store) Close() error {
	s.gate.Close()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	clear(s.keys)
	if err != nil {
		return datastore.NewError(datastore.KindConnection, "close", "", err)
	}
	return nil
}

// ready checks the gate and validates the filter.
func (s *Store) ready(op, table string, f *queryir.Filter) error {
	if err := s.gate.Check(op, table); err != nil {
		return err
	}
	if res := queryir.Validate(f); !res.Valid {
		return datastore.NewError(datastore.KindQuery, op, table, res.Err())
	}
	return nil
}

func (s *Store) exec(ctx context.Context, op, table string, stmt querysql.Statement) (int64, error) {
	start := time.Now()
	n, err := s.conn.Exec(ctx, stmt.SQL, stmt.Args...)
	s.logStatement(ctx, op, table, stmt, n, start, err)
	return n, err
}

func (s *Store) query(ctx context.Context, op, table string, stmt querysql.Statement) (*ir.ResultSet, error) {
	start := time.Now()
	rs, err := s.conn.Query(ctx, stmt.SQL, stmt.Args...)
	s.logStatement(ctx, op, table, stmt, int64(rs.Len()), start, err)
	return rs, err
}

func (s *Store) logStatement(ctx context.Context, op, table string, stmt querysql.Statement, rows int64, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"table", table,
		"sql", stmt.SQL,
		"args", len(stmt.Args),
		"rows", rows,
		"duration", time.Since(start),
	}
	if err != nil {
		s.log.DebugContext(ctx, "statement failed", append(attrs, "error", err)...)
		return
	}
	s.log.DebugContext(ctx, "statement", attrs...)
}

// insertError wraps an insert failure, marking key conflicts.
func (s *Store) insertError(op, table string, row int, err error) error {
	if s.driver.IsDuplicate != nil && s.driver.IsDuplicate(err) {
		err = fmt.Errorf("%w: %w", datastore.ErrDuplicateKey, err)
	}
	return &datastore.Error{Kind: datastore.KindInsert, Op: op, Table: table, Row: row, Err: err}
}
