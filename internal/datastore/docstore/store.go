package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/queryir"
)

// CatalogCollection holds one document per defined table.
const CatalogCollection = "_tables"

// Store is a document data store. It implements datastore.DataStore and
// datastore.SchemaManager.
//
// A Store is not safe for concurrent use; use Copy for each goroutine.
type Store struct {
	driver *Driver
	opts   datastore.Options
	log    *slog.Logger
	eng    Engine
	gate   datastore.Gate

	// defs caches catalog lookups; a nil entry records a table without a
	// definition.
	defs map[string]*datastore.TableDefinition
}

var (
	_ datastore.DataStore     = (*Store)(nil)
	_ datastore.SchemaManager = (*Store)(nil)
)

// New returns an unconnected store for driver.
func New(driver *Driver, opts datastore.Options) *Store {
	opts = opts.WithDefaults()
	return &Store{
		driver: driver,
		opts:   opts,
		log:    opts.Logger.With("backend", driver.Name),
		defs:   make(map[string]*datastore.TableDefinition),
	}
}

func (s *Store) Kind() string { return s.driver.Name }

func (s *Store) Capabilities() datastore.Capability {
	return datastore.CapSchema | s.driver.Capabilities
}

// ConnectToDatabase opens the engine and, when migrationSet is not empty,
// runs the configured migrator before any data operation is allowed.
func (s *Store) ConnectToDatabase(ctx context.Context, connectionString, migrationSet string, validateTables bool) error {
	if s.eng != nil {
		return datastore.Errorf(datastore.KindConnection, "connect", "", "already connected")
	}
	eng, err := s.driver.Open(ctx, connectionString, s.opts)
	if err != nil {
		return datastore.NewError(datastore.KindConnection, "connect", "", err)
	}
	s.eng = eng
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
	if s.eng == nil {
		return nil
	}
	err := s.eng.Close(context.Background())
	s.eng = nil
	clear(s.defs)
	if err != nil {
		return datastore.NewError(datastore.KindConnection, "close", "", err)
	}
	return nil
}

func (s *Store) ready(op, table string, f *queryir.Filter) error {
	if err := s.gate.Check(op, table); err != nil {
		return err
	}
	if res := queryir.Validate(f); !res.Valid {
		return datastore.NewError(datastore.KindQuery, op, table, res.Err())
	}
	return nil
}

func (s *Store) now() time.Time { return s.opts.Clock.Now() }

// logOp logs one engine call. Field values are never logged.
func (s *Store) logOp(ctx context.Context, op, table string, query bson.D, docs int64, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"table", table,
		"query_fields", len(query),
		"docs", docs,
		"duration", time.Since(start),
	}
	if err != nil {
		s.log.DebugContext(ctx, "engine call failed", append(attrs, "error", err)...)
		return
	}
	s.log.DebugContext(ctx, "engine call", attrs...)
}

// insertError wraps an insert failure, marking key conflicts.
func (s *Store) insertError(op, table string, row int, err error) error {
	if s.isDuplicate(err) {
		err = fmt.Errorf("%w: %w", datastore.ErrDuplicateKey, err)
	}
	return &datastore.Error{Kind: datastore.KindInsert, Op: op, Table: table, Row: row, Err: err}
}

func (s *Store) isDuplicate(err error) bool {
	return s.driver.IsDuplicate != nil && s.driver.IsDuplicate(err)
}

// definition returns the catalog definition of table, or nil.
func (s *Store) definition(ctx context.Context, table string) (*datastore.TableDefinition, error) {
	if def, ok := s.defs[table]; ok {
		return def, nil
	}
	docs, err := s.eng.Find(ctx, CatalogCollection, bson.D{{Key: IDField, Value: table}}, FindOptions{})
	if err != nil {
		return nil, err
	}
	var def *datastore.TableDefinition
	if len(docs) > 0 {
		raw, ok := toMap(docs[0])["definition"].(string)
		if !ok {
			return nil, fmt.Errorf("catalog entry of %s has no definition", table)
		}
		def = new(datastore.TableDefinition)
		if err := json.Unmarshal([]byte(raw), def); err != nil {
			return nil, fmt.Errorf("catalog entry of %s: %w", table, err)
		}
	}
	s.defs[table] = def
	return def, nil
}

func (s *Store) saveDefinition(ctx context.Context, def datastore.TableDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	entry := bson.D{
		{Key: IDField, Value: def.Name},
		{Key: "definition", Value: string(raw)},
		{Key: "updated_at", Value: primitive.NewDateTimeFromTime(s.now())},
	}
	if err := s.eng.ReplaceOne(ctx, CatalogCollection, bson.D{{Key: IDField, Value: def.Name}}, entry); err != nil {
		return err
	}
	s.defs[def.Name] = &def
	return nil
}

func (s *Store) dropDefinition(ctx context.Context, table string) error {
	delete(s.defs, table)
	_, err := s.eng.DeleteMany(ctx, CatalogCollection, bson.D{{Key: IDField, Value: table}})
	return err
}
