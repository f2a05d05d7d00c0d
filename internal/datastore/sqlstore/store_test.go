package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
	"github.com/roach88/datamgr/internal/querysql"
)

var errUnique = errors.New("UNIQUE constraint failed")

// fakeConn records statements instead of running them.
type fakeConn struct {
	execs   []querysql.Statement
	queries []querysql.Statement
	execErr func(n int, sql string) error
	result  func(sql string) *ir.ResultSet
	columns map[string][]datastore.ColumnDefinition
	lookups int
	closed  bool
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	n := len(c.execs)
	c.execs = append(c.execs, querysql.Statement{SQL: sql, Args: args})
	if c.execErr != nil {
		if err := c.execErr(n, sql); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...any) (*ir.ResultSet, error) {
	c.queries = append(c.queries, querysql.Statement{SQL: sql, Args: args})
	if c.result != nil {
		return c.result(sql), nil
	}
	return ir.NewResultSet(nil), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) execSQL() []string {
	out := make([]string, len(c.execs))
	for i, s := range c.execs {
		out[i] = s.SQL
	}
	return out
}

func fakeDriver(conn *fakeConn, dialect *querysql.Dialect) *Driver {
	return &Driver{
		Name:    "fake",
		Dialect: dialect,
		Open: func(context.Context, string) (Conn, error) {
			return conn, nil
		},
		IsDuplicate: func(err error) bool { return errors.Is(err, errUnique) },
		Columns: func(_ context.Context, _ Conn, table string) ([]datastore.ColumnDefinition, error) {
			conn.lookups++
			return conn.columns[table], nil
		},
	}
}

type migratorFunc func(ctx context.Context, ds datastore.DataStore, set string, validate bool) error

func (f migratorFunc) Migrate(ctx context.Context, ds datastore.DataStore, set string, validate bool) error {
	return f(ctx, ds, set, validate)
}

func connected(t *testing.T, conn *fakeConn, dialect *querysql.Dialect) *Store {
	t.Helper()
	s := New(fakeDriver(conn, dialect), datastore.Options{Logger: datastore.DiscardLogger()})
	require.NoError(t, s.ConnectToDatabase(context.Background(), "fake://", "", false))
	return s
}

func TestStore_RefusesBeforeConnect(t *testing.T) {
	s := New(fakeDriver(&fakeConn{}, querysql.SQLite), datastore.Options{Logger: datastore.DiscardLogger()})

	_, err := s.Query(context.Background(), datastore.All, "auth", nil, datastore.QueryOptions{})

	require.Error(t, err)
	assert.True(t, datastore.IsKind(err, datastore.KindBackendUnavailable))
	assert.ErrorIs(t, err, datastore.ErrNotConnected)
}

func TestStore_ConnectFailure(t *testing.T) {
	d := fakeDriver(&fakeConn{}, querysql.SQLite)
	d.Open = func(context.Context, string) (Conn, error) { return nil, errors.New("unable to open database file") }
	s := New(d, datastore.Options{Logger: datastore.DiscardLogger()})

	err := s.ConnectToDatabase(context.Background(), "/nope/x.db", "", false)

	assert.True(t, datastore.IsKind(err, datastore.KindConnection))
	assert.True(t, datastore.IsKind(s.Insert(context.Background(), "t", datastore.Row{"a": 1}), datastore.KindBackendUnavailable))
}

func TestStore_MigrationRunsBeforeDataOperations(t *testing.T) {
	conn := &fakeConn{}
	var calls []string
	m := migratorFunc(func(ctx context.Context, ds datastore.DataStore, set string, validate bool) error {
		calls = append(calls, set)
		assert.True(t, validate)
		// The migrator may use the store while the gate is migrating.
		return ds.Insert(ctx, "schema_versions", datastore.Row{"name": set, "version": 1})
	})
	s := New(fakeDriver(conn, querysql.SQLite), datastore.Options{Logger: datastore.DiscardLogger(), Migrator: m})

	require.NoError(t, s.ConnectToDatabase(context.Background(), "fake://", "Auth", true))

	assert.Equal(t, []string{"Auth"}, calls)
	require.Len(t, conn.execs, 1)
	assert.Contains(t, conn.execs[0].SQL, `INSERT INTO "schema_versions"`)
}

func TestStore_MigrationFailureIsSticky(t *testing.T) {
	m := migratorFunc(func(context.Context, datastore.DataStore, string, bool) error {
		return errors.New("step 2: boom")
	})
	s := New(fakeDriver(&fakeConn{}, querysql.SQLite), datastore.Options{Logger: datastore.DiscardLogger(), Migrator: m})
	ctx := context.Background()

	err := s.ConnectToDatabase(ctx, "fake://", "Auth", false)
	require.Error(t, err)
	assert.True(t, datastore.IsKind(err, datastore.KindMigrationFailed))

	_, err = s.Query(ctx, datastore.All, "auth", nil, datastore.QueryOptions{})
	assert.True(t, datastore.IsKind(err, datastore.KindMigrationFailed))
	assert.Contains(t, err.Error(), "step 2: boom")

	require.NoError(t, s.Close())
	_, err = s.Delete(ctx, "auth", nil)
	assert.True(t, datastore.IsKind(err, datastore.KindMigrationFailed), "failure survives Close")
}

func TestStore_SetWithoutMigrator(t *testing.T) {
	s := New(fakeDriver(&fakeConn{}, querysql.SQLite), datastore.Options{Logger: datastore.DiscardLogger()})

	err := s.ConnectToDatabase(context.Background(), "fake://", "Auth", false)

	assert.True(t, datastore.IsKind(err, datastore.KindMigrationFailed))
}

func TestStore_ConnectTwice(t *testing.T) {
	s := connected(t, &fakeConn{}, querysql.SQLite)

	err := s.ConnectToDatabase(context.Background(), "fake://", "", false)

	assert.True(t, datastore.IsKind(err, datastore.KindConnection))
}

func TestStore_InvalidFilterIsQueryError(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn, querysql.SQLite)

	_, err := s.Delete(context.Background(), "auth", queryir.New().Eq("", 1))

	assert.True(t, datastore.IsKind(err, datastore.KindQuery))
	assert.Empty(t, conn.execs, "nothing reaches the database")
}

func TestStore_InsertMultipleReportsFailingRow(t *testing.T) {
	conn := &fakeConn{execErr: func(n int, _ string) error {
		if n == 1 {
			return errUnique
		}
		return nil
	}}
	s := connected(t, conn, querysql.SQLite)

	err := s.InsertMultiple(context.Background(), "tokens", []datastore.Row{
		{"UUID": "u", "token": "a"},
		{"UUID": "u", "token": "a"},
		{"UUID": "u", "token": "b"},
	})

	var de *datastore.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, datastore.KindInsert, de.Kind)
	assert.Equal(t, 1, de.Row)
	assert.ErrorIs(t, err, datastore.ErrDuplicateKey)
	assert.ErrorIs(t, err, errUnique)
	assert.Len(t, conn.execs, 2, "rows after the failure are not attempted")
}

func TestStore_InsertOtherFailureIsNotDuplicate(t *testing.T) {
	conn := &fakeConn{execErr: func(int, string) error { return errors.New("NOT NULL constraint failed") }}
	s := connected(t, conn, querysql.SQLite)

	err := s.Insert(context.Background(), "tokens", datastore.Row{"UUID": "u"})

	assert.True(t, datastore.IsKind(err, datastore.KindInsert))
	assert.NotErrorIs(t, err, datastore.ErrDuplicateKey)
}

func TestStore_QueryReportsRequestedColumns(t *testing.T) {
	conn := &fakeConn{result: func(string) *ir.ResultSet {
		return &ir.ResultSet{Columns: []string{"COUNT(*)"}, Rows: []ir.Row{{ir.Int(3)}}}
	}}
	s := connected(t, conn, querysql.SQLite)

	rs, err := s.Query(context.Background(), []string{"count(*)"}, "auth", nil, datastore.QueryOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"count(*)"}, rs.Columns)
	assert.Equal(t, []string{"3"}, rs.Strings())
}

func TestStore_UpsertTargetsPrimaryKey(t *testing.T) {
	conn := &fakeConn{columns: map[string][]datastore.ColumnDefinition{
		"auth": {
			{Name: "UUID", Type: datastore.ColumnType{Kind: datastore.Char, Size: 36}, IsPrimary: true},
			{Name: "accountType", Type: datastore.ColumnType{Kind: datastore.String, Size: 32}, IsPrimary: true},
			{Name: "passwordHash", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}},
		},
	}}
	s := connected(t, conn, querysql.Postgres)
	ctx := context.Background()
	row := datastore.Row{"UUID": "u", "accountType": "grid", "passwordHash": "h"}

	require.NoError(t, s.InsertOrUpdate(ctx, "auth", row, "passwordHash", "h2"))
	require.NoError(t, s.Replace(ctx, "auth", row))

	require.Len(t, conn.execs, 2)
	assert.Contains(t, conn.execs[0].SQL, `ON CONFLICT ("UUID", "accountType") DO UPDATE SET "passwordHash" = $4`)
	assert.Contains(t, conn.execs[1].SQL, `DO UPDATE SET "passwordHash" = EXCLUDED."passwordHash"`)
	assert.Equal(t, 1, conn.lookups, "primary key is cached")
}

func TestStore_UpsertWithoutPrimaryKey(t *testing.T) {
	s := connected(t, &fakeConn{}, querysql.Postgres)

	err := s.Replace(context.Background(), "loose", datastore.Row{"a": 1})

	assert.True(t, datastore.IsKind(err, datastore.KindInsert))
}

func TestStore_UpdateAndDeleteReturnCounts(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn, querysql.SQLite)
	ctx := context.Background()

	n, err := s.Update(ctx, "auth", datastore.Row{"passwordHash": "h"}, nil, queryir.New().Eq("UUID", "u"), datastore.LimitOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteByTime(ctx, "tokens", "validity")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, `DELETE FROM "tokens" WHERE "validity" < datetime('now')`, conn.execs[1].SQL)

	_, err = s.DeleteByTime(ctx, "tokens", "")
	assert.True(t, datastore.IsKind(err, datastore.KindDelete))

	_, err = s.Update(ctx, "auth", nil, nil, nil, datastore.LimitOptions{})
	assert.True(t, datastore.IsKind(err, datastore.KindUpdate))
}

func tokensDef() datastore.TableDefinition {
	return datastore.TableDefinition{
		Name: "tokens",
		Columns: []datastore.ColumnDefinition{
			{Name: "UUID", Type: datastore.ColumnType{Kind: datastore.Char, Size: 36}, IsPrimary: true},
			{Name: "token", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}, IsPrimary: true},
			{Name: "validity", Type: datastore.ColumnType{Kind: datastore.DateTime}},
		},
	}
}

func existing(sql string) *ir.ResultSet {
	rs := ir.NewResultSet([]string{"name"})
	if strings.Contains(sql, "sqlite_master") {
		rs.Rows = append(rs.Rows, ir.Row{ir.String("tokens")})
	}
	return rs
}

func TestStore_UpdateTableInPlace(t *testing.T) {
	conn := &fakeConn{
		result: existing,
		columns: map[string][]datastore.ColumnDefinition{"tokens": {
			{Name: "UUID", Type: datastore.ColumnType{Kind: datastore.Char, Size: 36}, IsPrimary: true},
			{Name: "token", Type: datastore.ColumnType{Kind: datastore.String, Size: 64}, IsPrimary: true},
			{Name: "expires", Type: datastore.ColumnType{Kind: datastore.DateTime}},
			{Name: "legacy", Type: datastore.ColumnType{Kind: datastore.Text}},
		}},
	}
	s := connected(t, conn, querysql.SQLite)
	def := tokensDef()
	def.Columns = append(def.Columns, datastore.ColumnDefinition{Name: "scope", Type: datastore.ColumnType{Kind: datastore.Text}})

	err := s.UpdateTable(context.Background(), def, map[string]string{"expires": "validity"})

	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "tokens" RENAME COLUMN "expires" TO "validity"`,
		`ALTER TABLE "tokens" ADD COLUMN "scope" TEXT`,
		`ALTER TABLE "tokens" DROP COLUMN "legacy"`,
	}, conn.execSQL())
}

func TestStore_UpdateTableRebuildsOnTypeChange(t *testing.T) {
	conn := &fakeConn{
		result: existing,
		columns: map[string][]datastore.ColumnDefinition{"tokens": {
			{Name: "UUID", Type: datastore.ColumnType{Kind: datastore.Char, Size: 36}, IsPrimary: true},
			{Name: "token", Type: datastore.ColumnType{Kind: datastore.String, Size: 32}, IsPrimary: true},
			{Name: "validity", Type: datastore.ColumnType{Kind: datastore.DateTime}},
		}},
	}
	s := connected(t, conn, querysql.SQLite)

	require.NoError(t, s.UpdateTable(context.Background(), tokensDef(), nil))

	got := conn.execSQL()
	require.Len(t, got, 5)
	assert.Equal(t, `DROP TABLE IF EXISTS "tokens__rebuild"`, got[0])
	assert.Equal(t, `INSERT INTO "tokens__rebuild" ("UUID", "token", "validity") SELECT "UUID", "token", "validity" FROM "tokens"`, got[2])
	assert.Equal(t, `ALTER TABLE "tokens__rebuild" RENAME TO "tokens"`, got[4])
}

func TestStore_UpdateTableUnchangedOnlyEnsuresIndices(t *testing.T) {
	def := tokensDef()
	def.Indices = []datastore.IndexDefinition{{Name: "tokens_validity", Columns: []string{"validity"}}}
	conn := &fakeConn{result: existing, columns: map[string][]datastore.ColumnDefinition{"tokens": def.Columns}}
	s := connected(t, conn, querysql.SQLite)

	require.NoError(t, s.UpdateTable(context.Background(), def, nil))

	assert.Equal(t, []string{`CREATE INDEX IF NOT EXISTS "tokens_validity" ON "tokens" ("validity")`}, conn.execSQL())
}

func TestStore_UpdateTableCreatesMissingTable(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn, querysql.SQLite)

	require.NoError(t, s.UpdateTable(context.Background(), tokensDef(), nil))

	require.Len(t, conn.execs, 1)
	assert.True(t, strings.HasPrefix(conn.execs[0].SQL, `CREATE TABLE IF NOT EXISTS "tokens"`))
}

func TestStore_ColumnsOfMissingTable(t *testing.T) {
	s := connected(t, &fakeConn{}, querysql.SQLite)

	_, err := s.Columns(context.Background(), "nope")

	assert.True(t, datastore.IsKind(err, datastore.KindSchema))
}

func TestStore_CopyIsUnconnected(t *testing.T) {
	s := connected(t, &fakeConn{}, querysql.SQLite)

	c := s.Copy()

	assert.Equal(t, "fake", c.Kind())
	err := c.Insert(context.Background(), "t", datastore.Row{"a": 1})
	assert.True(t, datastore.IsKind(err, datastore.KindBackendUnavailable))
}

func TestStore_CloseClosesConnection(t *testing.T) {
	conn := &fakeConn{}
	s := connected(t, conn, querysql.SQLite)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, conn.closed)
	_, err := s.ExecRaw(context.Background(), "SELECT 1")
	assert.True(t, datastore.IsKind(err, datastore.KindBackendUnavailable))
}

func TestStore_LogsStatementsWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := New(fakeDriver(&fakeConn{}, querysql.SQLite), datastore.Options{Logger: logger})
	require.NoError(t, s.ConnectToDatabase(context.Background(), "fake://", "", false))

	require.NoError(t, s.Insert(context.Background(), "auth", datastore.Row{"passwordHash": "s3cr3t"}))

	out := buf.String()
	assert.Contains(t, out, "backend=fake")
	assert.Contains(t, out, "op=insert")
	assert.Contains(t, out, "args=1")
	assert.NotContains(t, out, "s3cr3t")
}

func TestStore_Capabilities(t *testing.T) {
	s := New(fakeDriver(&fakeConn{}, querysql.SQLite), datastore.Options{})

	_, err := datastore.AsSchema(s)
	require.NoError(t, err)
	_, err = datastore.AsRawSQL(s)
	require.NoError(t, err)
	assert.True(t, s.Capabilities().Has(datastore.CapNativeUpsert|datastore.CapServerClock))
}
