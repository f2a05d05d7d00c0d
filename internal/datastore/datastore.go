package datastore

import (
	"context"

	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

// All selects every column, in backend order.
var All = []string{"*"}

// IsAll reports whether columns selects every column.
func IsAll(columns []string) bool {
	return len(columns) == 0 || (len(columns) == 1 && columns[0] == "*")
}

// Row maps column names to values. Values may be Go scalars, time.Time,
// []byte or ir.Value; backends convert them with ir.FromAny.
type Row map[string]any

// SortField orders query results by one column.
type SortField struct {
	Field      string `yaml:"field" json:"field"`
	Descending bool   `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// QueryOptions controls ordering and paging of Query. Without Sort, row
// order is whatever the backend returns.
type QueryOptions struct {
	Sort   []SortField
	Offset *uint64
	Limit  *uint64
}

// LimitOptions bounds the rows touched by Update. Rows are picked in
// backend order.
type LimitOptions struct {
	Offset *uint64
	Limit  *uint64
}

// Limited reports whether any bound is set.
func (o LimitOptions) Limited() bool {
	return o.Offset != nil || o.Limit != nil
}

// Uint64 returns a pointer to n, for QueryOptions literals.
func Uint64(n uint64) *uint64 { return &n }

// DataStore is the contract every storage backend implements.
//
// A DataStore instance is not safe for concurrent use. Each goroutine gets
// its own session from Copy.
//
// Every method returns *Error on failure. Before ConnectToDatabase
// succeeds, and after Close, operations fail with KindBackendUnavailable.
// After a migration failure they fail with KindMigrationFailed.
type DataStore interface {
	// Kind names the backend, e.g. "sqlite".
	Kind() string

	// Capabilities reports the optional traits the backend implements.
	Capabilities() Capability

	// ConnectToDatabase opens the connection and migrates migrationSet to
	// its latest version. With validateTables, the live schema is compared
	// against the final definitions and mismatches are logged.
	ConnectToDatabase(ctx context.Context, connectionString, migrationSet string, validateTables bool) error

	// Query returns the selected columns of every row matching filter.
	// A nil or empty filter matches all rows.
	Query(ctx context.Context, columns []string, table string, filter *queryir.Filter, opts QueryOptions) (*ir.ResultSet, error)

	Insert(ctx context.Context, table string, row Row) error

	// InsertMultiple inserts rows in order. It is not atomic: on failure the
	// returned *Error has Row set to the failing index and earlier rows stay.
	InsertMultiple(ctx context.Context, table string, rows []Row) error

	// InsertOrUpdate inserts row, or on a key conflict sets conflictKey to
	// conflictValue on the existing row.
	InsertOrUpdate(ctx context.Context, table string, row Row, conflictKey string, conflictValue any) error

	// Replace inserts row, overwriting any row with the same primary key.
	Replace(ctx context.Context, table string, row Row) error

	// Update assigns set and adds increment to the matching rows and returns
	// the number of rows changed.
	Update(ctx context.Context, table string, set Row, increment map[string]int64, filter *queryir.Filter, opts LimitOptions) (int64, error)

	// Delete removes the matching rows. A nil or empty filter removes all rows.
	Delete(ctx context.Context, table string, filter *queryir.Filter) (int64, error)

	// DeleteByTime removes rows whose timeColumn lies before the backend's
	// current time.
	DeleteByTime(ctx context.Context, table, timeColumn string) (int64, error)

	// Copy returns a new, unconnected store of the same kind and configuration.
	Copy() DataStore

	Close() error
}

// SchemaManager is implemented by backends with a table catalog.
type SchemaManager interface {
	CreateTable(ctx context.Context, def TableDefinition) error

	// UpdateTable brings an existing table to def. renameColumns maps old
	// column names to new ones; renamed columns keep their data.
	UpdateTable(ctx context.Context, def TableDefinition, renameColumns map[string]string) error

	DropTable(ctx context.Context, table string) error
	TableExists(ctx context.Context, table string) (bool, error)

	// ForceRenameTable renames a table, replacing any table named newName.
	ForceRenameTable(ctx context.Context, oldName, newName string) error

	// Columns reads the live column definitions of a table.
	Columns(ctx context.Context, table string) ([]ColumnDefinition, error)
}

// RawSQL is implemented by relational backends.
type RawSQL interface {
	ExecRaw(ctx context.Context, statement string, args ...any) (int64, error)
	QueryRaw(ctx context.Context, statement string, args ...any) (*ir.ResultSet, error)
}

// QueryStrings runs Query and flattens the result into the legacy string
// sequence: row-major, one element per selected cell.
func QueryStrings(ctx context.Context, ds DataStore, columns []string, table string, filter *queryir.Filter, opts QueryOptions) ([]string, error) {
	rs, err := ds.Query(ctx, columns, table, filter, opts)
	if err != nil {
		return nil, err
	}
	return rs.Strings(), nil
}
