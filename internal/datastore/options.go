package datastore

import (
	"io"
	"log/slog"
	"time"
)

// Clock supplies the current time to backends without a server clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// Options configures a backend. The zero value is usable: it logs to
// slog.Default, uses the system clock and runs no migrations.
type Options struct {
	Logger *slog.Logger

	// Migrator runs during ConnectToDatabase when a migration set is named.
	Migrator Migrator

	Clock Clock
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	return o
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ColumnNormalizer is implemented by schema managers whose live column
// shapes are coarser than the definitions, e.g. SQLite storing every
// auto-increment key as INTEGER. NormalizeColumn maps a definition onto the
// shape Columns would report for it.
type ColumnNormalizer interface {
	NormalizeColumn(c ColumnDefinition) ColumnDefinition
}

// DiffTable compares the live columns of def's table against def, using
// sm's ColumnNormalizer when it has one.
func DiffTable(live []ColumnDefinition, def TableDefinition, sm SchemaManager) ColumnDiff {
	defined := def.Columns
	if n, ok := sm.(ColumnNormalizer); ok {
		defined = make([]ColumnDefinition, len(def.Columns))
		for i, c := range def.Columns {
			defined[i] = n.NormalizeColumn(c)
		}
	}
	return DiffColumns(live, defined)
}
