package datastore

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes data store failures.
type Kind string

const (
	// KindConnection means the backend could not be reached or authenticated.
	KindConnection Kind = "CONNECTION_ERROR"

	// KindQuery means the filter was malformed or the backend rejected the statement.
	KindQuery Kind = "QUERY_ERROR"

	// KindInsert means an insert failed. For batches, Error.Row is the index
	// of the first failing row; rows before it were applied.
	KindInsert Kind = "INSERT_ERROR"

	KindUpdate Kind = "UPDATE_ERROR"
	KindDelete Kind = "DELETE_ERROR"

	// KindNotSupported means the operation has no meaning for this backend.
	KindNotSupported Kind = "NOT_SUPPORTED"

	// KindMigrationFailed means the schema could not be brought to the
	// required version. It is sticky: the store refuses all data operations
	// afterwards.
	KindMigrationFailed Kind = "MIGRATION_FAILED"

	// KindBackendUnavailable means no backend is registered for the name or
	// the store is not connected.
	KindBackendUnavailable Kind = "BACKEND_UNAVAILABLE"

	// KindSchema means a DDL operation or schema introspection failed.
	KindSchema Kind = "SCHEMA_ERROR"
)

// ErrDuplicateKey is wrapped by insert errors caused by a unique or primary
// key conflict.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNotConnected is wrapped by errors from operations on a store before
// ConnectToDatabase succeeded or after Close.
var ErrNotConnected = errors.New("not connected")

// Error is the error type returned by every DataStore operation.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Op is the operation that failed, e.g. "query" or "insert_multiple".
	Op string

	// Table is the affected table or collection, if any.
	Table string

	// Row is the index of the first failing row for batch inserts, -1 otherwise.
	Row int

	// Err is the underlying backend error.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, " %s", e.Table)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, " (row %d)", e.Row)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error without a row index.
func NewError(kind Kind, op, table string, err error) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Row: -1, Err: err}
}

// Errorf builds an Error with a formatted cause.
func Errorf(kind Kind, op, table, format string, args ...any) *Error {
	return NewError(kind, op, table, fmt.Errorf(format, args...))
}

// NewRowError builds an insert Error for the row at index.
func NewRowError(op, table string, index int, err error) *Error {
	return &Error{Kind: KindInsert, Op: op, Table: table, Row: index, Err: err}
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// NotSupported returns the error used for operations a backend cannot perform.
func NotSupported(kind, op string) *Error {
	return Errorf(KindNotSupported, op, "", "%s backend does not support %s", kind, op)
}
