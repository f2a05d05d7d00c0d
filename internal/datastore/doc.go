// Package datastore defines the contract every storage backend implements.
//
// DataStore covers connection, migration and CRUD; optional traits are
// separate interfaces (SchemaManager, RawSQL) advertised through
// Capabilities and reached with AsSchema and AsRawSQL. A backend that lacks
// a trait returns a NotSupported error instead of a stub.
//
// Backends live in sub-packages:
//
//	sqlstore   shared relational core (lowering via querysql)
//	sqlite     mattn/go-sqlite3
//	postgres   jackc/pgx/v5 pgxpool
//	docstore   shared document core (lowering via querydoc)
//	mongodb    mongo-driver
//	memdoc     in-process document engine
//	backends   wiring of all of the above into a Registry
//	metrics    Prometheus decorator for any DataStore
//
// Errors are *Error values carrying a Kind. Callers test them with IsKind
// or errors.As; insert failures caused by key conflicts also wrap
// ErrDuplicateKey.
package datastore
