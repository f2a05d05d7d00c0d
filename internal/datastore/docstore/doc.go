// Package docstore implements datastore.DataStore on top of a document
// database engine. The MongoDB and memdoc backends supply an Engine; this
// package lowers filters with querydoc and maps rows to documents.
//
// Tables are collections. Their definitions live in the catalog collection
// "_tables", which gives document backends primary keys (enforced by a
// unique index), column defaults, typed date/time fields and the live
// schema reported by Columns.
//
// InsertOrUpdate is emulated with a lookup on the primary key followed by
// an update or an insert. Replace is a ReplaceOne with upsert keyed on the
// primary key, or on every supplied column for tables without a
// definition.
package docstore
