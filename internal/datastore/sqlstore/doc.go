// Package sqlstore implements datastore.DataStore on top of any relational
// connection, using querysql for lowering and statement building.
//
// A backend supplies a Driver: its dialect, how to open a connection, how
// to recognize duplicate-key errors and how to read a table's live columns.
// Everything else (connection lifecycle, the migration gate, CRUD, schema
// management and statement logging) is shared.
//
// Every executed statement is logged at DEBUG with its duration and row
// count. Values never appear in logs; only the number of arguments does.
package sqlstore
