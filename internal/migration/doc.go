// Package migration brings a data store's schema to the latest version of a
// named migration set.
//
// A Set is an ordered list of Steps. Each step creates or updates tables,
// drops and renames tables, optionally runs a Go data hook, and then records
// its version and checksum in the schema_versions table. A run that stops
// after step N resumes at step N+1.
//
// Runs against one backend and set are serialized by a row in schema_locks.
// Locks expire, so a crashed run blocks others for at most LockTTL.
//
// Sets are registered in a Catalog, either in Go or loaded from YAML and
// CUE files:
//
//	name: Auth
//	steps:
//	  - version: 1
//	    tables:
//	      - name: tokens
//	        columns:
//	          - {name: UUID, type: char(36), primary: true}
//	          - {name: token, type: string(64), primary: true}
//	          - {name: validity, type: datetime}
package migration
