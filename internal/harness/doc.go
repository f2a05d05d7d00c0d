// Package harness runs data-store scenarios against any registered backend.
//
// A scenario names an optional migration set, extra tables, a list of
// operations and assertions on the final state:
//
//	name: auth_token_lifecycle
//	description: "Store a password, issue tokens and expire them"
//	migration_set: Auth
//	steps:
//	  - op: insert
//	    table: auth
//	    row: {UUID: u-1, accountType: grid, passwordHash: h1, passwordSalt: s1}
//	  - op: query
//	    table: auth
//	    columns: [passwordHash]
//	    where: {equals_and: {UUID: u-1}}
//	    expect:
//	      rows: [[h1]]
//	assertions:
//	  - type: row_count
//	    table: tokens
//	    count: 1
//	  - type: final_state
//	    table: auth
//	    where: {equals_and: {UUID: u-1}}
//	    expect: {passwordHash: h1}
//
// # Operations
//
// insert, insert_multiple, insert_or_update, replace, update, delete,
// delete_by_time and query map one to one onto the datastore.DataStore
// methods of the same name.
//
// # Traces
//
// Every step appends one TraceEvent. Events carry no backend name or
// timing, so the trace of a scenario is the same on every backend that
// implements the contract. RunWithGolden compares it against
// testdata/golden/<scenario>.golden, and Compare runs one scenario on
// several backends and reports the first diverging step.
package harness
