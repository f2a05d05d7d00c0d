// Package ir holds the typed values that cross the data store boundary.
//
// A query returns a ResultSet: column names plus rows of Value cells. Value
// is a sealed interface over Null, Int, Float, String, Blob and Bool, so
// callers switch on concrete cell types instead of re-parsing strings.
//
// The legacy contract of the data layer was "stringly typed": every cell was
// returned as a string and the rows were flattened into one sequence.
// ResultSet.Strings reproduces that encoding for callers that still zip a
// flat list against the columns they asked for.
//
// The package also provides RFC 8785 canonical JSON (MarshalCanonical) and
// domain-separated SHA-256 checksums, used to fingerprint schema migration
// steps so drift between a stored schema version and its definition can be
// detected.
package ir
