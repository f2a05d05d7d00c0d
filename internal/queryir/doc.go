// Package queryir is the backend-neutral query filter model.
//
// A Filter is pure data: fifteen predicate categories plus nested
// sub-filters. Backends never see the categories directly; they receive a
// lowered form from one of the lowering strategies:
//
//	[Filter] → querysql.Lower → parameterized SQL fragment (SQLite, PostgreSQL)
//	         → querydoc.Lower → bson query document (MongoDB, memdoc)
//
// Both lowerings must select the same rows for the same filter. The shared
// pieces that make that possible live here: the fixed category order
// (Categories), the per-category comparison and connective (Category.Op,
// Category.Connective) and the deterministic entry order (Filter.Entries).
//
// ACTIVATION:
//
// Count is the number of active predicates, recursive through sub-filters.
// A filter with Count() == 0 matches every row; lowerings emit no WHERE
// fragment and an empty query document for it.
//
// VALIDATION:
//
// Validate reports structural problems (empty field names, empty multi
// lists, nil or cyclic sub-filters, unsupported value types). Data stores
// refuse invalid filters with a query error before lowering.
package queryir
