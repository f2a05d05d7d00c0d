// Package querydoc lowers query filters into MongoDB query documents and
// evaluates such documents in process.
//
// Lower produces a bson.D accepted by the MongoDB driver's Find, UpdateMany
// and DeleteMany. Match evaluates the same documents against a bson.M row
// and backs the in-memory document engine, so both document backends share
// one definition of what a filter selects.
//
// SHAPE:
//
// A non-empty filter lowers to a single $and whose elements keep the
// relational grouping: one element per predicate of an AND category, one
// {$or: [...]} per OR category and one nested document per non-empty
// sub-filter. LIKE patterns become anchored, case-insensitive regular
// expressions. An empty filter lowers to an empty document, which matches
// every row.
package querydoc
