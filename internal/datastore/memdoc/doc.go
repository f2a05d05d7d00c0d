// Package memdoc is an in-process document backend. It keeps collections
// in memory, evaluates queries with querydoc.Match and takes its notion of
// "now" from the store's clock, so document-backend behaviour can be
// tested without a MongoDB server.
//
// Databases live in an explicit Server and are addressed as memdoc://name.
// Stores opened on the same Server and name share data; Copy keeps the
// Server.
package memdoc
