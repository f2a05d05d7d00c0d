package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/datamgr/internal/datastore"
)

// IDField is the document identifier every engine maintains.
const IDField = "_id"

// Engine is an open document database. Queries and updates use MongoDB
// syntax as produced by querydoc.Lower and the update operators $set, $inc,
// $unset and $rename.
type Engine interface {
	// Find returns the matching documents with their _id.
	Find(ctx context.Context, coll string, query bson.D, opts FindOptions) ([]bson.D, error)

	InsertOne(ctx context.Context, coll string, doc bson.D) error

	// UpdateMany applies update to every matching document and returns the
	// number of documents matched.
	UpdateMany(ctx context.Context, coll string, query, update bson.D) (int64, error)

	// ReplaceOne replaces the first matching document, or inserts doc when
	// none matches.
	ReplaceOne(ctx context.Context, coll string, query, doc bson.D) error

	DeleteMany(ctx context.Context, coll string, query bson.D) (int64, error)

	// DeleteExpired removes documents whose date field lies before the
	// engine's current time. Documents where the field is missing or not a
	// date are kept.
	DeleteExpired(ctx context.Context, coll, field string) (int64, error)

	CreateCollection(ctx context.Context, coll string) error
	CollectionExists(ctx context.Context, coll string) (bool, error)
	DropCollection(ctx context.Context, coll string) error

	// RenameCollection renames from to to, dropping any existing to.
	RenameCollection(ctx context.Context, from, to string) error

	EnsureIndex(ctx context.Context, coll string, idx Index) error

	// DropIndex removes an index; a missing index is not an error.
	DropIndex(ctx context.Context, coll, name string) error

	Close(ctx context.Context) error
}

// FindOptions are the sort, paging and projection of a Find.
type FindOptions struct {
	Sort       bson.D
	Skip       *int64
	Limit      *int64
	Projection []string
}

// Index describes a collection index.
type Index struct {
	Name   string
	Keys   []string
	Unique bool
}

// Driver supplies the backend-specific parts of a document store.
type Driver struct {
	Name string

	// Open connects to the database named by connectionString.
	Open func(ctx context.Context, connectionString string, opts datastore.Options) (Engine, error)

	// IsDuplicate reports whether err is a unique index violation.
	IsDuplicate func(err error) bool

	// Capabilities are the engine's traits beyond schema management.
	Capabilities datastore.Capability
}
