package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/docstore"
)

// Name is the backend kind reported by stores of this package.
const Name = "mongodb"

// DefaultDatabase is used when the connection string names no database.
const DefaultDatabase = "datamgr"

// Schemes are the connection string schemes served by this backend.
var Schemes = []string{"mongodb", "mongodb+srv"}

// Server error codes.
const (
	codeNamespaceNotFound = 26
	codeIndexNotFound     = 27
	codeNamespaceExists   = 48
)

// Driver opens MongoDB engines.
var Driver = &docstore.Driver{
	Name:         Name,
	Open:         open,
	IsDuplicate:  mongo.IsDuplicateKeyError,
	Capabilities: datastore.CapServerClock,
}

// New returns an unconnected MongoDB store.
func New(opts datastore.Options) *docstore.Store {
	return docstore.New(Driver, opts)
}

// DatabaseName returns the database named by a MongoDB URI.
func DatabaseName(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", err
	}
	if cs.Database == "" {
		return DefaultDatabase, nil
	}
	return cs.Database, nil
}

func open(ctx context.Context, uri string, _ datastore.Options) (docstore.Engine, error) {
	name, err := DatabaseName(uri)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &engine{client: client, db: client.Database(name)}, nil
}

type engine struct {
	client *mongo.Client
	db     *mongo.Database
}

func hasCode(err error, code int) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.HasErrorCode(code)
}

func findOptions(fo docstore.FindOptions) *options.FindOptions {
	o := options.Find()
	if len(fo.Sort) > 0 {
		o.SetSort(fo.Sort)
	}
	if fo.Skip != nil {
		o.SetSkip(*fo.Skip)
	}
	if fo.Limit != nil {
		o.SetLimit(*fo.Limit)
	}
	if len(fo.Projection) > 0 {
		proj := make(bson.D, len(fo.Projection))
		for i, f := range fo.Projection {
			proj[i] = bson.E{Key: f, Value: 1}
		}
		o.SetProjection(proj)
	}
	return o
}

func (e *engine) Find(ctx context.Context, coll string, query bson.D, fo docstore.FindOptions) ([]bson.D, error) {
	cur, err := e.db.Collection(coll).Find(ctx, query, findOptions(fo))
	if err != nil {
		return nil, err
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (e *engine) InsertOne(ctx context.Context, coll string, doc bson.D) error {
	_, err := e.db.Collection(coll).InsertOne(ctx, doc)
	return err
}

func (e *engine) UpdateMany(ctx context.Context, coll string, query, update bson.D) (int64, error) {
	res, err := e.db.Collection(coll).UpdateMany(ctx, query, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (e *engine) ReplaceOne(ctx context.Context, coll string, query, doc bson.D) error {
	_, err := e.db.Collection(coll).ReplaceOne(ctx, query, doc, options.Replace().SetUpsert(true))
	return err
}

func (e *engine) DeleteMany(ctx context.Context, coll string, query bson.D) (int64, error) {
	res, err := e.db.Collection(coll).DeleteMany(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// expiredQuery selects documents whose date field lies before the server
// clock. Fields that are not BSON dates never match.
func expiredQuery(field string) bson.D {
	return bson.D{
		{Key: field, Value: bson.D{{Key: "$type", Value: "date"}}},
		{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{"$" + field, "$$NOW"}}}},
	}
}

func (e *engine) DeleteExpired(ctx context.Context, coll, field string) (int64, error) {
	return e.DeleteMany(ctx, coll, expiredQuery(field))
}

func (e *engine) CreateCollection(ctx context.Context, coll string) error {
	if err := e.db.CreateCollection(ctx, coll); err != nil && !hasCode(err, codeNamespaceExists) {
		return err
	}
	return nil
}

func (e *engine) CollectionExists(ctx context.Context, coll string) (bool, error) {
	names, err := e.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: coll}})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

func (e *engine) DropCollection(ctx context.Context, coll string) error {
	return e.db.Collection(coll).Drop(ctx)
}

// RenameCollection runs renameCollection against the admin database,
// dropping an existing target.
func (e *engine) RenameCollection(ctx context.Context, from, to string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: e.db.Name() + "." + from},
		{Key: "to", Value: e.db.Name() + "." + to},
		{Key: "dropTarget", Value: true},
	}
	return e.client.Database("admin").RunCommand(ctx, cmd).Err()
}

func (e *engine) EnsureIndex(ctx context.Context, coll string, idx docstore.Index) error {
	keys := make(bson.D, len(idx.Keys))
	for i, k := range idx.Keys {
		keys[i] = bson.E{Key: k, Value: 1}
	}
	_, err := e.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetName(idx.Name).SetUnique(idx.Unique),
	})
	return err
}

func (e *engine) DropIndex(ctx context.Context, coll, name string) error {
	_, err := e.db.Collection(coll).Indexes().DropOne(ctx, name)
	if err != nil && !hasCode(err, codeIndexNotFound) && !hasCode(err, codeNamespaceNotFound) {
		return err
	}
	return nil
}

func (e *engine) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}
