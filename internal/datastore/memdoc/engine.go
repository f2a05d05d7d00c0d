package memdoc

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/docstore"
	"github.com/roach88/datamgr/internal/querydoc"
)

type database struct {
	mu    sync.Mutex
	colls map[string]*collection
}

type collection struct {
	docs    []bson.D
	indexes map[string]docstore.Index
}

// engine is one connection to a database. Every call holds the database
// lock for its whole duration.
type engine struct {
	db    *database
	clock datastore.Clock
}

var _ docstore.Engine = (*engine)(nil)

func (e *engine) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.db.mu.Lock()
	return e.db.mu.Unlock, nil
}

func (e *engine) collection(name string, create bool) *collection {
	c, ok := e.db.colls[name]
	if !ok && create {
		c = &collection{indexes: make(map[string]docstore.Index)}
		e.db.colls[name] = c
	}
	return c
}

func (e *engine) Find(ctx context.Context, coll string, query bson.D, opts docstore.FindOptions) ([]bson.D, error) {
	unlock, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c := e.collection(coll, false)
	if c == nil {
		return nil, nil
	}
	type hit struct {
		doc bson.D
		m   bson.M
	}
	var hits []hit
	for _, d := range c.docs {
		m := toMap(d)
		ok, err := querydoc.Match(m, query)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, hit{doc: d, m: m})
		}
	}
	if len(opts.Sort) > 0 {
		slices.SortStableFunc(hits, func(a, b hit) int {
			for _, k := range opts.Sort {
				r := querydoc.Compare(a.m[k.Key], b.m[k.Key])
				if dir, _ := k.Value.(int); dir < 0 {
					r = -r
				}
				if r != 0 {
					return r
				}
			}
			return 0
		})
	}
	if opts.Skip != nil {
		hits = hits[min(int(*opts.Skip), len(hits)):]
	}
	if opts.Limit != nil && *opts.Limit > 0 {
		hits = hits[:min(int(*opts.Limit), len(hits))]
	}

	out := make([]bson.D, len(hits))
	for i, h := range hits {
		out[i] = project(h.doc, opts.Projection)
	}
	return out, nil
}

// project copies doc, keeping _id and the listed fields.
func project(doc bson.D, fields []string) bson.D {
	if len(fields) == 0 {
		return copyDoc(doc)
	}
	out := make(bson.D, 0, len(fields)+1)
	for _, el := range doc {
		if el.Key == docstore.IDField || slices.Contains(fields, el.Key) {
			out = append(out, bson.E{Key: el.Key, Value: copyValue(el.Value)})
		}
	}
	return out
}

func (e *engine) InsertOne(ctx context.Context, coll string, doc bson.D) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	c := e.collection(coll, true)
	doc = copyDoc(doc)
	if _, ok := toMap(doc)[docstore.IDField]; !ok {
		doc = append(bson.D{{Key: docstore.IDField, Value: primitive.NewObjectID()}}, doc...)
	}
	if err := c.checkUnique(coll, doc, -1); err != nil {
		return err
	}
	c.docs = append(c.docs, doc)
	return nil
}

func (e *engine) UpdateMany(ctx context.Context, coll string, query, update bson.D) (int64, error) {
	unlock, err := e.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	c := e.collection(coll, false)
	if c == nil {
		return 0, nil
	}
	var n int64
	for i, d := range c.docs {
		ok, err := querydoc.Match(toMap(d), query)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		updated, err := applyUpdate(d, update)
		if err != nil {
			return n, err
		}
		if err := c.checkUnique(coll, updated, i); err != nil {
			return n, err
		}
		c.docs[i] = updated
		n++
	}
	return n, nil
}

func (e *engine) ReplaceOne(ctx context.Context, coll string, query, doc bson.D) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	c := e.collection(coll, true)
	doc = copyDoc(doc)
	for i, d := range c.docs {
		ok, err := querydoc.Match(toMap(d), query)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		id := toMap(d)[docstore.IDField]
		doc = append(bson.D{{Key: docstore.IDField, Value: id}}, withoutField(doc, docstore.IDField)...)
		if err := c.checkUnique(coll, doc, i); err != nil {
			return err
		}
		c.docs[i] = doc
		return nil
	}
	if _, ok := toMap(doc)[docstore.IDField]; !ok {
		doc = append(bson.D{{Key: docstore.IDField, Value: primitive.NewObjectID()}}, doc...)
	}
	if err := c.checkUnique(coll, doc, -1); err != nil {
		return err
	}
	c.docs = append(c.docs, doc)
	return nil
}

func (e *engine) DeleteMany(ctx context.Context, coll string, query bson.D) (int64, error) {
	unlock, err := e.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return e.deleteWhere(coll, func(m bson.M) (bool, error) { return querydoc.Match(m, query) })
}

// DeleteExpired removes documents whose field holds a time before the
// store clock's now.
func (e *engine) DeleteExpired(ctx context.Context, coll, field string) (int64, error) {
	unlock, err := e.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	now := e.clock.Now()
	return e.deleteWhere(coll, func(m bson.M) (bool, error) {
		t, ok := timeOf(m[field])
		return ok && t.Before(now), nil
	})
}

func (e *engine) deleteWhere(coll string, pred func(bson.M) (bool, error)) (int64, error) {
	c := e.collection(coll, false)
	if c == nil {
		return 0, nil
	}
	kept := c.docs[:0:0]
	var n int64
	for _, d := range c.docs {
		ok, err := pred(toMap(d))
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return n, nil
}

func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time(), true
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

func (e *engine) CreateCollection(ctx context.Context, coll string) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	e.collection(coll, true)
	return nil
}

func (e *engine) CollectionExists(ctx context.Context, coll string) (bool, error) {
	unlock, err := e.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	return e.collection(coll, false) != nil, nil
}

func (e *engine) DropCollection(ctx context.Context, coll string) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	delete(e.db.colls, coll)
	return nil
}

func (e *engine) RenameCollection(ctx context.Context, from, to string) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	c, ok := e.db.colls[from]
	if !ok {
		return fmt.Errorf("source namespace %s does not exist", from)
	}
	delete(e.db.colls, from)
	e.db.colls[to] = c
	return nil
}

func (e *engine) EnsureIndex(ctx context.Context, coll string, idx docstore.Index) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	c := e.collection(coll, true)
	if have, ok := c.indexes[idx.Name]; ok {
		if !slices.Equal(have.Keys, idx.Keys) || have.Unique != idx.Unique {
			return fmt.Errorf("index %s already exists with different options", idx.Name)
		}
		return nil
	}
	if idx.Unique {
		seen := make([]bson.A, 0, len(c.docs))
		for _, d := range c.docs {
			key := indexKey(d, idx.Keys)
			if slices.ContainsFunc(seen, func(k bson.A) bool { return sameKey(k, key) }) {
				return &DuplicateKeyError{Collection: coll, Index: idx.Name}
			}
			seen = append(seen, key)
		}
	}
	c.indexes[idx.Name] = idx
	return nil
}

func (e *engine) DropIndex(ctx context.Context, coll, name string) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if c := e.collection(coll, false); c != nil {
		delete(c.indexes, name)
	}
	return nil
}

func (e *engine) Close(context.Context) error { return nil }

// checkUnique reports a unique index that doc would violate. The document
// at position skip is the one being replaced.
func (c *collection) checkUnique(coll string, doc bson.D, skip int) error {
	for _, name := range slices.Sorted(maps.Keys(c.indexes)) {
		idx := c.indexes[name]
		if !idx.Unique {
			continue
		}
		key := indexKey(doc, idx.Keys)
		for i, other := range c.docs {
			if i != skip && sameKey(key, indexKey(other, idx.Keys)) {
				return &DuplicateKeyError{Collection: coll, Index: name}
			}
		}
	}
	return nil
}

// indexKey returns doc's values of keys; missing fields index as null.
func indexKey(doc bson.D, keys []string) bson.A {
	m := toMap(doc)
	out := make(bson.A, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func sameKey(a, b bson.A) bool {
	for i := range a {
		if querydoc.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func toMap(doc bson.D) bson.M {
	m := make(bson.M, len(doc))
	for _, e := range doc {
		m[e.Key] = e.Value
	}
	return m
}

func withoutField(doc bson.D, field string) bson.D {
	return slices.DeleteFunc(doc, func(e bson.E) bool { return e.Key == field })
}

func copyDoc(doc bson.D) bson.D {
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: copyValue(e.Value)}
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return bytes.Clone(val)
	case primitive.Binary:
		return primitive.Binary{Subtype: val.Subtype, Data: bytes.Clone(val.Data)}
	case bson.D:
		return copyDoc(val)
	case bson.A:
		out := make(bson.A, len(val))
		for i, x := range val {
			out[i] = copyValue(x)
		}
		return out
	}
	return v
}
