// Package backends wires the built-in data store backends into a registry.
package backends

import (
	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/memdoc"
	"github.com/roach88/datamgr/internal/datastore/metrics"
	"github.com/roach88/datamgr/internal/datastore/mongodb"
	"github.com/roach88/datamgr/internal/datastore/postgres"
	"github.com/roach88/datamgr/internal/datastore/sqlite"
)

// Options configures every backend of a registry.
type Options struct {
	datastore.Options

	// Memdoc is the server behind the memdoc backend. A new one is created
	// when nil.
	Memdoc *memdoc.Server

	// Metrics, when set, instruments every store the registry creates.
	Metrics *metrics.Metrics
}

// NewRegistry returns a registry with the sqlite, postgres, mongodb and
// memdoc backends.
func NewRegistry(opts Options) *datastore.Registry {
	if opts.Memdoc == nil {
		opts.Memdoc = memdoc.NewServer()
	}
	wrap := func(ds datastore.DataStore) datastore.DataStore {
		if opts.Metrics == nil {
			return ds
		}
		return opts.Metrics.Wrap(ds)
	}

	r := datastore.NewRegistry()
	must(r.Register(sqlite.Name, func() datastore.DataStore {
		return wrap(sqlite.New(opts.Options))
	}, sqlite.Schemes...))
	must(r.Register(postgres.Name, func() datastore.DataStore {
		return wrap(postgres.New(opts.Options))
	}, postgres.Schemes...))
	must(r.Register(mongodb.Name, func() datastore.DataStore {
		return wrap(mongodb.New(opts.Options))
	}, mongodb.Schemes...))
	must(r.Register(memdoc.Name, func() datastore.DataStore {
		return wrap(memdoc.New(opts.Memdoc, opts.Options))
	}, memdoc.Name))
	return r
}

// must panics on registration conflicts, which can only come from the
// fixed list above.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
