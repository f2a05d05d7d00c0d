package memdoc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/datastore/docstore"
)

// Name is the backend name and connection-string scheme.
const Name = "memdoc"

// Server holds named in-memory databases.
type Server struct {
	mu  sync.Mutex
	dbs map[string]*database
}

// NewServer returns an empty server.
func NewServer() *Server {
	return &Server{dbs: make(map[string]*database)}
}

// database returns the named database, creating it on first use.
func (s *Server) database(name string) *database {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[name]
	if !ok {
		db = &database{colls: make(map[string]*collection)}
		s.dbs[name] = db
	}
	return db
}

// Drop removes a database and its collections.
func (s *Server) Drop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dbs, name)
}

// DuplicateKeyError reports a unique index violation.
type DuplicateKeyError struct {
	Collection string
	Index      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("E11000 duplicate key error collection: %s index: %s", e.Collection, e.Index)
}

func isDuplicate(err error) bool {
	var dk *DuplicateKeyError
	return errors.As(err, &dk)
}

// DatabaseName extracts the database name from memdoc://name.
func DatabaseName(connectionString string) (string, error) {
	name, ok := strings.CutPrefix(connectionString, Name+"://")
	if !ok {
		return "", fmt.Errorf("connection string %q does not start with %s://", connectionString, Name)
	}
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid database name %q", name)
	}
	return name, nil
}

// NewDriver returns a docstore driver serving databases of srv.
func NewDriver(srv *Server) *docstore.Driver {
	return &docstore.Driver{
		Name: Name,
		Open: func(_ context.Context, connectionString string, opts datastore.Options) (docstore.Engine, error) {
			name, err := DatabaseName(connectionString)
			if err != nil {
				return nil, err
			}
			return &engine{db: srv.database(name), clock: opts.Clock}, nil
		},
		IsDuplicate: isDuplicate,
	}
}

// New returns an unconnected store on srv.
func New(srv *Server, opts datastore.Options) *docstore.Store {
	return docstore.New(NewDriver(srv), opts)
}
