package datastore

import (
	"sync"
)

type gateState int

const (
	gateClosed gateState = iota
	gateMigrating
	gateOpen
	gateFailed
)

// Gate tracks a store's connection lifecycle and refuses data operations
// until the store is connected and migrated. A migration failure is sticky.
//
// The zero value is a closed gate.
type Gate struct {
	mu    sync.Mutex
	state gateState
	cause error
}

// Begin marks the connection as established and migration as running.
// Operations are allowed so the migrator can use the store.
func (g *Gate) Begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = gateMigrating
	g.cause = nil
}

// Open marks the store ready for use.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != gateFailed {
		g.state = gateOpen
	}
}

// Fail records a migration failure and returns the error every later
// operation will wrap.
func (g *Gate) Fail(table string, cause error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = gateFailed
	if IsKind(cause, KindMigrationFailed) {
		g.cause = cause
	} else {
		g.cause = NewError(KindMigrationFailed, "migrate", table, cause)
	}
	return g.cause
}

// Close marks the store disconnected. A failed gate stays failed.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != gateFailed {
		g.state = gateClosed
	}
}

// Check returns nil when op may run.
func (g *Gate) Check(op, table string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case gateOpen, gateMigrating:
		return nil
	case gateFailed:
		return NewError(KindMigrationFailed, op, table, g.cause)
	default:
		return NewError(KindBackendUnavailable, op, table, ErrNotConnected)
	}
}

// Connected reports whether a connection is established (and not failed).
func (g *Gate) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == gateOpen || g.state == gateMigrating
}
