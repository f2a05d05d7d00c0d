package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/datamgr/internal/datastore"
	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

// ErrLockTimeout is returned when another run held the lock for longer
// than LockTimeout.
var ErrLockTimeout = errors.New("migration lock timeout")

// lock acquires the lock row of set and returns its release function.
func (m *Manager) lock(ctx context.Context, ds datastore.DataStore, set string) (func(), error) {
	owner := m.opts.NewOwner()
	log := m.log.With("set", set, "owner", owner)
	deadline := time.Now().Add(m.opts.LockTimeout)
	wait := m.opts.LockRetry

	for {
		err := ds.Insert(ctx, LocksTable.Name, datastore.Row{
			"name":       set,
			"owner":      owner,
			"expires_at": m.opts.Clock.Now().Add(m.opts.LockTTL).UTC().Format(ir.TimeLayout),
		})
		if err == nil {
			log.DebugContext(ctx, "migration lock acquired")
			return func() { m.unlock(ctx, ds, set, owner) }, nil
		}
		if !errors.Is(err, datastore.ErrDuplicateKey) {
			return nil, err
		}

		reclaimed, err := ds.DeleteByTime(ctx, LocksTable.Name, "expires_at")
		if err != nil {
			return nil, err
		}
		if reclaimed > 0 {
			log.WarnContext(ctx, "reclaimed expired migration locks", "count", reclaimed)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: set %s after %s", ErrLockTimeout, set, m.opts.LockTimeout)
		}
		log.DebugContext(ctx, "migration lock held elsewhere", "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, m.opts.MaxLockRetry)
	}
}

func (m *Manager) unlock(ctx context.Context, ds datastore.DataStore, set, owner string) {
	ctx = context.WithoutCancel(ctx)
	n, err := ds.Delete(ctx, LocksTable.Name, queryir.New().Eq("name", set).Eq("owner", owner))
	if err != nil {
		m.log.ErrorContext(ctx, "releasing migration lock", "set", set, "owner", owner, "error", err)
		return
	}
	if n == 0 {
		m.log.WarnContext(ctx, "migration lock was reclaimed before release", "set", set, "owner", owner)
	}
}
