package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/harper/dispatch/internal/eventstore"
	"github.com/harper/dispatch/internal/sync"
)

// TeamStorePool routes eventstore.Store calls to per-team SQLite event logs
// under dataDir/teams/<team>/events.db, opening them lazily. It is the
// sqlite-mode backend; postgres mode uses a single eventstore.Postgres
// instead.
type TeamStorePool struct {
	mu      gosync.RWMutex
	stores  map[string]*eventstore.SQLite
	dataDir string
}

// NewTeamStorePool creates a pool that stores team event logs under dataDir.
func NewTeamStorePool(dataDir string) *TeamStorePool {
	return &TeamStorePool{
		stores:  make(map[string]*eventstore.SQLite),
		dataDir: dataDir,
	}
}

// get returns the event store for a team, opening and initializing it on
// first use.
func (p *TeamStorePool) get(ctx context.Context, teamID string) (*eventstore.SQLite, error) {
	p.mu.RLock()
	st, ok := p.stores[teamID]
	p.mu.RUnlock()
	if ok {
		return st, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if st, ok := p.stores[teamID]; ok {
		return st, nil
	}

	dir := filepath.Join(p.dataDir, "teams", teamID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create team dir: %w", err)
	}

	st, err := eventstore.OpenSQLite(filepath.Join(dir, "events.db"))
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		st.Close()
		return nil, err
	}

	p.stores[teamID] = st
	return st, nil
}

// Init is a no-op at the pool level; each team's schema is created when its
// store is first opened.
func (p *TeamStorePool) Init(ctx context.Context) error { return nil }

// Append appends events to the team's event log.
func (p *TeamStorePool) Append(ctx context.Context, teamID string, events []sync.Event) (sync.PushResult, error) {
	st, err := p.get(ctx, teamID)
	if err != nil {
		return sync.PushResult{}, err
	}
	return st.Append(ctx, teamID, events)
}

// EventsSince pages the team's event log.
func (p *TeamStorePool) EventsSince(ctx context.Context, teamID string, afterSeq int64, limit int, excludeDevice string) (sync.PullResult, error) {
	st, err := p.get(ctx, teamID)
	if err != nil {
		return sync.PullResult{}, err
	}
	return st.EventsSince(ctx, teamID, afterSeq, limit, excludeDevice)
}

// Status reports the team's event log status.
func (p *TeamStorePool) Status(ctx context.Context, teamID string) (eventstore.Status, error) {
	st, err := p.get(ctx, teamID)
	if err != nil {
		return eventstore.Status{}, err
	}
	return st.Status(ctx, teamID)
}

// Close closes every open team store.
func (p *TeamStorePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for id, st := range p.stores {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.stores, id)
	}
	return firstErr
}
