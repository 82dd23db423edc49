// Package appstate bundles the process-wide handles every HTTP handler
// needs: the Record Store, Collection Registry, live Settings, a
// structured logger, start time and request counter (§2, §5).
package appstate

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/config"
	"github.com/brenik/zerocache/internal/ingest"
	"github.com/brenik/zerocache/internal/maintenance"
	"github.com/brenik/zerocache/internal/query"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/store"
)

// AppState is the root dependency graph for one running server.
type AppState struct {
	Store       *store.Store
	Registry    *registry.Registry
	Settings    *config.Manager
	Log         *zap.Logger
	Ingest      *ingest.Pipeline
	Query       *query.Executor
	Maintenance *maintenance.Maintenance

	startedAt time.Time
	requests  atomic.Uint64
}

// New wires the Collection Engine's components together per §2's data
// flow: IP and MT both sit on top of Store/Registry; QE sits on top of
// Store alone (SI access goes through the handle each request resolves).
func New(st *store.Store, reg *registry.Registry, settings *config.Manager, log *zap.Logger) *AppState {
	return &AppState{
		Store:    st,
		Registry: reg,
		Settings: settings,
		Log:      log,
		Ingest:   &ingest.Pipeline{Store: st, Registry: reg, Log: log},
		Query:    &query.Executor{Store: st},
		Maintenance: &maintenance.Maintenance{
			Store:    st,
			Registry: reg,
			Log:      log,
		},
		startedAt: time.Now(),
	}
}

// CountRequest increments the process-wide request counter, the relaxed
// atomic of §5.
func (a *AppState) CountRequest() {
	a.requests.Add(1)
}

// RequestCount returns the current request counter value.
func (a *AppState) RequestCount() uint64 {
	return a.requests.Load()
}

// Uptime is the duration since this AppState was constructed.
func (a *AppState) Uptime() time.Duration {
	return time.Since(a.startedAt)
}

// CollectionCount is the number of collections currently registered,
// reported on /status per the original_source supplement (SPEC_FULL.md
// §C.2).
func (a *AppState) CollectionCount() int {
	return len(a.Registry.List())
}
