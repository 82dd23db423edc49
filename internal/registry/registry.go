// Package registry is the Collection Registry (CR): the in-memory,
// authoritative map from collection name to its frozen schema and shared
// search index handle. It is reconstructible from disk alone (the SI
// directories are the source of truth for schema, per §9), and mutated
// only under its own exclusive lock on create/delete/purge.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/apierr"
	"github.com/brenik/zerocache/internal/search"
)

// Handle is a CollectionHandle: the schema plus the shared SI reference
// for one collection. Readers clone the handle value (cheap: one pointer)
// and drop the registry lock before doing any real work, per the
// "copy-the-handle, drop-the-registry-lock" guidance in §9.
type Handle struct {
	Name   string
	Schema search.Schema
	SI     *search.Index
}

// Registry guards the handle map with a reader-writer lock: exclusive for
// create/delete/purge, shared (briefly) for lookups.
type Registry struct {
	mu        sync.RWMutex
	indexPath string
	handles   map[string]*Handle
	log       *zap.Logger
}

// isSafeName rejects collection names that could escape index_path via a
// path traversal, a feature present in original_source but dropped by the
// spec's distillation (see SPEC_FULL.md §C.4).
func isSafeName(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	return !strings.Contains(name, "..")
}

// Load performs the startup scan of §4.1: every subdirectory of indexPath
// is assumed to be an existing SI and is opened to recover its schema.
func Load(indexPath string, log *zap.Logger) (*Registry, error) {
	r := &Registry{indexPath: indexPath, handles: make(map[string]*Handle), log: log}

	if !search.DirExists(indexPath) {
		if err := os.MkdirAll(indexPath, 0o755); err != nil {
			return nil, fmt.Errorf("create index_path: %w", err)
		}
		return r, nil
	}

	entries, err := os.ReadDir(indexPath)
	if err != nil {
		return nil, fmt.Errorf("scan index_path: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		dir := filepath.Join(indexPath, name)
		idx, err := search.Open(dir)
		if err != nil {
			log.Warn("skipping unrecoverable collection index", zap.String("collection", name), zap.Error(err))
			continue
		}
		r.handles[name] = &Handle{Name: name, Schema: idx.Schema(), SI: idx}
	}
	return r, nil
}

// Get returns a clone of the handle for name, if it exists.
func (r *Registry) Get(name string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	return h, ok
}

// List returns a snapshot of every registered handle.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// CreateOnWrite resolves and freezes a collection's schema on its first
// write. If the collection already exists, it instead enforces the
// mismatch rule: a different declared primary field is a bad request and
// nothing is created or changed (§4.1).
func (r *Registry) CreateOnWrite(name, primary string, fields []search.FieldSpec) (*Handle, error) {
	if !isSafeName(name) {
		return nil, apierr.BadRequest("invalid collection name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handles[name]; ok {
		if existing.Schema.Primary != primary {
			return nil, apierr.BadRequest("primary field mismatch with existing collection %q", name)
		}
		return existing, nil
	}

	schema := search.Schema{Primary: primary, Fields: fields}
	dir := filepath.Join(r.indexPath, name)
	idx, err := search.Create(dir, schema)
	if err != nil {
		return nil, apierr.Internal("failed to create search index", err)
	}
	h := &Handle{Name: name, Schema: schema, SI: idx}
	r.handles[name] = h
	return h, nil
}

// Delete removes name from the registry and returns its handle so the
// caller can close the SI and remove its directory outside the lock.
func (r *Registry) Delete(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if ok {
		delete(r.handles, name)
	}
	return h, ok
}

// PurgeAll clears the registry entirely, returning every handle that was
// registered so the caller can close/remove their SI directories.
func (r *Registry) PurgeAll() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.handles = make(map[string]*Handle)
	return out
}

// IndexPath is the root directory backing every collection's SI.
func (r *Registry) IndexPath() string { return r.indexPath }
