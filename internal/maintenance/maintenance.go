// Package maintenance is Maintenance (MT): delete-by-primary-key,
// delete-collection, purge-all and compact, each coordinating the Record
// Store, Search Index and Collection Registry per §4.5.
package maintenance

import (
	"os"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/apierr"
	"github.com/brenik/zerocache/internal/ingest"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/search"
	"github.com/brenik/zerocache/internal/store"
)

// Maintenance bundles the subsystems every operation here coordinates.
type Maintenance struct {
	Store    *store.Store
	Registry *registry.Registry
	Log      *zap.Logger
}

// DeletePrimaryKeyResult is the `{deleted, collection, id}` envelope of
// §4.5.
type DeletePrimaryKeyResult struct {
	Deleted    int
	Collection string
	ID         string
}

// DeleteByPrimaryKey removes one document from RS and, if it existed,
// deletes its IndexRecord from SI before reporting success. RS removal is
// durable before the SI delete commits, per §5's ordering guarantee.
func (m *Maintenance) DeleteByPrimaryKey(collection, id string) (DeletePrimaryKeyResult, error) {
	handle, ok := m.Registry.Get(collection)
	if !ok {
		return DeletePrimaryKeyResult{}, apierr.NotFound("unknown collection %q", collection)
	}

	existed, err := m.Store.Delete(collection, id)
	if err != nil {
		return DeletePrimaryKeyResult{}, apierr.Internal("record store delete failed", err)
	}
	if !existed {
		return DeletePrimaryKeyResult{Collection: collection, ID: id}, nil
	}

	if err := handle.SI.DeleteByPrimaryID(id); err != nil {
		m.Log.Warn("search index delete failed", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
	}
	return DeletePrimaryKeyResult{Deleted: 1, Collection: collection, ID: id}, nil
}

// DeleteCollection drops an entire collection: its RS sub-store, its SI
// directory, and its CR entry. Per §4.5, a missing collection or a failed
// subsystem step is swallowed — this is a best-effort operation and always
// reports success.
func (m *Maintenance) DeleteCollection(collection string) {
	if err := m.Store.DropCollection(collection); err != nil {
		m.Log.Warn("record store drop failed", zap.String("collection", collection), zap.Error(err))
	}

	handle, ok := m.Registry.Delete(collection)
	if !ok {
		return
	}
	if err := handle.SI.Close(); err != nil {
		m.Log.Warn("search index close failed", zap.String("collection", collection), zap.Error(err))
	}
	if err := os.RemoveAll(handle.SI.Path()); err != nil {
		m.Log.Warn("search index directory removal failed", zap.String("collection", collection), zap.Error(err))
	}
}

// PurgeAll drops every collection's RS sub-store (except the reserved
// default store), clears CR, and recreates the index root directory.
func (m *Maintenance) PurgeAll() error {
	handles := m.Registry.PurgeAll()
	for _, h := range handles {
		if err := h.SI.Close(); err != nil {
			m.Log.Warn("search index close failed", zap.String("collection", h.Name), zap.Error(err))
		}
	}

	if err := m.Store.PurgeAll(); err != nil {
		return apierr.Internal("record store purge failed", err)
	}

	indexRoot := m.Registry.IndexPath()
	if err := os.RemoveAll(indexRoot); err != nil {
		return apierr.Internal("index directory removal failed", err)
	}
	if err := os.MkdirAll(indexRoot, 0o755); err != nil {
		return apierr.Internal("index directory recreation failed", err)
	}
	return nil
}

// CompactOutcome is one collection's aggregated compact result.
type CompactOutcome struct {
	Collection string
	Merged     bool
	Error      string
}

// Compact flushes RS asynchronously, then for every registered collection
// rebuilds its SI into a single segment if it currently holds more than
// one (§4.5). One collection's failure does not halt the others.
func (m *Maintenance) Compact() []CompactOutcome {
	go func() {
		if err := m.Store.Flush(); err != nil {
			m.Log.Warn("record store flush failed during compact", zap.Error(err))
		}
	}()

	handles := m.Registry.List()
	outcomes := make([]CompactOutcome, 0, len(handles))
	for _, h := range handles {
		merged, err := h.SI.Compact(m.docSource(h))
		if err != nil {
			m.Log.Warn("compact failed", zap.String("collection", h.Name), zap.Error(err))
			outcomes = append(outcomes, CompactOutcome{Collection: h.Name, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, CompactOutcome{Collection: h.Name, Merged: merged})
	}
	return outcomes
}

// docSource rebuilds IndexRecords straight from RS, the source-of-truth
// reindex path §9 calls out: "a reindex tool can rebuild SI from RS".
func (m *Maintenance) docSource(h *registry.Handle) search.DocSource {
	return func(add func(primaryID string, fields map[string]any) error) error {
		var addErr error
		err := m.Store.ForEach(h.Name, 0, func(it store.Item) bool {
			var doc map[string]any
			if err := json.Unmarshal(it.Value, &doc); err != nil {
				return true
			}
			fields := ingest.BuildIndexFields(doc, h.Schema, it.Key)
			if err := add(it.Key, fields); err != nil {
				addErr = err
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		return addErr
	}
}
