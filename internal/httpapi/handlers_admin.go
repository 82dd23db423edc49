package httpapi

import (
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/apierr"
)

const headerConfirmCompact = "X-Confirm-Compact"

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeErr(w, apierr.BadRequest("method %s not allowed on /purge", r.Method))
		return
	}
	if r.Header.Get(headerConfirmPurge) != "true" {
		writeErr(w, apierr.BadRequest("missing %s: true header", headerConfirmPurge))
		return
	}
	if err := s.App.Maintenance.PurgeAll(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeErr(w, apierr.BadRequest("method %s not allowed on /compact", r.Method))
		return
	}
	if r.Header.Get(headerConfirmCompact) != "true" {
		writeErr(w, apierr.BadRequest("missing %s: true header", headerConfirmCompact))
		return
	}
	outcomes := s.App.Maintenance.Compact()
	results := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		entry := map[string]any{"collection": o.Collection, "merged": o.Merged}
		if o.Error != "" {
			entry["error"] = o.Error
		}
		results = append(results, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

// handleTrees reports each collection's document count and its round-
// tripped schema field list, per SPEC_FULL.md §C.1: the same
// schema-to-strings shape the Collection Registry recovers at startup.
func (s *Server) handleTrees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.BadRequest("method %s not allowed on /trees", r.Method))
		return
	}
	handles := s.App.Registry.List()
	collections := make([]map[string]any, 0, len(handles))
	for _, h := range handles {
		indexed := make([]string, len(h.Schema.Fields))
		for i, f := range h.Schema.Fields {
			indexed[i] = f.String()
		}
		collections = append(collections, map[string]any{
			"name":    h.Name,
			"count":   s.App.Store.Count(h.Name),
			"indexed": indexed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collections, "total": len(collections)})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.App.Settings.Snapshot())
	case http.MethodPut:
		var updates map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeErr(w, apierr.BadRequest("invalid settings payload: %v", err))
			return
		}
		applied, unknown := s.App.Settings.Apply(updates)
		s.logger().Info("settings updated", zap.Strings("applied", applied), zap.Strings("unknown", unknown))
		writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "unknown": unknown, "settings": s.App.Settings.Snapshot()})
	default:
		writeErr(w, apierr.BadRequest("method %s not allowed on /settings", r.Method))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, apierr.BadRequest("method %s not allowed on /status", r.Method))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":   s.App.Uptime().Seconds(),
		"request_count":    s.App.RequestCount(),
		"collection_count": s.App.CollectionCount(),
	})
}
