package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/apierr"
	"github.com/brenik/zerocache/internal/query"
)

const headerUpsertField = "X-Upsert-Field"
const headerConfirmPurge = "X-Confirm-Purge"

// handleData dispatches the three verbs of §6.1's `/data/{key}` entry.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	collection := strings.TrimPrefix(r.URL.Path, "/data/")
	if collection == "" {
		writeErr(w, apierr.BadRequest("missing collection name"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleUpsert(w, r, collection)
	case http.MethodGet:
		s.handleQuery(w, r, collection)
	case http.MethodDelete:
		s.handleDataDelete(w, r, collection)
	default:
		writeErr(w, apierr.BadRequest("method %s not allowed on /data/{key}", r.Method))
	}
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request, collection string) {
	settings := s.App.Settings.Snapshot()
	result, err := s.App.Ingest.Upsert(collection, r.Header.Get(headerUpsertField), r.Body, r.ContentLength, settings.UpsertIndexBuffer)
	if err != nil {
		s.logger().Error("upsert failed", zap.String("collection", collection), zap.Error(err))
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"operation":  "upsert",
		"count":      result.Count,
		"errors":     result.Errors,
		"collection": collection,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, collection string) {
	handle, ok := s.App.Registry.Get(collection)
	if !ok {
		writeErr(w, apierr.NotFound("unknown collection %q", collection))
		return
	}

	settings := s.App.Settings.Snapshot()
	params, err := query.ParseParams(r.URL.Query(), handle.Schema, settings.DefaultScanLimit, settings.MaxScanLimit)
	if err != nil {
		writeErr(w, err)
		return
	}

	result, err := s.App.Query.Execute(handle, params)
	if err != nil {
		writeErr(w, err)
		return
	}

	if result.Total == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "no matching documents",
			"query": r.URL.RawQuery,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		collection:   result.Items,
		"total":      result.Total,
		"limit":      result.Limit,
		"offset":     result.Offset,
		"query_type": result.QueryType,
	})
}

func (s *Server) handleDataDelete(w http.ResponseWriter, r *http.Request, collection string) {
	q := r.URL.Query()
	if len(q) == 0 {
		if r.Header.Get(headerConfirmPurge) != "true" {
			writeErr(w, apierr.BadRequest("missing %s: true header", headerConfirmPurge))
			return
		}
		s.App.Maintenance.DeleteCollection(collection)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "collection": collection})
		return
	}

	handle, ok := s.App.Registry.Get(collection)
	var primaryField string
	if ok {
		primaryField = handle.Schema.Primary
	}
	id := primaryValueFrom(q, primaryField)
	if id == "" {
		writeErr(w, apierr.BadRequest("expected ?<primary_field>=<id> query"))
		return
	}

	result, err := s.App.Maintenance.DeleteByPrimaryKey(collection, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if result.Deleted == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"deleted": 0, "collection": collection, "id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": result.Deleted, "collection": collection, "id": result.ID})
}

// primaryValueFrom returns the single query value matching primaryField,
// falling back to the first query parameter when the collection (and
// therefore its schema) is unknown.
func primaryValueFrom(q map[string][]string, primaryField string) string {
	if primaryField != "" {
		if v, ok := q[primaryField]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	for _, v := range q {
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
