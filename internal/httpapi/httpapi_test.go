package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/appstate"
	"github.com/brenik/zerocache/internal/config"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "zerocache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := registry.Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)

	settings, err := config.Load(filepath.Join(t.TempDir(), "settings.json"), zap.NewNop())
	require.NoError(t, err)
	settings.Apply(map[string]json.RawMessage{
		"allowed_ips":           json.RawMessage(`["127.0.0.1"]`),
		"rate_limit_per_second": json.RawMessage(`1000`),
	})

	app := appstate.New(st, reg, settings, zap.NewNop())
	return NewServer(app)
}

func doRequest(s *Server, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:5000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUpsertThenGetRoundTrips(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/data/products",
		map[string]string{headerUpsertField: "objectID,name,category,price:f64"},
		`{"objectID":"1","name":"Gaming Mouse","category":"Electronics","price":49.99}
{"objectID":"9","name":"Headset","category":"Electronics","price":99.99}
`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/data/products", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, float64(2), payload["total"])
}

func TestGetUnknownCollectionReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/data/nothing", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteWithoutConfirmHeaderReturns400(t *testing.T) {
	s := newTestServer(t)
	doRequest(s, http.MethodPost, "/data/products", map[string]string{headerUpsertField: "objectID"}, `{"objectID":"1"}`)

	rec := doRequest(s, http.MethodDelete, "/data/products", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteByPrimaryKeyThenMissingOnGet(t *testing.T) {
	s := newTestServer(t)
	doRequest(s, http.MethodPost, "/data/products", map[string]string{headerUpsertField: "objectID"}, `{"objectID":"1"}
{"objectID":"2"}
`)

	rec := doRequest(s, http.MethodDelete, "/data/products?objectID=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/data/products?objectID=1", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpointDeniedForUnlistedIP(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusReportsCounters(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Contains(t, payload, "uptime_seconds")
	require.Contains(t, payload, "request_count")
}

func TestSettingsGetAndPut(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPut, "/settings", nil, `{"default_scan_limit":7}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/settings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, float64(7), payload["default_scan_limit"])
}

func TestTreesListsCollectionsWithIndexedFields(t *testing.T) {
	s := newTestServer(t)
	doRequest(s, http.MethodPost, "/data/products", map[string]string{headerUpsertField: "objectID,category"}, `{"objectID":"1","category":"Electronics"}`)

	rec := doRequest(s, http.MethodGet, "/trees", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, float64(1), payload["total"])
}
