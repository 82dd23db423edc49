package ingest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *registry.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "zerocache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := registry.Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)

	return &Pipeline{Store: st, Registry: reg, Log: zap.NewNop()}, st, reg
}

func TestUpsertCreatesCollectionFromHeader(t *testing.T) {
	p, st, reg := newTestPipeline(t)
	body := strings.NewReader(`{"id":"1","name":"Gaming Mouse","category":"Electronics"}
{"id":"2","name":"Novel","category":"Books"}
`)

	result, err := p.Upsert("widgets", "id,name,category", body, int64(body.Len()), 1000)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Equal(t, 0, result.Errors)

	v, found, err := st.Get("widgets", "1")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"id":"1","name":"Gaming Mouse","category":"Electronics"}`, string(v))

	h, ok := reg.Get("widgets")
	require.True(t, ok)
	hits, err := h.SI.Search(`category:"Electronics"`, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "1", hits[0].Primary)
}

func TestUpsertDerivesPrimaryFromFirstKeyWhenHeaderAbsent(t *testing.T) {
	p, _, reg := newTestPipeline(t)
	body := strings.NewReader(`{"sku":"abc","name":"Widget"}`)

	result, err := p.Upsert("widgets", "", body, int64(body.Len()), 1000)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)

	h, ok := reg.Get("widgets")
	require.True(t, ok)
	require.Equal(t, "sku", h.Schema.Primary)
}

func TestUpsertRejectsMismatchedPrimaryOnExistingCollection(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	first := strings.NewReader(`{"id":"1"}`)
	_, err := p.Upsert("widgets", "id", first, int64(first.Len()), 1000)
	require.NoError(t, err)

	second := strings.NewReader(`{"sku":"1"}`)
	_, err = p.Upsert("widgets", "sku", second, int64(second.Len()), 1000)
	require.Error(t, err)
}

func TestUpsertCountsPerDocumentErrorsWithoutAborting(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	body := strings.NewReader(`{"id":"1"}
{"id":""}
{"id":"2"}
`)

	result, err := p.Upsert("widgets", "id", body, int64(body.Len()), 1000)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Equal(t, 1, result.Errors)
}

func TestUpsertOverwriteDoesNotGrowCount(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	first := strings.NewReader(`{"id":"1","v":1}`)
	_, err := p.Upsert("widgets", "id", first, int64(first.Len()), 1000)
	require.NoError(t, err)

	second := strings.NewReader(`{"id":"1","v":2}`)
	_, err = p.Upsert("widgets", "id", second, int64(second.Len()), 1000)
	require.NoError(t, err)

	require.Equal(t, 1, st.Count("widgets"))
	v, _, err := st.Get("widgets", "1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","v":2}`, string(v))
}
