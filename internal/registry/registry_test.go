package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/search"
)

func TestCreateOnWriteProvisionsNewCollection(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)

	h, err := r.CreateOnWrite("widgets", "id", search.ParseFieldSpecs([]string{"category"}))
	require.NoError(t, err)
	require.Equal(t, "id", h.Schema.Primary)

	got, ok := r.Get("widgets")
	require.True(t, ok)
	require.Same(t, h.SI, got.SI)
}

func TestCreateOnWriteRejectsMismatchedPrimary(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)

	_, err = r.CreateOnWrite("widgets", "id", nil)
	require.NoError(t, err)

	_, err = r.CreateOnWrite("widgets", "sku", nil)
	require.Error(t, err)
}

func TestCreateOnWriteRejectsUnsafeNames(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)

	_, err = r.CreateOnWrite("../escape", "id", nil)
	require.Error(t, err)
}

func TestLoadRecoversExistingCollectionsFromDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "index")
	r, err := Load(root, zap.NewNop())
	require.NoError(t, err)
	_, err = r.CreateOnWrite("widgets", "id", search.ParseFieldSpecs([]string{"category", "price:f64"}))
	require.NoError(t, err)

	h, _ := r.Get("widgets")
	require.NoError(t, h.SI.Close())

	reloaded, err := Load(root, zap.NewNop())
	require.NoError(t, err)
	got, ok := reloaded.Get("widgets")
	require.True(t, ok)
	require.Equal(t, "id", got.Schema.Primary)
	require.ElementsMatch(t, []string{"category", "price:f64"}, fieldStrings(got.Schema))
}

func TestDeleteRemovesHandle(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)
	_, err = r.CreateOnWrite("widgets", "id", nil)
	require.NoError(t, err)

	h, ok := r.Delete("widgets")
	require.True(t, ok)
	require.NoError(t, h.SI.Close())

	_, ok = r.Get("widgets")
	require.False(t, ok)
}

func TestPurgeAllClearsRegistry(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)
	_, err = r.CreateOnWrite("widgets", "id", nil)
	require.NoError(t, err)
	_, err = r.CreateOnWrite("gadgets", "id", nil)
	require.NoError(t, err)

	handles := r.PurgeAll()
	require.Len(t, handles, 2)
	require.Empty(t, r.List())
}

func fieldStrings(s search.Schema) []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.String()
	}
	return out
}
