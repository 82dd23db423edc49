package appstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/config"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/store"
)

func newTestAppState(t *testing.T) *AppState {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "zerocache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := registry.Load(filepath.Join(t.TempDir(), "index"), zap.NewNop())
	require.NoError(t, err)

	settings, err := config.Load(filepath.Join(t.TempDir(), "settings.json"), zap.NewNop())
	require.NoError(t, err)

	return New(st, reg, settings, zap.NewNop())
}

func TestCountRequestIncrementsCounter(t *testing.T) {
	app := newTestAppState(t)
	require.Equal(t, uint64(0), app.RequestCount())
	app.CountRequest()
	app.CountRequest()
	require.Equal(t, uint64(2), app.RequestCount())
}

func TestUptimeIsNonNegative(t *testing.T) {
	app := newTestAppState(t)
	require.GreaterOrEqual(t, app.Uptime().Nanoseconds(), int64(0))
}

func TestCollectionCountReflectsRegistry(t *testing.T) {
	app := newTestAppState(t)
	require.Equal(t, 0, app.CollectionCount())

	_, err := app.Registry.CreateOnWrite("widgets", "id", nil)
	require.NoError(t, err)
	require.Equal(t, 1, app.CollectionCount())
}
