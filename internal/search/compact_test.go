package search

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactIsNoopWithOneSegment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "coll")
	idx, err := Create(dir, testSchema())
	require.NoError(t, err)
	defer idx.Close()

	w := idx.NewWriter(0)
	require.NoError(t, w.Add("1", map[string]any{"id": "1", "category": "Electronics"}))
	require.NoError(t, w.Commit())

	merged, err := idx.Compact(func(add func(string, map[string]any) error) error { return nil })
	require.NoError(t, err)
	require.False(t, merged)
}

func TestCompactRebuildsFromSourceAndKeepsDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "coll")
	idx, err := Create(dir, testSchema())
	require.NoError(t, err)
	defer idx.Close()

	for i := 0; i < 3; i++ {
		w := idx.NewWriter(0)
		require.NoError(t, w.Add(strconv.Itoa(i), map[string]any{"id": strconv.Itoa(i), "category": "Electronics"}))
		require.NoError(t, w.Commit())
	}
	require.Greater(t, idx.SegmentCount(), 1)

	docs := map[string]map[string]any{
		"0": {"id": "0", "category": "Electronics"},
		"1": {"id": "1", "category": "Electronics"},
		"2": {"id": "2", "category": "Electronics"},
	}
	merged, err := idx.Compact(func(add func(string, map[string]any) error) error {
		for id, fields := range docs {
			if err := add(id, fields); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, merged)
	require.Equal(t, 1, idx.SegmentCount())

	hits, err := idx.Search("*", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
}

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	require.True(t, DirExists(dir))
	require.False(t, DirExists(filepath.Join(dir, "missing")))
}
