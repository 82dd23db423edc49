package search

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{Primary: "id", Fields: ParseFieldSpecs([]string{"category", "price:f64"})}
}

func TestCreateOpenRoundTripsSchema(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "coll")
	schema := testSchema()

	idx, err := Create(dir, schema)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, schema.Primary, reopened.Schema().Primary)
	require.Equal(t, schema.FieldNames(), reopened.Schema().FieldNames())
}

func TestWriterAddCommitAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "coll")
	idx, err := Create(dir, testSchema())
	require.NoError(t, err)
	defer idx.Close()

	w := idx.NewWriter(0)
	require.NoError(t, w.Add("1", map[string]any{"id": "1", "category": "Electronics", "text": "Electronics"}))
	require.NoError(t, w.Add("2", map[string]any{"id": "2", "category": "Books", "text": "Books"}))
	require.NoError(t, w.Commit())

	hits, err := idx.Search(`category:"Electronics"`, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "1", hits[0].Primary)
}

func TestDeleteByPrimaryIDRemovesDocument(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "coll")
	idx, err := Create(dir, testSchema())
	require.NoError(t, err)
	defer idx.Close()

	w := idx.NewWriter(0)
	require.NoError(t, w.Add("1", map[string]any{"id": "1", "category": "Electronics", "text": "Electronics"}))
	require.NoError(t, w.Commit())

	require.NoError(t, idx.DeleteByPrimaryID("1"))

	hits, err := idx.Search("*", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestWriterDiscardReleasesLockWithoutCommitting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "coll")
	idx, err := Create(dir, testSchema())
	require.NoError(t, err)
	defer idx.Close()

	w := idx.NewWriter(0)
	require.NoError(t, w.Add("1", map[string]any{"id": "1"}))
	w.Discard()

	w2 := idx.NewWriter(0)
	w2.Discard()

	hits, err := idx.Search("*", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
