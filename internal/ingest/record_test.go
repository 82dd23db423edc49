package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brenik/zerocache/internal/search"
)

func TestPrimaryIDAcceptsStringAndNonNegativeInteger(t *testing.T) {
	id, ok := PrimaryID(map[string]any{"id": "abc"}, "id")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	id, ok = PrimaryID(map[string]any{"id": float64(42)}, "id")
	assert.True(t, ok)
	assert.Equal(t, "42", id)
}

func TestPrimaryIDRejectsInvalidValues(t *testing.T) {
	cases := []map[string]any{
		{"id": ""},
		{"id": float64(-1)},
		{"id": float64(1.5)},
		{"id": true},
		{"id": nil},
		{"other": "x"},
	}
	for _, doc := range cases {
		_, ok := PrimaryID(doc, "id")
		assert.False(t, ok, "%v", doc)
	}
}

func TestBuildIndexFieldsComposesReservedTextField(t *testing.T) {
	schema := search.Schema{Primary: "id", Fields: search.ParseFieldSpecs([]string{"name", "category"})}
	doc := map[string]any{"id": "1", "name": "Gaming Mouse", "category": "Electronics", "extra": "ignored"}

	fields := BuildIndexFields(doc, schema, "1")
	assert.Equal(t, "1", fields["id"])
	assert.Equal(t, "Gaming Mouse", fields["name"])
	assert.Equal(t, "Electronics", fields["category"])
	assert.Equal(t, "Gaming Mouse Electronics", fields["text"])
	assert.NotContains(t, fields, "extra")
}

func TestBuildIndexFieldsSkipsAbsentFields(t *testing.T) {
	schema := search.Schema{Primary: "id", Fields: search.ParseFieldSpecs([]string{"name", "category"})}
	doc := map[string]any{"id": "1", "name": "Gaming Mouse"}

	fields := BuildIndexFields(doc, schema, "1")
	assert.NotContains(t, fields, "category")
	assert.Equal(t, "Gaming Mouse", fields["text"])
}
