package ingest

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/brenik/zerocache/internal/search"
)

// PrimaryID extracts and normalizes the primary-id value of a decoded
// document per §4.3 step 1: a non-negative integer is stringified, a
// string is taken as-is, anything else (missing, negative, object, bool)
// is rejected. An empty id is always rejected.
func PrimaryID(doc map[string]any, primaryField string) (string, bool) {
	v, ok := doc[primaryField]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case float64:
		if t < 0 || t != float64(int64(t)) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	default:
		return "", false
	}
}

// stringify renders a JSON value the way the original's
// `value.to_string()` call does for composing the reserved "text" field
// and per-field index text: strings pass through unquoted, null renders as
// an empty string, other JSON scalars/composites use their JSON text form.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// BuildIndexFields composes the one IndexRecord added per accepted
// document (§3, §4.3 step 3): the primary field text, every declared
// index field present in this document, and the synthesized catch-all
// "text" field joining the client-declared index_fields' values.
func BuildIndexFields(doc map[string]any, schema search.Schema, primaryID string) map[string]any {
	fields := make(map[string]any, len(schema.Fields)+2)
	fields[schema.Primary] = primaryID

	var textParts []string
	for _, f := range schema.Fields {
		v, present := doc[f.Name]
		if !present {
			continue
		}
		text := stringify(v)
		fields[f.Name] = text
		textParts = append(textParts, text)
	}
	fields[search.ReservedTextField] = strings.TrimSpace(strings.Join(textParts, " "))
	return fields
}
