package search

import (
	"fmt"
	"strings"
)

// FieldType is the declared storage hint for an index field. The engine
// indexes every field as analyzed text regardless of FieldType (see the
// "range filters stay a post-filter" decision in DESIGN.md, resolving Q1 of
// the spec) — the suffix exists purely so the Collection Registry can
// round-trip a schema from disk the same way it was declared.
type FieldType string

const (
	FieldText FieldType = "text"
	FieldU64  FieldType = "u64"
	FieldI64  FieldType = "i64"
	FieldF64  FieldType = "f64"
)

// ReservedTextField is the catch-all full-text field every schema carries.
const ReservedTextField = "text"

// FieldSpec is one entry of a collection's index_fields list.
type FieldSpec struct {
	Name string
	Type FieldType
}

func (f FieldSpec) String() string {
	if f.Type == "" || f.Type == FieldText {
		return f.Name
	}
	return f.Name + ":" + string(f.Type)
}

// ParseFieldSpec parses a single "name[:type]" token from an X-Upsert-Field
// header or a persisted schema string. An unrecognized or missing suffix
// defaults to text, per §3 of the spec.
func ParseFieldSpec(token string) FieldSpec {
	token = strings.TrimSpace(token)
	name, typ, found := strings.Cut(token, ":")
	if !found {
		return FieldSpec{Name: name, Type: FieldText}
	}
	switch FieldType(typ) {
	case FieldU64, FieldI64, FieldF64:
		return FieldSpec{Name: name, Type: FieldType(typ)}
	default:
		return FieldSpec{Name: name, Type: FieldText}
	}
}

// ParseFieldSpecs splits a comma-separated X-Upsert-Field remainder.
func ParseFieldSpecs(tokens []string) []FieldSpec {
	specs := make([]FieldSpec, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		specs = append(specs, ParseFieldSpec(t))
	}
	return specs
}

// Schema is the frozen, declaration-ordered shape of a collection.
type Schema struct {
	Primary string
	Fields  []FieldSpec
}

// FieldNames returns just the declared field names, in order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether name was declared as an index field (the gate
// applied to query filter parameters, §4.4).
func (s Schema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s -> [%s]", s.Primary, strings.Join(parts, ","))
}
