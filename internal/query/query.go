// Package query is the Query Planner/Executor (QE): it classifies an HTTP
// query into direct_lookup/index_search/full_scan, drives the Search Index
// or Record Store accordingly, and applies the in-memory range-filter,
// sort and pagination post-processing of §4.4.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/brenik/zerocache/internal/apierr"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/search"
	"github.com/brenik/zerocache/internal/store"
)

// PlanType names the three execution paths of §4.4.
type PlanType string

const (
	PlanDirectLookup PlanType = "direct_lookup"
	PlanIndexSearch  PlanType = "index_search"
	PlanFullScan     PlanType = "full_scan"
)

const (
	paramLimit     = "limit"
	paramOffset    = "offset"
	paramSortBy    = "sort_by"
	paramSortOrder = "sort_order"
	paramQuery     = "q"
)

const rangeMinPrefix = "filter_min_"
const rangeMaxPrefix = "filter_max_"

// Params is the parsed, validated set of recognized query parameters.
type Params struct {
	Limit       int
	Offset      int
	SortBy      string
	SortOrder   string
	FreeText    string
	Equals      map[string]string
	RangeMin    map[string]float64
	RangeMax    map[string]float64
	DirectValue string
	HasDirect   bool
}

// ParseParams validates raw query parameters against a collection's frozen
// schema. Any parameter naming a field that is neither the primary field
// nor a declared index field is rejected, per §4.4's index-field gating.
func ParseParams(raw map[string][]string, schema search.Schema, defaultLimit, maxLimit int) (Params, error) {
	p := Params{
		Limit:     defaultLimit,
		SortOrder: "asc",
		Equals:    make(map[string]string),
		RangeMin:  make(map[string]float64),
		RangeMax:  make(map[string]float64),
	}

	for key, values := range raw {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		switch {
		case key == paramLimit:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Params{}, apierr.BadRequest("invalid limit %q", v)
			}
			p.Limit = n
		case key == paramOffset:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return Params{}, apierr.BadRequest("invalid offset %q", v)
			}
			p.Offset = n
		case key == paramSortBy:
			if !schema.HasField(v) && v != schema.Primary {
				return Params{}, apierr.BadRequest("field %q is not declared as an index field", v)
			}
			p.SortBy = v
		case key == paramSortOrder:
			if v != "asc" && v != "desc" {
				return Params{}, apierr.BadRequest("invalid sort_order %q", v)
			}
			p.SortOrder = v
		case key == paramQuery:
			p.FreeText = v
		case key == schema.Primary:
			p.DirectValue = v
			p.HasDirect = true
		case strings.HasPrefix(key, rangeMinPrefix):
			field := strings.TrimPrefix(key, rangeMinPrefix)
			if !schema.HasField(field) {
				return Params{}, apierr.BadRequest("field %q is not declared as an index field", field)
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Params{}, apierr.BadRequest("invalid %s%s value %q", rangeMinPrefix, field, v)
			}
			p.RangeMin[field] = n
		case strings.HasPrefix(key, rangeMaxPrefix):
			field := strings.TrimPrefix(key, rangeMaxPrefix)
			if !schema.HasField(field) {
				return Params{}, apierr.BadRequest("field %q is not declared as an index field", field)
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Params{}, apierr.BadRequest("invalid %s%s value %q", rangeMaxPrefix, field, v)
			}
			p.RangeMax[field] = n
		default:
			if !schema.HasField(key) {
				return Params{}, apierr.BadRequest("field %q is not declared as an index field", key)
			}
			p.Equals[key] = v
		}
	}

	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p, nil
}

// Plan classifies the request per §4.4's ordering: primary-field presence
// wins outright; otherwise any filter/free-text parameter routes to
// index_search; otherwise full_scan.
func (p Params) Plan() PlanType {
	if p.HasDirect {
		return PlanDirectLookup
	}
	if p.FreeText != "" || len(p.Equals) > 0 || len(p.RangeMin) > 0 || len(p.RangeMax) > 0 {
		return PlanIndexSearch
	}
	return PlanFullScan
}

// buildQueryString composes the bleve query-string-query body: one
// field:"value" clause per equality filter, ANDed together, with the free
// text clause appended; an entirely empty composition falls back to "*".
func (p Params) buildQueryString() string {
	var clauses []string
	for field, value := range p.Equals {
		clauses = append(clauses, fmt.Sprintf("%s:%q", field, value))
	}
	sort.Strings(clauses)
	if p.FreeText != "" {
		clauses = append(clauses, p.FreeText)
	}
	if len(clauses) == 0 {
		return "*"
	}
	return strings.Join(clauses, " AND ")
}

// Result is the response envelope of §4.4: `{<collection>: [...], total,
// limit, offset, query_type}`.
type Result struct {
	Collection string
	Items      []json.RawMessage
	Total      int
	Limit      int
	Offset     int
	QueryType  PlanType
}

// Executor runs a classified Params against a collection handle.
type Executor struct {
	Store *store.Store
}

// Execute dispatches to the chosen plan and applies the §4.4
// post-processing (range filter, then sort) in order. Pagination beyond
// the SI's own limit clamp is a full_scan-only concern, per Open Question
// Q2.
func (e *Executor) Execute(handle *registry.Handle, p Params) (Result, error) {
	switch p.Plan() {
	case PlanDirectLookup:
		return e.directLookup(handle, p)
	case PlanIndexSearch:
		return e.indexSearch(handle, p)
	default:
		return e.fullScan(handle, p)
	}
}

func (e *Executor) directLookup(handle *registry.Handle, p Params) (Result, error) {
	res := Result{Collection: handle.Name, Limit: p.Limit, Offset: p.Offset, QueryType: PlanDirectLookup}
	raw, found, err := e.Store.Get(handle.Name, p.DirectValue)
	if err != nil {
		return Result{}, apierr.Internal("record store lookup failed", err)
	}
	if !found {
		return res, nil
	}
	res.Items = []json.RawMessage{raw}
	res.Total = 1
	return res, nil
}

func (e *Executor) indexSearch(handle *registry.Handle, p Params) (Result, error) {
	res := Result{Collection: handle.Name, Limit: p.Limit, Offset: p.Offset, QueryType: PlanIndexSearch}

	hits, err := handle.SI.Search(p.buildQueryString(), p.Limit)
	if err != nil {
		return Result{}, apierr.Internal("search execution failed", err)
	}

	items := make([]json.RawMessage, 0, len(hits))
	for _, h := range hits {
		raw, found, err := e.Store.Get(handle.Name, h.Primary)
		if err != nil {
			return Result{}, apierr.Internal("record store lookup failed", err)
		}
		if !found {
			// SI lagging a recent RS delete; the document is gone, skip it
			// rather than surface a ghost (record-authority, §8).
			continue
		}
		items = append(items, raw)
	}

	items, err = applyRangeFilters(items, p)
	if err != nil {
		return Result{}, err
	}
	items = applySort(items, p)

	res.Items = items
	res.Total = len(items)
	return res, nil
}

func (e *Executor) fullScan(handle *registry.Handle, p Params) (Result, error) {
	res := Result{Collection: handle.Name, Limit: p.Limit, Offset: p.Offset, QueryType: PlanFullScan}

	var items []json.RawMessage
	err := e.Store.ForEach(handle.Name, p.Offset, func(it store.Item) bool {
		if len(items) >= p.Limit {
			return false
		}
		items = append(items, append(json.RawMessage(nil), it.Value...))
		return len(items) < p.Limit
	})
	if err != nil {
		return Result{}, apierr.Internal("record store scan failed", err)
	}

	items, err = applyRangeFilters(items, p)
	if err != nil {
		return Result{}, err
	}
	items = applySort(items, p)

	res.Items = items
	res.Total = len(items)
	return res, nil
}

// applyRangeFilters retains only items whose numeric coercion of every
// ranged field lies within its declared bounds; a non-coercible value
// excludes the item (§4.4 post-processing step 1).
func applyRangeFilters(items []json.RawMessage, p Params) ([]json.RawMessage, error) {
	if len(p.RangeMin) == 0 && len(p.RangeMax) == 0 {
		return items, nil
	}
	out := items[:0]
	for _, raw := range items {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if inRange(doc, p.RangeMin, p.RangeMax) {
			out = append(out, raw)
		}
	}
	return out, nil
}

func inRange(doc map[string]any, mins, maxes map[string]float64) bool {
	for field, min := range mins {
		n, ok := numeric(doc[field])
		if !ok || n < min {
			return false
		}
	}
	for field, max := range maxes {
		n, ok := numeric(doc[field])
		if !ok || n > max {
			return false
		}
	}
	return true
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// applySort implements §4.4's comparison semantics (see
// compareSortValues): in ascending order a present value sorts before a
// missing one; desc reverses the whole ascending order, so missing values
// come first.
func applySort(items []json.RawMessage, p Params) []json.RawMessage {
	if p.SortBy == "" || len(items) < 2 {
		return items
	}

	type entry struct {
		raw   json.RawMessage
		value any
		has   bool
	}
	entries := make([]entry, len(items))
	for i, raw := range items {
		var doc map[string]any
		var e entry
		e.raw = raw
		if err := json.Unmarshal(raw, &doc); err == nil {
			if v, ok := doc[p.SortBy]; ok {
				e.value, e.has = v, true
			}
		}
		entries[i] = e
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return compareSortValues(entries[i], entries[j])
	})
	if p.SortOrder == "desc" {
		for l, r := 0, len(entries)-1; l < r; l, r = l+1, r-1 {
			entries[l], entries[r] = entries[r], entries[l]
		}
	}

	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.raw
	}
	return out
}

type sortEntry = struct {
	raw   json.RawMessage
	value any
	has   bool
}

// compareSortValues implements §4.4's ordering: a present value always
// sorts before a missing one; two numbers compare numerically; two
// strings compare numerically if both parse as numbers, lexicographically
// otherwise; mixed types are considered equal (neither less).
func compareSortValues(a, b sortEntry) bool {
	if a.has != b.has {
		return a.has
	}
	if !a.has {
		return false
	}

	switch av := a.value.(type) {
	case float64:
		if bv, ok := b.value.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.value.(string); ok {
			an, aErr := strconv.ParseFloat(av, 64)
			bn, bErr := strconv.ParseFloat(bv, 64)
			if aErr == nil && bErr == nil {
				return an < bn
			}
			return av < bv
		}
	}
	return false
}
