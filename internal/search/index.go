// Package search is the Search Index (SI) component: a per-collection
// inverted index built on bleve, the idiomatic Go analogue of the original
// implementation's tantivy index. Every collection owns exactly one Index;
// the reader-writer lock embedded in it is the "SI per collection" lock of
// §5 — writers (ingest, delete-by-pk, compact) take it exclusively, the
// query path takes it for reads.
package search

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// internalSchemaKey is where the declared Schema is persisted inside the
// bleve index's own internal key/value space (SetInternal/GetInternal),
// so a restart can recover primary_field/index_fields without guessing
// types back out of bleve's (type-erased) field mappings.
const internalSchemaKey = "_zerocache_schema"

// Index wraps one collection's bleve.Index together with the schema it was
// built from and a generation counter standing in for tantivy's segment
// ids: every committed batch in scorch (bleve's default index kind)
// produces exactly one new on-disk segment, so counting commits since the
// last compaction is a faithful proxy for "how many segments exist".
type Index struct {
	mu     sync.RWMutex
	path   string
	schema Schema
	bi     bleve.Index

	segments int // segments introduced since the last Compact
}

type persistedSchema struct {
	Primary string   `json:"primary"`
	Fields  []string `json:"fields"`
}

func buildMapping(schema Schema) mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	primaryField := bleve.NewTextFieldMapping()
	primaryField.Store = true
	primaryField.Index = true
	doc.AddFieldMappingsAt(schema.Primary, primaryField)

	for _, f := range schema.Fields {
		fm := bleve.NewTextFieldMapping()
		fm.Store = false
		fm.Index = true
		doc.AddFieldMappingsAt(f.Name, fm)
	}

	textField := bleve.NewTextFieldMapping()
	textField.Store = false
	textField.Index = true
	doc.AddFieldMappingsAt(ReservedTextField, textField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Create builds a brand-new on-disk index for a collection under
// directory dir, with the given frozen schema (§4.2).
func Create(dir string, schema Schema) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create index parent dir: %w", err)
	}
	bi, err := bleve.New(dir, buildMapping(schema))
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	idx := &Index{path: dir, schema: schema, bi: bi}
	if err := idx.persistSchema(); err != nil {
		bi.Close()
		return nil, err
	}
	return idx, nil
}

// Open reopens an existing on-disk index and recovers its schema from the
// internal metadata written by Create. This is the per-collection step of
// the Collection Registry's startup scan (§4.1).
func Open(dir string) (*Index, error) {
	bi, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open bleve index at %s: %w", dir, err)
	}
	raw, err := bi.GetInternal([]byte(internalSchemaKey))
	if err != nil || len(raw) == 0 {
		bi.Close()
		return nil, fmt.Errorf("no stored field found for index at %s", dir)
	}
	var ps persistedSchema
	if err := json.Unmarshal(raw, &ps); err != nil {
		bi.Close()
		return nil, fmt.Errorf("corrupt schema metadata at %s: %w", dir, err)
	}
	schema := Schema{Primary: ps.Primary}
	for _, tok := range ps.Fields {
		schema.Fields = append(schema.Fields, ParseFieldSpec(tok))
	}
	return &Index{path: dir, schema: schema, bi: bi, segments: 1}, nil
}

func (idx *Index) persistSchema() error {
	ps := persistedSchema{Primary: idx.schema.Primary}
	for _, f := range idx.schema.Fields {
		ps.Fields = append(ps.Fields, f.String())
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		return err
	}
	return idx.bi.SetInternal([]byte(internalSchemaKey), raw)
}

// Schema returns the frozen schema this index was created with.
func (idx *Index) Schema() Schema {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.schema
}

// Path is the on-disk directory backing this index.
func (idx *Index) Path() string { return idx.path }

// Close releases the underlying bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.bi.Close()
}

// Writer accumulates documents into a single bleve batch between commits,
// the stand-in for a tantivy IndexWriter's RAM buffer. Callers obtain one
// under the Index's exclusive lock and must Commit it (or discard it)
// before another writer is taken out — "one writer per collection at a
// time" (§4.3 Concurrency).
type Writer struct {
	idx   *Index
	batch *bleve.Batch
	count int
}

// NewWriter exclusively locks the index and returns a fresh writer. The
// bufferHint is retained only for parity with the spec's settings surface
// (upsert_index_buffer / compact_index_buffer); bleve's batches have no
// byte-budget knob the way a tantivy IndexWriter does, so it does not
// otherwise influence behavior here.
func (idx *Index) NewWriter(bufferHint int) *Writer {
	idx.mu.Lock()
	return &Writer{idx: idx, batch: idx.bi.NewBatch()}
}

// Add tokenizes one IndexRecord into the pending batch.
func (w *Writer) Add(id string, fields map[string]any) error {
	if err := w.batch.Index(id, fields); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count reports how many documents are staged in the current batch.
func (w *Writer) Count() int { return w.count }

// Commit makes the staged batch durable and visible to new readers, then
// releases the writer's exclusive hold on the index. The caller must take
// a new Writer via Index.NewWriter to continue ingesting, mirroring the
// "re-acquire a fresh writer" cadence of §4.3 step 5.
func (w *Writer) Commit() error {
	defer w.idx.mu.Unlock()
	if w.count == 0 {
		return nil
	}
	if err := w.idx.bi.Batch(w.batch); err != nil {
		return err
	}
	w.idx.segments++
	return nil
}

// Discard releases the writer's lock without committing; any documents
// staged in the batch are dropped (used when an ingest aborts).
func (w *Writer) Discard() {
	w.idx.mu.Unlock()
}

// DeleteByPrimaryID removes every IndexRecord for a primary id. Documents
// are indexed under the primary id as their bleve document id, so this is
// a direct delete rather than a delete_term query — see DESIGN.md for why
// that is a faithful, simpler analogue of the original's
// delete_term(primary_field, id) call.
func (idx *Index) DeleteByPrimaryID(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.bi.Delete(id); err != nil {
		return err
	}
	idx.segments++
	return nil
}

// SegmentCount returns the estimated segment count: 0 for a newly created
// index, 1 for one just opened or compacted, plus one for every committed
// batch or delete since.
func (idx *Index) SegmentCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.segments
}

// Hit is one result row from Search: the primary id plus the stored
// primary field value (identical strings, kept distinct to mirror the
// spec's "read the primary-id from the stored primary field" wording).
type Hit struct {
	ID      string
	Primary string
}

// Search runs a query string built by the planner against every
// text-analyzed field (QueryStringQuery spans all fields by default,
// matching "parse against all text fields of the schema"), returning up to
// size hits.
func (idx *Index) Search(queryString string, size int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if queryString == "" {
		queryString = "*"
	}
	q := bleve.NewQueryStringQuery(queryString)
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{idx.schema.Primary}

	res, err := idx.bi.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search execution failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		primary := h.ID
		if v, ok := h.Fields[idx.schema.Primary]; ok {
			if s, ok := v.(string); ok && s != "" {
				primary = s
			}
		}
		hits = append(hits, Hit{ID: h.ID, Primary: primary})
	}
	return hits, nil
}
