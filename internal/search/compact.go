package search

import (
	"fmt"
	"os"
)

// DocSource supplies the documents to reindex during a Compact, keyed by
// primary id. Maintenance supplies one backed by the Record Store, since
// §9 treats RS as the source of truth SI can always be rebuilt from.
type DocSource func(add func(primaryID string, fields map[string]any) error) error

// Compact merges every segment introduced since the index was opened into
// a single segment, by rebuilding the index from scratch against src and
// swapping it in atomically. It reports whether a merge actually happened
// (false when the index already holds at most one segment — "no merge
// needed" in the spec's compact response).
//
// bleve's scorch backend does not expose a public "merge these segment
// ids" call the way tantivy's IndexWriter::merge does; a from-source
// rebuild produces the same observable outcome (one segment, fully
// durable, fully searchable) using only bleve's public Index API.
func (idx *Index) Compact(src DocSource) (merged bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.segments <= 1 {
		return false, nil
	}

	tmpDir := idx.path + ".compact.tmp"
	os.RemoveAll(tmpDir)

	fresh, err := Create(tmpDir, idx.schema)
	if err != nil {
		return false, fmt.Errorf("create compaction index: %w", err)
	}

	w := fresh.NewWriter(0)
	addErr := src(func(primaryID string, fields map[string]any) error {
		return w.Add(primaryID, fields)
	})
	if addErr != nil {
		w.Discard()
		fresh.Close()
		os.RemoveAll(tmpDir)
		return false, fmt.Errorf("rebuild from record store: %w", addErr)
	}
	if err := w.Commit(); err != nil {
		fresh.Close()
		os.RemoveAll(tmpDir)
		return false, fmt.Errorf("commit compacted index: %w", err)
	}
	if err := fresh.Close(); err != nil {
		os.RemoveAll(tmpDir)
		return false, fmt.Errorf("close compacted index: %w", err)
	}

	if err := idx.bi.Close(); err != nil {
		return false, fmt.Errorf("close old index: %w", err)
	}
	if err := os.RemoveAll(idx.path); err != nil {
		return false, fmt.Errorf("remove old index: %w", err)
	}
	if err := os.Rename(tmpDir, idx.path); err != nil {
		return false, fmt.Errorf("swap compacted index into place: %w", err)
	}

	reopened, err := Open(idx.path)
	if err != nil {
		return false, fmt.Errorf("reopen compacted index: %w", err)
	}
	idx.bi = reopened.bi
	idx.segments = 1
	return true, nil
}

// DirExists is a small helper used by the registry's startup scan.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
