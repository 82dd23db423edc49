// Package ingest is the Ingest Pipeline (IP): it consumes a byte stream of
// NDJSON or concatenated JSON documents, writes each one to the Record
// Store and then to the Search Index, commits the index on a fixed
// cadence, and reports counts/errors without ever aborting on a
// per-document problem (§4.3).
package ingest

import (
	"bytes"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/apierr"
	"github.com/brenik/zerocache/internal/registry"
	"github.com/brenik/zerocache/internal/search"
	"github.com/brenik/zerocache/internal/store"
)

// commitEvery is the periodic checkpoint cadence of §4.3 step 5.
const commitEvery = 1000

// Pipeline wires the Record Store and Collection Registry together for
// the upsert path.
type Pipeline struct {
	Store    *store.Store
	Registry *registry.Registry
	Log      *zap.Logger
}

// Result is the envelope body described in §4.3: counts of accepted and
// rejected documents for this stream.
type Result struct {
	Count  int
	Errors int
}

// ParseUpsertFieldHeader splits the X-Upsert-Field header into its
// primary-field and index-field tokens.
func ParseUpsertFieldHeader(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// firstKey returns the first object key of a single decoded JSON value,
// preserving source order (map[string]any decoding does not), since §4.1
// requires the schema to derive from "the first key of the first parsed
// document" specifically.
func firstKey(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	return key, ok
}

// Upsert runs the full ingest pipeline for one POST /data/{collection}
// request body.
func (p *Pipeline) Upsert(collection string, upsertFieldHeader string, body io.Reader, bodyLen int64, upsertIndexBuffer int) (Result, error) {
	tokens := ParseUpsertFieldHeader(upsertFieldHeader)
	dec := json.NewDecoder(body)

	var pendingFirst json.RawMessage
	handle, exists := p.Registry.Get(collection)

	if exists {
		if len(tokens) > 0 && tokens[0] != handle.Schema.Primary {
			return Result{}, apierr.BadRequest("primary field mismatch with existing collection %q", collection)
		}
	} else {
		var primary string
		var fields []search.FieldSpec
		if len(tokens) > 0 {
			primary = tokens[0]
			fields = search.ParseFieldSpecs(tokens[1:])
		} else {
			if err := dec.Decode(&pendingFirst); err != nil {
				if err == io.EOF {
					return Result{}, apierr.BadRequest("failed to parse item for primary key")
				}
				return Result{}, apierr.Internal("failed to parse JSON stream", err)
			}
			key, ok := firstKey(pendingFirst)
			if !ok {
				return Result{}, apierr.BadRequest("no primary key field found in item")
			}
			primary = key
		}
		var err error
		handle, err = p.Registry.CreateOnWrite(collection, primary, fields)
		if err != nil {
			return Result{}, err
		}
	}

	bufferSize := upsertIndexBuffer
	if int64(bufferSize) < bodyLen {
		bufferSize = int(bodyLen)
	}
	writer := handle.SI.NewWriter(bufferSize)

	var result Result
	process := func(raw json.RawMessage) error {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			result.Errors++
			return nil
		}
		primaryID, ok := PrimaryID(doc, handle.Schema.Primary)
		if !ok {
			result.Errors++
			return nil
		}
		if err := p.Store.Put(collection, primaryID, append([]byte(nil), raw...)); err != nil {
			p.Log.Warn("record store write failed", zap.String("collection", collection), zap.Error(err))
			result.Errors++
			return nil
		}
		fields := BuildIndexFields(doc, handle.Schema, primaryID)
		if err := writer.Add(primaryID, fields); err != nil {
			result.Errors++
			return nil
		}
		result.Count++

		if result.Count%commitEvery == 0 {
			if err := writer.Commit(); err != nil {
				// Commit released the lock; take a fresh writer so the
				// caller's Discard has one to release.
				writer = handle.SI.NewWriter(upsertIndexBuffer)
				return apierr.InsufficientStorage("failed to commit search index batch", err)
			}
			writer = handle.SI.NewWriter(upsertIndexBuffer)
		}
		return nil
	}

	if pendingFirst != nil {
		if err := process(pendingFirst); err != nil {
			writer.Discard()
			return result, err
		}
	}

	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			writer.Discard()
			return result, apierr.Internal("failed to parse JSON stream", err)
		}
		if err := process(raw); err != nil {
			writer.Discard()
			return result, err
		}
	}

	if err := writer.Commit(); err != nil {
		return result, apierr.InsufficientStorage("failed to commit final search index batch", err)
	}
	if err := p.Store.Flush(); err != nil {
		p.Log.Warn("record store flush failed", zap.String("collection", collection), zap.Error(err))
	}
	return result, nil
}
