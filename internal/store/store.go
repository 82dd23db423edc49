// Package store is the Record Store (RS): the authoritative, embedded
// key-value engine keyed by collection -> primary-id bytes -> JSON blob.
// It is built on go.etcd.io/bbolt, the same embedded KV engine the teacher
// daemon (tradik-mddb/services/mddbd) uses for its own document storage,
// with one bucket per collection plus a reserved default bucket that
// PurgeAll never touches (§9 Q3).
package store

import (
	"bytes"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/brenik/zerocache/internal/bloomgate"
)

// DefaultBucket is the reserved sub-store PurgeAll skips, the bbolt
// analogue of the original's "__sled__default" tree.
const DefaultBucket = "__zerocache_default__"

// Store is safe for concurrent use; bbolt itself serializes writers and
// allows unlimited concurrent readers, so no additional locking is added
// here beyond what bbolt already provides (§5: "the RS provides its own
// internal concurrency").
type Store struct {
	db    *bolt.DB
	path  string
	gates *bloomgate.Manager
}

// Open opens (creating if necessary) the bbolt database at path, ensures
// the reserved default bucket exists, and seeds the bloom filters with
// every key already on disk.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:         2 * time.Second,
		NoFreelistSync:  true,
		FreelistType:    bolt.FreelistMapType,
		InitialMmapSize: 64 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	s := &Store{db: db, path: path, gates: bloomgate.NewManager()}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(DefaultBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure default bucket: %w", err)
	}
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if bytes.Equal(name, []byte(DefaultBucket)) {
				return nil
			}
			return b.ForEach(func(k, _ []byte) error {
				s.gates.Add(string(name), string(k))
				return nil
			})
		})
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed bloom filters: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path is the bbolt database file location.
func (s *Store) Path() string { return s.path }

// Size returns the on-disk size of the database file.
func (s *Store) Size() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func bucketName(collection string) []byte { return []byte(collection) }

// ensureBucket creates the collection's bucket if it does not already
// exist; called on every Put so the first write to an unknown collection
// lazily provisions its RS sub-store too (the CR does the same for SI).
func (s *Store) ensureBucket(tx *bolt.Tx, collection string) (*bolt.Bucket, error) {
	return tx.CreateBucketIfNotExists(bucketName(collection))
}

// Put upserts value at key within collection.
func (s *Store) Put(collection, key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.ensureBucket(tx, collection)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return err
	}
	s.gates.Add(collection, key)
	return nil
}

// Get fetches value at key within collection. A bloom filter gate
// (internal/bloomgate, adapted from the teacher's BloomFilterManager)
// short-circuits definite misses without touching bbolt at all; a
// possible hit always falls through to the real lookup, so the filter can
// never manufacture a false positive result, only skip a wasted disk read.
func (s *Store) Get(collection, key string) ([]byte, bool, error) {
	if !s.gates.MightExist(collection, key) {
		return nil, false, nil
	}
	var value []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Delete removes key from collection, reporting whether it had existed.
func (s *Store) Delete(collection, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			existed = true
		}
		return b.Delete([]byte(key))
	})
	return existed, err
}

// Item is one (key, value) pair yielded by ForEach, in bbolt's natural
// (lexicographic) key order.
type Item struct {
	Key   string
	Value []byte
}

// ForEach walks collection in key order starting after skipping the first
// offset entries, invoking fn for each item until it returns false or the
// bucket is exhausted. This backs the full-scan query plan (§4.4).
func (s *Store) ForEach(collection string, offset int, fn func(Item) (more bool)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		skipped := 0
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if !fn(Item{Key: string(k), Value: append([]byte(nil), v...)}) {
				return nil
			}
		}
		return nil
	})
}

// Count returns the number of records stored in collection.
func (s *Store) Count(collection string) int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n
}

// Collections lists every bucket name except the reserved default one.
func (s *Store) Collections() []string {
	var names []string
	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if !bytes.Equal(name, []byte(DefaultBucket)) {
				names = append(names, string(name))
			}
			return nil
		})
	})
	return names
}

// DropCollection removes a collection's entire bucket.
func (s *Store) DropCollection(collection string) error {
	s.gates.Drop(collection)
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(bucketName(collection))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// PurgeAll drops every collection bucket except DefaultBucket.
func (s *Store) PurgeAll() error {
	for _, name := range s.Collections() {
		if err := s.DropCollection(name); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces bbolt's mmap'd data to stable storage. bbolt commits each
// Update transaction durably already; Flush exists so Maintenance.Compact
// has an explicit, nameable "make sure everything is on disk" step to run
// in the background, matching the spec's "flush RS asynchronously".
func (s *Store) Flush() error {
	return s.db.Sync()
}
