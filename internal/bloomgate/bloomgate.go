// Package bloomgate is a small negative-existence accelerator in front of
// the Record Store, adapted from the teacher daemon's BloomFilterManager
// (tradik-mddb/services/mddbd/bloom.go). A bloom filter can never produce
// a false negative, only false positives, so it is only ever used to skip
// a guaranteed-miss lookup — it never changes the answer Store.Get gives,
// only how often it has to ask bbolt for it.
package bloomgate

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	defaultExpectedItems = 10_000
	falsePositiveRate    = 0.01
)

// Manager holds one filter per collection.
type Manager struct {
	mu      sync.RWMutex
	filters map[string]*bloom.BloomFilter
}

func NewManager() *Manager {
	return &Manager{filters: make(map[string]*bloom.BloomFilter)}
}

func (m *Manager) getOrCreate(collection string) *bloom.BloomFilter {
	m.mu.RLock()
	f, ok := m.filters[collection]
	m.mu.RUnlock()
	if ok {
		return f
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.filters[collection]; ok {
		return f
	}
	f = bloom.NewWithEstimates(defaultExpectedItems, falsePositiveRate)
	m.filters[collection] = f
	return f
}

// Add records that key now exists in collection.
func (m *Manager) Add(collection, key string) {
	m.getOrCreate(collection).Add([]byte(key))
}

// MightExist reports whether key could be present in collection. A false
// result is a certainty: the key has never been added. A true result is
// only a hint — the caller still must check the real store. An unseen
// collection has no filter yet, so every key is reported as "might exist"
// to fall through to the real lookup rather than a filter-absence causing
// wrong misses for collections created outside this process's memory
// (e.g. on a restart).
func (m *Manager) MightExist(collection, key string) bool {
	m.mu.RLock()
	f, ok := m.filters[collection]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return f.Test([]byte(key))
}

// Drop discards the filter for a deleted collection.
func (m *Manager) Drop(collection string) {
	m.mu.Lock()
	delete(m.filters, collection)
	m.mu.Unlock()
}
