// Package feature implements the process-wide keyed feature store (spec
// component 4.A): a concurrent associative map from (recordKey, featureId)
// to a Feature value, striped over a fixed-capacity array of independently
// locked buckets.
//
// The striping scheme is grounded on the teacher's query plan cache
// (pkg/cache/query_cache.go in the teacher repo), which hashes a key with
// FNV and guards a bounded structure with a single mutex; here capacity is
// fixed at construction (no resizing, no eviction) and the hash picks one
// of many independent stripes instead of one global lock, since the spec
// requires readers and writers to serialize only per stripe.
package feature

import (
	"errors"
	"hash/fnv"
	"sync"
)

// ErrNotFound is returned by At when no feature exists at (key, id).
var ErrNotFound = errors.New("feature: not found")

// Feature is the sum type of values the feature map can hold.
type Feature interface {
	isFeature()
}

// SingleFeature is a scalar feature value.
type SingleFeature float64

func (SingleFeature) isFeature() {}

// BooleanFeature is a boolean feature value.
type BooleanFeature bool

func (BooleanFeature) isFeature() {}

// TopKFeature is the k most frequent keys of some domain and their relative
// frequencies, sorted descending by frequency. Invariant (spec §3): Frequencies
// are each in [0,1] and non-increasing; len(Keys) == len(Frequencies).
type TopKFeature struct {
	Keys        []string
	Frequencies []float64
}

func (TopKFeature) isFeature() {}

// Valid reports whether the TopKFeature invariant holds.
func (f TopKFeature) Valid() bool {
	if len(f.Keys) != len(f.Frequencies) {
		return false
	}
	prev := 1.0
	for _, freq := range f.Frequencies {
		if freq < 0 || freq > 1 || freq > prev {
			return false
		}
		prev = freq
	}
	return true
}

// MapFeature projects features from a compound key to a narrower key: it is
// a key->Feature map used when one producer's output needs to be split by
// a sub-key (e.g. per-destination-port features under one source-vertex
// key).
type MapFeature map[string]Feature

func (MapFeature) isFeature() {}

// merge implements the spec §4.A MapFeature union-merge rule: union over
// sub-keys, last-write-wins per sub-key.
func (f MapFeature) merge(other MapFeature) MapFeature {
	merged := make(MapFeature, len(f)+len(other))
	for k, v := range f {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

type entry struct {
	value Feature
}

// stripe is one independently-locked bucket of the feature map.
type stripe struct {
	mu    sync.RWMutex
	items map[string]entry
}

// Map is the concurrent feature store. Zero value is not usable; use New.
type Map struct {
	stripes []*stripe
	mask    uint64
}

// New constructs a Map with the given number of stripes. capacity is
// rounded up to the next power of two so stripe selection can use a mask
// instead of a modulo.
func New(capacity int) *Map {
	if capacity <= 0 {
		capacity = 1
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	m := &Map{
		stripes: make([]*stripe, n),
		mask:    uint64(n - 1),
	}
	for i := range m.stripes {
		m.stripes[i] = &stripe{items: make(map[string]entry)}
	}
	return m
}

func compositeKey(key, id string) string {
	// A single separator byte that cannot appear in either component would
	// be ideal; in practice recordKey/featureId are operator-controlled
	// strings, so a rarely-used separator is sufficient here.
	return key + "\x00" + id
}

func (m *Map) stripeFor(key, id string) *stripe {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(id))
	return m.stripes[h.Sum64()&m.mask]
}

// UpdateInsert atomically writes feature at (key, id). If a feature already
// exists there, it is replaced, except that two MapFeatures are merged per
// the union/last-write-wins rule in spec §3/§4.A.
func (m *Map) UpdateInsert(key, id string, f Feature) {
	s := m.stripeFor(key, id)
	ck := compositeKey(key, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[ck]; ok {
		if newMap, isMap := f.(MapFeature); isMap {
			if oldMap, wasMap := existing.value.(MapFeature); wasMap {
				s.items[ck] = entry{value: oldMap.merge(newMap)}
				return
			}
		}
	}
	s.items[ck] = entry{value: f}
}

// At reads a snapshot of the feature stored at (key, id).
func (m *Map) At(key, id string) (Feature, error) {
	s := m.stripeFor(key, id)
	ck := compositeKey(key, id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[ck]
	if !ok {
		return nil, ErrNotFound
	}
	return e.value, nil
}

// Exists reports whether a feature is stored at (key, id).
func (m *Map) Exists(key, id string) bool {
	s := m.stripeFor(key, id)
	ck := compositeKey(key, id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[ck]
	return ok
}

// Evaluate reads the feature at (key, id), if any, and applies fn to it
// while the stripe's read lock is held, returning fn's result and whether
// the feature was present.
func Evaluate[R any](m *Map, key, id string, fn func(Feature) R) (R, bool) {
	s := m.stripeFor(key, id)
	ck := compositeKey(key, id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[ck]
	if !ok {
		var zero R
		return zero, false
	}
	return fn(e.value), true
}
