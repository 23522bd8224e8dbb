package window

import (
	"sort"
	"sync"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
)

// StringValueFunc extracts the categorical value TopK counts occurrences
// of (e.g. a destination port), as opposed to the numeric ValueFunc the
// other operators use.
type StringValueFunc func(e edge.Edge) (string, bool)

// StringFieldValue returns a StringValueFunc reading the named tuple field.
func StringFieldValue(field string) StringValueFunc {
	return func(e edge.Edge) (string, bool) {
		return e.Tuple.String(field)
	}
}

// basicWindow is a single b-item bucket of the TopK sliding window,
// summarized as exact counts (a small heavy-hitters sketch: once the
// bucket is sealed only its top-k entries are retained).
type basicWindow struct {
	counts map[string]int
	filled int
}

func newBasicWindow() *basicWindow {
	return &basicWindow{counts: make(map[string]int)}
}

func (w *basicWindow) add(v string) {
	w.counts[v]++
	w.filled++
}

// topK returns the k highest-count entries of this basic window.
func (w *basicWindow) topK(k int) []countEntry {
	entries := make([]countEntry, 0, len(w.counts))
	for key, c := range w.counts {
		entries = append(entries, countEntry{key: key, count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

type countEntry struct {
	key   string
	count int
}

// TopK maintains a sliding window of N items divided into b-sized basic
// windows, each summarized by a top-k sketch, and publishes the merged
// top-k keys with frequency = count/N — spec §4.B's TopK contract.
//
// Grounded on original_source/SamSrc/sam/TopK.hpp's basic-window roll
// scheme; the per-basic-window sketch here keeps exact counts (bounded by
// b, a configuration constant) rather than a probabilistic
// heavy-hitters structure, since b is expected to be small enough that
// exact counting is cheap — the approximation in this operator comes
// entirely from only keeping the top-k of each sealed basic window, per
// spec.
type TopK struct {
	id         string
	featureID  string
	key        KeyFunc
	value      StringValueFunc
	featureMap *feature.Map
	subs       []Subscriber

	mu       sync.Mutex
	k        int
	b        int
	nBaskets int // N / b, number of retained basic windows

	current  *basicWindow
	sealed   []map[string]int // FIFO queue of sealed basic-window top-k sketches
}

// NewTopK constructs a TopK operator: n is the overall sliding window
// size, b is the basic-window size, k is the number of top entries kept.
func NewTopK(featureMap *feature.Map, featureID string, key KeyFunc, value StringValueFunc, n, b, k int, subs ...Subscriber) *TopK {
	if b <= 0 {
		b = 1
	}
	nBaskets := n / b
	if nBaskets <= 0 {
		nBaskets = 1
	}
	return &TopK{
		featureID:  featureID,
		key:        key,
		value:      value,
		featureMap: featureMap,
		subs:       subs,
		k:          k,
		b:          b,
		nBaskets:   nBaskets,
		current:    newBasicWindow(),
	}
}

func (op *TopK) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}

	op.mu.Lock()
	op.current.add(v)
	if op.current.filled >= op.b {
		op.seal()
	}
	merged := op.mergedTopK()
	op.mu.Unlock()

	k := op.key(e)
	n := float64(op.b * op.nBaskets)
	feat := feature.TopKFeature{
		Keys:        make([]string, len(merged)),
		Frequencies: make([]float64, len(merged)),
	}
	for i, e := range merged {
		feat.Keys[i] = e.key
		feat.Frequencies[i] = float64(e.count) / n
	}
	op.featureMap.UpdateInsert(k, op.featureID, feat)

	if len(merged) > 0 {
		for _, s := range op.subs {
			s(e.ID, feat.Frequencies[0])
		}
	}
	return true
}

// seal must be called with op.mu held. It summarizes the current basic
// window into a top-k sketch, pushes it onto the FIFO queue, and evicts
// the oldest sketch once the queue exceeds nBaskets.
func (op *TopK) seal() {
	top := op.current.topK(op.k)
	sketch := make(map[string]int, len(top))
	for _, e := range top {
		sketch[e.key] = e.count
	}
	op.sealed = append(op.sealed, sketch)
	if len(op.sealed) > op.nBaskets {
		op.sealed = op.sealed[1:]
	}
	op.current = newBasicWindow()
}

// mergedTopK must be called with op.mu held. It merges every sealed
// basic-window sketch (and the not-yet-sealed current window) and returns
// the overall top-k entries.
func (op *TopK) mergedTopK() []countEntry {
	totals := make(map[string]int)
	for _, sketch := range op.sealed {
		for k, c := range sketch {
			totals[k] += c
		}
	}
	for _, e := range op.current.topK(op.k) {
		totals[e.key] += e.count
	}

	entries := make([]countEntry, 0, len(totals))
	for key, c := range totals {
		entries = append(entries, countEntry{key: key, count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > op.k {
		entries = entries[:op.k]
	}
	return entries
}

func (op *TopK) Terminate() {}
