package window

import (
	"sync"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
)

// ring is a fixed-size circular buffer of float64 values shared by the
// exact (non-approximate) operators: SimpleSum, Max, CountDistinct and
// JaccardIndex. It is the generalization of the teacher's
// pkg/temporal/tracker.go per-node history ring buffer (there: fixed-size
// []time.Time with a wrapping index) to arbitrary numeric payloads.
type ring struct {
	mu     sync.Mutex
	buf    []float64
	next   int
	filled int
}

func newRing(n int) *ring {
	if n <= 0 {
		n = 1
	}
	return &ring{buf: make([]float64, n)}
}

// push inserts v, evicting the oldest value once the ring is full, and
// returns the value evicted (if any) and whether the ring was already full
// before this insert.
func (r *ring) push(v float64) (evicted float64, hadEvicted bool) {
	if r.filled == len(r.buf) {
		evicted = r.buf[r.next]
		hadEvicted = true
	} else {
		r.filled++
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	return evicted, hadEvicted
}

// snapshot returns the ring's current contents in insertion order (oldest
// first), without mutating the ring.
func (r *ring) snapshot() []float64 {
	out := make([]float64, r.filled)
	start := r.next - r.filled
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.filled; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// SimpleSum computes the exact sum over the last N inserted values.
type SimpleSum struct {
	base
	mu  sync.Mutex
	buf *ring
	sum float64
}

// NewSimpleSum constructs a SimpleSum operator over a window of n values.
func NewSimpleSum(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n int, subs ...Subscriber) *SimpleSum {
	return &SimpleSum{base: newBase(featureMap, featureID, key, value, subs), buf: newRing(n)}
}

func (op *SimpleSum) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	evicted, had := op.buf.push(v)
	op.sum += v
	if had {
		op.sum -= evicted
	}
	sum := op.sum
	op.mu.Unlock()

	k := op.key(e)
	op.publishSingle(k, sum)
	op.notify(e.ID, sum)
	return true
}

func (op *SimpleSum) Terminate() {}

// Max computes the maximum over the last N inserted values by full
// re-scan of the ring; N is expected to be small enough (spec's streaming
// feature windows, not full-graph data) that this is cheaper than a
// monotonic-deque optimization.
type Max struct {
	base
	mu  sync.Mutex
	buf *ring
}

// NewMax constructs a Max operator over a window of n values.
func NewMax(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n int, subs ...Subscriber) *Max {
	return &Max{base: newBase(featureMap, featureID, key, value, subs), buf: newRing(n)}
}

func (op *Max) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	op.buf.push(v)
	vals := op.buf.snapshot()
	op.mu.Unlock()

	max := vals[0]
	for _, x := range vals[1:] {
		if x > max {
			max = x
		}
	}

	k := op.key(e)
	op.publishSingle(k, max)
	op.notify(e.ID, max)
	return true
}

func (op *Max) Terminate() {}

// CountDistinct counts the number of distinct values in the last N
// inserts, using a simple N-slot ring plus a rebuilt set on each read —
// correct and simple, appropriate because N is bounded by configuration.
type CountDistinct struct {
	base
	mu    sync.Mutex
	buf   *ring
	keyFn func(v float64) float64 // identity; values are compared directly
}

// NewCountDistinct constructs a CountDistinct operator over a window of n
// values.
func NewCountDistinct(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n int, subs ...Subscriber) *CountDistinct {
	return &CountDistinct{base: newBase(featureMap, featureID, key, value, subs), buf: newRing(n)}
}

func (op *CountDistinct) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	op.buf.push(v)
	vals := op.buf.snapshot()
	op.mu.Unlock()

	seen := make(map[float64]struct{}, len(vals))
	for _, x := range vals {
		seen[x] = struct{}{}
	}
	count := float64(len(seen))

	k := op.key(e)
	op.publishSingle(k, count)
	op.notify(e.ID, count)
	return true
}

func (op *CountDistinct) Terminate() {}

// JaccardIndex computes |A∩B|/|A∪B| where A is the first half and B the
// second half of the N-slot ring, a simple drift-detection signal: if the
// two halves of recent history overlap little, the value distribution
// has recently shifted.
type JaccardIndex struct {
	base
	mu  sync.Mutex
	buf *ring
}

// NewJaccardIndex constructs a JaccardIndex operator over a window of n
// values; n should be even so the ring splits evenly.
func NewJaccardIndex(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n int, subs ...Subscriber) *JaccardIndex {
	return &JaccardIndex{base: newBase(featureMap, featureID, key, value, subs), buf: newRing(n)}
}

func (op *JaccardIndex) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	op.buf.push(v)
	vals := op.buf.snapshot()
	op.mu.Unlock()

	if len(vals) < 2 {
		k := op.key(e)
		op.publishSingle(k, 0)
		op.notify(e.ID, 0)
		return true
	}

	mid := len(vals) / 2
	a := toSet(vals[:mid])
	b := toSet(vals[mid:])

	inter, union := 0, len(a)
	for x := range b {
		if _, ok := a[x]; ok {
			inter++
		} else {
			union++
		}
	}
	var jaccard float64
	if union > 0 {
		jaccard = float64(inter) / float64(union)
	}

	k := op.key(e)
	op.publishSingle(k, jaccard)
	op.notify(e.ID, jaccard)
	return true
}

func (op *JaccardIndex) Terminate() {}

func toSet(vals []float64) map[float64]struct{} {
	set := make(map[float64]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
