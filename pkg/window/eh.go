package window

import (
	"math"
	"sync"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
)

// bucket is one merged group of original inserts in an exponential
// histogram: Size is how many original values it represents, Total is
// their sum, and Seq is the sequence number of the newest original value
// it contains (used to decide when the whole bucket has aged out of the
// N-insert window).
type bucket struct {
	Size  int
	Total float64
	Seq   int64
}

// expHistogram is the bucket-merging sketch described in spec §4.B: buckets
// are kept roughly geometrically sized so that |buckets| stays O(k log(N/k))
// while the stored sum stays within O(1/k) relative error of the exact sum
// over the last N inserts.
//
// Grounded on original_source/SamSrc/sam/ExponentialHistogramSum.hpp's
// bucket-merge scheme; expressed here as a plain slice instead of a
// doubly-linked bucket list, since Go slices make the "merge the two oldest
// buckets of equal size" scan a simple linear pass and the bucket counts
// involved are small (O(k log(N/k)), as above).
type expHistogram struct {
	k       int
	n       int
	seq     int64
	buckets []bucket
}

func newExpHistogram(k, n int) *expHistogram {
	if k < 1 {
		k = 1
	}
	if n < 1 {
		n = 1
	}
	return &expHistogram{k: k, n: n}
}

func (h *expHistogram) threshold(size int) int {
	if size == 1 {
		return h.k + 2
	}
	return h.k/2 + 2
}

// insert adds value to the histogram, evicting buckets that have fully
// aged out of the N-insert window and merging buckets per the threshold
// rule.
func (h *expHistogram) insert(value float64) {
	h.seq++
	h.buckets = append(h.buckets, bucket{Size: 1, Total: value, Seq: h.seq})
	h.evictExpired()
	h.mergePass()
}

// evictExpired drops buckets whose newest contained insert is older than
// the N-insert window. Buckets are kept oldest-first, so once a live
// bucket is found, all later buckets are also live.
func (h *expHistogram) evictExpired() {
	cutoff := h.seq - int64(h.n)
	i := 0
	for i < len(h.buckets) && h.buckets[i].Seq <= cutoff {
		i++
	}
	if i > 0 {
		h.buckets = h.buckets[i:]
	}
}

// mergePass scans from the oldest bucket forward, merging the two oldest
// buckets of any size class whose count exceeds its threshold, cascading
// until no class is over threshold.
func (h *expHistogram) mergePass() {
	for {
		merged := false
		i := 0
		for i < len(h.buckets) {
			size := h.buckets[i].Size
			j := i
			for j < len(h.buckets) && h.buckets[j].Size == size {
				j++
			}
			count := j - i
			if count > h.threshold(size) {
				// Merge the two oldest (leftmost) buckets of this class.
				a, b := h.buckets[i], h.buckets[i+1]
				mergedBucket := bucket{
					Size:  a.Size + b.Size,
					Total: a.Total + b.Total,
					Seq:   maxInt64(a.Seq, b.Seq),
				}
				h.buckets = append(h.buckets[:i], append([]bucket{mergedBucket}, h.buckets[i+2:]...)...)
				merged = true
				break
			}
			i = j
		}
		if !merged {
			return
		}
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// sum returns the approximate sum of values over the current window.
func (h *expHistogram) sum() float64 {
	var s float64
	for _, b := range h.buckets {
		s += b.Total
	}
	return s
}

// count returns the approximate number of original inserts currently
// represented by the histogram.
func (h *expHistogram) count() int {
	c := 0
	for _, b := range h.buckets {
		c += b.Size
	}
	return c
}

// ExponentialHistogramSum approximates the sum over the last N inserts,
// with relative error bounded by O(1/k).
type ExponentialHistogramSum struct {
	base
	mu   sync.Mutex
	hist *expHistogram
}

// NewExponentialHistogramSum constructs the operator with window size n
// and precision parameter k.
func NewExponentialHistogramSum(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n, k int, subs ...Subscriber) *ExponentialHistogramSum {
	return &ExponentialHistogramSum{base: newBase(featureMap, featureID, key, value, subs), hist: newExpHistogram(k, n)}
}

func (op *ExponentialHistogramSum) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	op.hist.insert(v)
	sum := op.hist.sum()
	op.mu.Unlock()

	k := op.key(e)
	op.publishSingle(k, sum)
	op.notify(e.ID, sum)
	return true
}

func (op *ExponentialHistogramSum) Terminate() {}

// ExponentialHistogramAve approximates the mean over the last N inserts as
// sum/count under the same bucket-merge scheme.
type ExponentialHistogramAve struct {
	base
	mu   sync.Mutex
	hist *expHistogram
}

// NewExponentialHistogramAve constructs the operator with window size n
// and precision parameter k.
func NewExponentialHistogramAve(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n, k int, subs ...Subscriber) *ExponentialHistogramAve {
	return &ExponentialHistogramAve{base: newBase(featureMap, featureID, key, value, subs), hist: newExpHistogram(k, n)}
}

func (op *ExponentialHistogramAve) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	op.hist.insert(v)
	var mean float64
	if c := op.hist.count(); c > 0 {
		mean = op.hist.sum() / float64(c)
	}
	op.mu.Unlock()

	k := op.key(e)
	op.publishSingle(k, mean)
	op.notify(e.ID, mean)
	return true
}

func (op *ExponentialHistogramAve) Terminate() {}

// ExponentialHistogramVariance maintains two parallel histograms — one of
// values, one of their squares — and reports Var[X] = E[X²] - E[X]².
type ExponentialHistogramVariance struct {
	base
	mu        sync.Mutex
	values    *expHistogram
	squares   *expHistogram
}

// NewExponentialHistogramVariance constructs the operator with window size
// n and precision parameter k.
func NewExponentialHistogramVariance(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, n, k int, subs ...Subscriber) *ExponentialHistogramVariance {
	return &ExponentialHistogramVariance{
		base:    newBase(featureMap, featureID, key, value, subs),
		values:  newExpHistogram(k, n),
		squares: newExpHistogram(k, n),
	}
}

func (op *ExponentialHistogramVariance) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	op.mu.Lock()
	op.values.insert(v)
	op.squares.insert(v * v)

	c := op.values.count()
	var variance float64
	if c > 0 {
		meanX := op.values.sum() / float64(c)
		meanX2 := op.squares.sum() / float64(op.squares.count())
		variance = meanX2 - meanX*meanX
		if variance < 0 {
			// Approximation error can push this slightly negative; clamp.
			variance = math.Max(variance, 0)
		}
	}
	op.mu.Unlock()

	k := op.key(e)
	op.publishSingle(k, variance)
	op.notify(e.ID, variance)
	return true
}

func (op *ExponentialHistogramVariance) Terminate() {}
