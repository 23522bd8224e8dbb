// Package request implements the edge-request protocol of spec component
// 4.H: an EdgeRequest asks peers for edges matching a source/target/time
// constraint and names the worker the answer should be routed back to,
// plus a TemporalSet that suppresses re-broadcasting duplicate requests
// within their query's time-to-live.
//
// Grounded on original_source/SamSrc/sam/EdgeRequest.hpp (field set: a
// concrete endpoint, a wildcard endpoint, two inclusive time ranges, and
// a return-node id) and original_source/SamSrc/sam/TemporalSet.hpp
// (striped map+list combination so expiry can walk time-insertion order
// instead of scanning the whole table); the striping idiom itself follows
// the teacher's pkg/cache striped-map shape.
package request

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/samstream/engine/pkg/edge"
)

// EdgeRequest asks a peer for edges that satisfy a vertex and time
// constraint, to be returned to ReturnWorker. WildcardVertex == "" means
// any value is acceptable for the non-indexed endpoint.
type EdgeRequest struct {
	IndexVertex    string
	WildcardVertex string
	IndexIsSource  bool // true: IndexVertex is the edge's source; false: target

	StartLo, StartHi float64
	EndLo, EndHi     float64

	ReturnWorker int
	QueryID      string
	EdgeVar      string // which query edge variable this request is trying to fill
}

// Expired reports whether currentTime has passed this request's end
// range, mirroring EdgeRequest.hpp's isExpired: a request answered after
// its own end-time window has closed is stale and should be discarded
// rather than matched.
func (r EdgeRequest) Expired(currentTime float64) bool {
	return currentTime > r.EndHi
}

// Matches reports whether e satisfies this request's endpoint and time
// constraints. Time bounds are inclusive on both ends (spec §9).
func (r EdgeRequest) Matches(e edge.Edge) bool {
	var indexVal, otherVal string
	if r.IndexIsSource {
		indexVal, otherVal = e.Source(), e.Target()
	} else {
		indexVal, otherVal = e.Target(), e.Source()
	}
	if indexVal != r.IndexVertex {
		return false
	}
	if r.WildcardVertex != "" && otherVal != r.WildcardVertex {
		return false
	}
	t := e.Time()
	end := e.EndTime()
	if t < r.StartLo || t > r.StartHi {
		return false
	}
	if end < r.EndLo || end > r.EndHi {
		return false
	}
	return true
}

// dedupeKey identifies a request for TemporalSet suppression purposes:
// two requests for the same query edge variable, same index vertex, and
// same return worker are considered duplicates regardless of exact time
// bounds, since a wider or narrower re-ask within the TTL window would
// only reproduce work already in flight.
func (r EdgeRequest) dedupeKey() string {
	return fmt.Sprintf("%s\x00%s\x00%d", r.QueryID, r.IndexVertex, r.ReturnWorker) + "\x00" + r.EdgeVar
}

// temporalEntry is one (key, time) pair kept in insertion order so expiry
// can walk from the oldest without scanning the whole stripe.
type temporalEntry struct {
	key  string
	time float64
}

type temporalStripe struct {
	mu      sync.Mutex
	times   map[string]float64
	entries []temporalEntry
}

// TemporalSet is a thread-safe, striped set of keys that expire
// timeToLive seconds after last insertion (original_source's
// TemporalSet.hpp). SAM uses one TemporalSet per outstanding query to
// suppress re-broadcasting an EdgeRequest already in flight.
type TemporalSet struct {
	timeToLive float64
	stripes    []*temporalStripe
	mask       uint64
}

// NewTemporalSet constructs a TemporalSet. capacity is rounded to a
// power of two.
func NewTemporalSet(capacity int, timeToLive float64) *TemporalSet {
	if capacity <= 0 {
		capacity = 1
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	ts := &TemporalSet{timeToLive: timeToLive, stripes: make([]*temporalStripe, n), mask: uint64(n - 1)}
	for i := range ts.stripes {
		ts.stripes[i] = &temporalStripe{times: make(map[string]float64)}
	}
	return ts
}

func (ts *TemporalSet) stripeFor(key string) *temporalStripe {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return ts.stripes[h.Sum64()&ts.mask]
}

// Insert records key at currentTime, evicting from its stripe any entry
// older than timeToLive relative to currentTime. It returns true if key
// was not already present (a fresh insertion), false if it updates an
// existing, unexpired entry's timestamp.
func (ts *TemporalSet) Insert(key string, currentTime float64) bool {
	st := ts.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	kept := st.entries[:0]
	for _, e := range st.entries {
		if currentTime-e.time > ts.timeToLive {
			if st.times[e.key] == e.time {
				delete(st.times, e.key)
			}
		} else {
			kept = append(kept, e)
		}
	}
	st.entries = kept

	_, existed := st.times[key]
	st.times[key] = currentTime
	st.entries = append(st.entries, temporalEntry{key: key, time: currentTime})
	return !existed
}

// Contains reports whether key is present (and unexpired as of its own
// last insertion time — expiry is swept lazily on Insert, matching
// original_source's TemporalSet.hpp).
func (ts *TemporalSet) Contains(key string) bool {
	st := ts.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.times[key]
	return ok
}

// Size returns the total number of live keys across all stripes.
func (ts *TemporalSet) Size() int {
	total := 0
	for _, st := range ts.stripes {
		st.mu.Lock()
		total += len(st.times)
		st.mu.Unlock()
	}
	return total
}

// ShouldBroadcast reports whether req is new enough (per its dedupe key)
// to warrant broadcasting, recording it as seen if so. A dropped peer
// response for a previously broadcast (and now-expired) request is
// always terminal: per spec.md's resolution of the retry open question,
// SAM never re-broadcasts a request it believes is already in flight.
func (ts *TemporalSet) ShouldBroadcast(req EdgeRequest, currentTime float64) bool {
	return ts.Insert(req.dedupeKey(), currentTime)
}
