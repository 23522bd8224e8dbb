// Package match implements the partial-match table of spec component
// 4.G: a striped hash table, keyed by the next expected vertex, holding
// PartialMatches as they are incrementally extended edge by edge until
// they either complete, expire, or must be forwarded to another worker.
//
// Grounded on the teacher's pkg/cache striped-map shape (same fnv+bitmask
// stripe selection as pkg/feature and pkg/edgestore) combined with the
// state machine spec.md §4.G draws explicitly: NEW -> EXTENDING(k) ->
// COMPLETE|EXPIRED|FORWARDED.
package match

import (
	"hash/fnv"
	"sync"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/query"
)

// State names a PartialMatch's position in the spec §4.G lifecycle.
type State int

const (
	StateExtending State = iota
	StateComplete
	StateExpired
	StateForwarded
)

func (s State) String() string {
	switch s {
	case StateExtending:
		return "EXTENDING"
	case StateComplete:
		return "COMPLETE"
	case StateExpired:
		return "EXPIRED"
	case StateForwarded:
		return "FORWARDED"
	default:
		return "UNKNOWN"
	}
}

// PartialMatch is a subgraph query in progress: the edges matched so far,
// the variable bindings they've established, and the wall-clock time at
// which the match must be abandoned if not completed.
//
// Invariants (spec §3): len(MatchedEdges) < Query.Size(); the Time() of
// MatchedEdges is strictly increasing; ExpireAt = MatchedEdges[0].Time() +
// Query.MaxTimeExtent.
type PartialMatch struct {
	Query        *query.SubgraphQuery
	MatchedEdges []edge.Edge
	Bindings     map[string]string
	ExpireAt     float64
}

// NewPartialMatch seeds a PartialMatch from the first matched edge of a
// query, binding that edge's Source/Target query variables.
func NewPartialMatch(q *query.SubgraphQuery, firstEdge edge.Edge) *PartialMatch {
	first := q.Edges[0]
	bindings := map[string]string{
		first.Source: firstEdge.Source(),
		first.Target: firstEdge.Target(),
	}
	return &PartialMatch{
		Query:        q,
		MatchedEdges: []edge.Edge{firstEdge},
		Bindings:     bindings,
		ExpireAt:     firstEdge.Time() + q.MaxTimeExtent,
	}
}

// k is the number of edges matched so far — EXTENDING(k) in the state
// machine. A PartialMatch with k == len(Query.Edges) is logically
// COMPLETE, represented here simply by having no further edge to extend.
func (pm *PartialMatch) k() int { return len(pm.MatchedEdges) }

// Complete reports whether every query edge has been matched.
func (pm *PartialMatch) Complete() bool {
	return pm.k() >= pm.Query.Size()
}

// Expired reports whether now has passed this match's expiry deadline.
func (pm *PartialMatch) Expired(now float64) bool {
	return now > pm.ExpireAt
}

// nextExpectedVariable returns the query variable a PartialMatch expects
// to see bound next: the source of the next unmatched EdgeDescription,
// which is the variable the already-matched edges bound (every query
// variable but the very first is bound by the time it becomes a "next
// expected" source, since edges are ordered so each one after the first
// shares an endpoint with what came before).
func (pm *PartialMatch) nextExpectedVariable() (string, bool) {
	if pm.Complete() {
		return "", false
	}
	next := pm.Query.Edges[pm.k()]
	return next.Source, true
}

// nextExpectedVertex resolves nextExpectedVariable through the current
// bindings: the vertex a correctly-continuing edge's Source() must equal,
// and therefore the stripe key this PartialMatch is stored under in Table.
func (pm *PartialMatch) nextExpectedVertex() (string, bool) {
	v, ok := pm.nextExpectedVariable()
	if !ok {
		return "", false
	}
	bound, ok := pm.Bindings[v]
	return bound, ok
}

// NextExpectedVertex exposes nextExpectedVertex to callers outside the
// package (the worker package uses it to harvest already-stored edges
// for a freshly forwarded partial, per spec §4.H step 2).
func (pm *PartialMatch) NextExpectedVertex() (string, bool) { return pm.nextExpectedVertex() }

// MatchedEdgesLen returns k, the number of edges matched so far —
// equivalently, the index of the next EdgeDescription in pm.Query.Edges
// this partial expects to satisfy.
func (pm *PartialMatch) MatchedEdgesLen() int { return pm.k() }

// tryExtend checks whether candidate can extend pm: the candidate edge's
// source must equal the expected vertex, its time must strictly increase
// on the previous matched edge, it must satisfy the next EdgeDescription's
// time range and vertex constraints, and any query variable it touches
// that is already bound must agree with that binding (the vertex-binding
// rule of spec §4.G). On success it returns a new, extended PartialMatch
// (the receiver is never mutated, so a partial may be tried against many
// candidates concurrently) and true.
func (pm *PartialMatch) tryExtend(candidate edge.Edge) (*PartialMatch, bool) {
	if pm.Complete() {
		return nil, false
	}
	desc := pm.Query.Edges[pm.k()]

	last := pm.MatchedEdges[len(pm.MatchedEdges)-1]
	if candidate.Time() <= last.Time() {
		return nil, false
	}

	if bound, ok := pm.Bindings[desc.Source]; ok && bound != candidate.Source() {
		return nil, false
	}
	if bound, ok := pm.Bindings[desc.Target]; ok && bound != candidate.Target() {
		return nil, false
	}

	if !desc.StartTimeRange.Contains(candidate.Time()) {
		return nil, false
	}
	if !desc.EndTimeRange.Contains(candidate.EndTime()) {
		return nil, false
	}

	if !pm.Query.CheckConstraints(desc.Source, candidate.Source()) {
		return nil, false
	}
	if !pm.Query.CheckConstraints(desc.Target, candidate.Target()) {
		return nil, false
	}

	bindings := make(map[string]string, len(pm.Bindings)+2)
	for k, v := range pm.Bindings {
		bindings[k] = v
	}
	bindings[desc.Source] = candidate.Source()
	bindings[desc.Target] = candidate.Target()

	edges := make([]edge.Edge, len(pm.MatchedEdges), len(pm.MatchedEdges)+1)
	copy(edges, pm.MatchedEdges)
	edges = append(edges, candidate)

	return &PartialMatch{
		Query:        pm.Query,
		MatchedEdges: edges,
		Bindings:     bindings,
		ExpireAt:     pm.ExpireAt,
	}, true
}

// slot is one independently-locked bucket of partial matches, keyed by
// their next expected vertex.
type slot struct {
	mu      sync.Mutex
	byVertex map[string][]*PartialMatch
}

// Table is the striped partial-match table.
type Table struct {
	slots []*slot
	mask  uint64
}

// New constructs a Table. capacity is rounded up to a power of two.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = 1
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	t := &Table{slots: make([]*slot, n), mask: uint64(n - 1)}
	for i := range t.slots {
		t.slots[i] = &slot{byVertex: make(map[string][]*PartialMatch)}
	}
	return t
}

func (t *Table) slotFor(vertex string) *slot {
	h := fnv.New64a()
	_, _ = h.Write([]byte(vertex))
	return t.slots[h.Sum64()&t.mask]
}

// Add stores partial under the hash of its next expected vertex. A
// COMPLETE partial (one with no next expected vertex) is rejected: the
// caller is responsible for handling completion before calling Add.
func (t *Table) Add(partial *PartialMatch) bool {
	vertex, ok := partial.nextExpectedVertex()
	if !ok {
		return false
	}
	sl := t.slotFor(vertex)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.byVertex[vertex] = append(sl.byVertex[vertex], partial)
	return true
}

// Result is a PartialMatch that completed all of its query's edges.
type Result struct {
	Bindings map[string]string
	Edges    []edge.Edge
}

// Outcome describes what Process did with one extended partial: it
// either completed (Result populated), needs forwarding to the worker
// that owns NextVertex (Forward true), or was simply re-inserted locally.
type Outcome struct {
	Result     *Result
	Forward    bool
	NextVertex string
	Partial    *PartialMatch
}

// Process implements spec §4.G's process(edge) operation: for every
// non-expired partial in e.Source()'s stripe whose next expected vertex
// is e.Source(), attempt to extend it with e. Expired partials
// encountered are swept. localOwner(vertex) tells Process whether a
// newly extended partial's next expected vertex is owned by this worker
// (re-insert locally) or must be forwarded (returned as an Outcome with
// Forward set, leaving insertion/sending to the caller).
func (t *Table) Process(e edge.Edge, now float64, localOwner func(vertex string) bool) []Outcome {
	sl := t.slotFor(e.Source())

	sl.mu.Lock()
	candidates := sl.byVertex[e.Source()]
	kept := candidates[:0]
	var outcomes []Outcome
	var toInsert []Outcome

	for _, pm := range candidates {
		if pm.Expired(now) {
			continue // swept: not re-appended to kept
		}
		extended, ok := pm.tryExtend(e)
		if !ok {
			kept = append(kept, pm)
			continue
		}

		if extended.Complete() {
			outcomes = append(outcomes, Outcome{Result: &Result{Bindings: extended.Bindings, Edges: extended.MatchedEdges}})
			continue
		}

		nextVertex, _ := extended.nextExpectedVertex()
		if localOwner(nextVertex) {
			o := Outcome{Partial: extended, NextVertex: nextVertex}
			outcomes = append(outcomes, o)
			toInsert = append(toInsert, o)
		} else {
			outcomes = append(outcomes, Outcome{Forward: true, NextVertex: nextVertex, Partial: extended})
		}
	}
	delete(sl.byVertex, e.Source())
	if len(kept) > 0 {
		sl.byVertex[e.Source()] = kept
	}
	sl.mu.Unlock()

	// Re-insertion happens after releasing sl's lock: a locally-owned next
	// vertex may hash to this same stripe, and Table's per-slot mutexes
	// are not reentrant.
	for _, o := range toInsert {
		t.Add(o.Partial)
	}

	return outcomes
}

// Count returns the total number of partial matches currently stored.
func (t *Table) Count() int {
	total := 0
	for _, sl := range t.slots {
		sl.mu.Lock()
		for _, list := range sl.byVertex {
			total += len(list)
		}
		sl.mu.Unlock()
	}
	return total
}

// SweepExpired removes expired partials from every stripe and returns how
// many it removed. Add and Process do not call it; Process only drops the
// expired partials in the list it scans.
func (t *Table) SweepExpired(now float64) int {
	removed := 0
	for _, sl := range t.slots {
		sl.mu.Lock()
		for vertex, list := range sl.byVertex {
			kept := list[:0]
			for _, pm := range list {
				if pm.Expired(now) {
					removed++
				} else {
					kept = append(kept, pm)
				}
			}
			if len(kept) == 0 {
				delete(sl.byVertex, vertex)
			} else {
				sl.byVertex[vertex] = kept
			}
		}
		sl.mu.Unlock()
	}
	return removed
}
