// Package query implements the subgraph query compiler of spec component
// 4.F: a builder that accepts edge and vertex-constraint expressions until
// Finalize is called, producing an ordered, time-bounded SubgraphQuery.
//
// Grounded on the teacher's pkg/cypher/ast_builder.go (which accumulates
// clauses into a builder, then a single finalize-like step assembles the
// executable plan); here the "plan" is an ordered slice of EdgeDescription
// rather than a Cypher AST, and finalization additionally resolves
// possibly-unbounded time ranges the way
// original_source/SamSrc/sam/SubgraphQuery.hpp's fixTimeRange does.
package query

import (
	"errors"
	"math"
	"sort"
)

// ErrNotFinalized is returned by any operation that requires a finalized
// query when the query has not yet been finalized.
var ErrNotFinalized = errors.New("query: not finalized")

// ErrAlreadyFinalized is returned by Builder methods called after Finalize.
var ErrAlreadyFinalized = errors.New("query: already finalized")

// ErrUnresolvedEndpoint is returned by Finalize when an edge has no
// resolved source or target variable.
var ErrUnresolvedEndpoint = errors.New("query: edge has unresolved source or target")

// ErrUnresolvableTimeRange is returned by Finalize when neither the start
// nor end time range of an edge has any bound to derive the other from.
var ErrUnresolvableTimeRange = errors.New("query: time range unresolvable")

// TimeRange is an inclusive [Lo, Hi] bound, query-relative seconds.
// Per spec.md §9's resolution of the boundary-inclusivity open question,
// both ends are treated as inclusive (<=) everywhere this type is used.
type TimeRange struct {
	Lo, Hi float64
}

// Bounded reports whether both ends of the range are finite.
func (r TimeRange) Bounded() bool {
	return !math.IsInf(r.Lo, 0) && !math.IsInf(r.Hi, 0)
}

// Contains reports whether v falls within [Lo, Hi] inclusive.
func (r TimeRange) Contains(v float64) bool {
	return v >= r.Lo && v <= r.Hi
}

// Unbounded is the default range before fixTimeRange resolves it.
var Unbounded = TimeRange{Lo: math.Inf(-1), Hi: math.Inf(1)}

// VertexConstraintExpression is a predicate a bound query variable's
// vertex value must satisfy (spec §4.F / §6's "IN topk" style constraint:
// here expressed as a closure so the compiler stays agnostic of exactly
// which feature or literal set backs the check).
type VertexConstraintExpression struct {
	Description string
	Check       func(vertex string) bool
}

// EdgeDescription is one edge of a subgraph query (spec §3).
type EdgeDescription struct {
	Source, EdgeID, Target string
	StartTimeRange          TimeRange
	EndTimeRange            TimeRange
}

// Builder accumulates EdgeDescriptions and VertexConstraintExpressions
// until Finalize is called. Finalization is one-shot: any attempt to add
// to the builder after Finalize returns ErrAlreadyFinalized.
type Builder struct {
	edges       []EdgeDescription
	constraints map[string][]VertexConstraintExpression
	finalized   bool
}

// NewBuilder constructs an empty query builder.
func NewBuilder() *Builder {
	return &Builder{constraints: make(map[string][]VertexConstraintExpression)}
}

// AddEdge appends one EdgeDescription to the builder. Callers that don't
// care to bound a StartTimeRange or EndTimeRange should leave it as the
// zero value of TimeRange; AddEdge treats an all-zero range (which no real
// query would assert, since it admits only instant-zero edges) as "not
// specified" and substitutes Unbounded.
func (b *Builder) AddEdge(e EdgeDescription) error {
	if b.finalized {
		return ErrAlreadyFinalized
	}
	zero := TimeRange{}
	if e.StartTimeRange == zero {
		e.StartTimeRange = Unbounded
	}
	if e.EndTimeRange == zero {
		e.EndTimeRange = Unbounded
	}
	b.edges = append(b.edges, e)
	return nil
}

// AddVertexConstraint attaches a constraint expression to a query
// variable; a variable may carry any number of constraints, all of which
// must hold for a binding of that variable to be accepted.
func (b *Builder) AddVertexConstraint(variable string, c VertexConstraintExpression) error {
	if b.finalized {
		return ErrAlreadyFinalized
	}
	b.constraints[variable] = append(b.constraints[variable], c)
	return nil
}

// Finalize resolves time ranges, sorts edges by start time, and computes
// maxTimeExtent, producing an immutable SubgraphQuery. Finalize may only
// be called once; a second call returns ErrAlreadyFinalized.
func (b *Builder) Finalize(maxOffset float64) (*SubgraphQuery, error) {
	if b.finalized {
		return nil, ErrAlreadyFinalized
	}

	edges := make([]EdgeDescription, len(b.edges))
	copy(edges, b.edges)

	for i, e := range edges {
		if e.Source == "" || e.Target == "" {
			return nil, ErrUnresolvedEndpoint
		}
		fixed, err := fixTimeRange(e.StartTimeRange, e.EndTimeRange, maxOffset)
		if err != nil {
			return nil, err
		}
		edges[i].StartTimeRange, edges[i].EndTimeRange = fixed.start, fixed.end
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].StartTimeRange.Lo < edges[j].StartTimeRange.Lo
	})

	startAnchored := edges[0].StartTimeRange.Lo > math.Inf(-1)
	var earliest, latestEnd float64
	latestEnd = math.Inf(-1)
	if startAnchored {
		earliest = math.Inf(1)
		for _, e := range edges {
			if e.StartTimeRange.Lo < earliest {
				earliest = e.StartTimeRange.Lo
			}
		}
	} else {
		earliest = math.Inf(1)
		for _, e := range edges {
			if e.EndTimeRange.Lo < earliest {
				earliest = e.EndTimeRange.Lo
			}
		}
	}
	for _, e := range edges {
		if e.EndTimeRange.Hi > latestEnd {
			latestEnd = e.EndTimeRange.Hi
		}
	}

	b.finalized = true

	return &SubgraphQuery{
		Edges:         edges,
		Constraints:   b.constraints,
		MaxTimeExtent: latestEnd - earliest,
	}, nil
}

type fixedRange struct {
	start, end TimeRange
}

// fixTimeRange implements spec §4.F step 2: if one of start/end is
// unbounded, derive a finite range from the other using maxOffset. It
// distinguishes four cases: both ranges bounded (no-op), only start
// bounded (derive end), only end bounded (derive start), neither bounded
// (reject). A range counts as bounded only when both of its ends are
// finite, so a half-bounded range (one finite end, as the yaml loader
// builds when only one of Lo/Hi is given) is handled exactly like
// Unbounded: its finite end is discarded, and the finer per-bound cases
// of the full 16-case table are not distinguished.
func fixTimeRange(start, end TimeRange, maxOffset float64) (fixedRange, error) {
	startBounded := start.Bounded()
	endBounded := end.Bounded()

	switch {
	case startBounded && endBounded:
		return fixedRange{start, end}, nil
	case startBounded && !endBounded:
		// Duration is unconstrained; bound the end by the edge's own
		// start range widened by maxOffset.
		return fixedRange{start, TimeRange{Lo: start.Lo, Hi: start.Hi + maxOffset}}, nil
	case !startBounded && endBounded:
		return fixedRange{TimeRange{Lo: end.Lo - maxOffset, Hi: end.Hi}, end}, nil
	default:
		return fixedRange{}, ErrUnresolvableTimeRange
	}
}

// SubgraphQuery is a finalized, ordered sequence of EdgeDescriptions plus
// variable constraints and the query's maximum time extent (spec §3).
type SubgraphQuery struct {
	Edges         []EdgeDescription
	Constraints   map[string][]VertexConstraintExpression
	MaxTimeExtent float64
}

// Size returns the number of edges in the query.
func (q *SubgraphQuery) Size() int { return len(q.Edges) }

// CheckConstraints reports whether vertex satisfies every constraint
// attached to variable (no constraints means any vertex is acceptable).
func (q *SubgraphQuery) CheckConstraints(variable, vertex string) bool {
	for _, c := range q.Constraints[variable] {
		if !c.Check(vertex) {
			return false
		}
	}
	return true
}
