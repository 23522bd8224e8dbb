package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderFinalizeSortsByStartTime(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "B", EdgeID: "e2", Target: "C",
		StartTimeRange: TimeRange{Lo: 5, Hi: 10},
		EndTimeRange:   TimeRange{Lo: 6, Hi: 11},
	}))
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "A", EdgeID: "e1", Target: "B",
		StartTimeRange: TimeRange{Lo: 0, Hi: 3},
		EndTimeRange:   TimeRange{Lo: 1, Hi: 4},
	}))

	q, err := b.Finalize(100)
	require.NoError(t, err)
	require.Len(t, q.Edges, 2)
	assert.Equal(t, "e1", q.Edges[0].EdgeID)
	assert.Equal(t, "e2", q.Edges[1].EdgeID)
}

func TestBuilderFinalizeIsOneShot(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "A", Target: "B",
		StartTimeRange: TimeRange{Lo: 0, Hi: 1},
		EndTimeRange:   TimeRange{Lo: 0, Hi: 1},
	}))
	_, err := b.Finalize(10)
	require.NoError(t, err)

	err = b.AddEdge(EdgeDescription{Source: "X", Target: "Y"})
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	_, err = b.Finalize(10)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestFinalizeRejectsUnresolvedEndpoint(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "", Target: "B",
		StartTimeRange: TimeRange{Lo: 0, Hi: 1},
		EndTimeRange:   TimeRange{Lo: 0, Hi: 1},
	}))
	_, err := b.Finalize(10)
	assert.ErrorIs(t, err, ErrUnresolvedEndpoint)
}

func TestFixTimeRangeDerivesEndFromStart(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "A", Target: "B",
		StartTimeRange: TimeRange{Lo: 0, Hi: 2},
		// EndTimeRange left unspecified -> Unbounded -> derived from start + maxOffset.
	}))
	q, err := b.Finalize(10)
	require.NoError(t, err)
	end := q.Edges[0].EndTimeRange
	assert.Equal(t, 0.0, end.Lo)
	assert.Equal(t, 12.0, end.Hi)
}

func TestFixTimeRangeDerivesStartFromEnd(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "A", Target: "B",
		EndTimeRange: TimeRange{Lo: 20, Hi: 25},
	}))
	q, err := b.Finalize(10)
	require.NoError(t, err)
	start := q.Edges[0].StartTimeRange
	assert.Equal(t, 10.0, start.Lo)
	assert.Equal(t, 25.0, start.Hi)
}

func TestFixTimeRangeRejectsFullyUnbounded(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{Source: "A", Target: "B"}))
	_, err := b.Finalize(10)
	assert.ErrorIs(t, err, ErrUnresolvableTimeRange)
}

func TestMaxTimeExtent(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "A", Target: "B",
		StartTimeRange: TimeRange{Lo: 0, Hi: 1},
		EndTimeRange:   TimeRange{Lo: 0, Hi: 2},
	}))
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "B", Target: "C",
		StartTimeRange: TimeRange{Lo: 1, Hi: 2},
		EndTimeRange:   TimeRange{Lo: 2, Hi: 9},
	}))
	q, err := b.Finalize(100)
	require.NoError(t, err)
	assert.Equal(t, 9.0, q.MaxTimeExtent)
}

func TestVertexConstraints(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddVertexConstraint("A", VertexConstraintExpression{
		Description: "must start with x",
		Check:       func(v string) bool { return len(v) > 0 && v[0] == 'x' },
	}))
	require.NoError(t, b.AddEdge(EdgeDescription{
		Source: "A", Target: "B",
		StartTimeRange: TimeRange{Lo: 0, Hi: 1},
		EndTimeRange:   TimeRange{Lo: 0, Hi: 1},
	}))
	q, err := b.Finalize(10)
	require.NoError(t, err)

	assert.True(t, q.CheckConstraints("A", "xyz"))
	assert.False(t, q.CheckConstraints("A", "abc"))
	assert.True(t, q.CheckConstraints("unconstrained", "anything"))
}

func TestTimeRangeContainsInclusive(t *testing.T) {
	r := TimeRange{Lo: 1, Hi: 5}
	assert.True(t, r.Contains(1))
	assert.True(t, r.Contains(5))
	assert.False(t, r.Contains(0.999))
	assert.False(t, r.Contains(5.001))
}

func TestUnboundedNotBounded(t *testing.T) {
	assert.False(t, Unbounded.Bounded())
	assert.True(t, math.IsInf(Unbounded.Lo, -1))
	assert.True(t, math.IsInf(Unbounded.Hi, 1))
}

func TestLoadYAML(t *testing.T) {
	doc := []byte(`
edges:
  - source: A
    edgeId: e1
    target: B
    startLo: 0
    startHi: 5
    endLo: 1
    endHi: 6
  - source: B
    edgeId: e2
    target: C
    startLo: 1
    startHi: 6
`)
	b, err := LoadYAML(doc)
	require.NoError(t, err)
	q, err := b.Finalize(10)
	require.NoError(t, err)
	require.Len(t, q.Edges, 2)
	assert.Equal(t, "e1", q.Edges[0].EdgeID)
}

func TestLoadYAMLRejectsMissingEndpoint(t *testing.T) {
	doc := []byte(`
edges:
  - target: B
`)
	_, err := LoadYAML(doc)
	assert.Error(t, err)
}
