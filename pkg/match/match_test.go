package match

import (
	"testing"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEdge(src, dst string, t, dur float64) edge.Edge {
	return edge.Edge{Tuple: edge.Tuple{
		edge.FieldSource: src, edge.FieldTarget: dst,
		edge.FieldTime: t, edge.FieldDuration: dur,
	}}
}

// triangleQuery builds A->B->C->A, the canonical SAM triangle-detection
// query (original_source/TestSrc/TestNumTriangles.cpp).
func triangleQuery(t *testing.T) *query.SubgraphQuery {
	t.Helper()
	b := query.NewBuilder()
	require.NoError(t, b.AddEdge(query.EdgeDescription{
		Source: "A", EdgeID: "e1", Target: "B",
		StartTimeRange: query.TimeRange{Lo: 0, Hi: 100},
		EndTimeRange:   query.TimeRange{Lo: 0, Hi: 100},
	}))
	require.NoError(t, b.AddEdge(query.EdgeDescription{
		Source: "B", EdgeID: "e2", Target: "C",
		StartTimeRange: query.TimeRange{Lo: 0, Hi: 100},
		EndTimeRange:   query.TimeRange{Lo: 0, Hi: 100},
	}))
	require.NoError(t, b.AddEdge(query.EdgeDescription{
		Source: "C", EdgeID: "e3", Target: "A",
		StartTimeRange: query.TimeRange{Lo: 0, Hi: 100},
		EndTimeRange:   query.TimeRange{Lo: 0, Hi: 100},
	}))
	q, err := b.Finalize(1000)
	require.NoError(t, err)
	return q
}

func TestNewPartialMatchSeedsBindings(t *testing.T) {
	q := triangleQuery(t)
	pm := NewPartialMatch(q, mkEdge("x", "y", 1, 0))
	assert.Equal(t, "x", pm.Bindings["A"])
	assert.Equal(t, "y", pm.Bindings["B"])
	assert.Equal(t, 1, pm.k())
	assert.False(t, pm.Complete())
}

func TestTryExtendFollowsBindingRule(t *testing.T) {
	q := triangleQuery(t)
	pm := NewPartialMatch(q, mkEdge("x", "y", 1, 0))

	// Wrong source: expects "y" next.
	_, ok := pm.tryExtend(mkEdge("z", "w", 2, 0))
	assert.False(t, ok)

	extended, ok := pm.tryExtend(mkEdge("y", "z", 2, 0))
	require.True(t, ok)
	assert.Equal(t, "z", extended.Bindings["C"])
	assert.False(t, extended.Complete())
}

func TestTryExtendRejectsNonIncreasingTime(t *testing.T) {
	q := triangleQuery(t)
	pm := NewPartialMatch(q, mkEdge("x", "y", 5, 0))
	_, ok := pm.tryExtend(mkEdge("y", "z", 5, 0))
	assert.False(t, ok, "strictly increasing time required")
}

func TestFullTriangleCompletesAndRebindsA(t *testing.T) {
	q := triangleQuery(t)
	pm := NewPartialMatch(q, mkEdge("x", "y", 1, 0))
	pm2, ok := pm.tryExtend(mkEdge("y", "z", 2, 0))
	require.True(t, ok)

	// Closing the triangle requires target == "x" (bound value of A).
	_, ok = pm2.tryExtend(mkEdge("z", "w", 3, 0))
	assert.False(t, ok, "A must rebind to x, not w")

	pm3, ok := pm2.tryExtend(mkEdge("z", "x", 3, 0))
	require.True(t, ok)
	assert.True(t, pm3.Complete())
}

func TestTableAddAndProcessCompletesMatch(t *testing.T) {
	q := triangleQuery(t)
	tbl := New(16)

	pm1 := NewPartialMatch(q, mkEdge("x", "y", 1, 0))
	require.True(t, tbl.Add(pm1))

	alwaysLocal := func(string) bool { return true }

	outcomes := tbl.Process(mkEdge("y", "z", 2, 0), 2, alwaysLocal)
	require.Len(t, outcomes, 1)
	require.Nil(t, outcomes[0].Result)
	assert.Equal(t, "z", outcomes[0].NextVertex)

	outcomes = tbl.Process(mkEdge("z", "x", 3, 0), 3, alwaysLocal)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Result)
	assert.Len(t, outcomes[0].Result.Edges, 3)
}

func TestTableProcessForwardsToRemoteOwner(t *testing.T) {
	q := triangleQuery(t)
	tbl := New(16)
	pm1 := NewPartialMatch(q, mkEdge("x", "y", 1, 0))
	require.True(t, tbl.Add(pm1))

	neverLocal := func(string) bool { return false }
	outcomes := tbl.Process(mkEdge("y", "z", 2, 0), 2, neverLocal)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Forward)
	assert.Equal(t, "z", outcomes[0].NextVertex)
	assert.Equal(t, 0, tbl.Count(), "a forwarded partial is not retained locally")
}

func TestTableExpiredPartialsAreSwept(t *testing.T) {
	q := triangleQuery(t)
	tbl := New(16)
	pm1 := NewPartialMatch(q, mkEdge("x", "y", 0, 0)) // expireAt = 0 + 100
	require.True(t, tbl.Add(pm1))

	alwaysLocal := func(string) bool { return true }
	outcomes := tbl.Process(mkEdge("y", "z", 5000, 0), 5000, alwaysLocal)
	assert.Len(t, outcomes, 0, "partial past its expireAt must not be extended")
	assert.Equal(t, 0, tbl.Count())
}

func TestSweepExpiredRemovesStalePartials(t *testing.T) {
	q := triangleQuery(t)
	tbl := New(16)
	pm1 := NewPartialMatch(q, mkEdge("x", "y", 0, 0))
	require.True(t, tbl.Add(pm1))
	require.Equal(t, 1, tbl.Count())

	removed := tbl.SweepExpired(5000)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, tbl.Count())
}

func TestVertexConstraintsEnforcedDuringExtend(t *testing.T) {
	b := query.NewBuilder()
	require.NoError(t, b.AddVertexConstraint("B", query.VertexConstraintExpression{
		Check: func(v string) bool { return v == "allowed" },
	}))
	require.NoError(t, b.AddEdge(query.EdgeDescription{
		Source: "A", Target: "B",
		StartTimeRange: query.TimeRange{Lo: 0, Hi: 100},
		EndTimeRange:   query.TimeRange{Lo: 0, Hi: 100},
	}))
	require.NoError(t, b.AddEdge(query.EdgeDescription{
		Source: "B", Target: "C",
		StartTimeRange: query.TimeRange{Lo: 0, Hi: 100},
		EndTimeRange:   query.TimeRange{Lo: 0, Hi: 100},
	}))
	q, err := b.Finalize(1000)
	require.NoError(t, err)

	pm := NewPartialMatch(q, mkEdge("x", "disallowed", 1, 0))
	_, ok := pm.tryExtend(mkEdge("disallowed", "z", 2, 0))
	assert.False(t, ok, "B's vertex constraint rejects the bound value")
}
