package query

import (
	"testing"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLWithFeaturesRunsOperatorAndConstraint(t *testing.T) {
	doc := []byte(`
edges:
  - source: A
    edgeId: e1
    target: B
    startLo: 0
    startHi: 5
constraints:
  - variable: A
    featureId: score
    op: ">="
    value: 3
`)
	fm := feature.New(16)
	b, ops, err := LoadYAMLWithFeatures(doc, fm)
	require.NoError(t, err)
	require.Empty(t, ops)

	q, err := b.Finalize(10)
	require.NoError(t, err)

	assert.False(t, q.CheckConstraints("A", "x"))
	fm.UpdateInsert("x", "score", feature.SingleFeature(5))
	assert.True(t, q.CheckConstraints("A", "x"))
	fm.UpdateInsert("x", "score", feature.SingleFeature(1))
	assert.False(t, q.CheckConstraints("A", "x"))
}

func TestLoadYAMLWithFeaturesBuildsOperators(t *testing.T) {
	doc := []byte(`
edges:
  - source: A
    edgeId: e1
    target: B
features:
  - id: duration-sum
    op: sum
    keyFields: ["source"]
    valueField: duration
    window: 4
`)
	fm := feature.New(16)
	_, ops, err := LoadYAMLWithFeatures(doc, fm)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	e := edge.Edge{Tuple: edge.Tuple{
		edge.FieldSource: "x", edge.FieldTarget: "y",
		edge.FieldTime: 1.0, edge.FieldDuration: 7.0,
	}}
	assert.True(t, ops[0].Consume(e))

	got, ok := feature.Evaluate(fm, "x", "duration-sum", func(f feature.Feature) (float64, bool) {
		sf, ok := f.(feature.SingleFeature)
		return float64(sf), ok
	})
	require.True(t, ok)
	assert.Equal(t, 7.0, got)
}

func TestLoadYAMLWithFeaturesTopKConstraint(t *testing.T) {
	doc := []byte(`
edges:
  - source: A
    edgeId: e1
    target: B
    startLo: 0
    startHi: 5
constraints:
  - variable: A
    featureId: hot-ports
    op: in
`)
	fm := feature.New(16)
	_, _, err := LoadYAMLWithFeatures(doc, fm)
	require.NoError(t, err)

	b, _, err := LoadYAMLWithFeatures(doc, fm)
	require.NoError(t, err)
	q, err := b.Finalize(10)
	require.NoError(t, err)

	assert.False(t, q.CheckConstraints("A", "443"))
	fm.UpdateInsert("hot-ports", "hot-ports", feature.TopKFeature{
		Keys: []string{"443", "80"}, Frequencies: []float64{0.6, 0.4},
	})
	assert.True(t, q.CheckConstraints("A", "443"))
	assert.False(t, q.CheckConstraints("A", "22"))
}

func TestBuildOperatorRejectsUnknownOp(t *testing.T) {
	_, err := buildOperator(YAMLFeature{ID: "x", Op: "bogus"}, feature.New(4))
	assert.Error(t, err)
}

func TestBuildConstraintRejectsUnknownOp(t *testing.T) {
	_, err := buildConstraint(YAMLConstraint{Variable: "A", Op: "bogus"}, feature.New(4))
	assert.Error(t, err)
}
