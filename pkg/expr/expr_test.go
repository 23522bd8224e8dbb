package expr

import (
	"testing"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tupleEdge(fields map[string]interface{}) edge.Edge {
	t := edge.Tuple{edge.FieldSource: "A", edge.FieldTarget: "B", edge.FieldTime: 0.0, edge.FieldDuration: 0.0}
	for k, v := range fields {
		t[k] = v
	}
	return edge.Edge{Tuple: t}
}

func TestCompileAndEvaluateArithmetic(t *testing.T) {
	// bytes * 2 + 1
	ex, err := Compile([]Token{Field("bytes"), OpToken(OpMul), Number(2), OpToken(OpAdd), Number(1)})
	require.NoError(t, err)

	fm := feature.New(4)
	prevs := NewPrevStore()
	e := tupleEdge(map[string]interface{}{"bytes": 10.0})

	result, ok := ex.Evaluate("k", e, fm, prevs)
	require.True(t, ok)
	assert.Equal(t, 21.0, result)
}

func TestEvaluateMissingFieldFails(t *testing.T) {
	ex, err := Compile([]Token{Field("missing")})
	require.NoError(t, err)

	fm := feature.New(4)
	prevs := NewPrevStore()
	e := tupleEdge(nil)

	_, ok := ex.Evaluate("k", e, fm, prevs)
	assert.False(t, ok)
}

func TestEvaluateDivideByZeroFails(t *testing.T) {
	ex, err := Compile([]Token{Number(1), Number(0), OpToken(OpDiv)})
	require.NoError(t, err)

	fm := feature.New(4)
	prevs := NewPrevStore()
	e := tupleEdge(nil)

	_, ok := ex.Evaluate("k", e, fm, prevs)
	assert.False(t, ok)
}

func TestEvaluatePrevFirstTimeFails(t *testing.T) {
	ex, err := Compile([]Token{Prev("bytes")})
	require.NoError(t, err)

	fm := feature.New(4)
	prevs := NewPrevStore()
	e1 := tupleEdge(map[string]interface{}{"bytes": 5.0})

	_, ok := ex.Evaluate("k", e1, fm, prevs)
	assert.False(t, ok, "first Prev evaluation must fail")

	e2 := tupleEdge(map[string]interface{}{"bytes": 9.0})
	result, ok := ex.Evaluate("k", e2, fm, prevs)
	require.True(t, ok)
	assert.Equal(t, 5.0, result)
}

func TestEvaluateFuncReadsFeature(t *testing.T) {
	fm := feature.New(4)
	fm.UpdateInsert("k", "sum", feature.SingleFeature(42))

	ex, err := Compile([]Token{Func(FuncSpec{
		FeatureID: "sum",
		Project: func(f feature.Feature) (float64, bool) {
			sf, ok := f.(feature.SingleFeature)
			return float64(sf), ok
		},
	})})
	require.NoError(t, err)

	prevs := NewPrevStore()
	e := tupleEdge(nil)
	result, ok := ex.Evaluate("k", e, fm, prevs)
	require.True(t, ok)
	assert.Equal(t, 42.0, result)
}

func TestEvaluateFuncMissingFeatureFails(t *testing.T) {
	fm := feature.New(4)
	ex, err := Compile([]Token{Func(FuncSpec{
		FeatureID: "nope",
		Project:   func(f feature.Feature) (float64, bool) { return 0, true },
	})})
	require.NoError(t, err)

	prevs := NewPrevStore()
	e := tupleEdge(nil)
	_, ok := ex.Evaluate("k", e, fm, prevs)
	assert.False(t, ok)
}

func TestOperatorPrecedence(t *testing.T) {
	// 2 + 3 * 4 == 14, not 20.
	ex, err := Compile([]Token{Number(2), OpToken(OpAdd), Number(3), OpToken(OpMul), Number(4)})
	require.NoError(t, err)
	fm := feature.New(4)
	prevs := NewPrevStore()
	result, ok := ex.Evaluate("k", tupleEdge(nil), fm, prevs)
	require.True(t, ok)
	assert.Equal(t, 14.0, result)
}

func TestComparisonOperators(t *testing.T) {
	ex, err := Compile([]Token{Number(5), Number(3), OpToken(OpGT)})
	require.NoError(t, err)
	fm := feature.New(4)
	prevs := NewPrevStore()
	result, ok := ex.Evaluate("k", tupleEdge(nil), fm, prevs)
	require.True(t, ok)
	assert.Equal(t, 1.0, result)
}
