package window

import (
	"math"
	"testing"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEdge(id uint64, value float64) edge.Edge {
	return edge.Edge{
		ID: id,
		Tuple: edge.Tuple{
			edge.FieldSource:   "A",
			edge.FieldTarget:   "B",
			edge.FieldTime:     float64(id),
			edge.FieldDuration: 0,
			"value":            value,
		},
	}
}

// TestExponentialHistogramSumS1 implements spec.md scenario S1: N=10, k=2,
// insert 1 ten times then 0 five times; expected sum after inserts 11..15
// is 5, within ±0.5.
func TestExponentialHistogramSumS1(t *testing.T) {
	fm := feature.New(4)
	op := NewExponentialHistogramSum(fm, "eh", FieldsKey(edge.FieldSource), FieldValue("value"), 10, 2)

	id := uint64(0)
	for i := 0; i < 10; i++ {
		id++
		require.True(t, op.Consume(mkEdge(id, 1)))
	}
	for i := 0; i < 5; i++ {
		id++
		require.True(t, op.Consume(mkEdge(id, 0)))
	}

	f, err := fm.At("A", "eh")
	require.NoError(t, err)
	sum := float64(f.(feature.SingleFeature))
	assert.InDelta(t, 5.0, sum, 0.5)
}

func TestExponentialHistogramAve(t *testing.T) {
	fm := feature.New(4)
	op := NewExponentialHistogramAve(fm, "eh", FieldsKey(edge.FieldSource), FieldValue("value"), 10, 4)

	id := uint64(0)
	for i := 0; i < 10; i++ {
		id++
		op.Consume(mkEdge(id, 2))
	}

	f, err := fm.At("A", "eh")
	require.NoError(t, err)
	mean := float64(f.(feature.SingleFeature))
	assert.InDelta(t, 2.0, mean, 0.3)
}

func TestExponentialHistogramVarianceNonNegative(t *testing.T) {
	fm := feature.New(4)
	op := NewExponentialHistogramVariance(fm, "eh", FieldsKey(edge.FieldSource), FieldValue("value"), 20, 4)

	id := uint64(0)
	vals := []float64{1, 2, 3, 4, 5, 4, 3, 2, 1, 0}
	for _, v := range vals {
		id++
		op.Consume(mkEdge(id, v))
	}

	f, err := fm.At("A", "eh")
	require.NoError(t, err)
	variance := float64(f.(feature.SingleFeature))
	assert.False(t, math.IsNaN(variance))
	assert.GreaterOrEqual(t, variance, 0.0)
}

func TestSimpleSumExact(t *testing.T) {
	fm := feature.New(4)
	op := NewSimpleSum(fm, "sum", FieldsKey(edge.FieldSource), FieldValue("value"), 3)

	id := uint64(0)
	for _, v := range []float64{1, 2, 3, 4} {
		id++
		op.Consume(mkEdge(id, v))
	}
	// Window holds the last 3: 2+3+4 = 9.
	f, err := fm.At("A", "sum")
	require.NoError(t, err)
	assert.Equal(t, feature.SingleFeature(9), f)
}

func TestMaxOverWindow(t *testing.T) {
	fm := feature.New(4)
	op := NewMax(fm, "max", FieldsKey(edge.FieldSource), FieldValue("value"), 3)

	id := uint64(0)
	for _, v := range []float64{5, 1, 9, 2} {
		id++
		op.Consume(mkEdge(id, v))
	}
	// Last 3: 1, 9, 2 -> max 9.
	f, err := fm.At("A", "max")
	require.NoError(t, err)
	assert.Equal(t, feature.SingleFeature(9), f)
}

func TestCountDistinct(t *testing.T) {
	fm := feature.New(4)
	op := NewCountDistinct(fm, "cd", FieldsKey(edge.FieldSource), FieldValue("value"), 5)

	id := uint64(0)
	for _, v := range []float64{1, 1, 2, 3, 3} {
		id++
		op.Consume(mkEdge(id, v))
	}
	f, err := fm.At("A", "cd")
	require.NoError(t, err)
	assert.Equal(t, feature.SingleFeature(3), f)
}

func TestJaccardIndexIdenticalHalves(t *testing.T) {
	fm := feature.New(4)
	op := NewJaccardIndex(fm, "jac", FieldsKey(edge.FieldSource), FieldValue("value"), 4)

	id := uint64(0)
	for _, v := range []float64{1, 2, 1, 2} {
		id++
		op.Consume(mkEdge(id, v))
	}
	f, err := fm.At("A", "jac")
	require.NoError(t, err)
	assert.Equal(t, feature.SingleFeature(1), f)
}

// TestTopKServerDetection is a scaled-down version of spec.md scenario S2:
// a source sending even traffic to two destination ports should converge
// to a roughly even top-2 split.
func TestTopKServerDetection(t *testing.T) {
	fm := feature.New(4)
	op := NewTopK(fm, "topk", FieldsKey(edge.FieldSource), StringFieldValue("port"), 1000, 100, 3)

	id := uint64(0)
	for i := 0; i < 1000; i++ {
		id++
		port := "80"
		if i%2 == 1 {
			port = "443"
		}
		e := edge.Edge{ID: id, Tuple: edge.Tuple{
			edge.FieldSource: "A", edge.FieldTarget: "B",
			edge.FieldTime: float64(id), edge.FieldDuration: 0,
			"port": port,
		}}
		op.Consume(e)
	}

	f, err := fm.At("A", "topk")
	require.NoError(t, err)
	topk := f.(feature.TopKFeature)
	require.True(t, topk.Valid())
	require.Len(t, topk.Keys, 2)

	var sum float64
	for _, freq := range topk.Frequencies {
		sum += freq
	}
	assert.InDelta(t, 1.0, sum, 0.1)
}

func TestIdentityAndLabelProducer(t *testing.T) {
	fm := feature.New(4)
	idOp := NewIdentity(fm, "id", FieldsKey(edge.FieldSource), FieldValue("value"))
	e := mkEdge(1, 42)
	require.True(t, idOp.Consume(e))
	f, err := fm.At("A", "id")
	require.NoError(t, err)
	assert.Equal(t, feature.SingleFeature(42), f)

	labelOp := NewLabelProducer(fm, "label", FieldsKey(edge.FieldSource))
	e2 := edge.Edge{ID: 2, Label: []string{"6"}, Tuple: edge.Tuple{
		edge.FieldSource: "A", edge.FieldTarget: "B", edge.FieldTime: 1, edge.FieldDuration: 0,
	}}
	require.True(t, labelOp.Consume(e2))
	f, err = fm.At("A", "label")
	require.NoError(t, err)
	assert.Equal(t, feature.SingleFeature(6), f)

	e3 := edge.Edge{ID: 3, Tuple: edge.Tuple{edge.FieldSource: "A", edge.FieldTarget: "B", edge.FieldTime: 2, edge.FieldDuration: 0}}
	assert.False(t, labelOp.Consume(e3))
}
