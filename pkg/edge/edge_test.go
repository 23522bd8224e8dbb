package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTupleAccessors(t *testing.T) {
	tup := Tuple{
		FieldSource:   "A",
		FieldTarget:   "B",
		FieldTime:     1.5,
		FieldDuration: 0.25,
		"bytes":       1024,
	}

	src, ok := tup.Source()
	require.True(t, ok)
	assert.Equal(t, "A", src)

	dst, ok := tup.Target()
	require.True(t, ok)
	assert.Equal(t, "B", dst)

	tm, ok := tup.Time()
	require.True(t, ok)
	assert.Equal(t, 1.5, tm)

	dur, ok := tup.Duration()
	require.True(t, ok)
	assert.Equal(t, 0.25, dur)

	bytes, ok := tup.Float64("bytes")
	require.True(t, ok)
	assert.Equal(t, float64(1024), bytes)

	_, ok = tup.Float64("missing")
	assert.False(t, ok)
}

func TestEdgeEndTime(t *testing.T) {
	e := Edge{
		Tuple: Tuple{FieldSource: "A", FieldTarget: "B", FieldTime: 10.0, FieldDuration: 2.0},
	}
	assert.Equal(t, "A", e.Source())
	assert.Equal(t, "B", e.Target())
	assert.Equal(t, 10.0, e.Time())
	assert.Equal(t, 12.0, e.EndTime())
}

func TestSchemaValidate(t *testing.T) {
	s := Schema{Fields: []string{"label0", "source", "target", "time", "duration"}, LabelFields: 1}
	assert.NoError(t, s.Validate())

	bad := Schema{Fields: []string{"a"}, LabelFields: 5}
	assert.Error(t, bad.Validate())
}

func TestIDGeneratorMonotonic(t *testing.T) {
	g := NewIDGenerator()
	a := g.Next()
	b := g.Next()
	assert.Less(t, a, b)
}

func TestIDGeneratorConcurrent(t *testing.T) {
	g := NewIDGenerator()
	const n = 200
	done := make(chan uint64, n)
	for i := 0; i < n; i++ {
		go func() { done <- g.Next() }()
	}
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		id := <-done
		assert.False(t, seen[id], "duplicate id generated")
		seen[id] = true
	}
}
