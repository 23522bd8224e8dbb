package sink

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEdge(src, dst string, t, dur float64) edge.Edge {
	return edge.Edge{Tuple: edge.Tuple{
		edge.FieldSource: src, edge.FieldTarget: dst,
		edge.FieldTime: t, edge.FieldDuration: dur,
	}}
}

func TestWriterPrinterFormatsResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriterPrinter(&buf)

	result := &match.Result{
		Bindings: map[string]string{"B": "y", "A": "x"},
		Edges:    []edge.Edge{mkEdge("x", "y", 1, 0.5)},
	}
	p.Print(result)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "A=x, B=y | "), "bindings must be sorted by variable name: %q", out)
	assert.Contains(t, out, "x->y@1.000000+0.500000")
}

func TestDiskPrinterWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.txt")

	p, err := NewDiskPrinter(path)
	require.NoError(t, err)

	p.Print(&match.Result{Bindings: map[string]string{"A": "x"}, Edges: []edge.Edge{mkEdge("x", "y", 0, 0)}})
	require.NoError(t, p.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A=x")
}

func TestPrinterSerializesConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriterPrinter(&buf)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			p.Print(&match.Result{Bindings: map[string]string{"A": "x"}, Edges: []edge.Edge{mkEdge("x", "y", float64(i), 0)}})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 20)
}
