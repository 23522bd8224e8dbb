// Package pool provides object pooling for the matching hot path, to
// reduce allocations.
//
// Object pooling reuses allocated slices instead of creating new ones,
// reducing GC pressure on the edge-lookup path: every forwarded partial
// match a worker receives and every edge request it answers triggers an
// edgestore.Store.FindEdges call, and those calls run far more often
// than they allocate new backing arrays if the caller recycles its
// result slice.
//
// Usage:
//
//	buf := pool.GetEdgeSlice()
//	defer pool.PutEdgeSlice(buf)
//	found := store.FindEdges(req, buf)
package pool

import (
	"sync"

	"github.com/samstream/engine/pkg/edge"
)

// Config configures object pooling behavior.
type Config struct {
	// Enabled controls whether pooling is active.
	Enabled bool

	// MaxSize limits how large an edge slice's capacity may be before it
	// is dropped instead of returned to the pool (memory leak
	// prevention). Byte buffers use a fixed 1 MiB limit instead.
	MaxSize int
}

var globalConfig = Config{
	Enabled: true,
	MaxSize: 4096,
}

// Configure sets global pool configuration. Should be called early
// during worker initialization, before any ingestion starts.
func Configure(cfg Config) {
	globalConfig = cfg
	initPools()
}

func initPools() {
	edgeSlicePool = sync.Pool{
		New: func() any {
			return make([]edge.Edge, 0, 64)
		},
	}
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, 1024)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Edge Slice Pool (FindEdges result buffers)
// =============================================================================

var edgeSlicePool = sync.Pool{
	New: func() any {
		return make([]edge.Edge, 0, 64)
	},
}

// GetEdgeSlice returns an edge slice from the pool. The returned slice
// has length 0 but may have capacity. Call PutEdgeSlice when done with
// the result FindEdges appended into it.
func GetEdgeSlice() []edge.Edge {
	if !globalConfig.Enabled {
		return make([]edge.Edge, 0, 64)
	}
	return edgeSlicePool.Get().([]edge.Edge)[:0]
}

// PutEdgeSlice returns an edge slice to the pool.
func PutEdgeSlice(edges []edge.Edge) {
	if !globalConfig.Enabled {
		return
	}
	if cap(edges) > globalConfig.MaxSize {
		return
	}
	edgeSlicePool.Put(edges[:0])
}

// =============================================================================
// Byte Buffer Pool (transport frame encode/decode scratch space)
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 1024*1024 {
		return
	}
	byteBufferPool.Put(buf[:0])
}
