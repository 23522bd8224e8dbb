// Package edge defines the data model shared by every component of the
// streaming subgraph-matching engine: the Edge itself, its fixed-schema
// Tuple, and the per-worker monotonic id generator.
//
// A Tuple always carries four designated positions (Source, Target, Time,
// Duration) plus an arbitrary set of additional fields described by a
// Schema. Keeping the tuple as a map with a small typed accessor layer
// (rather than a generic struct per schema) lets one worker process ingest
// several differently-shaped edge streams without code generation, at the
// cost of a map lookup per field access — acceptable here because per-edge
// field access happens a handful of times per edge, not in a tight loop.
package edge

import (
	"fmt"
	"sync/atomic"

	"github.com/samstream/engine/pkg/convert"
)

// Reserved tuple field names. Every Tuple must define these.
const (
	FieldSource   = "source"
	FieldTarget   = "target"
	FieldTime     = "time"
	FieldDuration = "duration"
)

// Tuple is a heterogeneous, fixed-schema record. Values are stored boxed;
// Schema documents which keys are expected so ingestion code can validate
// a record before it becomes an Edge.
type Tuple map[string]interface{}

// String returns the tuple's value at field as a string, or "" with ok=false
// if the field is absent. A non-string value is converted with its String
// method or, failing that, fmt's %v formatting.
func (t Tuple) String(field string) (string, bool) {
	v, ok := t[field]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprintf("%v", s), true
	}
}

// Float64 returns the tuple's value at field cast to float64. Numeric
// conversion (including string-encoded numbers, as CSV ingestion may
// produce before a field's type is pinned down) is delegated to
// convert.ToFloat64, the numeric coercion used throughout this module.
func (t Tuple) Float64(field string) (float64, bool) {
	v, ok := t[field]
	if !ok {
		return 0, false
	}
	return convert.ToFloat64(v)
}

// Source, Target, Time and Duration read the four designated positions.
func (t Tuple) Source() (string, bool)   { return t.String(FieldSource) }
func (t Tuple) Target() (string, bool)   { return t.String(FieldTarget) }
func (t Tuple) Time() (float64, bool)    { return t.Float64(FieldTime) }
func (t Tuple) Duration() (float64, bool) { return t.Float64(FieldDuration) }

// Schema names the fields a Tuplizer is expected to populate, in order.
// LabelFields is the prefix of Fields that forms the Edge's Label.
type Schema struct {
	Fields      []string
	LabelFields int
}

// Validate reports whether LabelFields is a legal prefix length for Fields.
func (s Schema) Validate() error {
	if s.LabelFields < 0 || s.LabelFields > len(s.Fields) {
		return fmt.Errorf("edge: schema label prefix %d out of range for %d fields", s.LabelFields, len(s.Fields))
	}
	return nil
}

// Edge is a timestamped, directed, labeled link with a payload Tuple.
//
// ID is a locally generated monotonically increasing integer, unique only
// within the worker that produced it; across workers an edge is identified
// by (WorkerID, ID).
type Edge struct {
	ID       uint64
	WorkerID int
	Label    []string
	Tuple    Tuple
}

// Source, Target, Time and Duration proxy to the edge's tuple; a missing or
// non-numeric field yields the zero value ("" or 0) rather than an error —
// a Tuplizer is expected to reject malformed records before they become an
// Edge (see pkg/ingest).
func (e Edge) Source() string {
	v, _ := e.Tuple.Source()
	return v
}

func (e Edge) Target() string {
	v, _ := e.Tuple.Target()
	return v
}

func (e Edge) Time() float64 {
	v, _ := e.Tuple.Time()
	return v
}

func (e Edge) Duration() float64 {
	v, _ := e.Tuple.Duration()
	return v
}

// EndTime is the edge's end-of-event time, Time()+Duration().
func (e Edge) EndTime() float64 {
	return e.Time() + e.Duration()
}

// IDGenerator is a thread-safe monotonic counter owned by a worker, handed
// by reference to every producer that mints new Edge ids. It deliberately
// stays a plain atomic counter rather than an injected service: the
// spec treats id generation as process-local state, not a shared resource
// needing striping.
type IDGenerator struct {
	next atomic.Uint64
}

// NewIDGenerator returns a generator whose first Next() call returns 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next id in the monotonically increasing sequence.
func (g *IDGenerator) Next() uint64 {
	return g.next.Add(1)
}
