// Package ingest turns lines of comma-separated ASCII into edges (spec
// §6's edge ingestion line format): a fixed schema maps token position to
// tuple field, with the first N fields forming the label and an optional
// leading integer "sam-generated id" field.
//
// Grounded on original_source/SamSrc/sam/ReadCSV.hpp (which streams a CSV
// file line by line into a producer's consume callback) and
// original_source/SamSrc/sam/tuples/Tuplizer.hpp (the token-list ->
// tuple mapping function); this package keeps that streaming-reader-plus-
// tuplizer-function split but expresses it with encoding/csv instead of
// a hand-rolled splitter.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/samstream/engine/pkg/edge"
)

// Tuplizer maps one CSV record's tokens to an edge.Edge, given the
// schema that says which tokens are the label and which form the tuple.
type Tuplizer struct {
	Schema       edge.Schema
	HasLeadingID bool // true if record[0] is a sam-generated id to strip before applying Schema
	IDs          *edge.IDGenerator
	WorkerID     int
}

// NewTuplizer constructs a Tuplizer. If ids is nil, edges are assigned
// IDs from a fresh, private IDGenerator.
func NewTuplizer(schema edge.Schema, hasLeadingID bool, ids *edge.IDGenerator, workerID int) *Tuplizer {
	if ids == nil {
		ids = edge.NewIDGenerator()
	}
	return &Tuplizer{Schema: schema, HasLeadingID: hasLeadingID, IDs: ids, WorkerID: workerID}
}

// Tuplize converts one CSV record into an edge.Edge per t.Schema.
func (t *Tuplizer) Tuplize(record []string) (edge.Edge, error) {
	if t.HasLeadingID {
		if len(record) == 0 {
			return edge.Edge{}, fmt.Errorf("ingest: record has no leading id field")
		}
		record = record[1:]
	}
	if len(record) != len(t.Schema.Fields) {
		return edge.Edge{}, fmt.Errorf("ingest: record has %d fields, schema expects %d", len(record), len(t.Schema.Fields))
	}

	label := make([]string, 0, t.Schema.LabelFields)
	tuple := make(edge.Tuple, len(t.Schema.Fields)-t.Schema.LabelFields)

	for i, name := range t.Schema.Fields {
		if i < t.Schema.LabelFields {
			label = append(label, record[i])
			continue
		}
		tuple[name] = parseToken(record[i])
	}

	return edge.Edge{
		ID:       t.IDs.Next(),
		WorkerID: t.WorkerID,
		Label:    label,
		Tuple:    tuple,
	}, nil
}

// parseToken attempts a numeric interpretation of a CSV token first
// (tuple fields are almost always numeric — time, duration, byte
// counts), falling back to the raw string (vertex ids, protocol names).
func parseToken(s string) interface{} {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

// Reader streams edges out of a CSV source, one per record, stopping at
// EOF or the first malformed record.
type Reader struct {
	csv *csv.Reader
	t   *Tuplizer
}

// NewReader wraps r as a CSV edge source using t to tuplize each record.
func NewReader(r io.Reader, t *Tuplizer) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // schema length is validated by Tuplize instead
	cr.TrimLeadingSpace = true
	return &Reader{csv: cr, t: t}
}

// Next reads and tuplizes the next record. It returns io.EOF once the
// source is exhausted.
func (r *Reader) Next() (edge.Edge, error) {
	record, err := r.csv.Read()
	if err != nil {
		return edge.Edge{}, err
	}
	e, err := r.t.Tuplize(record)
	if err != nil {
		return edge.Edge{}, fmt.Errorf("ingest: %w", err)
	}
	return e, nil
}

// Each calls fn for every edge the reader produces, stopping on EOF or
// the first error fn or tuplization returns.
func (r *Reader) Each(fn func(edge.Edge) error) error {
	for {
		e, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
