// This file supplements the distilled spec with a declarative query
// format: most real deployments don't want to hand-assemble a Builder in
// Go for every query, so yamlquery loads one from a YAML document the way
// the teacher's apoc/config.go loads cluster configuration.
package query

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/samstream/engine/pkg/feature"
	"github.com/samstream/engine/pkg/window"
)

// YAMLEdge is the on-disk shape of one edge description.
type YAMLEdge struct {
	Source string `yaml:"source"`
	EdgeID string `yaml:"edgeId"`
	Target string `yaml:"target"`

	StartLo *float64 `yaml:"startLo"`
	StartHi *float64 `yaml:"startHi"`
	EndLo   *float64 `yaml:"endLo"`
	EndHi   *float64 `yaml:"endHi"`
}

// YAMLQuery is the on-disk shape of an entire query definition: the
// edges that make up the subgraph, plus the sliding-window features
// (spec §4.B) and vertex constraints (spec §4.C/§4.F) a deployment wants
// evaluated against them. Features and Constraints are both optional;
// a query with neither runs edge matching alone.
type YAMLQuery struct {
	Edges       []YAMLEdge       `yaml:"edges"`
	Features    []YAMLFeature    `yaml:"features"`
	Constraints []YAMLConstraint `yaml:"constraints"`
}

// ParseYAML parses doc into a YAMLQuery.
func ParseYAML(doc []byte) (*YAMLQuery, error) {
	var q YAMLQuery
	if err := yaml.Unmarshal(doc, &q); err != nil {
		return nil, fmt.Errorf("query: parsing yaml query definition: %w", err)
	}
	return &q, nil
}

// Build loads every edge in q into a fresh Builder. A bound left out of the
// YAML stays infinite, so a range with either bound missing is not
// Bounded(). Builder.Finalize's fixTimeRange step derives such a range
// from the edge's other range when that one has both bounds, and fails
// with ErrUnresolvableTimeRange when neither range has both.
func (q *YAMLQuery) Build() (*Builder, error) {
	b := NewBuilder()
	for i, ye := range q.Edges {
		if ye.Source == "" || ye.Target == "" {
			return nil, fmt.Errorf("query: yaml edge %d: source and target are required", i)
		}
		desc := EdgeDescription{
			Source: ye.Source,
			EdgeID: ye.EdgeID,
			Target: ye.Target,
		}
		desc.StartTimeRange = rangeFromYAML(ye.StartLo, ye.StartHi)
		desc.EndTimeRange = rangeFromYAML(ye.EndLo, ye.EndHi)
		if err := b.AddEdge(desc); err != nil {
			return nil, fmt.Errorf("query: yaml edge %d: %w", i, err)
		}
	}
	return b, nil
}

func rangeFromYAML(lo, hi *float64) TimeRange {
	if lo == nil && hi == nil {
		return Unbounded
	}
	r := Unbounded
	if lo != nil {
		r.Lo = *lo
	}
	if hi != nil {
		r.Hi = *hi
	}
	return r
}

// LoadYAML is a convenience combining ParseYAML and Build.
func LoadYAML(doc []byte) (*Builder, error) {
	q, err := ParseYAML(doc)
	if err != nil {
		return nil, err
	}
	return q.Build()
}

// BuildWithFeatures loads every edge into a fresh Builder exactly as
// Build does, then compiles q's Features into window.Operators bound to
// featureMap and q's Constraints into VertexConstraintExpressions
// attached to the same Builder, so a query's declarative feature
// computations and the constraints that read them back share one
// feature.Map end to end.
func (q *YAMLQuery) BuildWithFeatures(featureMap *feature.Map) (*Builder, []window.Operator, error) {
	b, err := q.Build()
	if err != nil {
		return nil, nil, err
	}

	ops := make([]window.Operator, 0, len(q.Features))
	for i, yf := range q.Features {
		op, err := buildOperator(yf, featureMap)
		if err != nil {
			return nil, nil, fmt.Errorf("query: yaml feature %d: %w", i, err)
		}
		ops = append(ops, op)
	}

	for i, yc := range q.Constraints {
		constraint, err := buildConstraint(yc, featureMap)
		if err != nil {
			return nil, nil, fmt.Errorf("query: yaml constraint %d: %w", i, err)
		}
		if err := b.AddVertexConstraint(yc.Variable, constraint); err != nil {
			return nil, nil, fmt.Errorf("query: yaml constraint %d: %w", i, err)
		}
	}

	return b, ops, nil
}

// LoadYAMLWithFeatures is a convenience combining ParseYAML and
// BuildWithFeatures.
func LoadYAMLWithFeatures(doc []byte, featureMap *feature.Map) (*Builder, []window.Operator, error) {
	q, err := ParseYAML(doc)
	if err != nil {
		return nil, nil, err
	}
	return q.BuildWithFeatures(featureMap)
}
