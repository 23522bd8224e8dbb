// This file wires the predicate/expression language (pkg/expr, spec
// component 4.C) into declarative YAML query definitions: a constraint
// compiles to a VertexConstraintExpression the way yamlquery.go compiles
// an edge description to an EdgeDescription.
package query

import (
	"fmt"

	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/expr"
	"github.com/samstream/engine/pkg/feature"
)

// YAMLConstraint is the on-disk shape of one vertex constraint. For every
// Op but "in", a bound variable's vertex must satisfy
// `<feature at that vertex> Op Value`, compiled through pkg/expr. "in"
// instead checks whether the vertex appears among the Keys of a
// TopKFeature stored at TopKKey (spec §6's "IN topk" constraint style);
// TopKKey defaults to FeatureID when left blank, the common case of a
// single global top-k feature.
type YAMLConstraint struct {
	Variable  string  `yaml:"variable"`
	FeatureID string  `yaml:"featureId"`
	Op        string  `yaml:"op"`
	Value     float64 `yaml:"value"`
	TopKKey   string  `yaml:"topkKey"`
}

func singleFeatureProject(f feature.Feature) (float64, bool) {
	sf, ok := f.(feature.SingleFeature)
	return float64(sf), ok
}

func comparisonOp(op string) (expr.Op, error) {
	switch op {
	case "<":
		return expr.OpLT, nil
	case "<=":
		return expr.OpLE, nil
	case ">":
		return expr.OpGT, nil
	case ">=":
		return expr.OpGE, nil
	case "==":
		return expr.OpEQ, nil
	default:
		return "", fmt.Errorf("query: unknown constraint op %q", op)
	}
}

// buildConstraint compiles c against featureMap into a
// VertexConstraintExpression ready to attach to a Builder.
func buildConstraint(c YAMLConstraint, featureMap *feature.Map) (VertexConstraintExpression, error) {
	if c.Op == "in" {
		return buildTopKConstraint(c, featureMap), nil
	}

	exprOp, err := comparisonOp(c.Op)
	if err != nil {
		return VertexConstraintExpression{}, fmt.Errorf("query: constraint on %s: %w", c.Variable, err)
	}
	compiled, err := expr.Compile([]expr.Token{
		expr.Func(expr.FuncSpec{FeatureID: c.FeatureID, Project: singleFeatureProject}),
		expr.Number(c.Value),
		expr.OpToken(exprOp),
	})
	if err != nil {
		return VertexConstraintExpression{}, fmt.Errorf("query: constraint on %s: %w", c.Variable, err)
	}

	prevs := expr.NewPrevStore()
	return VertexConstraintExpression{
		Description: fmt.Sprintf("%s: %s %s %v", c.Variable, c.FeatureID, c.Op, c.Value),
		Check: func(vertex string) bool {
			result, ok := compiled.Evaluate(vertex, edge.Edge{}, featureMap, prevs)
			return ok && result != 0
		},
	}, nil
}

func buildTopKConstraint(c YAMLConstraint, featureMap *feature.Map) VertexConstraintExpression {
	topkKey := c.TopKKey
	if topkKey == "" {
		topkKey = c.FeatureID
	}
	return VertexConstraintExpression{
		Description: fmt.Sprintf("%s in topk(%s)", c.Variable, c.FeatureID),
		Check: func(vertex string) bool {
			f, err := featureMap.At(topkKey, c.FeatureID)
			if err != nil {
				return false
			}
			tk, ok := f.(feature.TopKFeature)
			if !ok {
				return false
			}
			for _, k := range tk.Keys {
				if k == vertex {
					return true
				}
			}
			return false
		},
	}
}
