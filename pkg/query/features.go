// This file wires the sliding-window feature operators (pkg/window, spec
// component 4.B) into declarative YAML query definitions, the way
// constraints.go wires pkg/expr: a YAMLFeature compiles to a
// window.Operator bound to the same feature.Map a query's constraints
// read back from.
package query

import (
	"fmt"

	"github.com/samstream/engine/pkg/feature"
	"github.com/samstream/engine/pkg/window"
)

// YAMLFeature is the on-disk shape of one sliding-window feature
// computation run over every ingested edge before matching is attempted.
// Window is the operator's sliding-window size in inserts; Precision is
// the exponential-histogram "k" parameter (ehSum/ehAve/ehVariance only);
// Basic and K are TopK's basic-window size and retained top-k count
// (topk only).
type YAMLFeature struct {
	ID         string   `yaml:"id"`
	Op         string   `yaml:"op"`
	KeyFields  []string `yaml:"keyFields"`
	ValueField string   `yaml:"valueField"`
	Window     int      `yaml:"window"`
	Precision  int      `yaml:"precision"`
	Basic      int      `yaml:"basic"`
	K          int      `yaml:"k"`
}

// buildOperator compiles one YAMLFeature into a window.Operator publishing
// into featureMap.
func buildOperator(yf YAMLFeature, featureMap *feature.Map) (window.Operator, error) {
	key := window.FieldsKey(yf.KeyFields...)
	value := window.FieldValue(yf.ValueField)

	switch yf.Op {
	case "sum":
		return window.NewSimpleSum(featureMap, yf.ID, key, value, yf.Window), nil
	case "max":
		return window.NewMax(featureMap, yf.ID, key, value, yf.Window), nil
	case "countDistinct":
		return window.NewCountDistinct(featureMap, yf.ID, key, value, yf.Window), nil
	case "jaccard":
		return window.NewJaccardIndex(featureMap, yf.ID, key, value, yf.Window), nil
	case "ehSum":
		return window.NewExponentialHistogramSum(featureMap, yf.ID, key, value, yf.Window, yf.Precision), nil
	case "ehAve":
		return window.NewExponentialHistogramAve(featureMap, yf.ID, key, value, yf.Window, yf.Precision), nil
	case "ehVariance":
		return window.NewExponentialHistogramVariance(featureMap, yf.ID, key, value, yf.Window, yf.Precision), nil
	case "topk":
		return window.NewTopK(featureMap, yf.ID, key, window.StringFieldValue(yf.ValueField), yf.Window, yf.Basic, yf.K), nil
	case "identity":
		return window.NewIdentity(featureMap, yf.ID, key, value), nil
	case "label":
		return window.NewLabelProducer(featureMap, yf.ID, key), nil
	default:
		return nil, fmt.Errorf("query: unknown feature op %q", yf.Op)
	}
}
