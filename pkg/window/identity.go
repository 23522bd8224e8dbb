package window

import (
	"github.com/samstream/engine/pkg/edge"
	"github.com/samstream/engine/pkg/feature"
)

// Identity extracts value and republishes it unchanged as a SingleFeature.
// It is the simplest operator and exists mainly as a building block for
// predicates that reference a raw tuple field through the feature map
// instead of the tuple directly.
type Identity struct {
	base
}

// NewIdentity constructs an Identity operator.
func NewIdentity(featureMap *feature.Map, featureID string, key KeyFunc, value ValueFunc, subs ...Subscriber) *Identity {
	return &Identity{base: newBase(featureMap, featureID, key, value, subs)}
}

func (op *Identity) Consume(e edge.Edge) bool {
	v, ok := op.value(e)
	if !ok {
		return false
	}
	k := op.key(e)
	op.publishSingle(k, v)
	op.notify(e.ID, v)
	return true
}

func (op *Identity) Terminate() {}

// LabelProducer extracts the first element of the edge's label and
// republishes it as a SingleFeature, for predicates that key off a
// protocol/service label rather than a tuple field.
type LabelProducer struct {
	base
}

// NewLabelProducer constructs a LabelProducer operator. The label value is
// parsed as a float64; edges whose label[0] is not numeric are dropped
// (consumed, but no feature is produced).
func NewLabelProducer(featureMap *feature.Map, featureID string, key KeyFunc, subs ...Subscriber) *LabelProducer {
	return &LabelProducer{base: newBase(featureMap, featureID, key, nil, subs)}
}

func (op *LabelProducer) Consume(e edge.Edge) bool {
	if len(e.Label) == 0 {
		return false
	}
	v, ok := parseFloat(e.Label[0])
	if !ok {
		return false
	}
	k := op.key(e)
	op.publishSingle(k, v)
	op.notify(e.ID, v)
	return true
}

func (op *LabelProducer) Terminate() {}
