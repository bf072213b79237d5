package nn

import (
	"fmt"

	"github.com/born-ml/hypernet/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// Weights come from a checkpoint; the input and output widths are read from
// the weight shape.
//
// Example:
//
//	layer, err := nn.NewLinear("linear.0", weight, bias, backend)
//	output := layer.Forward(input) // [..., out_features]
type Linear struct {
	name        string
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]
	backend     tensor.Backend
}

// NewLinear creates a Linear layer from a stored weight/bias pair.
//
// The weight must be 2-D and the bias 1-D with one entry per weight row.
// Both are copied onto backend's device, so later changes to the source
// tensors do not affect the layer.
func NewLinear(name string, weight, bias *tensor.RawTensor, backend tensor.Backend) (*Linear, error) {
	if weight == nil || bias == nil {
		return nil, fmt.Errorf("linear %q: weight and bias are both required", name)
	}

	wShape := weight.Shape()
	if len(wShape) != 2 {
		return nil, fmt.Errorf("linear %q: weight must be 2-D, got shape %v", name, wShape)
	}
	if bShape := bias.Shape(); len(bShape) != 1 || bShape[0] != wShape[0] {
		return nil, fmt.Errorf("linear %q: bias shape %v does not match %d outputs", name, bShape, wShape[0])
	}

	return &Linear{
		name:        name,
		inFeatures:  wShape[1],
		outFeatures: wShape[0],
		weight:      NewParameter(name+".weight", tensor.New(backend.ToDevice(weight), backend)),
		bias:        NewParameter(name+".bias", tensor.New(backend.ToDevice(bias), backend)),
		backend:     backend,
	}, nil
}

// Forward computes the output of the linear layer.
//
// Input shape: [..., in_features]
// Output shape: [..., out_features]
//
// Leading axes are flattened into rows for the backend call and restored
// afterwards.
func (l *Linear) Forward(input *tensor.Tensor) *tensor.Tensor {
	inputShape := input.Shape()
	if inputShape.Last() != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got shape %v", l.inFeatures, inputShape))
	}

	rows := input.NumElements() / l.inFeatures
	x := l.backend.Reshape(input.Raw(), tensor.Shape{rows, l.inFeatures})
	y := l.backend.Linear(x, l.weight.Tensor().Raw(), l.bias.Tensor().Raw())

	outShape := tensor.Shape{l.outFeatures}
	if len(inputShape) > 1 {
		outShape = append(inputShape[:len(inputShape)-1].Clone(), l.outFeatures)
	}
	return tensor.New(l.backend.Reshape(y, outShape), l.backend)
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// To moves weight and bias onto backend's device; see Parameter.To.
func (l *Linear) To(backend tensor.Backend) {
	l.weight.To(backend)
	l.bias.To(backend)
	l.backend = backend
}

// Name returns the layer's base name (the checkpoint key without suffix).
func (l *Linear) Name() string {
	return l.name
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// Device returns the device the parameters live on.
func (l *Linear) Device() tensor.Device {
	return l.backend.Device()
}
