package nn

import (
	"github.com/born-ml/hypernet/internal/tensor"
)

// Parameter is a named weight or bias tensor owned by a layer.
//
// Example:
//
//	weight := nn.NewParameter("linear.0.weight", weightTensor)
//	w := weight.Tensor()
type Parameter struct {
	name   string         // Parameter name (e.g., "linear.0.weight")
	tensor *tensor.Tensor // The parameter tensor
}

// NewParameter creates a new parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// To replaces the tensor with a copy owned by backend.
// It is a no-op when the parameter already lives on that backend.
func (p *Parameter) To(backend tensor.Backend) {
	if p.tensor.Backend() == backend {
		return
	}
	p.tensor = tensor.New(backend.ToDevice(p.tensor.Raw()), backend)
}
