// Package nn implements the inference-only layers used by hypernetwork patches.
//
// This package provides:
//   - Module interface: Base interface for all layers
//   - Parameter: Named weight or bias tensor
//   - Linear: Fully connected layer built from a stored weight/bias pair
//   - Sequential: Container applying layers strictly left to right
//
// Layers are never trained here; their parameters only change through
// device relocation with To.
package nn

import (
	"github.com/born-ml/hypernet/internal/tensor"
)

// Module is the base interface for all layers.
//
// Modules can be composed to build stacks:
//
//	stack := nn.NewSequential(first, second)
//	out := stack.Forward(input)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	//
	// Leading axes are treated as batch axes; only the last axis is
	// transformed.
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Parameters returns all parameters of this module.
	Parameters() []*Parameter

	// To moves every parameter onto the backend's device. Parameters
	// already owned by backend are left in place.
	To(backend tensor.Backend)
}

// NumParameters returns the total number of scalar values held by m.
func NumParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}
