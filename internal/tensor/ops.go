package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones(Shape{3, 1}, backend)
//	b := tensor.Ones(Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5] (broadcasted)
func (t *Tensor) Add(other *Tensor) *Tensor {
	result := t.backend.Add(t.raw, other.raw)
	return New(result, t.backend)
}

// MulScalar multiplies every element by scalar.
func (t *Tensor) MulScalar(scalar float32) *Tensor {
	result := t.backend.MulScalar(t.raw, scalar)
	return New(result, t.backend)
}

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
//
// Example:
//
//	a := tensor.Ones(Shape{3, 4}, backend)
//	b := tensor.Ones(Shape{4, 5}, backend)
//	c := a.MatMul(b) // Shape: [3, 5]
func (t *Tensor) MatMul(other *Tensor) *Tensor {
	result := t.backend.MatMul(t.raw, other.raw)
	return New(result, t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
//
// Example:
//
//	t := tensor.Zeros(Shape{2, 6}, backend)
//	reshaped := t.Reshape(3, 4) // Shape: [3, 4]
func (t *Tensor) Reshape(newShape ...int) *Tensor {
	result := t.backend.Reshape(t.raw, Shape(newShape))
	return New(result, t.backend)
}

// T transposes a 2D tensor (swaps rows and columns).
// Panics if the tensor is not 2D.
func (t *Tensor) T() *Tensor {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return New(t.backend.Transpose(t.raw), t.backend)
}
