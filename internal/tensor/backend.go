package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - CPU: Pure Go with gonum BLAS for matrix products
//   - WebGPU: GPU compute shaders with device-resident parameters
//
// Operations panic on shape mismatches; those are programming errors, not
// data errors, and are caught by the layer constructors before any call.
type Backend interface {
	// Add performs a + b with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element of x by scalar.
	MulScalar(x *RawTensor, scalar float32) *RawTensor

	// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Linear computes x @ weight.T + bias for x [N, in], weight [out, in], bias [out].
	// A nil bias is allowed.
	Linear(x, weight, bias *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor) *RawTensor

	// ToDevice returns a copy of x owned by this backend's device.
	ToDevice(x *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
