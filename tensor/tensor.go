// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/hypernet/internal/tensor"
)

// Backend defines the operations a compute backend provides to tensors and
// layers. See backend/cpu and backend/webgpu.
type Backend = tensor.Backend

// Device represents a compute device.
type Device = tensor.Device

// Supported devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// ParseDevice parses a device name such as "cpu" or "webgpu".
func ParseDevice(name string) (Device, error) {
	return tensor.ParseDevice(name)
}

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// RawTensor is the untyped storage behind a Tensor.
type RawTensor = tensor.RawTensor

// Tensor is a float32 tensor bound to a backend.
type Tensor = tensor.Tensor

// New wraps raw in a Tensor computed by b.
func New(raw *RawTensor, b Backend) *Tensor {
	return tensor.New(raw, b)
}

// NewRaw creates a zero-filled RawTensor.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, device)
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice(data []float32, shape Shape, b Backend) (*Tensor, error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape, b Backend) *Tensor {
	return tensor.Zeros(shape, b)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, b Backend) *Tensor {
	return tensor.Ones(shape, b)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32, b Backend) *Tensor {
	return tensor.Full(shape, value, b)
}

// Eye creates an n×n identity matrix.
func Eye(n int, b Backend) *Tensor {
	return tensor.Eye(n, b)
}

// Randn creates a tensor with standard normal values drawn from rng.
func Randn(shape Shape, rng *rand.Rand, b Backend) *Tensor {
	return tensor.Randn(shape, rng, b)
}

// BroadcastShapes computes the broadcast result shape of a and b.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
