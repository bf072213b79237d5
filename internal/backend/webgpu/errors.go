// Package webgpu implements the WebGPU backend for GPU-accelerated hypernetwork layers.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Parameters moved to the WebGPU device stay resident in GPU buffers; activations
// are uploaded per call and results read back to the host.
package webgpu

import "errors"

// ErrUnavailable is returned when no WebGPU adapter or native library can be found.
var ErrUnavailable = errors.New("webgpu: not available")
