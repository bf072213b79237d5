// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for GPU-accelerated tensor operations.
//
// The backend is built on Windows (via Dawn/D3D12). On other systems Open
// always fails with ErrUnavailable and IsAvailable reports false, so callers
// can fall back to the CPU backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/hypernet/backend/cpu"
//	    "github.com/born-ml/hypernet/backend/webgpu"
//	    "github.com/born-ml/hypernet/tensor"
//	)
//
//	func main() {
//	    var backend tensor.Backend = cpu.New()
//	    if gpu, err := webgpu.Open(); err == nil {
//	        backend = gpu
//	    }
//	    patch, err := hypernetwork.LoadPatch("anime.pt", 1.0, backend)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/hypernet/internal/backend/webgpu"
	"github.com/born-ml/hypernet/tensor"
)

// ErrUnavailable is returned by Open when no WebGPU adapter can be used.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// Open initializes a WebGPU backend.
func Open() (tensor.Backend, error) {
	return internalwebgpu.Open()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// Example:
//
//	var backend tensor.Backend = cpu.New()
//	if webgpu.IsAvailable() {
//	    backend, _ = webgpu.Open()
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
