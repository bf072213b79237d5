// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the float32 tensors passed to hypernetwork patches.
//
// # Overview
//
// A Tensor pairs a contiguous row-major float32 buffer with the Backend that
// computes on it. This package provides:
//   - Shapes with NumPy-style broadcasting
//   - Zero-copy reshapes
//   - Device tags (CPU, WebGPU) resolved at runtime
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/hypernet/backend/cpu"
//	    "github.com/born-ml/hypernet/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    k := tensor.Zeros(tensor.Shape{2, 77, 768}, backend)
//	    v := tensor.Ones(tensor.Shape{2, 77, 768}, backend)
//	    sum := k.Add(v)
//	}
package tensor
