// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - gonum BLAS matrix multiplication
//   - A fused linear kernel consuming [out, in] weights without a transposed copy
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/hypernet/backend/cpu"
//	    "github.com/born-ml/hypernet/hypernetwork"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    patch, err := hypernetwork.LoadPatch("anime.pt", 1.0, backend)
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// is isolated and does not share mutable state.
package cpu
