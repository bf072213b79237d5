// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers hypernetwork patches are built from.
//
// A hypernetwork branch is a Sequential of Linear layers whose output width
// equals its input width. Layers are inference-only: parameters are loaded
// from checkpoints and never updated.
//
// Example:
//
//	backend := cpu.New()
//	weight, _ := tensor.NewRaw(tensor.Shape{768, 768}, tensor.CPU)
//	bias, _ := tensor.NewRaw(tensor.Shape{768}, tensor.CPU)
//	layer, err := nn.NewLinear("linear.0", weight, bias, backend)
//	stack := nn.NewSequential(layer)
//	out := stack.Forward(x)
package nn

import (
	"github.com/born-ml/hypernet/internal/nn"
	"github.com/born-ml/hypernet/tensor"
)

// Module is the interface implemented by all layers.
type Module = nn.Module

// Parameter is a named tensor owned by a module.
type Parameter = nn.Parameter

// Linear applies y = x·Wᵀ + b over the last dimension of its input.
type Linear = nn.Linear

// Sequential chains modules; an empty Sequential returns its input.
type Sequential = nn.Sequential

// NewLinear creates a Linear layer from a [out, in] weight and a [out] bias.
func NewLinear(name string, weight, bias *tensor.RawTensor, backend tensor.Backend) (*Linear, error) {
	return nn.NewLinear(name, weight, bias, backend)
}

// NewSequential creates a Sequential from modules, applied in order.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// NumParameters counts the scalar parameters of m.
func NumParameters(m Module) int {
	return nn.NumParameters(m)
}
