// Package model holds the patch registry attached to a loaded generative
// model.
//
// A Patcher does not own weights; it records callables that rewrite the
// query, key and value tensors of self-attention (attn1) and
// cross-attention (attn2) calls. Cloning a Patcher is cheap and never
// affects the original.
package model

import (
	"github.com/born-ml/hypernet/internal/tensor"
)

// AttentionPatch rewrites the (q, k, v) tensors of one attention call.
// currentIndex identifies the attention block being evaluated.
type AttentionPatch interface {
	Apply(currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor)
}

// PatchFunc adapts a function to AttentionPatch.
type PatchFunc func(currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor)

// Apply calls f.
func (f PatchFunc) Apply(currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	return f(currentIndex, q, k, v)
}

// Patcher carries the attention patches registered for a model.
type Patcher struct {
	name  string
	attn1 []AttentionPatch
	attn2 []AttentionPatch
}

// New creates a Patcher with no patches.
func New(name string) *Patcher {
	return &Patcher{name: name}
}

// Name returns the model name.
func (p *Patcher) Name() string {
	return p.name
}

// Clone returns a Patcher sharing p's patch instances. Patches added to
// either copy afterwards are not visible to the other.
func (p *Patcher) Clone() *Patcher {
	return &Patcher{
		name:  p.name,
		attn1: append([]AttentionPatch(nil), p.attn1...),
		attn2: append([]AttentionPatch(nil), p.attn2...),
	}
}

// SetAttn1Patch registers a self-attention patch.
func (p *Patcher) SetAttn1Patch(patch AttentionPatch) {
	p.attn1 = append(p.attn1, patch)
}

// SetAttn2Patch registers a cross-attention patch.
func (p *Patcher) SetAttn2Patch(patch AttentionPatch) {
	p.attn2 = append(p.attn2, patch)
}

// Attn1Patches returns the self-attention patches in registration order.
func (p *Patcher) Attn1Patches() []AttentionPatch {
	return append([]AttentionPatch(nil), p.attn1...)
}

// Attn2Patches returns the cross-attention patches in registration order.
func (p *Patcher) Attn2Patches() []AttentionPatch {
	return append([]AttentionPatch(nil), p.attn2...)
}

// RunAttn1 applies the self-attention patches in registration order.
func (p *Patcher) RunAttn1(currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	return run(p.attn1, currentIndex, q, k, v)
}

// RunAttn2 applies the cross-attention patches in registration order.
func (p *Patcher) RunAttn2(currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	return run(p.attn2, currentIndex, q, k, v)
}

func run(patches []AttentionPatch, currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	for _, patch := range patches {
		q, k, v = patch.Apply(currentIndex, q, k, v)
	}
	return q, k, v
}
