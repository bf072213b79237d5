// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package hypernetwork applies hypernetwork checkpoints to the keys and
// values of diffusion-model attention layers.
//
// A checkpoint maps attention widths to a pair of branches. Each branch is a
// stack of linear layers f, and a matching key or value x is replaced with
// x + f(x)·strength. Tensors whose width has no entry pass through unchanged.
//
// Only checkpoints trained with a linear activation and no layer norm,
// dropout or output activation are supported.
//
// Example:
//
//	backend := cpu.New()
//	patch, err := hypernetwork.LoadPatch("anime.pt", 0.8, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	q, k, v = patch.Apply(0, q, k, v)
package hypernetwork

import (
	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/hypernetwork"
	"github.com/born-ml/hypernet/internal/model"
	"github.com/born-ml/hypernet/internal/paths"
	"github.com/born-ml/hypernet/tensor"
)

// Errors returned while parsing checkpoints.
var (
	ErrUnsupportedFormat = hypernetwork.ErrUnsupportedFormat
	ErrMalformedBundle   = hypernetwork.ErrMalformedBundle
	ErrNotFound          = paths.ErrNotFound
)

type (
	// Patch is a parsed hypernetwork bound to a strength and a backend.
	Patch = hypernetwork.Patch

	// Entry holds the key and value branches for one attention width.
	Entry = hypernetwork.Entry

	// FormatFlags are the training flags stored in a checkpoint.
	FormatFlags = hypernetwork.FormatFlags

	// UnsupportedFormatError reports flags other than the baseline.
	UnsupportedFormatError = hypernetwork.UnsupportedFormatError

	// MalformedError reports a structural problem in a checkpoint.
	MalformedError = hypernetwork.MalformedError

	// Bundle is a loaded checkpoint.
	Bundle = bundle.Bundle

	// Layers maps parameter names such as "linear.0.weight" to tensors.
	Layers = bundle.Map

	// Loader installs named checkpoints on model patchers.
	Loader = hypernetwork.Loader

	// FloatInput describes a bounded float input.
	FloatInput = hypernetwork.FloatInput

	// InputTypes describes the loader inputs.
	InputTypes = hypernetwork.InputTypes

	// Folders resolves checkpoint names.
	Folders = paths.Folders

	// Patcher holds the attention patches registered on a model.
	Patcher = model.Patcher

	// AttentionPatch rewrites the q, k, v of an attention layer.
	AttentionPatch = model.AttentionPatch
)

// StrengthInput bounds the strength accepted by Loader.Load.
var StrengthInput = hypernetwork.StrengthInput

// Load reads a checkpoint in PyTorch pickle or safetensors format.
func Load(path string) (*Bundle, error) {
	return bundle.Load(path)
}

// NewBundle creates an empty in-memory checkpoint.
func NewBundle() *Bundle {
	return bundle.New("")
}

// NewLayers creates an empty layer mapping for one branch.
func NewLayers() *Layers {
	return bundle.NewMap()
}

// Parse builds a Patch from a loaded checkpoint.
func Parse(b *Bundle, strength float32, backend tensor.Backend) (*Patch, error) {
	return hypernetwork.Parse(b, strength, backend)
}

// LoadPatch loads and parses the checkpoint at path.
func LoadPatch(path string, strength float32, backend tensor.Backend) (*Patch, error) {
	return hypernetwork.LoadPatch(path, strength, backend)
}

// ReadFlags reads the format flags of a checkpoint.
func ReadFlags(b *Bundle) FormatFlags {
	return hypernetwork.ReadFlags(b)
}

// NewFolders creates Folders rooted at home.
func NewFolders(home string) *Folders {
	return paths.New(home)
}

// NewPatcher creates an unpatched model patcher.
func NewPatcher(name string) *Patcher {
	return model.New(name)
}

// Inputs lists the loader inputs, with the checkpoint names found in folders.
func Inputs(folders *Folders) (*InputTypes, error) {
	return hypernetwork.Inputs(folders)
}
