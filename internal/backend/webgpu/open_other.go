//go:build !windows

package webgpu

import "github.com/born-ml/hypernet/internal/tensor"

// Open returns ErrUnavailable: the WebGPU backend is only built on windows.
func Open() (tensor.Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports whether WebGPU can be used on this system.
func IsAvailable() bool {
	return false
}
