// Package backend resolves a compute device to a shared backend instance.
//
// Backends are created lazily, once per device, and reused for the lifetime
// of the process. Parameters moved to a device are owned by that device's
// backend, so every relocation to the same device must go through the same
// instance.
package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/hypernet/internal/backend/cpu"
	"github.com/born-ml/hypernet/internal/backend/webgpu"
	"github.com/born-ml/hypernet/internal/tensor"
)

// ErrDeviceUnavailable is returned when no backend can be created for a device.
var ErrDeviceUnavailable = errors.New("device unavailable")

// Opener creates a backend for a device.
type Opener func() (tensor.Backend, error)

var (
	mu       sync.Mutex
	backends = map[tensor.Device]tensor.Backend{}
	openers  = map[tensor.Device]Opener{
		tensor.CPU:    func() (tensor.Backend, error) { return cpu.New(), nil },
		tensor.WebGPU: webgpu.Open,
	}
)

// For returns the backend for device, creating it on first use.
func For(device tensor.Device) (tensor.Backend, error) {
	mu.Lock()
	defer mu.Unlock()

	if b, ok := backends[device]; ok {
		return b, nil
	}

	open, ok := openers[device]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no backend registered", ErrDeviceUnavailable, device)
	}

	b, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, device, err)
	}
	backends[device] = b
	return b, nil
}

// Register replaces the opener for device and drops any cached instance.
// It is intended for tests and for embedding applications that bring their
// own backend.
func Register(device tensor.Device, open Opener) {
	mu.Lock()
	defer mu.Unlock()

	openers[device] = open
	delete(backends, device)
}

// Available reports whether a backend can be created for device.
func Available(device tensor.Device) bool {
	_, err := For(device)
	return err == nil
}
