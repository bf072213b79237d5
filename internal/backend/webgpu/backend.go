//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Backend implements tensor operations on GPU using WebGPU.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Buffers holding tensors moved onto this device with ToDevice, keyed by
	// the RawTensor returned to the caller.
	resident   map[*tensor.RawTensor]*wgpu.Buffer
	residentMu sync.RWMutex
}

// New creates a new WebGPU backend.
// Returns an error wrapping ErrUnavailable if WebGPU cannot be initialized.
func New() (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("%w: failed to create instance: %w", ErrUnavailable, instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request adapter: %w", ErrUnavailable, adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request device: %w", ErrUnavailable, deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to get queue", ErrUnavailable)
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		resident:  make(map[*tensor.RawTensor]*wgpu.Buffer),
	}, nil
}

// Open creates a WebGPU backend as a tensor.Backend.
func Open() (tensor.Backend, error) {
	b, err := New()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Release releases all WebGPU resources, including resident parameter buffers.
func (b *Backend) Release() {
	b.residentMu.Lock()
	for raw, buf := range b.resident {
		buf.Release()
		delete(b.resident, raw)
	}
	b.residentMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil

	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// ToDevice uploads x into a GPU buffer that stays alive until Release.
// The returned RawTensor keeps a host mirror of the data.
func (b *Backend) ToDevice(x *tensor.RawTensor) *tensor.RawTensor {
	moved := x.CloneTo(tensor.WebGPU)
	buf := b.createBuffer(moved.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)

	b.residentMu.Lock()
	b.resident[moved] = buf
	b.residentMu.Unlock()

	return moved
}

// ResidentCount returns the number of tensors held in GPU buffers.
func (b *Backend) ResidentCount() int {
	b.residentMu.RLock()
	defer b.residentMu.RUnlock()
	return len(b.resident)
}

// Add performs element-wise addition on GPU.
// Broadcasting shapes are materialized on the host before upload.
func (b *Backend) Add(a, other *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(other.Shape()) {
		outShape, _, err := tensor.BroadcastShapes(a.Shape(), other.Shape())
		if err != nil {
			panic(fmt.Sprintf("webgpu: add: %v", err))
		}
		a = expand(a, outShape)
		other = expand(other, outShape)
	}

	result, err := b.runAdd(a, other)
	if err != nil {
		panic(fmt.Sprintf("webgpu: add: %v", err))
	}
	return result
}

// MulScalar multiplies each element by scalar on GPU.
func (b *Backend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result, err := b.runMulScalar(x, scalar)
	if err != nil {
		panic(fmt.Sprintf("webgpu: mulScalar: %v", err))
	}
	return result
}

// MatMul performs 2D matrix multiplication on GPU.
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	result, err := b.runMatMul(a, other)
	if err != nil {
		panic(fmt.Sprintf("webgpu: matmul: %v", err))
	}
	return result
}

// Linear computes x @ weight.T + bias on GPU, reusing resident buffers for
// weight and bias when they were moved here with ToDevice.
func (b *Backend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	result, err := b.runLinear(x, weight, bias)
	if err != nil {
		panic(fmt.Sprintf("webgpu: linear: %v", err))
	}
	return result
}

// Reshape returns a view with newShape. Reshape never touches GPU memory.
func (b *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(fmt.Sprintf("webgpu: reshape: %v", err))
	}
	return result
}

// Transpose swaps the axes of a 2D tensor using the host mirror.
func (b *Backend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("webgpu: transpose: expected 2D tensor, got shape %v", shape))
	}

	rows, cols := shape[0], shape[1]
	result, err := tensor.NewRaw(tensor.Shape{cols, rows}, tensor.WebGPU)
	if err != nil {
		panic(fmt.Sprintf("webgpu: transpose: %v", err))
	}
	src, dst := t.Data(), result.Data()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result
}

// expand materializes x broadcast to shape.
func expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if x.Shape().Equal(shape) {
		return x
	}

	result, err := tensor.NewRaw(shape, x.Device())
	if err != nil {
		panic(fmt.Sprintf("webgpu: expand: %v", err))
	}

	inShape := x.Shape()
	offset := len(shape) - len(inShape)
	inStrides := inShape.ComputeStrides()
	outStrides := shape.ComputeStrides()
	src, dst := x.Data(), result.Data()

	for i := range dst {
		rem, flat := i, 0
		for d := range shape {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			if in := d - offset; in >= 0 && inShape[in] != 1 {
				flat += coord * inStrides[in]
			}
		}
		dst[i] = src[flat]
	}
	return result
}
