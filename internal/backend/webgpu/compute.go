//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	shader := b.compileShader(name, code)
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// float32Bytes reinterprets a float32 slice as bytes (zero-copy).
func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy conversion of float32 data
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}

// createBuffer creates a GPU buffer and uploads initial data.
func (b *Backend) createBuffer(data []float32, usage wgpu.BufferUsage) *wgpu.Buffer {
	src := float32Bytes(data)
	size := uint64(len(src))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), src)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a 16-byte aligned uniform buffer.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), alignedSize), data)
	buffer.Unmap()

	return buffer
}

// createResultBuffer allocates an uninitialized storage buffer for outputs.
func (b *Backend) createResultBuffer(size uint64) *wgpu.Buffer {
	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
}

// bufferFor returns the resident buffer for x, or uploads a temporary one.
// The returned release func must be called when the dispatch is done.
func (b *Backend) bufferFor(x *tensor.RawTensor) (*wgpu.Buffer, func()) {
	b.residentMu.RLock()
	buf, ok := b.resident[x]
	b.residentMu.RUnlock()
	if ok {
		return buf, func() {}
	}

	buf = b.createBuffer(x.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	return buf, buf.Release
}

// readBuffer reads data back from a GPU buffer into dst.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, dst []float32) error {
	size := uint64(len(dst) * 4)

	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	if err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(float32Bytes(dst), unsafe.Slice((*byte)(mappedPtr), size))
	stagingBuffer.Unmap()

	return nil
}

// dispatch runs one compute pass over the given bindings.
func (b *Backend) dispatch(pipeline *wgpu.ComputePipeline, entries []wgpu.BindGroupEntry, x, y uint32) {
	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(x, y, 1)
	computePass.End()

	b.queue.Submit(encoder.Finish(nil))
}

func (b *Backend) runAdd(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	numElements := a.NumElements()
	pipeline := b.getOrCreatePipeline("add", addShader)

	bufferA, releaseA := b.bufferFor(a)
	defer releaseA()
	bufferOther, releaseOther := b.bufferFor(other)
	defer releaseOther()

	//nolint:gosec // G115: ByteSize() returns non-negative int
	resultSize := uint64(a.ByteSize())
	bufferResult := b.createResultBuffer(resultSize)
	defer bufferResult.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: NumElements() returns non-negative int
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements))
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()

	//nolint:gosec // G115: workgroup count is non-negative
	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, resultSize),
		wgpu.BufferBindingEntry(1, bufferOther, 0, resultSize),
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
	}, uint32((numElements+workgroupSize-1)/workgroupSize), 1)

	result, err := tensor.NewRaw(a.Shape(), tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	return result, b.readBuffer(bufferResult, result.Data())
}

func (b *Backend) runMulScalar(x *tensor.RawTensor, scalar float32) (*tensor.RawTensor, error) {
	numElements := x.NumElements()
	pipeline := b.getOrCreatePipeline("mul_scalar", mulScalarShader)

	bufferInput, releaseInput := b.bufferFor(x)
	defer releaseInput()

	//nolint:gosec // G115: ByteSize() returns non-negative int
	resultSize := uint64(x.ByteSize())
	bufferResult := b.createResultBuffer(resultSize)
	defer bufferResult.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: NumElements() returns non-negative int
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements))
	binary.LittleEndian.PutUint32(params[4:8], math.Float32bits(scalar))
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()

	//nolint:gosec // G115: workgroup count is non-negative
	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferInput, 0, resultSize),
		wgpu.BufferBindingEntry(1, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(2, bufferParams, 0, 16),
	}, uint32((numElements+workgroupSize-1)/workgroupSize), 1)

	result, err := tensor.NewRaw(x.Shape(), tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	return result, b.readBuffer(bufferResult, result.Data())
}

func (b *Backend) runMatMul(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(a.Shape()) != 2 || len(other.Shape()) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got %v and %v", a.Shape(), other.Shape())
	}

	m, k := a.Shape()[0], a.Shape()[1]
	n := other.Shape()[1]
	if other.Shape()[0] != k {
		return nil, fmt.Errorf("matmul shape mismatch: [%d,%d] @ [%d,%d]", m, k, other.Shape()[0], n)
	}

	pipeline := b.getOrCreatePipeline("matmul", matmulShader)

	bufferA, releaseA := b.bufferFor(a)
	defer releaseA()
	bufferOther, releaseOther := b.bufferFor(other)
	defer releaseOther()

	//nolint:gosec // G115: matrix dimensions are non-negative
	resultSize := uint64(m * n * 4)
	bufferResult := b.createResultBuffer(resultSize)
	defer bufferResult.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	//nolint:gosec // G115: shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))
	//nolint:gosec // G115: shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[8:12], uint32(n))
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()

	//nolint:gosec // G115: ByteSize() returns non-negative int
	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, uint64(a.ByteSize())),
		wgpu.BufferBindingEntry(1, bufferOther, 0, uint64(other.ByteSize())),
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
	}, uint32(math.Ceil(float64(n)/16.0)), uint32(math.Ceil(float64(m)/16.0)))

	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	return result, b.readBuffer(bufferResult, result.Data())
}

func (b *Backend) runLinear(x, weight, bias *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(x.Shape()) != 2 || len(weight.Shape()) != 2 {
		return nil, fmt.Errorf("expected 2D input and weight, got %v and %v", x.Shape(), weight.Shape())
	}

	rows, in := x.Shape()[0], x.Shape()[1]
	out := weight.Shape()[0]
	if weight.Shape()[1] != in {
		return nil, fmt.Errorf("input has %d features, weight expects %d", in, weight.Shape()[1])
	}
	if bias == nil {
		zeros, err := tensor.NewRaw(tensor.Shape{out}, tensor.WebGPU)
		if err != nil {
			return nil, err
		}
		bias = zeros
	} else if !bias.Shape().Equal(tensor.Shape{out}) {
		return nil, fmt.Errorf("bias shape %v does not match %d outputs", bias.Shape(), out)
	}

	pipeline := b.getOrCreatePipeline("linear", linearShader)

	bufferX, releaseX := b.bufferFor(x)
	defer releaseX()
	bufferW, releaseW := b.bufferFor(weight)
	defer releaseW()
	bufferBias, releaseBias := b.bufferFor(bias)
	defer releaseBias()

	//nolint:gosec // G115: matrix dimensions are non-negative
	resultSize := uint64(rows * out * 4)
	bufferResult := b.createResultBuffer(resultSize)
	defer bufferResult.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(rows))
	//nolint:gosec // G115: shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[4:8], uint32(in))
	//nolint:gosec // G115: shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[8:12], uint32(out))
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()

	//nolint:gosec // G115: ByteSize() returns non-negative int
	b.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferX, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(1, bufferW, 0, uint64(weight.ByteSize())),
		wgpu.BufferBindingEntry(2, bufferBias, 0, uint64(bias.ByteSize())),
		wgpu.BufferBindingEntry(3, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(4, bufferParams, 0, 16),
	}, uint32(math.Ceil(float64(out)/16.0)), uint32(math.Ceil(float64(rows)/16.0)))

	result, err := tensor.NewRaw(tensor.Shape{rows, out}, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	return result, b.readBuffer(bufferResult, result.Data())
}
