package cpu

import (
	"fmt"

	"github.com/born-ml/hypernet/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
// Inputs are never modified.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("add: %v", err))
	}

	result, err := tensor.NewRaw(outShape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("add: failed to create result tensor: %v", err))
	}

	out, x, y := result.Data(), a.Data(), b.Data()
	if !needsBroadcast {
		cpu.rows(len(out), func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = x[i] + y[i]
			}
		})
		return result
	}

	outStrides := outShape.ComputeStrides()
	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	cpu.rows(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = x[flatIndex(i, outStrides, aStrides)] + y[flatIndex(i, outStrides, bStrides)]
		}
	})
	return result
}

// MulScalar multiplies each element of x by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("mulScalar: failed to create result tensor: %v", err))
	}

	out, in := result.Data(), x.Data()
	cpu.rows(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = in[i] * scalar
		}
	})
	return result
}

// broadcastStrides computes strides for reading inShape as if it had outShape.
// Dimensions of size 1 (and missing leading dimensions) get stride 0.
func broadcastStrides(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	inDim := len(inShape)
	offset := outDim - inDim
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		if inIdx < 0 || inShape[inIdx] == 1 {
			continue
		}
		strides[i] = origStrides[inIdx]
	}

	return strides
}

// flatIndex maps a flat output index to the flat input index via broadcast strides.
func flatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}
