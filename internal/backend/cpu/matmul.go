package cpu

import (
	"fmt"

	"github.com/born-ml/hypernet/internal/parallel"
	"github.com/born-ml/hypernet/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul performs matrix multiplication (M, K) @ (K, N) -> (M, N) with SGEMM.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: failed to create result tensor: %v", err))
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(a.Data(), m, k),
		general(b.Data(), k, n),
		0, general(result.Data(), m, n))

	return result
}

// Linear computes x @ weight.T + bias.
//
// Shapes: x [N, in], weight [out, in], bias [out] -> [N, out].
// The weight is consumed in its stored [out, in] layout; no transposed copy is made.
func (cpu *CPUBackend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	xShape, wShape := x.Shape(), weight.Shape()
	if len(xShape) != 2 || len(wShape) != 2 {
		panic(fmt.Sprintf("linear: expected 2D input and weight, got %v and %v", xShape, wShape))
	}

	rows, in := xShape[0], xShape[1]
	out := wShape[0]
	if wShape[1] != in {
		panic(fmt.Sprintf("linear: input has %d features, weight expects %d", in, wShape[1]))
	}
	if bias != nil && !bias.Shape().Equal(tensor.Shape{out}) {
		panic(fmt.Sprintf("linear: bias shape %v does not match %d outputs", bias.Shape(), out))
	}

	result, err := tensor.NewRaw(tensor.Shape{rows, out}, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("linear: failed to create result tensor: %v", err))
	}
	dst := result.Data()

	if bias != nil {
		b := bias.Data()
		cpu.rows(rows, func(start, end int) {
			for r := start; r < end; r++ {
				copy(dst[r*out:(r+1)*out], b)
			}
		})
	}

	// C = 1 * X @ W^T + beta * C, with C pre-filled with the bias when present.
	beta := float32(0)
	if bias != nil {
		beta = 1
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		general(x.Data(), rows, in),
		general(weight.Data(), out, in),
		beta, general(dst, rows, out))

	return result
}

func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// rows runs f over [0, n) using the backend's parallel config.
func (cpu *CPUBackend) rows(n int, f func(start, end int)) {
	parallel.Ranges(n, f, cpu.parallel)
}
