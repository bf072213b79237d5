package tensor

import "math/rand"

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros(Shape{3, 4}, backend)
func Zeros(shape Shape, b Backend) *Tensor {
	raw, err := NewRaw(shape, b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	return New(raw, b)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, b Backend) *Tensor {
	return Full(shape, 1, b)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float32, b Backend) *Tensor {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Eye creates an n×n identity matrix.
func Eye(n int, b Backend) *Tensor {
	t := Zeros(Shape{n, n}, b)
	data := t.Data()
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return t
}

// Randn creates a tensor with values drawn from the standard normal distribution.
// The rng makes results reproducible; pass rand.New(rand.NewSource(seed)).
func Randn(shape Shape, rng *rand.Rand, b Backend) *Tensor {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return t
}
