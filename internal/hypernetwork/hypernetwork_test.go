package hypernetwork

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/born-ml/hypernet/internal/backend"
	"github.com/born-ml/hypernet/internal/backend/cpu"
	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.RawFromSlice(data, tensor.Shape(shape), tensor.CPU)
	require.NoError(t, err)
	return r
}

func identity(n int) []float32 {
	data := make([]float32, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return data
}

// layers builds a branch mapping; each layer is name, weight [out, in], bias [out].
type layer struct {
	name    string
	out, in int
	weight  []float32
	bias    []float32
}

func branch(t *testing.T, layers ...layer) *bundle.Map {
	t.Helper()
	m := bundle.NewMap()
	for _, l := range layers {
		m.Set(l.name+".weight", raw(t, l.weight, l.out, l.in))
		m.Set(l.name+".bias", raw(t, l.bias, l.out))
	}
	return m
}

func identityLayer(name string, n int) layer {
	return layer{name: name, out: n, in: n, weight: identity(n), bias: make([]float32, n)}
}

func scalarLayer(name string, w, b float32) layer {
	return layer{name: name, out: 1, in: 1, weight: []float32{w}, bias: []float32{b}}
}

func singleDim(t *testing.T, dim string, key, value *bundle.Map) *bundle.Bundle {
	t.Helper()
	b := bundle.New("test.pt")
	b.Set(dim, []any{key, value})
	return b
}

func randTensor(t *testing.T, rng *rand.Rand, b tensor.Backend, shape ...int) *tensor.Tensor {
	t.Helper()
	return tensor.Randn(tensor.Shape(shape), rng, b)
}

func TestApply_IdentityDoublesKeyAndValue(t *testing.T) {
	b := cpu.New()
	hb := singleDim(t, "64",
		branch(t, identityLayer("linear1", 64)),
		branch(t, identityLayer("linear1", 64)))

	patch, err := Parse(hb, 1.0, b)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	q := randTensor(t, rng, b, 2, 5, 64)
	k := randTensor(t, rng, b, 2, 5, 64)
	v := k.Clone()

	gotQ, gotK, gotV := patch.Apply(0, q, k, v)
	assert.Same(t, q, gotQ)
	assert.Equal(t, tensor.Shape{2, 5, 64}, gotK.Shape())
	assert.Equal(t, tensor.Shape{2, 5, 64}, gotV.Shape())

	for i, x := range k.Data() {
		assert.InDelta(t, 2*x, gotK.Data()[i], 1e-5)
		assert.InDelta(t, 2*x, gotV.Data()[i], 1e-5)
	}
}

func TestApply_AbsentDimPassesThrough(t *testing.T) {
	b := cpu.New()
	patch, err := Parse(singleDim(t, "64",
		branch(t, identityLayer("l", 64)),
		branch(t, identityLayer("l", 64))), 1.0, b)
	require.NoError(t, err)

	q := tensor.Ones(tensor.Shape{4, 32}, b)
	k := tensor.Ones(tensor.Shape{4, 32}, b)
	v := tensor.Ones(tensor.Shape{4, 32}, b)

	gotQ, gotK, gotV := patch.Apply(3, q, k, v)
	assert.Same(t, q, gotQ)
	assert.Same(t, k, gotK)
	assert.Same(t, v, gotV)
}

func TestApply_ZeroStrength(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(2))
	key := layer{name: "l", out: 8, in: 8, weight: tensor.Randn(tensor.Shape{64}, rng, b).Data(), bias: make([]float32, 8)}

	patch, err := Parse(singleDim(t, "8", branch(t, key), branch(t, key)), 0, b)
	require.NoError(t, err)

	k := randTensor(t, rng, b, 3, 8)
	v := randTensor(t, rng, b, 3, 8)
	_, gotK, gotV := patch.Apply(0, k, k, v)
	assert.Equal(t, k.Data(), gotK.Data())
	assert.Equal(t, v.Data(), gotV.Data())
}

func TestApply_DeltaIsScaledStackOutput(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(3))
	randLayer := func(name string, out, in int) layer {
		return layer{
			name:   name,
			out:    out,
			in:     in,
			weight: tensor.Randn(tensor.Shape{out, in}, rng, b).Data(),
			bias:   tensor.Randn(tensor.Shape{out}, rng, b).Data(),
		}
	}

	const strength = 0.75
	patch, err := Parse(singleDim(t, "4",
		branch(t, randLayer("linear.0", 6, 4), randLayer("linear.1", 4, 6)),
		branch(t, randLayer("linear.0", 4, 4))), strength, b)
	require.NoError(t, err)

	entry, ok := patch.Entry(4)
	require.True(t, ok)

	k := randTensor(t, rng, b, 2, 3, 4)
	v := randTensor(t, rng, b, 2, 3, 4)
	_, gotK, gotV := patch.Apply(0, k, k, v)

	keyOut := entry.Key.Forward(k).Data()
	valueOut := entry.Value.Forward(v).Data()
	for i := range k.Data() {
		assert.InDelta(t, strength*keyOut[i], gotK.Data()[i]-k.Data()[i], 1e-5)
		assert.InDelta(t, strength*valueOut[i], gotV.Data()[i]-v.Data()[i], 1e-5)
	}
}

func TestParse_SortedComposition(t *testing.T) {
	b := cpu.New()

	tests := []struct {
		name   string
		layers []layer // insertion order
		want   float32 // stack(3) in sorted order
	}{
		{
			// a: x*2, b: x+1 -> (3*2)+1
			name:   "insertion order ignored",
			layers: []layer{scalarLayer("b", 1, 1), scalarLayer("a", 2, 0)},
			want:   7,
		},
		{
			// byte order puts "linear.10" before "linear.2"
			name:   "byte order",
			layers: []layer{scalarLayer("linear.2", 1, 1), scalarLayer("linear.10", 2, 0)},
			want:   7,
		},
		{
			name:   "reversed roles",
			layers: []layer{scalarLayer("a", 1, 1), scalarLayer("b", 2, 0)},
			want:   8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := Parse(singleDim(t, "1", branch(t, tt.layers...), branch(t)), 1.0, b)
			require.NoError(t, err)

			k := tensor.Full(tensor.Shape{1, 1}, 3, b)
			_, gotK, gotV := patch.Apply(0, k, k, k)
			assert.InDelta(t, 3+tt.want, gotK.Data()[0], 1e-6)
			// empty value stack is the identity
			assert.InDelta(t, 6, gotV.Data()[0], 1e-6)
		})
	}
}

func TestParse_IntegerKeysOnly(t *testing.T) {
	b := cpu.New()
	hb := bundle.New("mixed.pt")
	hb.Set("step", 5000)
	hb.Set("sd_checkpoint_name", "v1-5")
	hb.Set("1.5", "not a dim")
	hb.Set("dim", []any{bundle.NewMap(), bundle.NewMap()})
	hb.Set("768", []any{branch(t, identityLayer("l", 768)), branch(t, identityLayer("l", 768))})
	hb.Set("320", []any{branch(t, identityLayer("l", 320)), branch(t, identityLayer("l", 320))})

	patch, err := Parse(hb, 0.5, b)
	require.NoError(t, err)
	assert.Equal(t, []int{320, 768}, patch.Dims())
	assert.InDelta(t, 0.5, patch.Strength(), 1e-9)
	assert.Equal(t, 2*(320*320+320)+2*(768*768+768), patch.NumParameters())
	assert.Equal(t, tensor.CPU, patch.Device())

	_, ok := patch.Entry(1)
	assert.False(t, ok)
}

func TestParse_RejectsNonBaselineFlags(t *testing.T) {
	b := cpu.New()

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"relu activation", "activation_func", "relu"},
		{"null activation", "activation_func", nil},
		{"layer norm", "is_layer_norm", true},
		{"dropout", "use_dropout", true},
		{"activate output", "activate_output", true},
		{"last layer dropout", "last_layer_dropout", true},
		{"integer one", "use_dropout", 1},
		{"null flag", "is_layer_norm", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := singleDim(t, "1", branch(t, scalarLayer("l", 1, 0)), branch(t))
			hb.Set(tt.key, tt.value)

			patch, err := Parse(hb, 1.0, b)
			assert.Nil(t, patch)
			require.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.False(t, errors.Is(err, ErrMalformedBundle))

			var unsupported *UnsupportedFormatError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, "test.pt", unsupported.Path)
			assert.False(t, unsupported.Flags.IsBaseline())
			assert.Contains(t, err.Error(), "test.pt")
		})
	}
}

func TestParse_AcceptsExplicitBaselineFlags(t *testing.T) {
	hb := singleDim(t, "1", branch(t, scalarLayer("l", 1, 0)), branch(t))
	hb.Set("activation_func", "linear")
	hb.Set("is_layer_norm", false)
	hb.Set("use_dropout", 0)
	hb.Set("activate_output", false)
	hb.Set("last_layer_dropout", false)

	patch, err := Parse(hb, 1.0, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, patch.Dims())
}

func TestParse_Malformed(t *testing.T) {
	b := cpu.New()
	one := func() *bundle.Map { return branch(t, scalarLayer("l", 1, 0)) }

	missingBias := bundle.NewMap()
	missingBias.Set("l.weight", raw(t, []float32{1}, 1, 1))

	biasNotTensor := bundle.NewMap()
	biasNotTensor.Set("l.weight", raw(t, []float32{1}, 1, 1))
	biasNotTensor.Set("l.bias", "zero")

	wrongBias := bundle.NewMap()
	wrongBias.Set("l.weight", raw(t, []float32{1}, 1, 1))
	wrongBias.Set("l.bias", raw(t, []float32{0, 0}, 2))

	flatWeight := bundle.NewMap()
	flatWeight.Set("l.weight", raw(t, []float32{1}, 1))
	flatWeight.Set("l.bias", raw(t, []float32{0}, 1))

	tests := []struct {
		name  string
		value any
	}{
		{"not a sequence", one()},
		{"one branch", []any{one()}},
		{"three branches", []any{one(), one(), one()}},
		{"branch not a mapping", []any{one(), "x"}},
		{"missing bias", []any{missingBias, one()}},
		{"bias not a tensor", []any{biasNotTensor, one()}},
		{"bias length", []any{one(), wrongBias}},
		{"1-D weight", []any{flatWeight, one()}},
		{"input width", []any{branch(t, layer{name: "l", out: 1, in: 2, weight: []float32{1, 1}, bias: []float32{0}}), one()}},
		{"output width", []any{branch(t, layer{name: "l", out: 2, in: 1, weight: []float32{1, 1}, bias: []float32{0, 0}}), one()}},
		{"chain", []any{branch(t,
			layer{name: "a", out: 2, in: 1, weight: []float32{1, 1}, bias: []float32{0, 0}},
			layer{name: "b", out: 1, in: 3, weight: []float32{1, 1, 1}, bias: []float32{0}}), one()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := bundle.New("bad.pt")
			hb.Set("1", tt.value)

			patch, err := Parse(hb, 1.0, b)
			assert.Nil(t, patch)
			require.ErrorIs(t, err, ErrMalformedBundle)
			assert.False(t, errors.Is(err, ErrUnsupportedFormat))

			var malformedErr *MalformedError
			require.ErrorAs(t, err, &malformedErr)
			assert.Equal(t, "bad.pt", malformedErr.Path)
		})
	}
}

func TestParse_RejectsWrongTypedFlags(t *testing.T) {
	tensorFlag := raw(t, []float32{0}, 1)

	tests := []struct {
		name  string
		key   string
		value any
		want  string
	}{
		{"string false", "is_layer_norm", "False", `"False"`},
		{"tensor flag", "use_dropout", tensorFlag, "tensor[1]"},
		{"integer activation", "activation_func", 3, "3"},
		{"bool activation", "activation_func", false, "false"},
		{"sequence flag", "activate_output", []any{}, "[]interface {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := singleDim(t, "1", branch(t, scalarLayer("l", 1, 0)), branch(t))
			hb.Set(tt.key, tt.value)

			patch, err := Parse(hb, 1.0, cpu.New())
			assert.Nil(t, patch)
			require.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.False(t, errors.Is(err, ErrMalformedBundle))

			var unsupported *UnsupportedFormatError
			require.ErrorAs(t, err, &unsupported)
			assert.False(t, unsupported.Flags.IsBaseline())
			assert.Equal(t, map[string]string{tt.key: tt.want}, unsupported.Values)
		})
	}
}

func TestLoadPatch_TorchCheckpoint(t *testing.T) {
	b := cpu.New()
	patch, err := LoadPatch(filepath.Join("..", "bundle", "testdata", "hypernetwork.pt"), 1.0, b)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, patch.Dims())

	k, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 4}, b)
	require.NoError(t, err)

	_, gotK, gotV := patch.Apply(0, k, k, k)
	assert.Equal(t, []float32{2, 4, 6, 8}, gotK.Data())
	assert.Equal(t, []float32{3, 6, 9, 12}, gotV.Data())
}

func TestPatch_Relocation(t *testing.T) {
	first := cpu.New()
	second := cpu.New()
	rng := rand.New(rand.NewSource(4))
	key := layer{name: "l", out: 4, in: 4, weight: tensor.Randn(tensor.Shape{16}, rng, first).Data(), bias: []float32{1, 2, 3, 4}}

	patch, err := Parse(singleDim(t, "4", branch(t, key), branch(t, key)), 0.5, first)
	require.NoError(t, err)

	k := randTensor(t, rng, first, 5, 4)
	_, before, _ := patch.Apply(0, k, k, k)

	assert.Same(t, patch, patch.ToBackend(second))
	assert.Same(t, patch, patch.ToBackend(first))
	_, after, _ := patch.Apply(0, k, k, k)
	assert.Equal(t, before.Data(), after.Data())

	moved, err := patch.To(tensor.CPU)
	require.NoError(t, err)
	assert.Same(t, patch, moved)
	assert.Equal(t, tensor.CPU, patch.Device())

	moved, err = patch.To(tensor.WebGPU)
	if err != nil {
		assert.Nil(t, moved)
		assert.ErrorIs(t, err, backend.ErrDeviceUnavailable)
		assert.Equal(t, tensor.CPU, patch.Device())
		return
	}
	assert.Equal(t, tensor.WebGPU, patch.Device())
	_, gpu, _ := patch.Apply(0, k, k, k)
	assert.InDeltaSlice(t, before.Data(), gpu.Data(), 1e-4)
}

func TestReadFlags_Defaults(t *testing.T) {
	flags := ReadFlags(bundle.New(""))
	assert.Equal(t, BaselineFlags(), flags)
	assert.True(t, flags.IsBaseline())
	assert.Equal(t, "activation_func=linear is_layer_norm=false use_dropout=false activate_output=false last_layer_dropout=false", flags.String())
}
