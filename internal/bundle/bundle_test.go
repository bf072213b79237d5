package bundle

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.RawFromSlice(data, tensor.Shape(shape), tensor.CPU)
	require.NoError(t, err)
	return r
}

func branch(t *testing.T, scale float32) *Map {
	t.Helper()
	m := NewMap()
	m.Set("linear.0.weight", raw(t, []float32{scale, 0, 0, scale}, 2, 2))
	m.Set("linear.0.bias", raw(t, []float32{0.5, -0.5}, 2))
	return m
}

func sampleBundle(t *testing.T) *Bundle {
	t.Helper()
	b := New("")
	b.Set("activation_func", "linear")
	b.Set("is_layer_norm", false)
	b.Set("use_dropout", true)
	b.Set("step", 1200)
	b.Set("layer_structure", []any{1.0, 2.0, 1.0})
	b.Set("2", []any{branch(t, 1), branch(t, 2)})
	return b
}

func writeRaw(t *testing.T, path, header string, data []byte) {
	t.Helper()
	buf := make([]byte, 8, 8+len(header)+len(data))
	binary.LittleEndian.PutUint64(buf, uint64(len(header)))
	buf = append(buf, header...)
	buf = append(buf, data...)
	require.NoError(t, os.WriteFile(path, buf, 0o600))
}

func TestMap_Order(t *testing.T) {
	m := NewMap()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("b", 3)

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	assert.Equal(t, 2, m.Len())

	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = m.Get("c")
	assert.False(t, ok)
	assert.Nil(t, m.Tensor("a"))
}

func TestBundle_NumTensors(t *testing.T) {
	assert.Equal(t, 4, sampleBundle(t).NumTensors())
}

func TestSafeTensors_RoundTrip(t *testing.T) {
	for _, dtype := range []SafeTensorsDType{SafeTensorsF32, SafeTensorsF16} {
		t.Run(string(dtype), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "hn.safetensors")

			skipped, err := WriteSafeTensors(path, sampleBundle(t), dtype)
			require.NoError(t, err)
			assert.Empty(t, skipped)

			b, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, path, b.Path)

			v, _ := b.Get("activation_func")
			assert.Equal(t, "linear", v)
			v, _ = b.Get("is_layer_norm")
			assert.Equal(t, false, v)
			v, _ = b.Get("use_dropout")
			assert.Equal(t, true, v)
			v, _ = b.Get("step")
			assert.Equal(t, 1200, v)
			v, _ = b.Get("layer_structure")
			assert.Equal(t, "[1,2,1]", v)

			v, ok := b.Get("2")
			require.True(t, ok)
			branches, ok := v.([]any)
			require.True(t, ok)
			require.Len(t, branches, 2)

			second := branches[1].(*Map)
			assert.Equal(t, []string{"linear.0.bias", "linear.0.weight"}, second.Keys())
			w := second.Tensor("linear.0.weight")
			require.NotNil(t, w)
			assert.Equal(t, tensor.Shape{2, 2}, w.Shape())
			assert.Equal(t, []float32{2, 0, 0, 2}, w.Data())
			assert.Equal(t, []float32{0.5, -0.5}, second.Tensor("linear.0.bias").Data())
		})
	}
}

func TestWriteSafeTensors_SkipsNestedMaps(t *testing.T) {
	b := New("")
	b.Set("optimizer_state_dict", NewMap())
	b.Set("weights", raw(t, []float32{1, 2}, 2))

	path := filepath.Join(t.TempDir(), "out.safetensors")
	skipped, err := WriteSafeTensors(path, b, SafeTensorsF32)
	require.NoError(t, err)
	assert.Equal(t, []string{"optimizer_state_dict"}, skipped)

	loaded, err := LoadSafeTensors(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, loaded.Tensor("weights").Data())
}

func TestWriteSafeTensors_RejectsDType(t *testing.T) {
	_, err := WriteSafeTensors(filepath.Join(t.TempDir(), "x.safetensors"), New(""), SafeTensorsBF16)
	assert.Error(t, err)
}

func TestLoadSafeTensors_BF16AndF64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.safetensors")

	// bf16 1.0 = 0x3F80, -2.0 = 0xC000; f64 0.25
	data := []byte{0x80, 0x3F, 0x00, 0xC0}
	f64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(f64, 0x3FD0000000000000)
	data = append(data, f64...)

	writeRaw(t, path, `{"a":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]},`+
		`"b":{"dtype":"F64","shape":[1],"data_offsets":[4,12]}}`, data)

	b, err := LoadSafeTensors(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2}, b.Tensor("a").Data())
	assert.Equal(t, []float32{0.25}, b.Tensor("b").Data())
}

func TestLoadSafeTensors_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		header string
		data   []byte
	}{
		{"unsupported dtype", `{"a":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`, make([]byte, 8)},
		{"size mismatch", `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`, make([]byte, 8)},
		{"truncated data", `{"a":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`, make([]byte, 4)},
		{"bad json", `{"a":`, nil},
		{"huge offsets", `{"64.0.l.weight":{"dtype":"F32","shape":[1],"data_offsets":[0,4611686018427387904]}}`, make([]byte, 4)},
		{"huge tensor", `{"a":{"dtype":"F32","shape":[1152921504606846976],"data_offsets":[0,4611686018427387904]}}`, make([]byte, 4)},
		{"offsets past end of file", `{"a":{"dtype":"F32","shape":[2],"data_offsets":[8,16]}}`, make([]byte, 8)},
		{"negative start", `{"a":{"dtype":"F32","shape":[1],"data_offsets":[-4,0]}}`, make([]byte, 4)},
		{"metadata collision", `{"__metadata__":{"7":"x"},"7.0.l.weight":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`, make([]byte, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".safetensors")
			writeRaw(t, path, tt.header, tt.data)
			assert.NotPanics(t, func() {
				_, err := LoadSafeTensors(path)
				assert.Error(t, err)
			})
		})
	}
}

func TestSplitBranchName(t *testing.T) {
	tests := []struct {
		name   string
		dim    string
		branch int
		layer  string
		ok     bool
	}{
		{"320.0.linear.0.weight", "320", 0, "linear.0.weight", true},
		{"768.1.linear1.bias", "768", 1, "linear1.bias", true},
		{"768.2.linear1.bias", "", 0, "", false},
		{"foo.0.linear.weight", "", 0, "", false},
		{"320.0.", "", 0, "", false},
		{"weights", "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dim, branch, layer, ok := splitBranchName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.dim, dim)
			assert.Equal(t, tt.branch, branch)
			assert.Equal(t, tt.layer, layer)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	zipFile := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(zipFile, []byte("PK\x03\x04rest"), 0o600))
	pickleFile := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(pickleFile, []byte{0x80, 0x02, '}'}, 0o600))
	stFile := filepath.Join(dir, "c.bin")
	require.NoError(t, os.WriteFile(stFile, []byte{0x10, 0, 0, 0, 0, 0, 0, 0}, 0o600))

	tests := []struct {
		path string
		want Format
	}{
		{"x.safetensors", FormatSafeTensors},
		{"x.PT", FormatTorch},
		{"x.pth", FormatTorch},
		{"x.ckpt", FormatTorch},
		{zipFile, FormatTorch},
		{pickleFile, FormatTorch},
		{stFile, FormatSafeTensors},
	}

	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := DetectFormat(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
	assert.Equal(t, "torch", FormatTorch.String())
}

func TestFromPickle_Values(t *testing.T) {
	weight := &pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4, 5, 6}},
		Size:   []int{2, 3},
		Stride: []int{3, 1},
	}
	bias := &pytorch.Tensor{
		Source:        &pytorch.HalfStorage{Data: []float32{9, 7, 8}},
		StorageOffset: 1,
		Size:          []int{2},
		Stride:        []int{1},
	}

	state := types.NewOrderedDict()
	state.Set("linear.0.weight", weight)
	state.Set("linear.0.bias", bias)

	pair := types.Tuple{state, types.NewOrderedDict()}
	structure := types.List{1.0, 2.0, 1.0}

	root := types.NewDict()
	root.Set("activation_func", "linear")
	root.Set("is_layer_norm", false)
	root.Set(320, &pair)
	root.Set("layer_structure", &structure)

	v, err := fromPickle(root)
	require.NoError(t, err)
	m, ok := v.(*Map)
	require.True(t, ok)
	assert.Equal(t, []string{"activation_func", "is_layer_norm", "320", "layer_structure"}, m.Keys())

	dim, _ := m.Get("320")
	branches, ok := dim.([]any)
	require.True(t, ok)
	require.Len(t, branches, 2)

	first := branches[0].(*Map)
	assert.Equal(t, []string{"linear.0.weight", "linear.0.bias"}, first.Keys())
	assert.Equal(t, tensor.Shape{2, 3}, first.Tensor("linear.0.weight").Shape())
	assert.Equal(t, []float32{7, 8}, first.Tensor("linear.0.bias").Data())
	assert.Equal(t, 0, branches[1].(*Map).Len())

	ls, _ := m.Get("layer_structure")
	assert.Equal(t, []any{1.0, 2.0, 1.0}, ls)
}

// testdata/hypernetwork.pt is a torch zip checkpoint with one width (4).
// Each branch holds a single layer whose weight and bias share a storage: the
// key branch is the identity, the value branch twice the identity.
func TestLoadTorch_File(t *testing.T) {
	b, err := Load(filepath.Join("testdata", "hypernetwork.pt"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"4", "layer_structure", "activation_func", "is_layer_norm", "weight_initialization",
		"use_dropout", "step", "sd_checkpoint", "sd_checkpoint_name", "activate_output",
		"last_layer_dropout",
	}, b.Keys())
	assert.Equal(t, 4, b.NumTensors())

	for key, want := range map[string]any{
		"activation_func":    "linear",
		"is_layer_norm":      false,
		"use_dropout":        false,
		"step":               10,
		"sd_checkpoint":      nil,
		"sd_checkpoint_name": nil,
		"layer_structure":    []any{1, 1},
	} {
		got, ok := b.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	dim, _ := b.Get("4")
	branches, ok := dim.([]any)
	require.True(t, ok)
	require.Len(t, branches, 2)

	for i, scale := range []float32{1, 2} {
		layers, ok := branches[i].(*Map)
		require.True(t, ok)
		assert.Equal(t, []string{"linear.0.weight", "linear.0.bias"}, layers.Keys())

		weight := layers.Tensor("linear.0.weight")
		require.NotNil(t, weight)
		assert.Equal(t, tensor.Shape{4, 4}, weight.Shape())
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				want := float32(0)
				if r == c {
					want = scale
				}
				assert.Equal(t, want, weight.Data()[r*4+c])
			}
		}
		assert.Equal(t, []float32{0, 0, 0, 0}, layers.Tensor("linear.0.bias").Data())
	}
}

func TestFromTorchTensor_Errors(t *testing.T) {
	transposed := &pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4, 5, 6}},
		Size:   []int{3, 2},
		Stride: []int{1, 3},
	}
	_, err := fromTorchTensor(transposed)
	assert.Error(t, err)

	short := &pytorch.Tensor{
		Source:        &pytorch.FloatStorage{Data: []float32{1, 2}},
		StorageOffset: 1,
		Size:          []int{2},
		Stride:        []int{1},
	}
	_, err = fromTorchTensor(short)
	assert.Error(t, err)

	ints := &pytorch.Tensor{
		Source: &pytorch.LongStorage{Data: []int64{1}},
		Size:   []int{1},
		Stride: []int{1},
	}
	_, err = fromTorchTensor(ints)
	assert.Error(t, err)
}

func TestContiguous(t *testing.T) {
	assert.True(t, contiguous(tensor.Shape{2, 3}, []int{3, 1}))
	assert.True(t, contiguous(tensor.Shape{1, 3}, []int{99, 1}))
	assert.False(t, contiguous(tensor.Shape{2, 3}, []int{1, 2}))
	assert.False(t, contiguous(tensor.Shape{2, 3}, []int{3}))
	assert.True(t, contiguous(tensor.Shape{}, nil))
}
