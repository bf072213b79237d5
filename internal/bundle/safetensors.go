package bundle

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// SafeTensorsDType represents supported SafeTensors data types.
type SafeTensorsDType string

// Floating point dtypes decoded into float32.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
)

// Size returns the element size in bytes, or 0 for unknown dtypes.
func (d SafeTensorsDType) Size() int {
	switch d {
	case SafeTensorsF16, SafeTensorsBF16:
		return 2
	case SafeTensorsF32:
		return 4
	case SafeTensorsF64:
		return 8
	default:
		return 0
	}
}

// maxHeaderSize bounds the JSON header read from untrusted files.
const maxHeaderSize = 100 * 1024 * 1024

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

// UnmarshalJSON splits the header into metadata and tensor entries.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// SafeTensorsReader reads SafeTensors format files.
type SafeTensorsReader struct {
	file       *os.File
	header     SafeTensorsHeader
	dataOffset int64 // Offset where tensor data starts
	size       int64 // File size in bytes
}

// NewSafeTensorsReader opens path and parses its header.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxHeaderSize {
		_ = file.Close()
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	return &SafeTensorsReader{
		file:       file,
		header:     header,
		dataOffset: int64(8 + headerSize), //nolint:gosec // G115: bounded by maxHeaderSize
		size:       stat.Size(),
	}, nil
}

// Close closes the SafeTensors file.
func (r *SafeTensorsReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in ascending order.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData reads raw tensor bytes for a given tensor name.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	size := info.DataOffsets[1] - info.DataOffsets[0]
	if info.DataOffsets[0] < 0 || size < 0 || info.DataOffsets[1] > r.size-r.dataOffset {
		return nil, fmt.Errorf("invalid data offsets for tensor %s: [%d, %d] in %d data bytes",
			name, info.DataOffsets[0], info.DataOffsets[1], r.size-r.dataOffset)
	}

	data := make([]byte, size)
	if _, err := r.file.ReadAt(data, start); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	return data, nil
}

// LoadTensor reads a tensor and converts it to float32.
func (r *SafeTensorsReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}

	elemSize := info.DType.Size()
	if elemSize == 0 {
		return nil, fmt.Errorf("tensor %s: unsupported dtype: %s", name, info.DType)
	}

	span := info.DataOffsets[1] - info.DataOffsets[0]
	if span != int64(shape.NumElements())*int64(elemSize) {
		return nil, fmt.Errorf("tensor %s: %d bytes for %s%v", name, span, info.DType, shape)
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	return tensor.RawFromSlice(decodeFloats(info.DType, data), shape, tensor.CPU)
}

func decodeFloats(dtype SafeTensorsDType, data []byte) []float32 {
	var f32s []float32
	switch dtype {
	case SafeTensorsF32:
		f32s = make([]float32, len(data)/4)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case SafeTensorsF64:
		f32s = make([]float32, len(data)/8)
		for i := range f32s {
			f32s[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
		}
	case SafeTensorsF16:
		f32s = make([]float32, len(data)/2)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(data[i*2:])).Float32()
		}
	case SafeTensorsBF16:
		f32s = bfloat16.DecodeFloat32(data)
	}
	return f32s
}

// LoadSafeTensors reads a SafeTensors checkpoint into a Bundle.
//
// Tensor names of the form <dim>.<branch>.<layer> with branch 0 or 1 are
// grouped as {dim: [branch0, branch1]}, the layout of a pickled hypernetwork.
// Other tensors are stored under their full name. Metadata entries become
// top-level keys; format flags are converted to their pickled types.
func LoadSafeTensors(path string) (*Bundle, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer func() {
		_ = r.Close()
	}()

	b := New(path)

	metaKeys := make([]string, 0, len(r.Metadata()))
	for k := range r.Metadata() {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	for _, k := range metaKeys {
		b.Set(k, metadataValue(k, r.Metadata()[k]))
	}

	for _, name := range r.TensorNames() {
		t, err := r.LoadTensor(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		dim, branch, layer, ok := splitBranchName(name)
		if !ok {
			b.Set(name, t)
			continue
		}

		var branches []any
		if v, exists := b.Get(dim); exists {
			branches, ok = v.([]any)
			if !ok {
				return nil, fmt.Errorf("failed to read %s: tensor %s collides with metadata key %s", path, name, dim)
			}
		} else {
			branches = []any{NewMap(), NewMap()}
			b.Set(dim, branches)
		}
		branches[branch].(*Map).Set(layer, t)
	}

	return b, nil
}

// splitBranchName splits "<dim>.<branch>.<layer>" into its parts.
func splitBranchName(name string) (dim string, branch int, layer string, ok bool) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", 0, "", false
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return "", 0, "", false
	}
	switch parts[1] {
	case "0":
		branch = 0
	case "1":
		branch = 1
	default:
		return "", 0, "", false
	}
	return parts[0], branch, parts[2], true
}

// metadataValue restores the pickled type of well-known string metadata.
func metadataValue(key, value string) any {
	switch key {
	case "is_layer_norm", "use_dropout", "activate_output", "last_layer_dropout":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case "step":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return value
}
