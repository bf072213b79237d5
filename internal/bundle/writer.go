package bundle

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/x448/float16"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int64          `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"`
}

// WriteSafeTensors writes b to path in SafeTensors format.
//
// Dimension entries are flattened to <dim>.<branch>.<layer> tensor names,
// the inverse of LoadSafeTensors. Scalar values become metadata strings and
// sequences of scalars are stored as JSON. Nested mappings outside dimension
// entries have no SafeTensors representation and are skipped; their keys are
// returned.
//
// dtype selects the on-disk precision: F32 or F16.
func WriteSafeTensors(path string, b *Bundle, dtype SafeTensorsDType) (skipped []string, err error) {
	if dtype != SafeTensorsF32 && dtype != SafeTensorsF16 {
		return nil, fmt.Errorf("unsupported output dtype: %s", dtype)
	}

	tensors, metadata, skipped, err := flatten(b)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if err := writeStateDict(file, tensors, metadata, dtype); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return skipped, nil
}

func flatten(b *Bundle) (map[string]*tensor.RawTensor, map[string]string, []string, error) {
	tensors := make(map[string]*tensor.RawTensor)
	metadata := make(map[string]string)
	var skipped []string

	for _, key := range b.Keys() {
		value, _ := b.Get(key)
		switch v := value.(type) {
		case *tensor.RawTensor:
			tensors[key] = v
		case string:
			metadata[key] = v
		case bool:
			metadata[key] = strconv.FormatBool(v)
		case int:
			metadata[key] = strconv.Itoa(v)
		case float64:
			metadata[key] = strconv.FormatFloat(v, 'g', -1, 64)
		case []any:
			if ok, err := flattenBranches(key, v, tensors); err != nil {
				return nil, nil, nil, err
			} else if ok {
				continue
			}
			if !scalars(v) {
				skipped = append(skipped, key)
				continue
			}
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to encode %s: %w", key, err)
			}
			metadata[key] = string(encoded)
		default:
			skipped = append(skipped, key)
		}
	}

	return tensors, metadata, skipped, nil
}

func scalars(values []any) bool {
	for _, v := range values {
		switch v.(type) {
		case string, bool, int, float64, nil:
		default:
			return false
		}
	}
	return true
}

// flattenBranches writes a [branch0, branch1] dimension entry into tensors.
// It reports false when value does not have that layout.
func flattenBranches(key string, value []any, tensors map[string]*tensor.RawTensor) (bool, error) {
	if _, err := strconv.Atoi(key); err != nil || len(value) != 2 {
		return false, nil
	}
	for _, branch := range value {
		if _, ok := branch.(*Map); !ok {
			return false, nil
		}
	}

	for i, branch := range value {
		m := branch.(*Map)
		for _, layer := range m.Keys() {
			t := m.Tensor(layer)
			if t == nil {
				return false, fmt.Errorf("entry %s.%d.%s is not a tensor", key, i, layer)
			}
			tensors[fmt.Sprintf("%s.%d.%s", key, i, layer)] = t
		}
	}
	return true, nil
}

// writeStateDict writes tensors in alphabetical order by name.
func writeStateDict(file *os.File, stateDict map[string]*tensor.RawTensor, metadata map[string]string, dtype SafeTensorsDType) error {
	tensorNames := make([]string, 0, len(stateDict))
	for name := range stateDict {
		tensorNames = append(tensorNames, name)
	}
	sort.Strings(tensorNames)

	header := make(map[string]any, len(tensorNames)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var currentOffset int64
	for _, name := range tensorNames {
		raw := stateDict[name]
		size := int64(raw.NumElements() * dtype.Size())

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}

		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{currentOffset, currentOffset + size},
		}
		currentOffset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, name := range tensorNames {
		if _, err := file.Write(encodeFloats(dtype, stateDict[name].Data())); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}

	return nil
}

func encodeFloats(dtype SafeTensorsDType, f32s []float32) []byte {
	switch dtype {
	case SafeTensorsF16:
		out := make([]byte, len(f32s)*2)
		for i, f := range f32s {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(f).Bits())
		}
		return out
	default:
		out := make([]byte, len(f32s)*4)
		for i, f := range f32s {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
		}
		return out
	}
}
