package bundle

import (
	"container/list"
	"fmt"
	"math/big"
	"strconv"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// LoadTorch reads a PyTorch checkpoint written with torch.save.
//
// Both the zip container and the legacy tar/pickle layout are accepted. The
// root object must be a dict. Dict keys of integer type are rendered in
// decimal.
func LoadTorch(path string) (*Bundle, error) {
	root, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to unpickle %s: %w", path, err)
	}

	value, err := fromPickle(root)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	m, ok := value.(*Map)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s: root object is %T, not a dict", path, root)
	}
	return &Bundle{Map: m, Path: path}, nil
}

// fromPickle converts an unpickled value into the bundle value kinds.
func fromPickle(v any) (any, error) {
	switch v := v.(type) {
	case *types.Dict:
		m := NewMap()
		for _, k := range v.Keys() {
			value, err := fromPickle(v.MustGet(k))
			if err != nil {
				return nil, fmt.Errorf("key %v: %w", k, err)
			}
			m.Set(pickleKey(k), value)
		}
		return m, nil
	case *types.OrderedDict:
		return fromOrderedDict(v.List)
	case *types.List:
		return fromSequence([]any(*v))
	case *types.Tuple:
		return fromSequence([]any(*v))
	case *pytorch.Tensor:
		return fromTorchTensor(v)
	case *big.Int:
		if v.IsInt64() {
			return int(v.Int64()), nil
		}
		return v.String(), nil
	case int64:
		return int(v), nil
	case float32:
		return float64(v), nil
	default:
		return v, nil
	}
}

func fromOrderedDict(entries *list.List) (*Map, error) {
	m := NewMap()
	for e := entries.Front(); e != nil; e = e.Next() {
		entry, ok := e.Value.(*types.OrderedDictEntry)
		if !ok {
			return nil, fmt.Errorf("unexpected ordered dict entry %T", e.Value)
		}
		value, err := fromPickle(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("key %v: %w", entry.Key, err)
		}
		m.Set(pickleKey(entry.Key), value)
	}
	return m, nil
}

func fromSequence(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		value, err := fromPickle(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = value
	}
	return out, nil
}

func pickleKey(k any) string {
	switch k := k.(type) {
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case *big.Int:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}

// fromTorchTensor copies a contiguous torch tensor into a float32 RawTensor.
func fromTorchTensor(t *pytorch.Tensor) (*tensor.RawTensor, error) {
	var src []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		src = s.Data
	case *pytorch.HalfStorage:
		src = s.Data
	case *pytorch.BFloat16Storage:
		src = s.Data
	case *pytorch.DoubleStorage:
		src = make([]float32, len(s.Data))
		for i, f := range s.Data {
			src[i] = float32(f)
		}
	default:
		return nil, fmt.Errorf("unsupported tensor storage %T", s)
	}

	shape := tensor.Shape(append([]int(nil), t.Size...))
	if !contiguous(shape, t.Stride) {
		return nil, fmt.Errorf("non-contiguous tensor with shape %v and stride %v", shape, t.Stride)
	}

	n := shape.NumElements()
	if t.StorageOffset < 0 || t.StorageOffset+n > len(src) {
		return nil, fmt.Errorf("tensor with shape %v at offset %d exceeds storage of %d elements",
			shape, t.StorageOffset, len(src))
	}

	return tensor.RawFromSlice(src[t.StorageOffset:t.StorageOffset+n], shape, tensor.CPU)
}

// contiguous reports whether stride is the row-major layout for shape.
// Axes of size 1 may carry any stride.
func contiguous(shape tensor.Shape, stride []int) bool {
	if len(stride) != len(shape) {
		return false
	}
	expected := shape.ComputeStrides()
	for i := range shape {
		if shape[i] != 1 && stride[i] != expected[i] {
			return false
		}
	}
	return true
}
