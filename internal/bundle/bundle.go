// Package bundle decodes hypernetwork checkpoint files into an ordered,
// format-independent key/value tree.
//
// Supported formats:
//   - PyTorch pickles (.pt, .pth, .ckpt, .bin), read with a restricted
//     unpickler that never executes code from the file
//   - SafeTensors (.safetensors)
//
// Value kinds held by a Map: string, bool, int, float64, *tensor.RawTensor,
// []any (sequence) and *Map (nested mapping). Other pickled objects are kept
// as opaque values.
package bundle

import (
	"github.com/born-ml/hypernet/internal/tensor"
)

// Map is an insertion-ordered mapping from string keys to values.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Set stores value under key. Existing keys keep their position.
func (m *Map) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.keys)
}

// Tensor returns the tensor stored under key, or nil.
func (m *Map) Tensor(key string) *tensor.RawTensor {
	v, _ := m.values[key].(*tensor.RawTensor)
	return v
}

// Bundle is the decoded content of one checkpoint file.
type Bundle struct {
	*Map

	// Path is the file the bundle was read from. Empty for in-memory bundles.
	Path string
}

// New creates an empty bundle for path.
func New(path string) *Bundle {
	return &Bundle{Map: NewMap(), Path: path}
}

// NumTensors counts the tensors reachable from the bundle root.
func (b *Bundle) NumTensors() int {
	return countTensors(b.Map)
}

func countTensors(v any) int {
	switch v := v.(type) {
	case *tensor.RawTensor:
		return 1
	case *Map:
		n := 0
		for _, k := range v.keys {
			n += countTensors(v.values[k])
		}
		return n
	case []any:
		n := 0
		for _, e := range v {
			n += countTensors(e)
		}
		return n
	default:
		return 0
	}
}
