package hypernetwork

import (
	"fmt"
	"sort"

	"github.com/born-ml/hypernet/internal/backend"
	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/model"
	"github.com/born-ml/hypernet/internal/nn"
	"github.com/born-ml/hypernet/internal/tensor"
)

// Entry holds the layer stacks for one attention width.
type Entry struct {
	Key   *nn.Sequential // applied to k
	Value *nn.Sequential // applied to v
}

// Patch perturbs the key and value tensors of an attention call:
//
//	k' = k + strength * Key(k)
//	v' = v + strength * Value(v)
//
// The entry is selected by the last-axis size of k. Query tensors pass
// through untouched.
//
// Apply may be called concurrently; To must not run concurrently with Apply.
type Patch struct {
	entries  map[int]*Entry
	strength float32
	backend  tensor.Backend
}

var _ model.AttentionPatch = (*Patch)(nil)

// LoadPatch decodes the checkpoint at path and parses it into a Patch on
// backend.
func LoadPatch(path string, strength float32, backend tensor.Backend) (*Patch, error) {
	b, err := bundle.Load(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, strength, backend)
}

// Apply returns the patched (q, k, v). When no entry matches the width of k
// the inputs are returned as is.
func (p *Patch) Apply(currentIndex int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
	entry, ok := p.entries[k.Shape().Last()]
	if !ok {
		return q, k, v
	}

	k = k.Add(entry.Key.Forward(k).MulScalar(p.strength))
	v = v.Add(entry.Value.Forward(v).MulScalar(p.strength))
	return q, k, v
}

// To moves every layer onto device and returns p.
func (p *Patch) To(device tensor.Device) (*Patch, error) {
	b, err := backend.For(device)
	if err != nil {
		return nil, fmt.Errorf("failed to move hypernetwork to %s: %w", device, err)
	}
	return p.ToBackend(b), nil
}

// ToBackend moves every layer onto b and returns p.
func (p *Patch) ToBackend(b tensor.Backend) *Patch {
	for _, entry := range p.entries {
		entry.Key.To(b)
		entry.Value.To(b)
	}
	p.backend = b
	return p
}

// Strength returns the scale applied to every stack output.
func (p *Patch) Strength() float32 {
	return p.strength
}

// Dims returns the attention widths the patch applies to, ascending.
func (p *Patch) Dims() []int {
	dims := make([]int, 0, len(p.entries))
	for d := range p.entries {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims
}

// Entry returns the stacks registered for dim.
func (p *Patch) Entry(dim int) (*Entry, bool) {
	e, ok := p.entries[dim]
	return e, ok
}

// Device returns the device holding the layer parameters.
func (p *Patch) Device() tensor.Device {
	return p.backend.Device()
}

// NumParameters returns the number of scalar parameters across all stacks.
func (p *Patch) NumParameters() int {
	n := 0
	for _, e := range p.entries {
		n += nn.NumParameters(e.Key) + nn.NumParameters(e.Value)
	}
	return n
}
