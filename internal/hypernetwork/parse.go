package hypernetwork

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/nn"
	"github.com/born-ml/hypernet/internal/tensor"
)

const (
	weightSuffix = ".weight"
	biasSuffix   = ".bias"
)

// Parse builds a Patch from a decoded bundle.
//
// Bundles whose format flags differ from BaselineFlags, including flags
// stored with an unexpected type, are rejected with an
// *UnsupportedFormatError and no layers are built. Keys that do not parse as
// integers are ignored. Every integer key must map to a [key, value] pair of
// layer mappings; anything else is a *MalformedError.
//
// Stacks are also checked for width: consecutive layers must chain, and the
// first input and last output must equal the dimension key. Such stacks could
// never be applied, so they are reported as a *MalformedError at load time
// rather than when the first attention call reaches them.
//
// Layer parameters are placed on backend.
func Parse(b *bundle.Bundle, strength float32, backend tensor.Backend) (*Patch, error) {
	flags, values := readFlags(b)
	if !flags.IsBaseline() {
		return nil, &UnsupportedFormatError{Path: b.Path, Flags: flags, Values: values}
	}

	entries := make(map[int]*Entry)
	for _, key := range b.Keys() {
		dim, err := strconv.Atoi(key)
		if err != nil {
			continue
		}

		value, _ := b.Get(key)
		entry, err := parseEntry(b.Path, key, dim, value, backend)
		if err != nil {
			return nil, err
		}
		entries[dim] = entry
	}

	return &Patch{
		entries:  entries,
		strength: strength,
		backend:  backend,
	}, nil
}

func parseEntry(path, key string, dim int, value any, backend tensor.Backend) (*Entry, error) {
	branches, ok := value.([]any)
	if !ok {
		return nil, malformed(path, key, "expected a sequence of 2 layer mappings, got %T", value)
	}
	if len(branches) != 2 {
		return nil, malformed(path, key, "expected 2 layer mappings, got %d", len(branches))
	}

	stacks := make([]*nn.Sequential, 2)
	for i, branch := range branches {
		layers, ok := branch.(*bundle.Map)
		if !ok {
			return nil, malformed(path, fmt.Sprintf("%s[%d]", key, i), "expected a layer mapping, got %T", branch)
		}

		stack, err := parseStack(path, fmt.Sprintf("%s[%d]", key, i), dim, layers, backend)
		if err != nil {
			return nil, err
		}
		stacks[i] = stack
	}

	return &Entry{Key: stacks[0], Value: stacks[1]}, nil
}

// parseStack builds the layers of one branch in ascending name order.
func parseStack(path, key string, dim int, layers *bundle.Map, backend tensor.Backend) (*nn.Sequential, error) {
	var names []string
	for _, k := range layers.Keys() {
		if strings.HasSuffix(k, weightSuffix) {
			names = append(names, strings.TrimSuffix(k, weightSuffix))
		}
	}
	sort.Strings(names)

	modules := make([]nn.Module, 0, len(names))
	width := dim
	for _, name := range names {
		weight := layers.Tensor(name + weightSuffix)
		if weight == nil {
			return nil, malformed(path, key, "%s%s is not a tensor", name, weightSuffix)
		}
		if _, ok := layers.Get(name + biasSuffix); !ok {
			return nil, malformed(path, key, "layer %q has no bias", name)
		}
		bias := layers.Tensor(name + biasSuffix)
		if bias == nil {
			return nil, malformed(path, key, "%s%s is not a tensor", name, biasSuffix)
		}

		layer, err := nn.NewLinear(name, weight, bias, backend)
		if err != nil {
			return nil, malformed(path, key, "%v", err)
		}
		if layer.InFeatures() != width {
			return nil, malformed(path, key, "layer %q expects %d inputs, got %d", name, layer.InFeatures(), width)
		}
		width = layer.OutFeatures()
		modules = append(modules, layer)
	}

	if width != dim {
		return nil, malformed(path, key, "stack produces %d outputs, want %d", width, dim)
	}

	return nn.NewSequential(modules...), nil
}
