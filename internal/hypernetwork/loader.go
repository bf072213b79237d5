package hypernetwork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/hypernet/internal/backend"
	"github.com/born-ml/hypernet/internal/model"
	"github.com/born-ml/hypernet/internal/paths"
	"github.com/born-ml/hypernet/internal/tensor"
)

// FloatInput describes a bounded float input of the loader node.
type FloatInput struct {
	Default float64
	Min     float64
	Max     float64
	Step    float64
}

// Validate rejects values outside [Min, Max].
func (f FloatInput) Validate(v float64) error {
	if v < f.Min || v > f.Max {
		return fmt.Errorf("value %g out of range [%g, %g]", v, f.Min, f.Max)
	}
	return nil
}

// StrengthInput bounds the strength accepted by Loader.Load.
var StrengthInput = FloatInput{Default: 1.0, Min: -10.0, Max: 10.0, Step: 0.01}

// InputTypes describes the inputs of the loader node.
type InputTypes struct {
	Model            string   // type tag of the model input
	HypernetworkName []string // available checkpoint names
	Strength         FloatInput
}

// Inputs lists the loader node's inputs, with the checkpoint names found in
// folders.
func Inputs(folders *paths.Folders) (*InputTypes, error) {
	names, err := folders.List(paths.Hypernetworks)
	if err != nil {
		return nil, err
	}
	return &InputTypes{
		Model:            "MODEL",
		HypernetworkName: names,
		Strength:         StrengthInput,
	}, nil
}

// Loader installs a named hypernetwork on a copy of a model.
type Loader struct {
	Folders *paths.Folders
	Backend tensor.Backend // used while parsing; CPU when nil
	Device  tensor.Device  // device the layers run on
	Logger  *slog.Logger   // slog.Default() when nil
}

// Load resolves name, clones m and registers the patch on both attention
// points of the clone. m itself is never modified.
//
// A checkpoint in an unsupported format is logged and skipped: the clone is
// returned without patches and the error is nil. Malformed checkpoints,
// missing files and device failures are returned as errors.
func (l *Loader) Load(ctx context.Context, m *model.Patcher, name string, strength float64) (*model.Patcher, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := StrengthInput.Validate(strength); err != nil {
		return nil, fmt.Errorf("strength: %w", err)
	}

	path, err := l.Folders.FullPath(paths.Hypernetworks, name)
	if err != nil {
		return nil, err
	}

	parseBackend := l.Backend
	if parseBackend == nil {
		if parseBackend, err = backend.For(tensor.CPU); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	patched := m.Clone()
	patch, err := LoadPatch(path, float32(strength), parseBackend)
	if err != nil {
		var unsupported *UnsupportedFormatError
		if errors.As(err, &unsupported) {
			logger.WarnContext(ctx, "unsupported hypernetwork format, skipping",
				"path", path, "flags", unsupported.Flags, "values", unsupported.Values)
			return patched, nil
		}
		return nil, err
	}

	if patch.Device() != l.Device {
		if _, err := patch.To(l.Device); err != nil {
			return nil, err
		}
	}

	patched.SetAttn1Patch(patch)
	patched.SetAttn2Patch(patch)

	logger.InfoContext(ctx, "loaded hypernetwork",
		"name", name,
		"dims", patch.Dims(),
		"strength", strength,
		"device", patch.Device().String())
	return patched, nil
}
