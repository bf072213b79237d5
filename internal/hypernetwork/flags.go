package hypernetwork

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/tensor"
)

// Bundle keys holding the format flags.
const (
	keyActivation       = "activation_func"
	keyLayerNorm        = "is_layer_norm"
	keyDropout          = "use_dropout"
	keyActivateOutput   = "activate_output"
	keyLastLayerDropout = "last_layer_dropout"
)

// LinearActivation is the only supported activation kind.
const LinearActivation = "linear"

// FormatFlags are the training-configuration flags stored in a bundle.
type FormatFlags struct {
	Activation       string
	LayerNorm        bool
	Dropout          bool
	ActivateOutput   bool
	LastLayerDropout bool
}

// BaselineFlags returns the only supported flag combination:
// linear activation with every other option disabled.
func BaselineFlags() FormatFlags {
	return FormatFlags{Activation: LinearActivation}
}

// IsBaseline reports whether f equals BaselineFlags.
func (f FormatFlags) IsBaseline() bool {
	return f == BaselineFlags()
}

func (f FormatFlags) String() string {
	return fmt.Sprintf("%s=%s %s=%t %s=%t %s=%t %s=%t",
		keyActivation, f.Activation,
		keyLayerNorm, f.LayerNorm,
		keyDropout, f.Dropout,
		keyActivateOutput, f.ActivateOutput,
		keyLastLayerDropout, f.LastLayerDropout)
}

// LogValue implements slog.LogValuer.
func (f FormatFlags) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String(keyActivation, f.Activation),
		slog.Bool(keyLayerNorm, f.LayerNorm),
		slog.Bool(keyDropout, f.Dropout),
		slog.Bool(keyActivateOutput, f.ActivateOutput),
		slog.Bool(keyLastLayerDropout, f.LastLayerDropout),
	)
}

// ReadFlags extracts the format flags of b, applying defaults for absent
// keys. Values of an unexpected kind, such as the string "False" or a
// tensor, count as deviations from the baseline.
func ReadFlags(b *bundle.Bundle) FormatFlags {
	flags, _ := readFlags(b)
	return flags
}

// readFlags also returns a rendering of every stored value that deviates
// from the baseline, keyed by flag name.
func readFlags(b *bundle.Bundle) (FormatFlags, map[string]string) {
	flags := BaselineFlags()
	var raw map[string]string
	deviates := func(key string, v any) {
		if raw == nil {
			raw = make(map[string]string)
		}
		raw[key] = describe(v)
	}

	if v, ok := b.Get(keyActivation); ok {
		s, isString := v.(string)
		switch {
		case isString:
			flags.Activation = s
		case v == nil:
			flags.Activation = ""
		default:
			flags.Activation = describe(v)
		}
		if flags.Activation != LinearActivation {
			deviates(keyActivation, v)
		}
	}

	for _, f := range []struct {
		key string
		dst *bool
	}{
		{keyLayerNorm, &flags.LayerNorm},
		{keyDropout, &flags.Dropout},
		{keyActivateOutput, &flags.ActivateOutput},
		{keyLastLayerDropout, &flags.LastLayerDropout},
	} {
		v, ok := b.Get(f.key)
		if !ok {
			continue
		}
		// Numbers compare like booleans; anything else is not false.
		switch v := v.(type) {
		case bool:
			*f.dst = v
		case int:
			*f.dst = v != 0
		case float64:
			*f.dst = v != 0
		default:
			*f.dst = true
		}
		if *f.dst {
			deviates(f.key, v)
		}
	}

	return flags, raw
}

func describe(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool, int, float64:
		return fmt.Sprint(v)
	case *tensor.RawTensor:
		return fmt.Sprintf("tensor%v", v.Shape())
	default:
		return fmt.Sprintf("%T", v)
	}
}
