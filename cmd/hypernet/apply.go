package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/born-ml/hypernet/internal/backend"
	"github.com/born-ml/hypernet/internal/envconfig"
	"github.com/born-ml/hypernet/internal/hypernetwork"
	"github.com/born-ml/hypernet/internal/model"
	"github.com/born-ml/hypernet/internal/tensor"
)

func NewApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <name|path>",
		Short: "Run a hypernetwork on random attention inputs",
		Args:  cobra.ExactArgs(1),
		RunE:  applyHandler,
	}

	cmd.Flags().Int("dim", 0, "Attention width (default: first width in the checkpoint)")
	cmd.Flags().Float64("strength", envconfig.Strength, "Patch strength")
	cmd.Flags().String("device", envconfig.Device.String(), "Device to run on: cpu or webgpu")
	cmd.Flags().Int("tokens", 77, "Number of context tokens")
	cmd.Flags().Int64("seed", 1, "Random seed for the inputs")

	return cmd
}

func applyHandler(cmd *cobra.Command, args []string) error {
	dim, err := cmd.Flags().GetInt("dim")
	if err != nil {
		return err
	}
	strength, err := cmd.Flags().GetFloat64("strength")
	if err != nil {
		return err
	}
	deviceName, err := cmd.Flags().GetString("device")
	if err != nil {
		return err
	}
	tokens, err := cmd.Flags().GetInt("tokens")
	if err != nil {
		return err
	}
	seed, err := cmd.Flags().GetInt64("seed")
	if err != nil {
		return err
	}

	if err := hypernetwork.StrengthInput.Validate(strength); err != nil {
		return fmt.Errorf("strength: %w", err)
	}
	if tokens <= 0 {
		return fmt.Errorf("tokens must be positive, got %d", tokens)
	}
	device, err := tensor.ParseDevice(deviceName)
	if err != nil {
		return err
	}

	path, err := resolve(args[0])
	if err != nil {
		return err
	}

	cpu, err := backend.For(tensor.CPU)
	if err != nil {
		return err
	}
	patch, err := hypernetwork.LoadPatch(path, float32(strength), cpu)
	if err != nil {
		return err
	}
	if patch, err = patch.To(device); err != nil {
		return err
	}

	if dim == 0 {
		dims := patch.Dims()
		if len(dims) == 0 {
			return fmt.Errorf("%s has no attention widths", path)
		}
		dim = dims[0]
	}

	m := model.New(path)
	m.SetAttn1Patch(patch)
	m.SetAttn2Patch(patch)

	b, err := backend.For(device)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))
	q := tensor.Randn(tensor.Shape{1, tokens, dim}, rng, b)
	k := tensor.Randn(tensor.Shape{1, tokens, dim}, rng, b)
	v := tensor.Randn(tensor.Shape{1, tokens, dim}, rng, b)

	slog.Debug("applying hypernetwork", "path", path, "dim", dim, "device", device.String())
	_, gotK, gotV := m.RunAttn2(0, q, k, v)

	out := cmd.OutOrStdout()
	if _, ok := patch.Entry(dim); !ok {
		fmt.Fprintf(out, "no entry for width %d: key and value pass through unchanged\n\n", dim)
	}

	table := newTable(out)
	table.AppendBulk([][]string{
		{"device", patch.Device().String()},
		{"dim", strconv.Itoa(dim)},
		{"strength", strconv.FormatFloat(strength, 'g', -1, 64)},
		{"tokens", strconv.Itoa(tokens)},
		{"parameters", humanize.Comma(int64(patch.NumParameters()))},
		{"key mean |Δ|", formatDelta(k, gotK)},
		{"value mean |Δ|", formatDelta(v, gotV)},
	})
	table.Render()

	return nil
}

func meanAbsDelta(before, after *tensor.Tensor) float64 {
	a, b := before.Data(), after.Data()
	if len(a) == 0 {
		return 0
	}

	var sum float64
	for i := range a {
		sum += math.Abs(float64(b[i] - a[i]))
	}
	return sum / float64(len(a))
}

func formatDelta(before, after *tensor.Tensor) string {
	return strconv.FormatFloat(meanAbsDelta(before, after), 'f', 6, 64)
}
