package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/born-ml/hypernet/internal/backend"
	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/hypernetwork"
	"github.com/born-ml/hypernet/internal/nn"
	"github.com/born-ml/hypernet/internal/tensor"
)

func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name|path>",
		Short: "Show the flags and layers of a hypernetwork",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	path, err := resolve(args[0])
	if err != nil {
		return err
	}

	b, err := bundle.Load(path)
	if err != nil {
		return err
	}

	flags := hypernetwork.ReadFlags(b)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n", path)

	table := newTable(out)
	table.AppendBulk([][]string{
		{"activation_func", flags.Activation},
		{"is_layer_norm", strconv.FormatBool(flags.LayerNorm)},
		{"use_dropout", strconv.FormatBool(flags.Dropout)},
		{"activate_output", strconv.FormatBool(flags.ActivateOutput)},
		{"last_layer_dropout", strconv.FormatBool(flags.LastLayerDropout)},
		{"tensors", humanize.Comma(int64(b.NumTensors()))},
	})
	table.Render()

	if !flags.IsBaseline() {
		fmt.Fprintln(out, "\nunsupported format: the loader skips this hypernetwork")
		return nil
	}

	cpu, err := backend.For(tensor.CPU)
	if err != nil {
		return err
	}
	patch, err := hypernetwork.Parse(b, 1, cpu)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	var data [][]string
	for _, dim := range patch.Dims() {
		entry, _ := patch.Entry(dim)
		for _, br := range []struct {
			name  string
			stack *nn.Sequential
		}{{"key", entry.Key}, {"value", entry.Value}} {
			data = append(data, []string{
				strconv.Itoa(dim),
				br.name,
				widths(dim, br.stack),
				humanize.Comma(int64(nn.NumParameters(br.stack))),
			})
		}
	}

	table = newTable(out, "DIM", "BRANCH", "LAYERS", "PARAMETERS")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(out, "\n%s parameters\n", humanize.Comma(int64(patch.NumParameters())))
	return nil
}

// widths renders the feature widths of a stack, e.g. "768 → 1536 → 768".
func widths(dim int, s *nn.Sequential) string {
	if s.Len() == 0 {
		return "identity"
	}

	parts := []string{strconv.Itoa(dim)}
	for i := range s.Len() {
		if l, ok := s.Module(i).(*nn.Linear); ok {
			parts = append(parts, strconv.Itoa(l.OutFeatures()))
		}
	}
	return strings.Join(parts, " → ")
}
