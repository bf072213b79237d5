package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/born-ml/hypernet/internal/bundle"
)

func NewConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <name|path> <out.safetensors>",
		Short: "Convert a hypernetwork to safetensors",
		Args:  cobra.ExactArgs(2),
		RunE:  convertHandler,
	}

	cmd.Flags().String("dtype", "f32", "Tensor data type: f32 or f16")

	return cmd
}

func convertHandler(cmd *cobra.Command, args []string) error {
	dtype, err := cmd.Flags().GetString("dtype")
	if err != nil {
		return err
	}

	st := bundle.SafeTensorsDType(strings.ToUpper(dtype))
	if st != bundle.SafeTensorsF32 && st != bundle.SafeTensorsF16 {
		return fmt.Errorf("unsupported dtype %q", dtype)
	}

	in, err := resolve(args[0])
	if err != nil {
		return err
	}

	b, err := bundle.Load(in)
	if err != nil {
		return err
	}

	skipped, err := bundle.WriteSafeTensors(args[1], b, st)
	if err != nil {
		return err
	}
	for _, key := range skipped {
		slog.Warn("key not representable in safetensors, skipping", "key", key)
	}

	info, err := os.Stat(args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s tensors, %s)\n",
		args[1], humanize.Comma(int64(b.NumTensors())), humanize.Bytes(uint64(info.Size())))
	return nil
}
