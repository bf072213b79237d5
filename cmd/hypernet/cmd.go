package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/hypernet/internal/envconfig"
	"github.com/born-ml/hypernet/internal/logutil"
	"github.com/born-ml/hypernet/internal/paths"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hypernet",
		Short: "Hypernetwork attention patches",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), logutil.Level(envconfig.Debug)))
		},
	}

	cobra.EnableCommandSorting = false

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hypernet version %s\n", version)
		},
	}

	rootCmd.AddCommand(
		NewListCmd(),
		NewInspectCmd(),
		NewApplyCmd(),
		NewConvertCmd(),
		NewEnvCmd(),
		versionCmd,
	)

	return rootCmd
}

func folders() *paths.Folders {
	return paths.New(envconfig.Home)
}

// resolve accepts either an existing file path or a name below the
// hypernetworks folder.
func resolve(arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}
	return folders().FullPath(paths.Hypernetworks, arg)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if len(header) > 0 {
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}
