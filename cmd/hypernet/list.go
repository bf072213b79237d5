package main

import (
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/born-ml/hypernet/internal/paths"
)

func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [prefix]",
		Aliases: []string{"ls"},
		Short:   "List hypernetworks",
		Args:    cobra.MaximumNArgs(1),
		RunE:    listHandler,
	}
}

func listHandler(cmd *cobra.Command, args []string) error {
	f := folders()
	names, err := f.List(paths.Hypernetworks)
	if err != nil {
		return err
	}

	var data [][]string
	for _, name := range names {
		if len(args) > 0 && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(args[0])) {
			continue
		}

		path, err := f.FullPath(paths.Hypernetworks, name)
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		data = append(data, []string{name, humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime())})
	}

	table := newTable(cmd.OutOrStdout(), "NAME", "SIZE", "MODIFIED")
	table.AppendBulk(data)
	table.Render()

	return nil
}
