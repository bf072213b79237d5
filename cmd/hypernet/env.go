package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/born-ml/hypernet/internal/envconfig"
)

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show environment settings",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			vars := envconfig.AsMap()
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			var data [][]string
			for _, k := range keys {
				data = append(data, []string{k, fmt.Sprintf("%v", vars[k].Value), vars[k].Description})
			}

			table := newTable(cmd.OutOrStdout(), "NAME", "VALUE", "DESCRIPTION")
			table.AppendBulk(data)
			table.Render()
		},
	}
}
