package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/dbgcore/internal/app"
)

func newEnginesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the available debug engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := g.options()
			opts.In = strings.NewReader("")
			opts.MetricsAddr = ""
			a, err := app.New(opts)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			for _, k := range a.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
