package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

func newAttachCmd(g *globalFlags) *cobra.Command {
	var (
		runtime string
		brk     string
		pid     int
		address string
	)

	cmd := &cobra.Command{
		Use:   "attach (--pid PID | --address HOST:PORT)",
		Short: "Attach the debugger to a running process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pid == 0) == (address == "") {
				return errors.New("exactly one of --pid and --address is required")
			}
			kind, err := breakKind(brk, g.configPath)
			if err != nil {
				return err
			}

			opts := g.options()
			opts.Attach = &engine.AttachOptions{
				Runtime: engine.Kind(runtime),
				PID:     pid,
				Address: address,
				Break:   kind,
			}
			return session(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&runtime, "runtime", "r", string(engine.KindDelve), "Debug engine (see 'dbgcore engines')")
	cmd.Flags().StringVarP(&brk, "break", "b", "", "Pause on: none, create-process, first-thread")
	cmd.Flags().IntVarP(&pid, "pid", "p", 0, "Process id")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Address of a remote debug server")
	return cmd
}
