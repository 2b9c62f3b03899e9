package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		runtime string
		brk     string
		dir     string
		env     []string
	)

	cmd := &cobra.Command{
		Use:   "run [flags] program [-- args...]",
		Short: "Launch a program under the debugger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := breakKind(brk, g.configPath)
			if err != nil {
				return err
			}
			vars, err := parseEnv(env)
			if err != nil {
				return err
			}
			program, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			opts := g.options()
			opts.Launch = &engine.LaunchOptions{
				Runtime:          engine.Kind(runtime),
				Filename:         program,
				Args:             args[1:],
				WorkingDirectory: workingDir(dir),
				Env:              vars,
				Break:            kind,
			}
			return session(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&runtime, "runtime", "r", string(engine.KindDelve), "Debug engine (see 'dbgcore engines')")
	cmd.Flags().StringVarP(&brk, "break", "b", "", "Pause on: none, create-process, first-module, exe-module, first-thread, entry-point")
	cmd.Flags().StringVarP(&dir, "cwd", "C", "", "Working directory for the program")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	return cmd
}
