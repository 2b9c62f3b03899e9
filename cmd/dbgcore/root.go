package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/dbgcore/internal/app"
	"github.com/dshills/dbgcore/internal/config"
	"github.com/dshills/dbgcore/internal/debug/engine"
)

type globalFlags struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "dbgcore",
		Short:         "dbgcore drives debug engines from one console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(
		newRunCmd(&g),
		newAttachCmd(&g),
		newEnginesCmd(&g),
		newVersionCmd(),
	)
	return root
}

func (g *globalFlags) options() app.Options {
	return app.Options{
		ConfigPath:  g.configPath,
		LogLevel:    g.logLevel,
		MetricsAddr: g.metricsAddr,
	}
}

// session creates the application and runs it until the session ends.
func session(ctx context.Context, opts app.Options) error {
	a, err := app.New(opts)
	if err != nil {
		return err
	}
	defer a.Shutdown()
	return a.Run(ctx)
}

// breakKind resolves the --break flag, falling back to the configured default.
func breakKind(flag, configPath string) (engine.BreakKind, error) {
	if flag != "" {
		return engine.ParseBreakKind(flag)
	}
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return engine.BreakNone, err
	}
	return cfg.BreakKind()
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid environment variable %q, want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

func workingDir(dir string) string {
	if dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
