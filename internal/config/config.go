package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/integration/adapters"
	"github.com/dshills/dbgcore/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DBGCORE"

// Duration is a time.Duration written as "1s" or "250ms" in files and the
// environment.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the complete dbgcore configuration.
type Config struct {
	Log      logging.Config `toml:"log" yaml:"log" split_words:"true"`
	Debugger DebuggerConfig `toml:"debugger" yaml:"debugger" split_words:"true"`
	Engines  EnginesConfig  `toml:"engines" yaml:"engines" split_words:"true"`
	// Hooks are Lua scripts loaded at startup.
	Hooks   []string      `toml:"hooks" yaml:"hooks" split_words:"true"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics" split_words:"true"`
}

// DebuggerConfig holds the session manager settings.
type DebuggerConfig struct {
	BreakAllProcesses      bool     `toml:"break_all_processes" yaml:"break_all_processes" split_words:"true"`
	DelayedRunningInterval Duration `toml:"delayed_running_interval" yaml:"delayed_running_interval" split_words:"true"`
	// Break is the default break kind for new sessions, for example "entry-point".
	Break string `toml:"break" yaml:"break" split_words:"true"`
}

// EnginesConfig locates the debug back ends.
type EnginesConfig struct {
	// DlvPath is the dlv binary used by the native Delve engine.
	DlvPath string `toml:"dlv_path" yaml:"dlv_path" split_words:"true"`
	// Timeout bounds engine requests.
	Timeout Duration `toml:"timeout" yaml:"timeout" split_words:"true"`
	// Adapters configures DAP adapters by runtime kind: "go-dap", "python", "node".
	Adapters map[string]adapters.Config `toml:"adapters" yaml:"adapters" ignored:"true"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, for example ":9464". Empty disables it.
	Addr string `toml:"addr" yaml:"addr" split_words:"true"`
}

// Default returns the built in configuration.
func Default() *Config {
	return &Config{
		Log: logging.DefaultConfig(),
		Debugger: DebuggerConfig{
			DelayedRunningInterval: Duration(debug.DefaultSettings().DelayedRunningInterval),
			Break:                  engine.BreakNone.String(),
		},
		Engines: EnginesConfig{
			Timeout:  Duration(10 * time.Second),
			Adapters: map[string]adapters.Config{},
		},
	}
}

// Load reads path on top of Default, applies the environment and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			pe := &ParseError{Path: path, Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				pe.Line, pe.Column = derr.Position()
			}
			return pe
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// ApplyEnv overrides c with DBGCORE_ environment variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if err := c.Log.Validate(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Debugger.DelayedRunningInterval < 0 {
		errs = multierror.Append(errs, errors.New("debugger.delayed_running_interval must not be negative"))
	}
	if _, err := c.BreakKind(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("debugger.break: %w", err))
	}
	if c.Engines.Timeout < 0 {
		errs = multierror.Append(errs, errors.New("engines.timeout must not be negative"))
	}
	for _, k := range sortedKeys(c.Engines.Adapters) {
		switch engine.Kind(k) {
		case engine.KindGoDAP, engine.KindPython, engine.KindNode:
		default:
			errs = multierror.Append(errs, fmt.Errorf("engines.adapters: unknown adapter %q", k))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Settings returns the session manager settings.
func (c *Config) Settings() debug.Settings {
	return debug.Settings{
		BreakAllProcesses:      c.Debugger.BreakAllProcesses,
		DelayedRunningInterval: time.Duration(c.Debugger.DelayedRunningInterval),
	}
}

// BreakKind parses Debugger.Break.
func (c *Config) BreakKind() (engine.BreakKind, error) {
	return engine.ParseBreakKind(c.Debugger.Break)
}

// AdapterConfigs returns the adapter settings keyed by runtime kind.
func (c *Config) AdapterConfigs() map[engine.Kind]adapters.Config {
	out := make(map[engine.Kind]adapters.Config, len(c.Engines.Adapters))
	for k, v := range c.Engines.Adapters {
		out[engine.Kind(k)] = v
	}
	return out
}

// DefaultPath returns the user config file, $XDG_CONFIG_HOME/dbgcore/config.toml
// or its platform equivalent, or "" when it does not exist.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, "dbgcore", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
