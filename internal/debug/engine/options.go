package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// StartOptions describe how to start debugging. The manager only reads the
// methods below; everything else is for the engine.
type StartOptions interface {
	// RuntimeKind selects the engine.
	RuntimeKind() Kind

	// StartKind reports launch or attach.
	StartKind() StartKind

	// BreakOn is the break-on-event policy.
	BreakOn() BreakKind

	// Validate checks the options before an engine is created.
	Validate() error
}

// LaunchOptions start a new debuggee.
type LaunchOptions struct {
	Runtime          Kind              `json:"runtime" yaml:"runtime" toml:"runtime"`
	Filename         string            `json:"filename" yaml:"filename" toml:"filename"`
	Args             []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	WorkingDirectory string            `json:"workingDirectory,omitempty" yaml:"working_directory,omitempty" toml:"working_directory,omitempty"`
	Env              map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Break            BreakKind         `json:"break,omitempty" yaml:"break,omitempty" toml:"break,omitempty"`
}

// RuntimeKind implements StartOptions.
func (o *LaunchOptions) RuntimeKind() Kind { return o.Runtime }

// StartKind implements StartOptions.
func (o *LaunchOptions) StartKind() StartKind { return Launch }

// BreakOn implements StartOptions.
func (o *LaunchOptions) BreakOn() BreakKind { return o.Break }

// Validate checks that the executable exists and the working directory, if
// given, is a directory.
func (o *LaunchOptions) Validate() error {
	if o.Filename == "" {
		return &OptionError{Field: "filename", Reason: "is required"}
	}
	info, err := os.Stat(o.Filename)
	if err != nil {
		return &OptionError{Field: "filename", Reason: fmt.Sprintf("%q does not exist", o.Filename)}
	}
	if info.IsDir() {
		return &OptionError{Field: "filename", Reason: fmt.Sprintf("%q is a directory", o.Filename)}
	}
	if o.WorkingDirectory != "" {
		info, err := os.Stat(o.WorkingDirectory)
		if err != nil || !info.IsDir() {
			return &OptionError{Field: "working directory", Reason: fmt.Sprintf("%q is not a directory", o.WorkingDirectory)}
		}
	}
	return nil
}

// Dir returns the working directory, defaulting to the executable's directory.
func (o *LaunchOptions) Dir() string {
	if o.WorkingDirectory != "" {
		return o.WorkingDirectory
	}
	return filepath.Dir(o.Filename)
}

// Environ returns the process environment with Env applied on top.
func (o *LaunchOptions) Environ() []string {
	env := os.Environ()
	for k, v := range o.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// AttachOptions attach to a running process or a listening debug server.
type AttachOptions struct {
	Runtime Kind      `json:"runtime" yaml:"runtime" toml:"runtime"`
	PID     int       `json:"pid,omitempty" yaml:"pid,omitempty" toml:"pid,omitempty"`
	Address string    `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`
	Break   BreakKind `json:"break,omitempty" yaml:"break,omitempty" toml:"break,omitempty"`
}

// RuntimeKind implements StartOptions.
func (o *AttachOptions) RuntimeKind() Kind { return o.Runtime }

// StartKind implements StartOptions.
func (o *AttachOptions) StartKind() StartKind { return Attach }

// BreakOn implements StartOptions.
func (o *AttachOptions) BreakOn() BreakKind { return o.Break }

// Validate requires a pid or an address.
func (o *AttachOptions) Validate() error {
	if o.PID < 0 {
		return &OptionError{Field: "pid", Reason: "must not be negative"}
	}
	if o.PID == 0 && o.Address == "" {
		return &OptionError{Field: "pid", Reason: "or address is required"}
	}
	return nil
}
