package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopEngine struct{ kind Kind }

func (e *nopEngine) Kind() Kind { return e.kind }
func (e *nopEngine) Tags() []string { return nil }
func (e *nopEngine) Start(context.Context, Sink) error { return nil }
func (e *nopEngine) Break() error { return nil }
func (e *nopEngine) Run() error { return nil }
func (e *nopEngine) Step(int, StepKind) error { return nil }
func (e *nopEngine) Detach() error { return nil }
func (e *nopEngine) Terminate() error { return nil }
func (e *nopEngine) CanDetachWithoutTerminating() bool { return true }
func (e *nopEngine) CanRestart() bool { return false }
func (e *nopEngine) Close() error { return nil }

func executable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()
	r.Register(KindDelve, func(opts StartOptions) (Engine, error) {
		return &nopEngine{kind: opts.RuntimeKind()}, nil
	})

	eng, err := r.Create(&LaunchOptions{Runtime: KindDelve, Filename: executable(t)})
	require.NoError(t, err)
	assert.Equal(t, KindDelve, eng.Kind())
	assert.True(t, r.Has(KindDelve))
	assert.Equal(t, []Kind{KindDelve}, r.Kinds())
}

func TestRegistry_CreateErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(KindPython, func(StartOptions) (Engine, error) {
		return nil, errors.New("debugpy missing")
	})

	tests := []struct {
		name   string
		opts   StartOptions
		target error
		text   string
	}{
		{name: "nil options", opts: nil, target: ErrInvalidOptions},
		{name: "unknown kind", opts: &AttachOptions{Runtime: "cobol", PID: 1}, target: ErrUnknownKind, text: `"cobol"`},
		{name: "missing file", opts: &LaunchOptions{Runtime: KindPython, Filename: "/does/not/exist"}, target: ErrInvalidOptions, text: "does not exist"},
		{name: "provider failure", opts: &AttachOptions{Runtime: KindPython, PID: 10}, text: "create python engine: debugpy missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := r.Create(tt.opts)
			require.Error(t, err)
			assert.Nil(t, eng)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.text != "" {
				assert.Contains(t, err.Error(), tt.text)
			}
		})
	}
}

func TestLaunchOptions_Validate(t *testing.T) {
	exe := executable(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		opts    LaunchOptions
		wantErr bool
	}{
		{name: "ok", opts: LaunchOptions{Filename: exe}},
		{name: "ok with dir", opts: LaunchOptions{Filename: exe, WorkingDirectory: dir}},
		{name: "empty", opts: LaunchOptions{}, wantErr: true},
		{name: "directory as file", opts: LaunchOptions{Filename: dir}, wantErr: true},
		{name: "bad dir", opts: LaunchOptions{Filename: exe, WorkingDirectory: exe}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLaunchOptions_DirAndEnv(t *testing.T) {
	o := &LaunchOptions{Filename: "/opt/app/bin/server", Env: map[string]string{"DBG": "1"}}
	assert.Equal(t, "/opt/app/bin", o.Dir())
	assert.Contains(t, o.Environ(), "DBG=1")

	o.WorkingDirectory = "/tmp"
	assert.Equal(t, "/tmp", o.Dir())
}

func TestAttachOptions_Validate(t *testing.T) {
	assert.NoError(t, (&AttachOptions{PID: 12}).Validate())
	assert.NoError(t, (&AttachOptions{Address: "127.0.0.1:4000"}).Validate())
	assert.ErrorIs(t, (&AttachOptions{}).Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, (&AttachOptions{PID: -1}).Validate(), ErrInvalidOptions)
}

func TestBreakKind_Text(t *testing.T) {
	for _, k := range BreakKinds() {
		parsed, err := ParseBreakKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	var k BreakKind
	require.NoError(t, k.UnmarshalText([]byte("Entry-Point")))
	assert.Equal(t, BreakEntryPoint, k)
	assert.Error(t, k.UnmarshalText([]byte("sometimes")))

	parsed, err := ParseBreakKind("")
	require.NoError(t, err)
	assert.Equal(t, BreakNone, parsed)
}

func TestName(t *testing.T) {
	assert.Equal(t, "break_requested", Name(&BreakRequested{}))
	assert.Equal(t, "process_exited", Name(&ProcessExited{}))
	assert.Equal(t, "module_loaded", Name(&ModuleLoaded{}))
}

func TestFlags_Embedded(t *testing.T) {
	var m Message = &ThreadCreated{Flags: Flags{Suspended: true}}
	assert.True(t, m.MessageFlags().Suspended)
	assert.False(t, m.MessageFlags().Pause)
}
