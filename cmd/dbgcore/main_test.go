package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func quietConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[log]\nlevel = \"error\"\noutput = [\"" + filepath.Join(dir, "log") + "\"]\n[debugger]\nbreak = \"first-thread\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "dbgcore dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestEngines(t *testing.T) {
	out, err := execute(t, "engines", "--config", quietConfig(t))
	if err != nil {
		t.Fatalf("engines failed: %v", err)
	}
	for _, k := range []engine.Kind{engine.KindDelve, engine.KindGoDAP, engine.KindPython, engine.KindNode} {
		if !strings.Contains(out, string(k)) {
			t.Errorf("engines output %q is missing %s", out, k)
		}
	}
}

func TestAttachRequiresOneTarget(t *testing.T) {
	tests := [][]string{
		{"attach"},
		{"attach", "--pid", "1", "--address", "localhost:1"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil || !strings.Contains(err.Error(), "exactly one") {
			t.Errorf("%v: error = %v", args, err)
		}
	}
}

func TestRunRequiresProgram(t *testing.T) {
	if _, err := execute(t, "run"); err == nil {
		t.Error("expected an error without a program")
	}
}

func TestRunRejectsBadBreak(t *testing.T) {
	_, err := execute(t, "run", "--config", quietConfig(t), "--break", "sometimes", "prog")
	if err == nil || !strings.Contains(err.Error(), "unknown break kind") {
		t.Errorf("error = %v", err)
	}
}

func TestBreakKind(t *testing.T) {
	cfg := quietConfig(t)

	k, err := breakKind("entry-point", cfg)
	if err != nil || k != engine.BreakEntryPoint {
		t.Errorf("breakKind(flag) = %v, %v", k, err)
	}
	k, err = breakKind("", cfg)
	if err != nil || k != engine.BreakFirstThread {
		t.Errorf("breakKind(config) = %v, %v", k, err)
	}
}

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"A=1", "B=x=y", "C="})
	if err != nil {
		t.Fatal(err)
	}
	if env["A"] != "1" || env["B"] != "x=y" || env["C"] != "" || len(env) != 3 {
		t.Errorf("parseEnv = %v", env)
	}
	if _, err := parseEnv([]string{"novalue"}); err == nil {
		t.Error("expected error for a pair without '='")
	}
	if env, _ := parseEnv(nil); env != nil {
		t.Errorf("parseEnv(nil) = %v, want nil", env)
	}
}
