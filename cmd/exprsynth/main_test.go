package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerilogCommand(t *testing.T) {
	out, err := execute(t, "", "verilog", "x + y", "-w", "x=4,y=4", "--name", "sum")
	if err != nil {
		t.Fatalf("verilog: %v", err)
	}
	for _, fragment := range []string{"module sum (x, y, out );", "\tinput [3:0] x ;", "\toutput [4:0] out ;", "endmodule"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("output lacks %q:\n%s", fragment, out)
		}
	}
}

func TestVerilogCommandWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blk.v")
	if _, err := execute(t, "", "verilog", "x[3:1]", "-w", "x=4", "-o", path); err != nil {
		t.Fatalf("verilog: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "\toutput [2:0] out ;") {
		t.Fatalf("expected a 3-bit output:\n%s", data)
	}
}

func TestInspectCommand(t *testing.T) {
	out, err := execute(t, "", "inspect", "a & b", "-w", "a=2", "-w", "b=3")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, fragment := range []string{"expression: (a&b)", "canonical:  (v0&v1)", "leaves: ", "widths: "} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("output lacks %q:\n%s", fragment, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "parse error", args: []string{"verilog", "x +", "-w", "x=4"}},
		{name: "missing width", args: []string{"verilog", "x + y", "-w", "x=4"}},
		{name: "bad override", args: []string{"verilog", "x", "-w", "x=1", "--set", "verbose"}},
		{name: "missing argument", args: []string{"synth"}},
		{name: "unknown backend", args: []string{"synth", "x", "-w", "x=1", "-b", "nope", "--set", "install_root=/nonexistent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, "", tt.args...); err == nil {
				t.Fatalf("expected %v to fail", tt.args)
			}
		})
	}
}

func TestSynthUsesCache(t *testing.T) {
	requirePosix(t)
	root := t.TempDir()
	runs := filepath.Join(root, "runs")
	writeScript(t, filepath.Join(root, "lib"), "expropt_fake", `#!/bin/sh
set -e
case "$1" in
  run)
    echo run >> "`+runs+`"
    cp "$2" "$3" ;;
  metric)
    case "$2" in
      delay_typ) echo 2e-10 ;;
      area) echo 1.5e-11 ;;
      *) echo 0 ;;
    esac ;;
  cleanup) ;;
esac
`)
	cacheDir := filepath.Join(root, "cache")
	args := []string{
		"synth", "x + y", "-w", "x=4,y=4",
		"-b", "fake",
		"--set", "install_root=" + root,
		"--set", "verbose=0",
		"--cache-dir", cacheDir,
		"--work-dir", t.TempDir(),
	}
	var outputs []string
	for i := 0; i < 2; i++ {
		out, err := execute(t, "", args...)
		if err != nil {
			t.Fatalf("synth %d: %v\n%s", i, err, out)
		}
		outputs = append(outputs, out)
	}
	if outputs[0] != outputs[1] {
		t.Fatalf("cached run differs:\n%s\n---\n%s", outputs[0], outputs[1])
	}
	for _, fragment := range []string{"(v0+v1)_4_4_5", "1.5e-11 m^2", "delay (s)", "module"} {
		if !strings.Contains(outputs[0], fragment) {
			t.Fatalf("output lacks %q:\n%s", fragment, outputs[0])
		}
	}
	data, err := os.ReadFile(runs)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if n := strings.Count(string(data), "run"); n != 1 {
		t.Fatalf("backend ran %d times", n)
	}

	list, err := execute(t, "", "cache", "list", "--cache-dir", cacheDir, "--set", "verbose=0")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(list, "(v0+v1)_4_4_5") {
		t.Fatalf("cache list lacks the entry:\n%s", list)
	}
	verify, err := execute(t, "", "cache", "verify", "--cache-dir", cacheDir, "--set", "verbose=0")
	if err != nil {
		t.Fatalf("cache verify: %v", err)
	}
	if !strings.Contains(verify, "1 entries ok") {
		t.Fatalf("unexpected verify output: %s", verify)
	}

	if err := os.Remove(filepath.Join(cacheDir, "0pre.v")); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}
	if _, err := execute(t, "", "cache", "verify", "--cache-dir", cacheDir, "--set", "verbose=0"); err == nil {
		t.Fatalf("expected verify to fail on a missing artifact")
	}
}

func TestServerCommandAnswersFrames(t *testing.T) {
	out, err := execute(t, "$cmd$print_stats$$bye$", "abc-server", "--liberty", "lib.lib")
	if err != nil {
		t.Fatalf("abc-server: %v", err)
	}
	if out != "$err$" {
		t.Fatalf("replies = %q", out)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX system")
	}
}
