package translate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"exprsynth/internal/config"
)

func TestArgs(t *testing.T) {
	cfg := config.Defaults()
	cfg.SetString(config.CellLibQDI, "qdi.act")
	cfg.SetString(config.CellLibBD, "bd.act")

	qdi, err := New(cfg, QDI, "out.act")
	if err != nil {
		t.Fatalf("qdi: %v", err)
	}
	want := []string{"-a", "-C", "sdtexprchan<1>", "-l", "qdi.act", "-n", "syn", "blk.v"}
	if diff := cmp.Diff(want, qdi.Args("blk.v")); diff != "" {
		t.Fatalf("qdi args mismatch (-want +got):\n%s", diff)
	}

	bd, err := New(cfg, BundledData, "out.act")
	if err != nil {
		t.Fatalf("bd: %v", err)
	}
	want = []string{"-l", "bd.act", "-n", "syn", "blk.v"}
	if diff := cmp.Diff(want, bd.Args("blk.v")); diff != "" {
		t.Fatalf("bd args mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRequiresCellLibrary(t *testing.T) {
	if _, err := New(config.Defaults(), QDI, "out.act"); errors.Cause(err) != config.ErrMissing {
		t.Fatalf("expected missing cell library, got %v", err)
	}
	if _, err := ParseTarget("sync"); err == nil {
		t.Fatalf("expected unknown target to fail")
	}
}

func TestAppend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
	dir := t.TempDir()
	v2act := filepath.Join(dir, "v2act")
	script := "#!/bin/sh\nfor last; do :; done\necho \"defproc from $last\"\n"
	if err := os.WriteFile(v2act, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	out := filepath.Join(dir, "expr.act")
	tr := &Translator{Binary: v2act, CellLib: "bd.act", Namespace: "syn", WireType: "bool", Output: out}
	for _, netlist := range []string{"1.v", "2.v"} {
		if err := tr.Append(context.Background(), netlist); err != nil {
			t.Fatalf("append %s: %v", netlist, err)
		}
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if diff := cmp.Diff("defproc from 1.v\ndefproc from 2.v\n", string(data)); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}
