package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpressionsMatchGoldenVerilog(t *testing.T) {
	testcases := []struct {
		name   string
		expr   string
		widths string
	}{
		{name: "sum", expr: "x + y", widths: "x=4,y=4"},
		{name: "slice", expr: "x[3:1]", widths: "x=4"},
		{name: "shift", expr: "a << b", widths: "a=4,b=2"},
		{name: "compare", expr: "c == 3", widths: "c=2"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), tc.name+".v")
			args := []string{"verilog", tc.expr, "-w", tc.widths, "--name", tc.name, "-o", output}
			if out, err := execute(t, "", args...); err != nil {
				t.Fatalf("verilog %s failed: %v\n%s", tc.name, err, out)
			}
			verifyGolden(t, tc.name, output)
		})
	}
}

func verifyGolden(t *testing.T, name, actualPath string) {
	t.Helper()
	expected, err := os.ReadFile(filepath.Join("testdata", name+".v"))
	if err != nil {
		t.Fatalf("read golden for %s: %v", name, err)
	}
	actual, err := os.ReadFile(actualPath)
	if err != nil {
		t.Fatalf("read output for %s: %v", name, err)
	}
	if diff := cmp.Diff(string(expected), string(actual)); diff != "" {
		t.Fatalf("verilog mismatch for %s (-want +got):\n%s", name, diff)
	}
}
