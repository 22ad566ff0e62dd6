package frontend

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprsynth/internal/diag"
	"exprsynth/internal/ir"
)

func TestParseExpressionRoundTrips(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x + y", "(x+y)"},
		{"x[3:1]", "x[3:1]"},
		{"a & ^b | c[0]", "((a&~(b))|c[0:0])"},
		{"sel(x < 4, 0x1f, cat(y, true))", "((x<4)?31:{y,true})"},
		{"asr(x, 2) == int(bool(y), 3)", "((x>>>2)==int(bool(y),3))"},
		{"!(en && ok)", "!((en&ok))"},
		{"-(x << 1_0)", "-((x<<10))"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expr, err := ParseExpression(tt.src, nil)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, ir.Format(expr.Arena, expr.Root)); diff != "" {
				t.Fatalf("format mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseExpressionReportsErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x +", "expected operand"},
		{"x &^ y", "unsupported binary operator &^"},
		{"f(x)", "unknown function f"},
		{"sel(a, b)", "sel called with 2 argument(s)"},
		{"x[y:1]", "bit index must be an integer literal"},
		{`"s"`, "unsupported literal"},
		{"x.y", "unsupported construct"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := ParseExpression(tt.src, diag.NewReporter(&buf, "text"))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Fatalf("expected %q in diagnostics, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestParseWidths(t *testing.T) {
	got, err := ParseWidths([]string{"x=4,y=4", " c = 1"})
	if err != nil {
		t.Fatalf("parse widths: %v", err)
	}
	want := map[string]int{"x": 4, "y": 4, "c": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("widths mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"x", "x=0", "x=abc"} {
		if _, err := ParseWidths([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
