package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"exprsynth/internal/diag"
	"exprsynth/internal/frontend"
	"exprsynth/internal/ir"
	"exprsynth/internal/passes"
	"exprsynth/internal/validate"
)

// exprFlags select the expression a command works on.
type exprFlags struct {
	widths   []string
	outWidth int
	name     string
}

func (f *exprFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.widths, "width", "w", nil, "signal widths as name=bits, comma separated (repeatable)")
	cmd.Flags().IntVar(&f.outWidth, "out-width", 0, "output width (inferred when 0)")
	cmd.Flags().StringVar(&f.name, "name", "blk", "top-level module name")
}

// loadedExpr is a parsed, bound and checked expression.
type loadedExpr struct {
	arena    *ir.Arena
	root     ir.NodeID
	leaves   ir.LeafMap
	widths   map[ir.NodeID]int
	outWidth int
}

func (f *exprFlags) load(src, diagFormat string) (*loadedExpr, error) {
	reporter := diag.NewReporter(os.Stderr, diagFormat)
	expr, err := frontend.ParseExpression(src, reporter)
	if err != nil {
		return nil, err
	}
	signals, err := frontend.ParseWidths(f.widths)
	if err != nil {
		return nil, err
	}
	leaves, err := ir.BindSignals(expr.Arena, expr.Root, signals)
	if err != nil {
		return nil, err
	}
	if err := validate.CheckExpression(expr.Arena, expr.Root, leaves, reporter); err != nil {
		return nil, err
	}
	widths, err := passes.NewWidthInference(reporter).Run(expr.Arena, expr.Root, leaves)
	if err != nil {
		return nil, err
	}
	out := f.outWidth
	if out == 0 {
		out = widths[expr.Root]
	}
	if out < 0 {
		return nil, errors.Errorf("output width %d must be positive", out)
	}
	return &loadedExpr{arena: expr.Arena, root: expr.Root, leaves: leaves, widths: widths, outWidth: out}, nil
}
