package main

import (
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"exprsynth/internal/config"
	"exprsynth/internal/ir"
	"exprsynth/internal/pipeline"
	"exprsynth/internal/verilog"
)

func newVerilogCmd(g *globalFlags) *cobra.Command {
	var f exprFlags
	var output string
	cmd := &cobra.Command{
		Use:   "verilog [flags] expression",
		Short: "Emit the Verilog module of an expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			x, err := f.load(args[0], g.diagFormat)
			if err != nil {
				return err
			}
			req, err := pipeline.Single(f.name, x.arena, x.root, x.leaves, x.outWidth)
			if err != nil {
				return err
			}
			m := pipeline.ModuleOf(f.name, req)
			m.VectorizeAll = cfg.IntOr(config.VectorizeAllPorts, 0) != 0
			return withOutputWriter(cmd, output, func(w io.Writer) error {
				return verilog.Emit(w, x.arena, x.leaves, m)
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when omitted)")
	return cmd
}

func newInspectCmd(g *globalFlags) *cobra.Command {
	var f exprFlags
	cmd := &cobra.Command{
		Use:   "inspect [flags] expression",
		Short: "Dump the parsed expression, its bindings and node widths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.loadConfig(); err != nil {
				return err
			}
			x, err := f.load(args[0], g.diagFormat)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			io.WriteString(w, "expression: "+ir.Format(x.arena, x.root)+"\n")
			io.WriteString(w, "canonical:  "+ir.CanonicalText(x.arena, x.root)+"\n")
			ir.Dump(x.arena, x.root, w)
			cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
			io.WriteString(w, "leaves: ")
			cfg.Fdump(w, x.leaves)
			io.WriteString(w, "widths: ")
			cfg.Fdump(w, x.widths)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
