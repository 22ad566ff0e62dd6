package main

import (
	"github.com/spf13/cobra"

	"exprsynth/internal/abc"
)

// newServerCmd is the child side of the abc backend. It speaks the framed
// protocol on stdin and stdout, so it must never print anything else there.
func newServerCmd() *cobra.Command {
	var opts abc.ServerOptions
	var binary string
	cmd := &cobra.Command{
		Use:    abc.ServerCommand,
		Short:  "Serve abc optimisation sessions over stdin and stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			server := abc.NewServer(&abc.ScriptTool{Binary: binary}, opts)
			return server.Serve(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Liberty, "liberty", "", "cell library read into every session")
	cmd.Flags().StringVar(&binary, "abc", "abc", "abc executable")
	cmd.Flags().BoolVar(&opts.UseConstraints, "constraints", false, "load each session's constraint file")
	return cmd
}
