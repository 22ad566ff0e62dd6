package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"exprsynth/internal/cache"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	var backendName, dir string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the expression cache",
	}
	cmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "abc", "backend whose cache to open")
	cmd.PersistentFlags().StringVar(&dir, "cache-dir", "", "cache directory (overrides the configured cache root)")

	open := func() (*cache.Cache, error) {
		cfg, err := g.loadConfig()
		if err != nil {
			return nil, err
		}
		path := dir
		if path == "" {
			if path, err = cache.Dir(cfg, backendName); err != nil {
				return nil, err
			}
		}
		return cache.Open(path, nil, cache.Options{})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the cached expression blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "slot\tmodule\tdelay (s)\tpower (W)\tarea\tid")
			for _, e := range c.Entries() {
				r := e.Result
				fmt.Fprintf(tw, "%d\t%s\t%g\t%g\t%g\t%s\n", e.Slot, cache.ModuleName(e.ID), r.Delay.Typ, r.TotalPower.Typ, r.Area, e.ID)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the index against the artifacts on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			if err := c.Verify(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries ok\n", c.Path(), len(c.Entries()))
			return nil
		},
	})
	return cmd
}
