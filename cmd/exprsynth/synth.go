package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"exprsynth/internal/backend"
	"exprsynth/internal/cache"
	"exprsynth/internal/config"
	"exprsynth/internal/logging"
	"exprsynth/internal/metrics"
	"exprsynth/internal/pipeline"
	"exprsynth/internal/translate"
)

type synthFlags struct {
	exprFlags
	backend  string
	output   string
	target   string
	workDir  string
	cacheDir string
	noCache  bool
	tieCells bool
}

func newSynthCmd(g *globalFlags) *cobra.Command {
	f := &synthFlags{}
	cmd := &cobra.Command{
		Use:   "synth [flags] expression",
		Short: "Map an expression with a synthesis backend and report its metrics",
		Long: `Map an expression with a synthesis backend and report its metrics.

Results are cached under <cache root>/$ACT_TECH/<backend> unless --no-cache
is given. With --output the mapped netlist is translated and appended to
that file.

Unmapped integer literals are 64 bits wide, so a literal left-shift amount
must be sized explicitly: write x << int(2, 2), not x << 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(cmd, g, f, args[0])
		},
	}
	f.register(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&f.backend, "backend", "b", "abc", "synthesis backend (abc|yosys|genus or an installed extension)")
	flags.StringVarP(&f.output, "output", "o", "", "append the translated netlist to this file")
	flags.StringVar(&f.target, "target", "qdi", "translation target (qdi|bd)")
	flags.StringVar(&f.workDir, "work-dir", "", "directory for temporary files")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "cache directory (overrides the configured cache root)")
	flags.BoolVar(&f.noCache, "no-cache", false, "always synthesize, bypassing the cache")
	flags.BoolVar(&f.tieCells, "tie-cells", false, "drive constant outputs through tie cells")
	return cmd
}

func runSynth(cmd *cobra.Command, g *globalFlags, f *synthFlags, src string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	x, err := f.load(src, g.diagFormat)
	if err != nil {
		return err
	}
	b, err := backend.New(f.backend, cfg)
	if err != nil {
		return err
	}
	defer closeBackend(b)

	opts := pipeline.Options{WorkDir: f.workDir, TieCells: f.tieCells}
	if f.output != "" {
		target, err := translate.ParseTarget(f.target)
		if err != nil {
			return err
		}
		if opts.Translator, err = translate.New(cfg, target, f.output); err != nil {
			return err
		}
	}
	synth := pipeline.New(b, cfg, opts)
	ctx := cmd.Context()
	defer logging.Finish()

	if f.noCache {
		req, err := pipeline.Single(f.name, x.arena, x.root, x.leaves, x.outWidth)
		if err != nil {
			return err
		}
		req.Translate = f.output != ""
		out, err := synth.Synthesize(ctx, req)
		if err != nil {
			return err
		}
		defer out.Cleanup()
		logging.Finish()
		return printResult(cmd.OutOrStdout(), out.Module, &out.Result)
	}

	dir := f.cacheDir
	if dir == "" {
		if dir, err = cache.Dir(cfg, b.Name()); err != nil {
			return err
		}
	}
	c, err := cache.Open(dir, synth, cache.Options{
		Invalidate: cfg.IntOr(config.CacheInvalidate, 0) != 0,
		Emit:       f.output != "",
	})
	if err != nil {
		return err
	}
	e, err := c.GetOrSynthesize(ctx, &cache.Expr{Arena: x.arena, Root: x.root, Leaves: x.leaves, Width: x.outWidth})
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	logging.Finish()
	return printResult(cmd.OutOrStdout(), cache.ModuleName(e.ID), &e.Result)
}

// closeBackend stops backends that hold a child process.
func closeBackend(b backend.Backend) {
	c, ok := b.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warnf("closing %s backend: %v", b.Name(), err)
	}
}

func printResult(w io.Writer, module string, r *metrics.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "module\t%s\n", module)
	if r.ID != "" {
		fmt.Fprintf(tw, "id\t%s\n", r.ID)
	}
	fmt.Fprintf(tw, "netlist\t%s\n", r.MappedFile)
	if !r.Exists() {
		fmt.Fprintf(tw, "area\tnot extracted\n")
	} else {
		fmt.Fprintf(tw, "area\t%g m^2\n", r.Area)
	}
	fmt.Fprintf(tw, "\tmin\ttyp\tmax\n")
	for _, row := range []struct {
		name string
		t    metrics.Triplet
	}{
		{"delay (s)", r.Delay},
		{"static power (W)", r.StaticPower},
		{"dynamic power (W)", r.DynamicPower},
		{"total power (W)", r.TotalPower},
	} {
		fmt.Fprintf(tw, "%s\t%g\t%g\t%g\n", row.name, row.t.Min, row.t.Typ, row.t.Max)
	}
	fmt.Fprintf(tw, "mapper runtime\t%d us\n", r.MapperRuntime)
	fmt.Fprintf(tw, "io runtime\t%d us\n", r.IORuntime)
	return tw.Flush()
}
