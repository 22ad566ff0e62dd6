package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"exprsynth/internal/config"
	"exprsynth/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := newRootCmd(os.Stdout)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// globalFlags are shared by every command.
type globalFlags struct {
	configs    []string
	overrides  []string
	verbose    bool
	diagFormat string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "exprsynth",
		Short:         "Synthesize expression blocks into mapped gate-level netlists.",
		Long:          "Compile bit-vector expressions into Verilog, map them with a logic synthesis backend and cache the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	flags := root.PersistentFlags()
	flags.StringArrayVar(&g.configs, "config", nil, "read a configuration file (repeatable)")
	flags.StringArrayVar(&g.overrides, "set", nil, "override a configuration key, as key=value (repeatable)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "log every external command")
	flags.StringVar(&g.diagFormat, "diag-format", "text", "diagnostic output format (text|json)")

	root.AddCommand(
		newSynthCmd(g),
		newVerilogCmd(g),
		newInspectCmd(g),
		newCacheCmd(g),
		newServerCmd(),
	)
	return root
}

// loadConfig builds the configuration from the defaults, the --config files
// and the --set overrides, then configures logging from it.
func (g *globalFlags) loadConfig() (*config.Store, error) {
	cfg := config.Defaults()
	for _, path := range g.configs {
		if err := cfg.Load(path); err != nil {
			return nil, err
		}
	}
	for _, kv := range g.overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.Errorf("--set %q is not key=value", kv)
		}
		if !strings.Contains(key, ".") {
			key = config.Prefix + key
		}
		if err := cfg.Set(key, value); err != nil {
			return nil, err
		}
	}
	verbosity := cfg.IntOr(config.Verbose, logging.Progress)
	if g.verbose {
		verbosity = logging.Debug
	}
	logging.Setup(os.Stderr, verbosity)
	return cfg, nil
}

func withOutputWriter(cmd *cobra.Command, path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = fn(f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}
