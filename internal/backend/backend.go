package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"exprsynth/internal/config"
	"exprsynth/internal/metrics"
)

// Job is one synthesis run: the Verilog module TopLevel in Input is mapped
// into Output.
type Job struct {
	Input    string
	Output   string
	TopLevel string
	// TieCells inserts tie-high/tie-low cells for constant outputs.
	TieCells bool
	// Handle is backend-private state attached to the job.
	Handle any
}

// Backend maps a Verilog module to cells and reports its metrics.
type Backend interface {
	Name() string
	Run(ctx context.Context, job *Job) error
	Metric(job *Job, kind metrics.Kind) (float64, error)
	// Cleanup removes the job's files. Failures are only logged.
	Cleanup(job *Job)
}

// ModuleRenamer is implemented by backends that need the emitted module to
// carry a different name than the job's top level.
type ModuleRenamer interface {
	ModuleName(top string) string
}

// ModuleName returns the module name b expects for top.
func ModuleName(b Backend, top string) string {
	if r, ok := b.(ModuleRenamer); ok {
		return r.ModuleName(top)
	}
	return top
}

// Factory builds a backend from the configuration.
type Factory func(cfg *config.Store) (Backend, error)

var builtins = map[string]Factory{
	"abc":   func(cfg *config.Store) (Backend, error) { return NewABC(cfg, nil) },
	"yosys": func(cfg *config.Store) (Backend, error) { return NewYosys(cfg) },
	"genus": func(cfg *config.Store) (Backend, error) { return NewGenus(cfg) },
}

// Builtins lists the names of the built-in backends.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the backend called name. Names that are not built in resolve
// to an executable <install_root>/lib/<prefix>_<name>.
func New(name string, cfg *config.Store) (Backend, error) {
	if f, ok := builtins[name]; ok {
		return f(cfg)
	}
	return NewExternal(name, cfg)
}

// requireLiberty returns the typical-corner liberty file, which every
// mapping backend needs.
func requireLiberty(cfg *config.Store) (string, error) {
	lib, ok := cfg.Path(config.LibertyTypical)
	if !ok {
		return "", errors.Wrapf(config.ErrMissing, "please define %s in the configuration", config.LibertyTypical)
	}
	return lib, nil
}

// toolPath returns the configured path of a tool, or its default name.
func toolPath(cfg *config.Store, key, fallback string) string {
	if p, ok := cfg.Path(key); ok {
		return p
	}
	return fallback
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" && strings.ContainsRune(explicit, filepath.Separator) {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	if explicit != "" {
		fallback = explicit
	}
	path, err := exec.LookPath(fallback)
	if err != nil {
		return "", err
	}
	return path, nil
}

// constraintsPath is the .sdc file next to a .v input.
func constraintsPath(input string) (string, error) {
	if len(input) < 3 || !strings.HasSuffix(input, ".v") {
		return "", errors.Errorf("backend: verilog source %q should end in .v", input)
	}
	return strings.TrimSuffix(input, ".v") + ".sdc", nil
}

// removeFiles deletes paths and every match of globs, logging failures.
func removeFiles(paths []string, globs ...string) {
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			log.Warnf("cleanup: bad pattern %s: %v", g, err)
			continue
		}
		paths = append(paths, matches...)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			log.Warnf("cleanup: %v", err)
		}
	}
}
