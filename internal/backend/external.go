package backend

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"exprsynth/internal/config"
	"exprsynth/internal/logging"
	"exprsynth/internal/metrics"
)

// External is a backend living in its own executable. It is invoked as
//
//	<binary> run <input> <output> <top> [tie-cells]
//	<binary> metric <kind> <input> <output> <top>
//	<binary> cleanup <input> <output> <top>
//
// where metric prints one number on stdout.
type External struct {
	name   string
	binary string
}

// ExternalPath is where the executable of backend name is installed.
func ExternalPath(root, prefix, name string) string {
	return filepath.Join(root, "lib", prefix+"_"+name)
}

// NewExternal locates the executable of backend name under the install
// root, which defaults to $ACT_HOME.
func NewExternal(name string, cfg *config.Store) (*External, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, errors.Errorf("backend: invalid backend name %q", name)
	}
	root, ok := cfg.Path(config.InstallRoot)
	if !ok {
		root = os.Getenv("ACT_HOME")
	}
	if root == "" {
		return nil, errors.Wrapf(config.ErrMissing, "backend %q: set %s or ACT_HOME", name, config.InstallRoot)
	}
	prefix, err := cfg.String(config.BackendPrefix)
	if err != nil {
		return nil, err
	}
	path := ExternalPath(root, prefix, name)
	binary, err := resolveBinary(path, "")
	if err != nil {
		return nil, errors.Wrapf(err, "backend: unknown backend %q", name)
	}
	return &External{name: name, binary: binary}, nil
}

// Name returns the name the backend was resolved from.
func (e *External) Name() string { return e.name }

// Run invokes the executable with the run sub-command.
func (e *External) Run(ctx context.Context, job *Job) error {
	args := []string{"run", job.Input, job.Output, job.TopLevel}
	if job.TieCells {
		args = append(args, "tie-cells")
	}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	logging.Step("%s %s", e.binary, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "backend: %s run failed", e.name)
	}
	return nil
}

// Metric asks the executable for one metric and parses its output.
func (e *External) Metric(job *Job, kind metrics.Kind) (float64, error) {
	var out bytes.Buffer
	cmd := exec.Command(e.binary, "metric", kind.String(), job.Input, job.Output, job.TopLevel)
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return 0, errors.Wrapf(err, "backend: %s metric %s failed", e.name, kind)
	}
	text := strings.TrimSpace(out.String())
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errors.Errorf("backend: %s metric %s: bad value %q", e.name, kind, text)
	}
	return v, nil
}

// Cleanup invokes the executable with the cleanup sub-command.
func (e *External) Cleanup(job *Job) {
	cmd := exec.Command(e.binary, "cleanup", job.Input, job.Output, job.TopLevel)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	logging.Step("%s cleanup %s %s %s", e.binary, job.Input, job.Output, job.TopLevel)
	if err := cmd.Run(); err != nil {
		log.Warnf("backend: %s cleanup failed: %v", e.name, err)
	}
}
