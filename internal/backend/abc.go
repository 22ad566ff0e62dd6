package backend

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"exprsynth/internal/abc"
	"exprsynth/internal/config"
	"exprsynth/internal/logging"
	"exprsynth/internal/metrics"
)

// StartFunc launches the optimiser child and returns an engine talking to
// it.
type StartFunc func() (*abc.Engine, error)

// ABC maps through a long-lived abc child process. The child is started
// on the first job and shared by all later ones; Close stops it.
type ABC struct {
	start          StartFunc
	useConstraints bool
	constraints    Constraints

	mu     sync.Mutex
	engine *abc.Engine
}

// NewABC reads the abc options. A nil start launches the running executable
// in server mode.
func NewABC(cfg *config.Store, start StartFunc) (*ABC, error) {
	lib, err := requireLiberty(cfg)
	if err != nil {
		return nil, err
	}
	c, err := constraintsFrom(cfg)
	if err != nil {
		return nil, err
	}
	useConstraints := cfg.IntOr(config.UseConstraints, 0) == 1
	if start == nil {
		args := ServerArgs(lib, toolPath(cfg, config.ABCPath, "abc"), useConstraints)
		start = func() (*abc.Engine, error) {
			return abc.Start(abc.Options{Args: args})
		}
	}
	return &ABC{start: start, useConstraints: useConstraints, constraints: c}, nil
}

// ServerArgs are the arguments of the child's server sub-command.
func ServerArgs(liberty, binary string, useConstraints bool) []string {
	args := []string{abc.ServerCommand, "--liberty", liberty, "--abc", binary}
	if useConstraints {
		args = append(args, "--constraints")
	}
	return args
}

// Name returns "abc".
func (b *ABC) Name() string { return "abc" }

// ModuleName is the name the optimiser's netlist carries; the session
// wraps it in a module called top.
func (b *ABC) ModuleName(top string) string {
	return top + "tmp"
}

func (b *ABC) engineFor() (*abc.Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.engine == nil {
		e, err := b.start()
		if err != nil {
			return nil, errors.Wrap(err, "backend: start abc")
		}
		b.engine = e
	}
	return b.engine, nil
}

// Run maps job.Input in one session of the shared child process.
func (b *ABC) Run(ctx context.Context, job *Job) error {
	if _, err := b.constraints.Write(job.Input); err != nil {
		return err
	}
	engine, err := b.engineFor()
	if err != nil {
		return err
	}
	job.Handle = engine
	logging.Step("built-in abc %s", job.TopLevel)
	if err := engine.StartSession(job.TopLevel, job.Input, job.Output); err != nil {
		return errors.Wrap(err, "backend: unable to start abc session")
	}
	if b.useConstraints {
		if err := engine.RunTiming(); err != nil {
			return errors.Wrap(err, "backend: unable to run timing")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := engine.EndSession(); err != nil {
		return errors.Wrap(err, "backend: unable to end abc session")
	}
	return nil
}

// Metric reports the typical delay and, with constraints enabled, the
// summed gate area. Other metrics are zero.
func (b *ABC) Metric(job *Job, kind metrics.Kind) (float64, error) {
	if kind != metrics.Area && kind != metrics.DelayTyp {
		return 0, nil
	}
	delay, area, err := metrics.ParseABCLog(job.Output + ".log")
	if err != nil {
		return 0, err
	}
	if kind == metrics.DelayTyp {
		return delay, nil
	}
	if !b.useConstraints {
		return metrics.NotExtracted, nil
	}
	return area, nil
}

// Cleanup removes the job netlists, the constraints file and the session logs.
func (b *ABC) Cleanup(job *Job) {
	sdc, _ := constraintsPath(job.Input)
	logging.Step("rm %s %s %s %s.*", job.Output, job.Input, sdc, job.Output)
	removeFiles([]string{job.Output, job.Input, sdc}, job.Output+".*")
}

// Close stops the child process.
func (b *ABC) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.engine == nil {
		return nil
	}
	err := b.engine.Close()
	b.engine = nil
	return err
}
