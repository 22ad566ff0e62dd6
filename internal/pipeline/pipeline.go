// Package pipeline runs one expression block through compilation, module
// emission, the synthesis backend and metric extraction.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"exprsynth/internal/backend"
	"exprsynth/internal/config"
	"exprsynth/internal/ir"
	"exprsynth/internal/metrics"
	"exprsynth/internal/translate"
	"exprsynth/internal/verilog"
)

const (
	filePrefix   = "exprop_"
	mappedSuffix = "_mapped"
)

// Output is one named output or hidden signal of a block.
type Output struct {
	Name  string
	Root  ir.NodeID
	Width int
}

// Request describes one synthesis unit.
type Request struct {
	// Name is the top-level module name and the stem of the work files.
	Name    string
	Arena   *ir.Arena
	Leaves  ir.LeafMap
	Inputs  []verilog.Port
	Outputs []Output
	Hidden  []Output
	// Translate appends the mapped netlist to the translator's output.
	Translate bool
}

// Single returns a request for one expression driving the output "out".
// The inputs are the signals below root in first-occurrence order.
func Single(name string, a *ir.Arena, root ir.NodeID, leaves ir.LeafMap, width int) (*Request, error) {
	inputs, err := verilog.Inputs(a, leaves, root)
	if err != nil {
		return nil, err
	}
	return &Request{
		Name:    name,
		Arena:   a,
		Leaves:  leaves,
		Inputs:  inputs,
		Outputs: []Output{{Name: "out", Root: root, Width: width}},
	}, nil
}

// Options configures a Synthesizer.
type Options struct {
	// WorkDir holds the temporary files; empty means the current directory.
	WorkDir  string
	TieCells bool
	// Translator is required for requests with Translate set.
	Translator *translate.Translator
}

// Synthesizer drives one backend.
type Synthesizer struct {
	backend   backend.Backend
	opts      Options
	keepFiles bool
	vectorize bool
}

// New returns a synthesizer for b.
func New(b backend.Backend, cfg *config.Store, opts Options) *Synthesizer {
	return &Synthesizer{
		backend:   b,
		opts:      opts,
		keepFiles: cfg.IntOr(config.CleanTmpFiles, 1) == 0,
		vectorize: cfg.IntOr(config.VectorizeAllPorts, 0) != 0,
	}
}

// Backend returns the backend the synthesizer runs.
func (s *Synthesizer) Backend() backend.Backend {
	return s.backend
}

// Outcome is a finished run whose work files exist until Cleanup.
type Outcome struct {
	Result metrics.Result
	// Module is the name of the emitted module.
	Module string

	job     *backend.Job
	backend backend.Backend
	keep    bool
}

// Cleanup removes the work files unless temporary files are kept.
func (o *Outcome) Cleanup() {
	if o == nil || o.job == nil || o.keep {
		return
	}
	o.backend.Cleanup(o.job)
	for _, path := range []string{o.job.Input, o.job.Output} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("could not remove %s: %v", path, err)
		}
	}
	o.job = nil
}

// Synthesize emits req as Verilog, maps it with the backend and collects
// every metric. The caller must call Cleanup on the outcome.
func (s *Synthesizer) Synthesize(ctx context.Context, req *Request) (*Outcome, error) {
	if req.Translate && s.opts.Translator == nil {
		return nil, errors.New("pipeline: translation requested without a translator")
	}
	stem := filepath.Join(s.opts.WorkDir, filePrefix+req.Name)
	job := &backend.Job{
		Input:    stem + ".v",
		Output:   stem + mappedSuffix + ".v",
		TopLevel: req.Name,
		TieCells: s.opts.TieCells,
	}
	out := &Outcome{job: job, backend: s.backend, keep: s.keepFiles}

	start := time.Now()
	module := backend.ModuleName(s.backend, req.Name)
	if err := s.writeModule(job.Input, module, req); err != nil {
		os.Remove(job.Input)
		return nil, err
	}
	ioTime := time.Since(start)

	start = time.Now()
	if err := s.backend.Run(ctx, job); err != nil {
		out.Cleanup()
		return nil, errors.Wrapf(err, "pipeline: %s backend", s.backend.Name())
	}
	mapper := time.Since(start)

	res := metrics.Result{MappedFile: job.Output, PreMapFile: job.Input}
	for _, kind := range metrics.Kinds() {
		v, err := s.backend.Metric(job, kind)
		if err != nil {
			out.Cleanup()
			return nil, errors.Wrapf(err, "pipeline: metric %s", kind)
		}
		res.Set(kind, v)
	}
	res.FillCorners()

	if req.Translate {
		start = time.Now()
		if err := s.opts.Translator.Append(ctx, job.Output); err != nil {
			out.Cleanup()
			return nil, err
		}
		ioTime += time.Since(start)
	}
	res.MapperRuntime = mapper.Microseconds()
	res.IORuntime = ioTime.Microseconds()
	out.Result = res
	out.Module = req.Name
	return out, nil
}

// Emit appends an existing mapped netlist to the translator's output.
func (s *Synthesizer) Emit(ctx context.Context, mapped string) error {
	if s.opts.Translator == nil {
		return errors.New("pipeline: no translator configured")
	}
	return s.opts.Translator.Append(ctx, mapped)
}

func (s *Synthesizer) writeModule(path, module string, req *Request) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "pipeline: create verilog file")
	}
	m := ModuleOf(module, req)
	m.VectorizeAll = s.vectorize
	if err := verilog.Emit(f, req.Arena, req.Leaves, m); err != nil {
		f.Close()
		return errors.Wrapf(err, "pipeline: emit %s", module)
	}
	return errors.Wrap(f.Close(), "pipeline: close verilog file")
}

// ModuleOf converts req into an emitter module called name.
func ModuleOf(name string, req *Request) *verilog.Module {
	m := &verilog.Module{Name: name, Inputs: req.Inputs}
	for _, o := range req.Outputs {
		m.Outputs = append(m.Outputs, verilog.Assign{Port: verilog.Port{Name: o.Name, Width: o.Width}, Root: o.Root})
	}
	for _, h := range req.Hidden {
		m.Hidden = append(m.Hidden, verilog.Assign{Port: verilog.Port{Name: h.Name, Width: h.Width}, Root: h.Root})
	}
	return m
}
