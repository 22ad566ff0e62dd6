package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"exprsynth/internal/config"
	"exprsynth/internal/logging"
	"exprsynth/internal/metrics"
)

// Yosys maps through the yosys script interpreter, with abc doing the
// technology mapping. The script is piped to yosys on stdin.
type Yosys struct {
	binary         string
	liberty        string
	useConstraints bool
	constraints    Constraints
}

// NewYosys reads the yosys options.
func NewYosys(cfg *config.Store) (*Yosys, error) {
	lib, err := requireLiberty(cfg)
	if err != nil {
		return nil, err
	}
	c, err := constraintsFrom(cfg)
	if err != nil {
		return nil, err
	}
	return &Yosys{
		binary:         toolPath(cfg, config.YosysPath, "yosys"),
		liberty:        lib,
		useConstraints: cfg.IntOr(config.UseConstraints, 0) == 1,
		constraints:    c,
	}, nil
}

// Name returns "yosys".
func (y *Yosys) Name() string { return "yosys" }

// Script returns the yosys commands for job.
func (y *Yosys) Script(job *Job, sdc string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "read_verilog %s; synth -noabc -top %s; ", job.Input, job.TopLevel)
	if y.useConstraints {
		fmt.Fprintf(&sb, "abc -constr %s -liberty %s; ", sdc, y.liberty)
	} else {
		fmt.Fprintf(&sb, "abc -liberty %s; ", y.liberty)
	}
	sb.WriteString("opt_clean -purge; ")
	if job.TieCells {
		sb.WriteString("hilomap -hicell TIEHIX1 Y -locell TIELOX1 Y -singleton; ")
	}
	fmt.Fprintf(&sb, "write_verilog -nohex -nodec %s;", job.Output)
	return sb.String()
}

// Run writes the constraints and pipes the synthesis script into yosys.
func (y *Yosys) Run(ctx context.Context, job *Job) error {
	sdc, err := y.constraints.Write(job.Input)
	if err != nil {
		return err
	}
	binary, err := resolveBinary(y.binary, "yosys")
	if err != nil {
		return errors.Wrap(err, "backend: resolve yosys")
	}
	logFile, err := os.Create(job.Output + ".log")
	if err != nil {
		return errors.Wrap(err, "backend: create yosys log")
	}
	defer logFile.Close()

	script := y.Script(job, sdc)
	cmd := exec.CommandContext(ctx, binary)
	cmd.Stdin = strings.NewReader(script + "\n")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	logging.Step("echo %q | %s > %s.log", script, binary, job.Output)
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "backend: yosys failed")
	}
	return nil
}

// Metric reports the typical delay and, with constraints enabled, the
// area. Other metrics are zero.
func (y *Yosys) Metric(job *Job, kind metrics.Kind) (float64, error) {
	if kind != metrics.Area && kind != metrics.DelayTyp {
		return 0, nil
	}
	delay, area, err := metrics.ParseYosysLog(job.Output + ".log")
	if err != nil {
		return 0, err
	}
	if kind == metrics.DelayTyp {
		return delay, nil
	}
	if !y.useConstraints {
		return metrics.NotExtracted, nil
	}
	return area, nil
}

// Cleanup removes the job netlists, the constraints file and the yosys logs.
func (y *Yosys) Cleanup(job *Job) {
	sdc, _ := constraintsPath(job.Input)
	logging.Step("rm %s %s %s %s.*", job.Output, job.Input, sdc, job.Output)
	removeFiles([]string{job.Output, job.Input, sdc}, job.Output+".*")
}
