package backend

import (
	"bytes"
	"context"
	"embed"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/pkg/errors"

	"exprsynth/internal/config"
	"exprsynth/internal/logging"
	"exprsynth/internal/metrics"
)

//go:embed templates/genus.tcl.tmpl
var templateFS embed.FS

// TemplateDirEnv names a directory whose genus.tcl.tmpl replaces the
// built-in script template.
const TemplateDirEnv = "EXPRSYNTH_TEMPLATE_DIR"

var (
	genusTemplateOnce sync.Once
	genusTemplate     *template.Template
	genusTemplateErr  error
)

func loadGenusTemplate() (*template.Template, error) {
	genusTemplateOnce.Do(func() {
		if dir := os.Getenv(TemplateDirEnv); dir != "" {
			genusTemplate, genusTemplateErr = template.ParseFiles(filepath.Join(dir, "genus.tcl.tmpl"))
			return
		}
		genusTemplate, genusTemplateErr = template.ParseFS(templateFS, "templates/genus.tcl.tmpl")
	})
	return genusTemplate, genusTemplateErr
}

// genusCorner is one analysis view of the genus run.
type genusCorner struct {
	LibrarySet  string
	Condition   string
	RCCorner    string
	DelayCorner string
	View        string
	Liberty     string
	QRC         string
	Temp        int
}

type genusScriptData struct {
	Top         string
	Input       string
	Output      string
	SearchPath  string
	Liberty     string
	LEF         string
	CapTable    string
	Constraints string
	Corners     []genusCorner
	Slow        bool
	Fast        bool
	Typ         bool
	PowerMax    bool
	TieCells    bool
}

// Genus maps with the Cadence genus synthesis tool driven by a generated
// tcl script. Metrics come from the reports the script redirects.
type Genus struct {
	binary string
	data   genusScriptData
}

// NewGenus reads the genus options. Each analysis corner is generated only
// when its liberty file, its extraction file and its temperature are set.
func NewGenus(cfg *config.Store) (*Genus, error) {
	lib, err := requireLiberty(cfg)
	if err != nil {
		return nil, err
	}
	path := func(key string) string {
		p, _ := cfg.Path(key)
		return p
	}
	d := genusScriptData{
		SearchPath:  path(config.SearchPath),
		Liberty:     lib,
		LEF:         path(config.LEF),
		CapTable:    path(config.CapTable),
		Constraints: path(config.TimingConstraints),
	}
	if d.Constraints != "" {
		corner := func(libKey, qrcKey, tempKey string, c genusCorner) bool {
			c.Liberty, c.QRC, c.Temp = path(libKey), path(qrcKey), cfg.IntOr(tempKey, 0)
			if c.Liberty == "" || c.QRC == "" || c.Temp == 0 {
				return false
			}
			d.Corners = append(d.Corners, c)
			return true
		}
		d.Slow = corner(config.LibertySlowHot, config.QRCMax, config.HighTemp, genusCorner{
			LibrarySet: "LIB_SET_TIMING_SLOW", Condition: "TIMING_COND_SLOW",
			RCCorner: "RC_CORNER_RCMAX_HIGHTEMP", DelayCorner: "CORNER_TIMING_SLOW",
			View: "ANALYSIS_VIEW_TIMING_SLOW",
		})
		d.Fast = corner(config.LibertyFastCold, config.QRCMin, config.LowTemp, genusCorner{
			LibrarySet: "LIB_SET_TIMING_FAST", Condition: "TIMING_COND_FAST",
			RCCorner: "RC_CORNER_RCMIN_LOWTEMP", DelayCorner: "CORNER_TIMING_FAST",
			View: "ANALYSIS_VIEW_TIMING_FAST",
		})
		d.Typ = corner(config.LibertyTypical, config.QRCTyp, config.TypTemp, genusCorner{
			LibrarySet: "LIB_SET_TYP", Condition: "TIMING_COND_TYP",
			RCCorner: "RC_CORNER_RCTYP_TYPTEMP", DelayCorner: "CORNER_TYP",
			View: "ANALYSIS_VIEW_TYP",
		})
		d.PowerMax = corner(config.LibertyFastHot, config.QRCMin, config.HighTemp, genusCorner{
			LibrarySet: "LIB_SET_POWER_MAX", Condition: "TIMING_COND_MAX_POWER",
			RCCorner: "RC_CORNER_RCMIN_MAXTEMP", DelayCorner: "CORNER_POWER_MAX",
			View: "ANALYSIS_VIEW_POWER_MAX",
		})
	}
	return &Genus{binary: toolPath(cfg, config.GenusPath, "genus"), data: d}, nil
}

// Name returns "genus".
func (g *Genus) Name() string { return "genus" }

// Script renders the tcl run file for job.
func (g *Genus) Script(job *Job) (string, error) {
	tmpl, err := loadGenusTemplate()
	if err != nil {
		return "", errors.Wrap(err, "backend: load genus template")
	}
	data := g.data
	data.Top, data.Input, data.Output, data.TieCells = job.TopLevel, job.Input, job.Output, job.TieCells
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "backend: render genus script")
	}
	return buf.String(), nil
}

func scriptPath(job *Job) string {
	return strings.TrimSuffix(job.Input, ".v") + ".tcl"
}

// Run renders the tcl script and runs genus in batch mode.
func (g *Genus) Run(ctx context.Context, job *Job) error {
	script, err := g.Script(job)
	if err != nil {
		return err
	}
	tcl := scriptPath(job)
	if err := os.WriteFile(tcl, []byte(script), 0o644); err != nil {
		return errors.Wrap(err, "backend: write genus script")
	}
	binary, err := resolveBinary(g.binary, "genus")
	if err != nil {
		return errors.Wrap(err, "backend: resolve genus")
	}
	logFile, err := os.Create(job.Output + ".log")
	if err != nil {
		return errors.Wrap(err, "backend: create genus log")
	}
	defer logFile.Close()
	cmd := exec.CommandContext(ctx, binary, "-batch", "-files", tcl)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	logging.Step("%s -batch -files %s", binary, tcl)
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "backend: genus failed")
	}
	return nil
}

// Metric reads kind from the report logs written by Run.
func (g *Genus) Metric(job *Job, kind metrics.Kind) (float64, error) {
	r, err := metrics.ParseGenusLogs(job.Output)
	if err != nil {
		return 0, err
	}
	return r.Get(kind), nil
}

// Cleanup removes the job netlists, the script and the report logs.
func (g *Genus) Cleanup(job *Job) {
	dir := filepath.Dir(job.Output)
	logging.Step("rm %s %s %s.* %s.*", job.Output, job.Input, job.Output, job.Input)
	removeFiles([]string{job.Output, job.Input, scriptPath(job)},
		job.Output+".*", job.Input+".*",
		filepath.Join(dir, "noneq.*."+job.TopLevel+".*"))
}
