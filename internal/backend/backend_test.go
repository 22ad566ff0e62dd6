package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"exprsynth/internal/abc"
	"exprsynth/internal/config"
	"exprsynth/internal/metrics"
)

var approx = cmpopts.EquateApprox(1e-9, 1e-30)

func testConfig(t *testing.T, settings map[string]string) *config.Store {
	t.Helper()
	cfg := config.Defaults()
	cfg.SetString(config.LibertyTypical, "/lib/typ.lib")
	for k, v := range settings {
		if err := cfg.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	return cfg
}

func testJob(t *testing.T, dir string) *Job {
	t.Helper()
	in := filepath.Join(dir, "exprop_blk.v")
	if err := os.WriteFile(in, []byte("module blk (a, y);\nendmodule\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return &Job{Input: in, Output: filepath.Join(dir, "exprop_blk_mapped.v"), TopLevel: "blk"}
}

func TestYosysRunsScript(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	yosys := writeScript(t, tmp, "yosys.sh", `#!/bin/sh
set -e
SCRIPT=$(cat)
OUT=$(echo "$SCRIPT" | sed -n 's/.*write_verilog -nohex -nodec \([^;]*\);.*/\1/p')
echo "$SCRIPT" > "$OUT.script"
echo "module blk (a, y); endmodule" > "$OUT"
echo "ABC: netlist Delay = 200.00 ps"
echo "ABC RESULTS:   INVX1 cells:   2"
`)
	cfg := testConfig(t, map[string]string{
		config.YosysPath:      yosys,
		config.UseConstraints: "1",
		config.DrivingCell:    "BUFX2",
	})
	b, err := New("yosys", cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	job := testJob(t, tmp)
	job.TieCells = true
	if err := b.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}

	sdc, err := os.ReadFile(filepath.Join(tmp, "exprop_blk.sdc"))
	if err != nil {
		t.Fatalf("read sdc: %v", err)
	}
	if diff := cmp.Diff("set_load 1\nset_driving_cell BUFX2\n", string(sdc)); diff != "" {
		t.Fatalf("sdc mismatch (-want +got):\n%s", diff)
	}
	script, err := os.ReadFile(job.Output + ".script")
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	for _, want := range []string{
		"read_verilog " + job.Input,
		"synth -noabc -top blk",
		"abc -constr " + filepath.Join(tmp, "exprop_blk.sdc") + " -liberty /lib/typ.lib",
		"hilomap -hicell TIEHIX1 Y -locell TIELOX1 Y -singleton",
	} {
		if !strings.Contains(string(script), want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}

	delay, err := b.Metric(job, metrics.DelayTyp)
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	area, err := b.Metric(job, metrics.Area)
	if err != nil {
		t.Fatalf("area: %v", err)
	}
	power, _ := b.Metric(job, metrics.PowerTyp)
	if diff := cmp.Diff([]float64{200e-12, 32e-12, 0}, []float64{delay, area, power}, approx); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}

	b.Cleanup(job)
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	if diff := cmp.Diff([]string{"yosys.sh"}, left); diff != "" {
		t.Fatalf("cleanup left files (-want +got):\n%s", diff)
	}
}

func TestYosysAreaNeedsConstraints(t *testing.T) {
	b, err := NewYosys(testConfig(t, nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	job := testJob(t, t.TempDir())
	if err := os.WriteFile(job.Output+".log", []byte("ABC RESULTS:   INVX1 cells:   2\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	area, err := b.Metric(job, metrics.Area)
	if err != nil || area != metrics.NotExtracted {
		t.Fatalf("area without constraints = %g, %v", area, err)
	}
	if !strings.Contains(b.Script(job, "x.sdc"), "abc -liberty /lib/typ.lib; opt_clean -purge; write_verilog") {
		t.Fatalf("unexpected script %q", b.Script(job, "x.sdc"))
	}
}

func TestBackendsRequireLiberty(t *testing.T) {
	for _, name := range Builtins() {
		_, err := New(name, config.Defaults())
		if errors.Cause(err) != config.ErrMissing {
			t.Fatalf("%s: expected missing liberty, got %v", name, err)
		}
	}
}

// recordingTool stands in for abc inside an in-process server.
type recordingTool struct {
	mu       sync.Mutex
	commands []string
}

func (r *recordingTool) Open(s *abc.Session) error {
	return os.WriteFile(s.Log, nil, 0o644)
}

func (r *recordingTool) Exec(s *abc.Session, cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *recordingTool) Close(s *abc.Session) error {
	if err := os.WriteFile(s.Output, []byte(fmt.Sprintf("module %stmp (a, y);\nendmodule\n\n", s.Name)), 0o644); err != nil {
		return err
	}
	report := `WireLoad = "none"  Gates = 2  Area = 40.00  Delay = 150.00 ps
INVX1      Fanin =  1   Instance =        1   Area =      16.00   40.00 %   A
NAND2X1    Fanin =  2   Instance =        1   Area =      24.00   60.00 %   A B
Primary inputs (1): 0=a
Primary outputs (1): 0=y
`
	return os.WriteFile(s.Log, []byte(report), 0o644)
}

func inProcessStart(tool abc.Tool, opts abc.ServerOptions) StartFunc {
	return func() (*abc.Engine, error) {
		reqR, reqW := io.Pipe()
		repR, repW := io.Pipe()
		go func() {
			abc.NewServer(tool, opts).Serve(reqR, repW)
			repW.Close()
		}()
		return abc.NewEngine(reqW, repR), nil
	}
}

func TestABCSharesChildAcrossJobs(t *testing.T) {
	tool := &recordingTool{}
	starts := 0
	start := inProcessStart(tool, abc.ServerOptions{Liberty: "/lib/typ.lib", UseConstraints: true})
	b, err := NewABC(testConfig(t, map[string]string{config.UseConstraints: "1"}), func() (*abc.Engine, error) {
		starts++
		return start()
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := ModuleName(b, "blk"); got != "blktmp" {
		t.Fatalf("module name = %q", got)
	}

	for i := 0; i < 2; i++ {
		job := testJob(t, t.TempDir())
		if err := b.Run(context.Background(), job); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if _, ok := job.Handle.(*abc.Engine); !ok {
			t.Fatalf("job handle is %T, want engine", job.Handle)
		}
		data, err := os.ReadFile(job.Output)
		if err != nil {
			t.Fatalf("read netlist: %v", err)
		}
		if !strings.Contains(string(data), " blktmp _passthru_ (a, y);") {
			t.Fatalf("missing wrapper:\n%s", data)
		}
		delay, _ := b.Metric(job, metrics.DelayTyp)
		area, _ := b.Metric(job, metrics.Area)
		if diff := cmp.Diff([]float64{150e-12, 40e-12}, []float64{delay, area}, approx); diff != "" {
			t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if starts != 1 {
		t.Fatalf("child started %d times", starts)
	}
	tool.mu.Lock()
	defer tool.mu.Unlock()
	timing := 0
	for _, c := range tool.commands {
		if c == "stime -p" {
			timing++
		}
	}
	if timing != 2 {
		t.Fatalf("expected timing per job, got commands %v", tool.commands)
	}
}

func TestServerArgs(t *testing.T) {
	got := ServerArgs("/lib/typ.lib", "abc", true)
	want := []string{abc.ServerCommand, "--liberty", "/lib/typ.lib", "--abc", "abc", "--constraints"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestGenusScriptCorners(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		config.TimingConstraints: "/tech/clk.sdc",
		config.LibertySlowHot:    "/lib/ss.lib",
		config.QRCMax:            "/tech/rcmax.tch",
		config.HighTemp:          "125",
		config.QRCTyp:            "/tech/rctyp.tch",
		config.TypTemp:           "25",
		config.LEF:               "/tech/cells.lef",
	})
	g, err := NewGenus(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	job := &Job{Input: "exprop_blk.v", Output: "exprop_blk_mapped.v", TopLevel: "blk"}
	script, err := g.Script(job)
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	for _, want := range []string{
		"# generated genus run file for blk\n",
		"set_db library_domain:tt_normaltemp .library { /lib/typ.lib } \n",
		"set_db lef_library { /tech/cells.lef } \n",
		"set_db hdl_array_naming_style %s\\[%d\\] \n",
		"create_rc_corner -name RC_CORNER_RCMAX_HIGHTEMP -temperature 125 -qrc_tech /tech/rcmax.tch\n",
		"create_analysis_view -name ANALYSIS_VIEW_TYP -constraint_mode CONSTRAINT_MODE_1 -delay_corner CORNER_TYP\n",
		"set_analysis_view -hold {  ANALYSIS_VIEW_TYP } -setup {  ANALYSIS_VIEW_TYP ANALYSIS_VIEW_TIMING_SLOW } -leakage ANALYSIS_VIEW_TYP -dynamic ANALYSIS_VIEW_TYP\n",
		"set_db use_tiehilo_for_const none\n",
		"redirect exprop_blk_mapped.v.timing_max.log { report_timing -unconstrained -view ANALYSIS_VIEW_TIMING_SLOW }\n",
		"write_hdl  > exprop_blk_mapped.v\n",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}
	for _, absent := range []string{"cap_table_file", "ANALYSIS_VIEW_TIMING_FAST", "power_max.log", "init_lib_search_path"} {
		if strings.Contains(script, absent) {
			t.Fatalf("script should not mention %q:\n%s", absent, script)
		}
	}
}

func TestGenusRunAndMetrics(t *testing.T) {
	requirePosix(t)
	tmp := t.TempDir()
	genus := writeScript(t, tmp, "genus.sh", `#!/bin/sh
set -e
TCL="$3"
OUT=$(sed -n 's/^write_hdl  > //p' "$TCL")
echo "module blk (a, y); endmodule" > "$OUT"
echo "blk 4 12.0 0.0 12.0" > "$OUT.area.log"
echo "     Data Path:-  250" > "$OUT.timing_typ.log"
echo " Subtotal 1.0e-06 2.0e-06 3.0e-06 6.0e-06" > "$OUT.power_typ.log"
`)
	g, err := NewGenus(testConfig(t, map[string]string{config.GenusPath: genus}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	job := testJob(t, tmp)
	if err := g.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	var got []float64
	for _, k := range []metrics.Kind{metrics.DelayTyp, metrics.Area, metrics.PowerTyp, metrics.DelayMax} {
		v, err := g.Metric(job, k)
		if err != nil {
			t.Fatalf("metric %s: %v", k, err)
		}
		got = append(got, v)
	}
	if diff := cmp.Diff([]float64{250e-12, 12e-12, 6e-06, 0}, got, approx); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
	g.Cleanup(job)
	if _, err := os.Stat(job.Output + ".area.log"); !os.IsNotExist(err) {
		t.Fatalf("report survived cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "exprop_blk.tcl")); !os.IsNotExist(err) {
		t.Fatalf("script survived cleanup: %v", err)
	}
}

func TestExternalBackend(t *testing.T) {
	requirePosix(t)
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "lib"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeScript(t, filepath.Join(root, "lib"), "expropt_mine", `#!/bin/sh
set -e
case "$1" in
  run) echo "module $4 (); endmodule" > "$3" ;;
  metric)
    if [ "$2" = "delay_typ" ]; then echo "1.5e-10"; else echo 0; fi ;;
  cleanup) rm -f "$3" ;;
esac
`)
	cfg := testConfig(t, map[string]string{config.InstallRoot: root})
	b, err := New("mine", cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	job := testJob(t, t.TempDir())
	if err := b.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	delay, err := b.Metric(job, metrics.DelayTyp)
	if err != nil || delay != 1.5e-10 {
		t.Fatalf("delay = %g, %v", delay, err)
	}
	b.Cleanup(job)
	if _, err := os.Stat(job.Output); !os.IsNotExist(err) {
		t.Fatalf("output survived cleanup: %v", err)
	}

	if _, err := New("missing", cfg); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
	return path
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
}
