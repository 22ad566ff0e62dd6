// Package logging configures logrus from the synthesis verbosity level and
// prints the progress dots shown while external tools run.
package logging

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Verbosity levels of synth.expropt.verbose.
const (
	Quiet    = 0
	Progress = 1
	Debug    = 2
)

// Setup routes logrus to w and picks its level: warnings only when quiet,
// info at the progress level and debug above it.
func Setup(w io.Writer, verbosity int) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	switch {
	case verbosity <= Quiet:
		log.SetLevel(log.WarnLevel)
	case verbosity == Progress:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
	defaultProgress.reset(w, verbosity == Progress && isTerminal(w))
}

// Ticker prints one dot per step of work on an interactive output.
type Ticker struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	dots    int
}

// NewTicker returns a ticker writing to w. It prints nothing when disabled.
func NewTicker(w io.Writer, enabled bool) *Ticker {
	return &Ticker{w: w, enabled: enabled}
}

func (t *Ticker) reset(w io.Writer, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w, t.enabled, t.dots = w, enabled, 0
}

// Tick prints a dot.
func (t *Ticker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || t.w == nil {
		return
	}
	io.WriteString(t.w, ".")
	t.dots++
}

// Done ends the line of dots, if any were printed.
func (t *Ticker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dots > 0 && t.w != nil {
		io.WriteString(t.w, "\n")
	}
	t.dots = 0
}

var defaultProgress = NewTicker(os.Stderr, false)

// Step marks one external command. It logs the command line at debug level
// and prints a progress dot at the progress level.
func Step(format string, args ...any) {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("running: "+format, args...)
		return
	}
	defaultProgress.Tick()
}

// Finish ends the current line of progress dots.
func Finish() {
	defaultProgress.Done()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
