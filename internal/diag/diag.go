package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one reported issue. Node is the expression node the issue
// refers to, or -1 when it is not tied to a node.
type Diagnostic struct {
	Severity Severity
	Node     int
	Message  string
}

// Reporter collects diagnostics and echoes them to a writer in text or json
// form.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	diags  []Diagnostic
	errors int
}

// NewReporter returns a reporter writing to w. format is "text" or "json";
// anything else falls back to text. A nil writer only collects.
func NewReporter(w io.Writer, format string) *Reporter {
	return &Reporter{w: w, format: format}
}

// Error reports an error attached to node.
func (r *Reporter) Error(node int, msg string) {
	r.add(Diagnostic{Severity: SeverityError, Node: node, Message: msg})
}

// Errorf reports an error that is not tied to a node.
func (r *Reporter) Errorf(format string, args ...any) {
	r.add(Diagnostic{Severity: SeverityError, Node: -1, Message: fmt.Sprintf(format, args...)})
}

// Warning reports a warning attached to node.
func (r *Reporter) Warning(node int, msg string) {
	r.add(Diagnostic{Severity: SeverityWarning, Node: node, Message: msg})
}

// HasErrors reports whether any error was reported.
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// ErrorCount returns the number of errors reported so far.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// Diagnostics returns a copy of everything reported so far.
func (r *Reporter) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

func (r *Reporter) add(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, d)
	if d.Severity == SeverityError {
		r.errors++
	}
	if r.w == nil {
		return
	}
	if r.format == "json" {
		payload := struct {
			Severity string `json:"severity"`
			Node     int    `json:"node,omitempty"`
			Message  string `json:"message"`
		}{d.Severity.String(), d.Node, d.Message}
		if d.Node < 0 {
			payload.Node = 0
		}
		data, _ := json.Marshal(payload)
		fmt.Fprintln(r.w, string(data))
		return
	}
	if d.Node >= 0 {
		fmt.Fprintf(r.w, "%s: n%d: %s\n", d.Severity, d.Node, d.Message)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", d.Severity, d.Message)
}
