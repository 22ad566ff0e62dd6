package abc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// fakeTool records commands and writes a canned netlist and port report.
type fakeTool struct {
	mu       sync.Mutex
	commands []string
	opened   []string
	closed   []string
}

func (f *fakeTool) Open(s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, s.Name)
	return os.WriteFile(s.Log, nil, 0o644)
}

func (f *fakeTool) Exec(s *Session, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(cmd, "badcommand") {
		return errors.Errorf("unknown command %q", cmd)
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeTool) Close(s *Session) error {
	f.mu.Lock()
	f.closed = append(f.closed, s.Name)
	f.mu.Unlock()
	netlist := fmt.Sprintf("module %stmp (a0, a1, y);\nendmodule\n\n", s.Name)
	if err := os.WriteFile(s.Output, []byte(netlist), 0o644); err != nil {
		return err
	}
	logFile, err := os.OpenFile(s.Log, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	defer logFile.Close()
	_, err = io.WriteString(logFile, "Primary inputs (2): 0=a[0] 1=a[1]\nPrimary outputs (1): 0=y\n")
	return err
}

func (f *fakeTool) snapshot() (opened, closed, commands []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.opened...), append([]string{}, f.closed...), append([]string{}, f.commands...)
}

// startServer connects an engine to a server running on in-process pipes.
func startServer(t *testing.T, tool Tool, opts ServerOptions) (*Engine, <-chan error) {
	t.Helper()
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := NewServer(tool, opts).Serve(reqR, repW)
		repW.Close()
		done <- err
	}()
	return NewEngine(reqW, repR), done
}

func sessionPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "blk.v")
	if err := os.WriteFile(in, []byte("module blk (a, y);\nendmodule\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return in, filepath.Join(dir, "blk_mapped.v")
}

func TestServerRejectsCommandOutsideSession(t *testing.T) {
	tool := &fakeTool{}
	engine, done := startServer(t, tool, ServerOptions{Liberty: "cells.lib"})

	err := engine.RunCmd("badcommand")
	if errors.Cause(err) != ErrRejected {
		t.Fatalf("expected rejected command, got %v", err)
	}

	in, out := sessionPaths(t)
	if err := engine.StartSession("blk", in, out); err != nil {
		t.Fatalf("start session after rejection: %v", err)
	}
	if err := engine.EndSession(); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}

	_, _, commands := tool.snapshot()
	want := append([]string{
		"%read " + in + "; %blast; &put",
		"read_lib -v cells.lib",
	}, Recipe...)
	if diff := cmp.Diff(want, commands); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestServerAppendsWrapper(t *testing.T) {
	tool := &fakeTool{}
	engine, done := startServer(t, tool, ServerOptions{Liberty: "cells.lib", UseConstraints: true})
	in, out := sessionPaths(t)

	if err := engine.StartSession("blk", in, out); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if engine.Session() != "blk" {
		t.Fatalf("expected open session blk, got %q", engine.Session())
	}
	if err := engine.RunTiming(); err != nil {
		t.Fatalf("timing: %v", err)
	}
	if err := engine.EndSession(); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read mapped netlist: %v", err)
	}
	want := `module blktmp (a0, a1, y);
endmodule

module blk (a, y);
  input [1:0] a;
  output y;
 blktmp _passthru_ (a[0], a[1], y);

endmodule

`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Fatalf("netlist mismatch (-want +got):\n%s", diff)
	}

	_, _, commands := tool.snapshot()
	last := commands[len(commands)-2:]
	wantLast := []string{"read_constr " + strings.TrimSuffix(in, ".v") + ".sdc", "stime -p"}
	if diff := cmp.Diff(wantLast, last); diff != "" {
		t.Fatalf("trailing commands mismatch (-want +got):\n%s", diff)
	}
}

func TestServerClosesPreviousSession(t *testing.T) {
	tool := &fakeTool{}
	engine, done := startServer(t, tool, ServerOptions{Liberty: "cells.lib"})
	in, out := sessionPaths(t)

	if err := engine.StartSession("first", in, out); err != nil {
		t.Fatalf("start first: %v", err)
	}
	if err := engine.StartSession("second", in, out+".2"); err != nil {
		t.Fatalf("start second: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	opened, closed, _ := tool.snapshot()
	if diff := cmp.Diff([]string{"first", "second"}, opened); diff != "" {
		t.Fatalf("opened mismatch (-want +got):\n%s", diff)
	}
	// The second session is abandoned by $bye$ and still persisted.
	if diff := cmp.Diff([]string{"first", "second"}, closed); diff != "" {
		t.Fatalf("closed mismatch (-want +got):\n%s", diff)
	}
}

func TestServerFailedCommandEndsSession(t *testing.T) {
	tool := &fakeTool{}
	engine, done := startServer(t, tool, ServerOptions{Liberty: "cells.lib"})
	in, out := sessionPaths(t)

	if err := engine.StartSession("blk", in, out); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := engine.RunCmd("badcommand -x"); errors.Cause(err) != ErrRejected {
		t.Fatalf("expected rejection, got %v", err)
	}
	if engine.Session() != "" {
		t.Fatalf("expected session to be dropped, got %q", engine.Session())
	}
	if err := engine.RunCmd("balance"); errors.Cause(err) != ErrRejected {
		t.Fatalf("expected rejection without a session, got %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestServerUnknownOpcode(t *testing.T) {
	tool := &fakeTool{}
	in, out := sessionPaths(t)
	requests := "$zzz$$new$blk " + in + " " + out + "$$end$$bye$"
	var replies strings.Builder
	if err := NewServer(tool, ServerOptions{}).Serve(strings.NewReader(requests), &replies); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if replies.String() != "$err$$ok_$$ok_$" {
		t.Fatalf("replies = %q", replies.String())
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s, err := NewSession("blk")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	want := Session{
		Name:        "blk",
		Input:       "exprop_blk.v",
		Output:      "exprop_blk_mapped.v",
		Log:         "exprop_blk_mapped.v.log",
		Constraints: "exprop_blk.sdc",
	}
	if diff := cmp.Diff(want, *s, cmp.AllowUnexported(Session{})); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}
	if _, err := NewSession("a b"); err == nil {
		t.Fatalf("expected two-field argument to fail")
	}
}
