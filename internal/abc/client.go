package abc

import (
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ServerCommand is the hidden sub-command that turns the running
// executable into the child side of the protocol.
const ServerCommand = "abc-server"

// Options describes how to launch the child process.
type Options struct {
	// Path is the child executable; empty means the running executable.
	Path string
	// Args are the child's arguments; when Path is empty they default to
	// ServerCommand.
	Args []string
	Env  []string
	Dir  string
	// Stderr receives the child's diagnostics; nil means os.Stderr.
	Stderr io.Writer
}

// Engine is the parent side of the protocol. It owns one child process and
// at most one open session. Requests are strictly request/reply; calls are
// serialised so concurrent callers cannot interleave frames.
type Engine struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	to      io.WriteCloser
	from    io.Reader
	session string
	broken  bool
	closed  bool
}

// Start launches the child and connects both pipes.
func Start(opts Options) (*Engine, error) {
	path := opts.Path
	args := opts.Args
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "abc: locate executable")
		}
		path = self
		if len(args) == 0 {
			args = []string{ServerCommand}
		}
	}
	cmd := exec.Command(path, args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	to, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "abc: create request pipe")
	}
	from, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "abc: create reply pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "abc: start %s", path)
	}
	log.Debugf("running: %s %s", path, strings.Join(args, " "))
	e := NewEngine(to, from)
	e.cmd = cmd
	return e, nil
}

// NewEngine speaks the protocol over an existing pair of streams.
func NewEngine(to io.WriteCloser, from io.Reader) *Engine {
	return &Engine{to: to, from: from}
}

// Session returns the name of the open session, or "".
func (e *Engine) Session() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// StartSession opens a session for module name reading input and writing
// output. An open session is ended first.
func (e *Engine) StartSession(name, input, output string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != "" {
		if err := e.request(Frame{Op: OpEnd}); err != nil {
			return errors.Wrapf(err, "end session %s", e.session)
		}
		e.session = ""
	}
	arg := name
	if input != "" || output != "" {
		arg = strings.Join([]string{name, input, output}, " ")
	}
	if err := e.request(Frame{Op: OpNew, Arg: arg}); err != nil {
		return errors.Wrapf(err, "start session %s", name)
	}
	e.session = name
	return nil
}

// RunCmd executes one command inside the open session. A rejected command
// ends the session on the child side.
func (e *Engine) RunCmd(cmd string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.request(Frame{Op: OpCmd, Arg: cmd}); err != nil {
		if errors.Cause(err) == ErrRejected {
			e.session = ""
		}
		return errors.Wrapf(err, "run %q", cmd)
	}
	return nil
}

// RunTiming prints the timing report of the mapped network into the log.
func (e *Engine) RunTiming() error {
	return e.RunCmd("stime -p")
}

// EndSession closes the open session, persisting the mapped netlist.
func (e *Engine) EndSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := e.session
	e.session = ""
	if err := e.request(Frame{Op: OpEnd}); err != nil {
		return errors.Wrapf(err, "end session %s", name)
	}
	return nil
}

// Close asks the child to exit and waits for it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var firstErr error
	if !e.broken {
		if err := e.send(Frame{Op: OpBye}); err != nil {
			firstErr = err
		}
	}
	if err := e.to.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "abc: close request pipe")
	}
	if e.cmd != nil {
		if err := e.cmd.Wait(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "abc: child exit")
		}
	}
	return firstErr
}

// request sends f and waits for the reply. Pipe failures mark the engine
// broken; there is no retry.
func (e *Engine) request(f Frame) error {
	if err := e.send(f); err != nil {
		return err
	}
	ok, err := ReadReply(e.from)
	if err != nil {
		e.broken = true
		return err
	}
	if !ok {
		return errors.Wrapf(ErrRejected, "%s", f.Op)
	}
	return nil
}

func (e *Engine) send(f Frame) error {
	if e.closed && f.Op != OpBye {
		return errors.Wrap(ErrProtocol, "engine is closed")
	}
	if e.broken {
		return errors.Wrap(ErrProtocol, "engine is broken")
	}
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	if _, err := e.to.Write(data); err != nil {
		e.broken = true
		return errors.Wrap(ErrProtocol, err.Error())
	}
	return nil
}
