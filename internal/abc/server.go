package abc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// File naming used when a session is opened with a bare module name.
const (
	FilePrefix   = "exprop_"
	MappedSuffix = "_mapped"
)

// Recipe is the fixed optimisation run right after a session's netlist is
// read: structural balancing and rewriting, then technology-independent
// optimisation and mapping.
var Recipe = []string{
	"balance; rewrite -l; refactor -l; balance; rewrite -l; rewrite -lz; balance; refactor -lz; rewrite -lz; balance",
	"strash; ifraig; dc2; strash; &get -n; &dch -f; &nf; &put; upsize; dnsize",
}

// Session is one open optimisation context inside the child.
type Session struct {
	// Name is the module name the wrapper exposes; the optimised module is
	// expected to be called Name+"tmp".
	Name   string
	Input  string
	Output string
	// Log receives the tool's output and the port report.
	Log string
	// Constraints is the .sdc file next to Input.
	Constraints string

	script []string
}

// NewSession resolves the argument of a $new$ request: "<name>" or
// "<name> <input> <output>".
func NewSession(arg string) (*Session, error) {
	fields := strings.Fields(arg)
	var s Session
	switch len(fields) {
	case 1:
		s.Name = fields[0]
		s.Input = FilePrefix + s.Name + ".v"
		s.Output = FilePrefix + s.Name + MappedSuffix + ".v"
	case 3:
		s.Name, s.Input, s.Output = fields[0], fields[1], fields[2]
	default:
		return nil, errors.Errorf("abc: bad session argument %q", arg)
	}
	s.Log = s.Output + ".log"
	s.Constraints = strings.TrimSuffix(s.Input, ".v") + ".sdc"
	return &s, nil
}

// Tool performs the optimisation work of a session.
type Tool interface {
	Open(s *Session) error
	Exec(s *Session, cmd string) error
	// Close writes the mapped netlist to s.Output and appends the print_io
	// and print_gates reports to s.Log.
	Close(s *Session) error
}

// ServerOptions configures the fixed part of every session.
type ServerOptions struct {
	// Liberty is the cell library read into every session.
	Liberty string
	// UseConstraints loads the session's .sdc file after the recipe.
	UseConstraints bool
}

// Server answers framed requests on behalf of a Tool. It holds at most one
// open session.
type Server struct {
	tool    Tool
	opts    ServerOptions
	session *Session
}

// NewServer returns a server driving tool.
func NewServer(tool Tool, opts ServerOptions) *Server {
	return &Server{tool: tool, opts: opts}
}

// Serve handles requests until $bye$ or end of input. A failure to write a
// reply ends serving with an error; request failures are answered with an
// error reply and serving continues.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	fr := NewFrameReader(r)
	for {
		f, err := fr.Next()
		if err != nil {
			if err == io.EOF {
				s.abandon()
				return nil
			}
			s.abandon()
			return errors.Wrap(err, "abc: read request")
		}
		var reqErr error
		switch f.Op {
		case OpBye:
			s.abandon()
			return nil
		case OpNew:
			reqErr = s.open(f.Arg)
		case OpCmd:
			reqErr = s.exec(f.Arg)
		case OpEnd:
			reqErr = s.close()
		default:
			reqErr = errors.Errorf("abc: unknown opcode %q", f.Raw)
		}
		if reqErr != nil {
			log.Debugf("%v", reqErr)
		}
		if err := WriteReply(w, reqErr == nil); err != nil {
			return errors.Wrap(err, "abc: write reply")
		}
	}
}

func (s *Server) open(arg string) error {
	if s.session != nil {
		if err := s.close(); err != nil {
			log.Warnf("abc: closing previous session: %v", err)
		}
	}
	sess, err := NewSession(arg)
	if err != nil {
		return err
	}
	if err := s.tool.Open(sess); err != nil {
		return errors.Wrapf(err, "abc: open session %s", sess.Name)
	}
	s.session = sess
	steps := []string{
		fmt.Sprintf("%%read %s; %%blast; &put", sess.Input),
		"read_lib -v " + s.opts.Liberty,
	}
	steps = append(steps, Recipe...)
	if s.opts.UseConstraints {
		steps = append(steps, "read_constr "+sess.Constraints)
	}
	for _, step := range steps {
		if err := s.exec(step); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) exec(cmd string) error {
	if s.session == nil {
		return errors.Errorf("abc: command %q outside a session", cmd)
	}
	if err := s.tool.Exec(s.session, cmd); err != nil {
		s.session = nil
		return errors.Wrapf(err, "abc: %s", cmd)
	}
	return nil
}

// close finishes the session and appends the passthrough wrapper to the
// mapped netlist. Closing without a session succeeds.
func (s *Server) close() error {
	sess := s.session
	if sess == nil {
		return nil
	}
	s.session = nil
	if err := s.tool.Close(sess); err != nil {
		return errors.Wrapf(err, "abc: close session %s", sess.Name)
	}
	logFile, err := os.Open(sess.Log)
	if err != nil {
		return errors.Wrap(err, "abc: open session log")
	}
	inputs, outputs, err := ParsePortReport(logFile)
	logFile.Close()
	if err != nil {
		return errors.Wrapf(err, "abc: parse %s", sess.Log)
	}
	out, err := os.OpenFile(sess.Output, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return errors.Wrap(err, "abc: open mapped netlist")
	}
	if err := WriteWrapper(out, sess.Name, inputs, outputs); err != nil {
		out.Close()
		return errors.Wrap(err, "abc: write wrapper")
	}
	return out.Close()
}

func (s *Server) abandon() {
	if s.session != nil {
		if err := s.close(); err != nil {
			log.Warnf("abc: %v", err)
		}
	}
}
