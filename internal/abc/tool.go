package abc

import (
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// knownCommands lists the abc commands a session accepts. Unknown names are
// rejected up front because the whole session only runs at close.
var knownCommands = map[string]bool{
	"%read": true, "%blast": true, "&put": true, "&get": true,
	"read": true, "read_verilog": true, "read_lib": true, "read_constr": true,
	"balance": true, "rewrite": true, "refactor": true, "resub": true,
	"strash": true, "ifraig": true, "fraig": true, "dc2": true, "dch": true,
	"&dch": true, "&nf": true, "&if": true, "&synch2": true, "&syn2": true,
	"map": true, "amap": true, "upsize": true, "dnsize": true, "buffer": true,
	"topo": true, "sweep": true, "stime": true, "print_stats": true,
	"print_io": true, "print_gates": true, "write_verilog": true,
	"resyn": true, "resyn2": true, "compress2rs": true,
}

// ScriptTool collects a session's commands and runs them through the abc
// binary in one batch when the session closes.
type ScriptTool struct {
	// Binary is the abc executable.
	Binary string
}

// Open truncates the session log.
func (t *ScriptTool) Open(s *Session) error {
	f, err := os.OpenFile(s.Log, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "create session log")
	}
	s.script = nil
	return f.Close()
}

// Exec checks every command of a ;-separated list and queues it.
func (t *ScriptTool) Exec(s *Session, cmd string) error {
	for _, part := range strings.Split(cmd, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if !knownCommands[fields[0]] {
			return errors.Errorf("unknown command %q", fields[0])
		}
	}
	s.script = append(s.script, cmd)
	return nil
}

// Close writes the queued script with the closing reports and runs it.
func (t *ScriptTool) Close(s *Session) error {
	script := append(append([]string{}, s.script...),
		"write_verilog "+s.Output,
		"print_io",
		"print_gates",
	)
	scriptPath := s.Output + ".abc"
	if err := os.WriteFile(scriptPath, []byte(strings.Join(script, "\n")+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "write abc script")
	}
	logFile, err := os.OpenFile(s.Log, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return errors.Wrap(err, "open session log")
	}
	defer logFile.Close()

	binary := t.Binary
	if binary == "" {
		binary = "abc"
	}
	cmd := exec.Command(binary, "-f", scriptPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	log.Debugf("running: %s -f %s", binary, scriptPath)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s failed", binary)
	}
	return nil
}
