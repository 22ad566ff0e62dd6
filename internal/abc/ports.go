package abc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PortGroup is one port of the optimised netlist. Bits counts the
// consecutive name[k] entries that were collapsed into it; a plain name has
// one bit and Indexed false.
type PortGroup struct {
	Name    string
	Bits    int
	Indexed bool
}

// ParsePortReport scans a session log for the print_io report lines
//
//	Primary inputs (7):  0=a[0] 1=a[1] ...
//	Primary outputs (4): 0=b[0] ...
//
// and returns the collapsed input and output ports.
func ParsePortReport(r io.Reader) (inputs, outputs []PortGroup, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sawInputs := false
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "Primary inputs "):
			inputs, err = parsePortLine(strings.TrimPrefix(line, "Primary inputs "))
			if err != nil {
				return nil, nil, errors.Wrap(err, "primary inputs")
			}
			sawInputs = true
		case strings.HasPrefix(line, "Primary outputs "):
			outputs, err = parsePortLine(strings.TrimPrefix(line, "Primary outputs "))
			if err != nil {
				return nil, nil, errors.Wrap(err, "primary outputs")
			}
			if !sawInputs {
				return nil, nil, errors.New("port report lists outputs before inputs")
			}
			return inputs, outputs, nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return nil, nil, errors.New("no port report found in log")
}

// parsePortLine parses "(n): 0=x 1=y[0] ..." after the report prefix.
// Entries with an unexpected position or index are skipped with a warning.
func parsePortLine(rest string) ([]PortGroup, error) {
	open := strings.IndexByte(rest, '(')
	closing := strings.Index(rest, "):")
	if open != 0 || closing < 0 {
		return nil, errors.Errorf("missing port count in %q", rest)
	}
	count, err := strconv.Atoi(rest[1:closing])
	if err != nil {
		return nil, errors.Errorf("bad port count in %q", rest)
	}
	fields := strings.Fields(rest[closing+2:])

	var ports []PortGroup
	var current *PortGroup
	flush := func() {
		if current != nil {
			ports = append(ports, *current)
			current = nil
		}
	}
	for i := 0; i < count && i < len(fields); i++ {
		pos, entry, ok := strings.Cut(fields[i], "=")
		if v, err := strconv.Atoi(pos); !ok || err != nil || v != i {
			log.Warnf("abc: unexpected port entry %q at position %d", fields[i], i)
			continue
		}
		name, index, err := splitIndexed(entry)
		if err != nil {
			log.Warnf("abc: %v", err)
			flush()
			continue
		}
		if index < 0 {
			flush()
			ports = append(ports, PortGroup{Name: name, Bits: 1})
			continue
		}
		if index == 0 {
			flush()
			current = &PortGroup{Name: name, Indexed: true}
		}
		if current == nil || current.Name != name || index != current.Bits {
			log.Warnf("abc: out of order port bit %q", entry)
			flush()
			continue
		}
		current.Bits++
	}
	flush()
	if len(fields) < count {
		return ports, errors.Errorf("expected %d ports, found %d", count, len(fields))
	}
	return ports, nil
}

// splitIndexed splits "name[k]" into name and k; a plain name yields -1.
func splitIndexed(entry string) (string, int, error) {
	open := strings.IndexByte(entry, '[')
	if open < 0 {
		return entry, -1, nil
	}
	if !strings.HasSuffix(entry, "]") || open == 0 {
		return "", 0, errors.Errorf("malformed port %q", entry)
	}
	index, err := strconv.Atoi(entry[open+1 : len(entry)-1])
	if err != nil || index < 0 {
		return "", 0, errors.Errorf("malformed port index %q", entry)
	}
	return entry[:open], index, nil
}

// WriteWrapper appends a module called name that re-exposes the optimiser's
// renamed module <name>tmp under the original vector port names.
func WriteWrapper(w io.Writer, name string, inputs, outputs []PortGroup) error {
	var sb strings.Builder
	all := append(append([]PortGroup{}, inputs...), outputs...)

	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name
	}
	fmt.Fprintf(&sb, "module %s (%s);\n", name, strings.Join(names, ", "))
	for _, p := range inputs {
		sb.WriteString(portDecl("input", p))
	}
	for _, p := range outputs {
		sb.WriteString(portDecl("output", p))
	}

	var conns []string
	for _, p := range all {
		if p.Bits < 2 {
			conns = append(conns, p.Name)
			continue
		}
		for i := 0; i < p.Bits; i++ {
			conns = append(conns, fmt.Sprintf("%s[%d]", p.Name, i))
		}
	}
	fmt.Fprintf(&sb, " %stmp _passthru_ (%s);\n", name, strings.Join(conns, ", "))
	sb.WriteString("\nendmodule\n\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func portDecl(kind string, p PortGroup) string {
	if p.Bits > 1 {
		return fmt.Sprintf("  %s [%d:0] %s;\n", kind, p.Bits-1, p.Name)
	}
	return fmt.Sprintf("  %s %s;\n", kind, p.Name)
}
