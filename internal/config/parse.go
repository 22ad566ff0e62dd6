package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// maxIncludeDepth bounds nested include statements.
const maxIncludeDepth = 16

// Load reads a configuration file into s.
func (s *Store) Load(path string) error {
	return s.load(path, 0)
}

func (s *Store) load(path string, depth int) error {
	if depth > maxIncludeDepth {
		return errors.Errorf("config: includes nested too deeply at %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "config")
	}
	defer f.Close()
	return s.parse(f, path, depth)
}

// Parse reads configuration statements from r. name is used in error
// messages and to resolve relative includes.
//
//	begin synth
//	  begin expropt
//	    int verbose 2
//	    real default_load 1.5
//	    string liberty_tt_typtemp "/lib/typ.lib"
//	  end
//	end
func (s *Store) Parse(r io.Reader, name string) error {
	return s.parse(r, name, 0)
}

func (s *Store) parse(r io.Reader, name string, depth int) error {
	sc := bufio.NewScanner(r)
	var scope []string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields, err := splitFields(sc.Text())
		if err != nil {
			return errors.Wrapf(err, "%s:%d", name, lineNo)
		}
		if len(fields) == 0 {
			continue
		}
		fail := func(format string, args ...any) error {
			return errors.Errorf("%s:%d: "+format, append([]any{name, lineNo}, args...)...)
		}
		switch fields[0] {
		case "begin":
			if len(fields) != 2 {
				return fail("begin takes one name")
			}
			scope = append(scope, fields[1])
		case "end":
			if len(fields) != 1 {
				return fail("end takes no arguments")
			}
			if len(scope) == 0 {
				return fail("end without begin")
			}
			scope = scope[:len(scope)-1]
		case "include":
			if len(fields) != 2 {
				return fail("include takes one file")
			}
			path := unquote(fields[1])
			if !filepath.IsAbs(path) {
				path = filepath.Join(filepath.Dir(name), path)
			}
			if err := s.load(path, depth+1); err != nil {
				return errors.Wrapf(err, "%s:%d", name, lineNo)
			}
		case "int", "real", "string":
			if len(fields) != 3 {
				return fail("%s takes a name and a value", fields[0])
			}
			typ := map[string]Type{"int": Int, "real": Real, "string": String}[fields[0]]
			v, err := parseValue(typ, fields[2])
			if err != nil {
				return fail("%v", err)
			}
			key := strings.Join(append(append([]string{}, scope...), fields[1]), ".")
			s.put(key, v, true)
		default:
			return fail("unknown statement %q", fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	if len(scope) != 0 {
		return errors.Errorf("%s: missing end for begin %s", name, scope[len(scope)-1])
	}
	return nil
}

// splitFields splits a line on blanks, keeping quoted strings whole and
// dropping everything after a # outside quotes.
func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote, inField := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				cur.WriteByte(line[i])
			} else if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote, inField = true, true
			cur.WriteByte(c)
		case c == '#':
			i = len(line)
		case c == ' ' || c == '\t' || c == '\r':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			inField = true
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, errors.New("unterminated string")
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

func unquote(s string) string {
	if v, err := parseValue(String, s); err == nil {
		return v.s
	}
	return s
}
