package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrMissing is returned when a required key has no value.
var ErrMissing = errors.New("config: missing key")

// None is the string value that marks an unset path.
const None = "none"

// Type is the declared type of a configuration value.
type Type int

const (
	Int Type = iota
	Real
	String
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Real:
		return "real"
	case String:
		return "string"
	}
	return "unknown"
}

type value struct {
	typ Type
	i   int
	r   float64
	s   string
}

// Store is a typed key/value configuration. Keys are dotted paths such as
// synth.expropt.verbose. A Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[string]value
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string]value)}
}

// Exists reports whether key has a value.
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

func (s *Store) get(key string, typ Type) (value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return value{}, errors.Wrap(ErrMissing, key)
	}
	if v.typ != typ {
		return value{}, errors.Errorf("config: %s is %s, not %s", key, v.typ, typ)
	}
	return v, nil
}

// Int returns the integer value of key.
func (s *Store) Int(key string) (int, error) {
	v, err := s.get(key, Int)
	return v.i, err
}

// Real returns the real value of key. Integer values are converted.
func (s *Store) Real(key string) (float64, error) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok && v.typ == Int {
		return float64(v.i), nil
	}
	v, err := s.get(key, Real)
	return v.r, err
}

// String returns the string value of key.
func (s *Store) String(key string) (string, error) {
	v, err := s.get(key, String)
	return v.s, err
}

// IntOr returns the integer value of key, or def when it is unset.
func (s *Store) IntOr(key string, def int) int {
	v, err := s.Int(key)
	if err != nil {
		return def
	}
	return v
}

// Path returns the string value of key, treating None as unset.
func (s *Store) Path(key string) (string, bool) {
	v, err := s.String(key)
	if err != nil || v == None || v == "" {
		return "", false
	}
	return v, true
}

// SetInt stores an integer.
func (s *Store) SetInt(key string, v int) {
	s.put(key, value{typ: Int, i: v}, true)
}

// SetReal stores a real.
func (s *Store) SetReal(key string, v float64) {
	s.put(key, value{typ: Real, r: v}, true)
}

// SetString stores a string.
func (s *Store) SetString(key, v string) {
	s.put(key, value{typ: String, s: v}, true)
}

// SetDefaultInt stores v unless key already has a value.
func (s *Store) SetDefaultInt(key string, v int) {
	s.put(key, value{typ: Int, i: v}, false)
}

// SetDefaultReal stores v unless key already has a value.
func (s *Store) SetDefaultReal(key string, v float64) {
	s.put(key, value{typ: Real, r: v}, false)
}

// SetDefaultString stores v unless key already has a value.
func (s *Store) SetDefaultString(key, v string) {
	s.put(key, value{typ: String, s: v}, false)
}

func (s *Store) put(key string, v value, overwrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok && !overwrite {
		return
	}
	s.values[key] = v
}

// Set parses text as the type key already has, or infers int, real or
// string for a new key. It backs command-line overrides.
func (s *Store) Set(key, text string) error {
	s.mu.RLock()
	old, ok := s.values[key]
	s.mu.RUnlock()
	typ := String
	if ok {
		typ = old.typ
	} else if _, err := strconv.Atoi(text); err == nil {
		typ = Int
	} else if _, err := strconv.ParseFloat(text, 64); err == nil {
		typ = Real
	}
	v, err := parseValue(typ, text)
	if err != nil {
		return errors.Wrapf(err, "config: %s", key)
	}
	s.put(key, v, true)
	return nil
}

// Keys returns every key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Format renders the value of key with its type, as in a config file.
func (s *Store) Format(key string) string {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return ""
	}
	switch v.typ {
	case Int:
		return "int " + strconv.Itoa(v.i)
	case Real:
		return "real " + strconv.FormatFloat(v.r, 'g', -1, 64)
	}
	return "string " + strconv.Quote(v.s)
}

func parseValue(typ Type, text string) (value, error) {
	switch typ {
	case Int:
		i, err := strconv.Atoi(text)
		if err != nil {
			return value{}, errors.Errorf("bad int %q", text)
		}
		return value{typ: Int, i: i}, nil
	case Real:
		r, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return value{}, errors.Errorf("bad real %q", text)
		}
		return value{typ: Real, r: r}, nil
	}
	if unq, err := strconv.Unquote(text); err == nil && strings.HasPrefix(text, `"`) {
		text = unq
	}
	return value{typ: String, s: text}, nil
}
