package compiler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
)

// ---------------------------------------------------------------------------
// Environment: configuration values shared by a compilation unit
// ---------------------------------------------------------------------------

// SourceLoader reads source files for the pipeline and for #include.
type SourceLoader interface {
	ReadFile(path string) ([]byte, error)
}

// OSLoader reads from the local filesystem.
type OSLoader struct{}

func (OSLoader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// MapLoader serves in-memory buffers keyed by cleaned path.
type MapLoader map[string]string

func (m MapLoader) ReadFile(path string) ([]byte, error) {
	src, ok := m[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(src), nil
}

// OverlayLoader serves Files first and falls back to Base.
type OverlayLoader struct {
	Files MapLoader
	Base  SourceLoader
}

func (o OverlayLoader) ReadFile(path string) ([]byte, error) {
	if data, err := o.Files.ReadFile(path); err == nil {
		return data, nil
	}
	if o.Base == nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return o.Base.ReadFile(path)
}

// Environment holds the configuration values of one compilation unit. It is
// mutated in place by #define and #include, and is threaded through every
// recursive include, so it must not be shared by concurrent compilations.
type Environment struct {
	values   map[string]any
	included map[string]bool // normalized paths already parsed

	// Loader reads sources; OSLoader when nil.
	Loader SourceLoader
	// IncludeDirs are searched after the including file's directory.
	IncludeDirs []string

	cueCtx *cue.Context
}

// NewEnvironment copies values into a new environment. The caller's map is
// never modified.
func NewEnvironment(values map[string]any) *Environment {
	e := &Environment{
		values:   make(map[string]any, len(values)),
		included: make(map[string]bool),
	}
	for k, v := range values {
		e.values[k] = normalizeValue(v)
	}
	return e
}

// Clone returns an independent copy, including the include history.
func (e *Environment) Clone() *Environment {
	c := NewEnvironment(e.values)
	for k := range e.included {
		c.included[k] = true
	}
	c.Loader = e.Loader
	c.IncludeDirs = append([]string(nil), e.IncludeDirs...)
	return c
}

func (e *Environment) loader() SourceLoader {
	if e.Loader == nil {
		return OSLoader{}
	}
	return e.Loader
}

// Values returns a copy of the top-level values.
func (e *Environment) Values() map[string]any {
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = normalizeValue(v)
	}
	return out
}

// Define stores a top-level value.
func (e *Environment) Define(name string, value any) {
	e.values[name] = normalizeValue(value)
}

// Lookup resolves a dotted path such as "axis.speed". A key stored with dots
// in its name (#define a.b 1) wins over nested lookup.
func (e *Environment) Lookup(path string) (any, bool) {
	if v, ok := e.values[path]; ok {
		return v, true
	}
	var cur any = e.values
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// markIncluded records path and reports whether it was new.
func (e *Environment) markIncluded(path string) bool {
	if e.included[path] {
		return false
	}
	e.included[path] = true
	return true
}

// Included returns the include history, sorted.
func (e *Environment) Included() []string {
	paths := make([]string, 0, len(e.included))
	for p := range e.included {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// normalizeValue converts Go numeric types to int64/float64 and copies
// nested maps and slices.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, item := range x {
			m[k] = normalizeValue(item)
		}
		return m
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, item := range x {
			m[k] = item
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, item := range x {
			s[i] = normalizeValue(item)
		}
		return s
	case []string:
		s := make([]any, len(x))
		for i, item := range x {
			s[i] = item
		}
		return s
	}
	return v
}

// FormatValue renders a configuration value as a microcode atom. Strings are
// double quoted; booleans become 1 or 0.
func FormatValue(v any) string {
	if s, ok := v.(string); ok {
		return `"` + s + `"`
	}
	return formatScalar(v)
}

// formatInterpolated renders a value for substitution inside a string
// literal, where strings are inserted unquoted.
func formatInterpolated(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return formatScalar(v)
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "0"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(strings.ReplaceAll(fmt.Sprint(v), "\n", " "))
}
