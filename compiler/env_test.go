package compiler

import (
	"errors"
	"io/fs"
	"testing"
)

func TestEnvironmentLookup(t *testing.T) {
	env := NewEnvironment(map[string]any{
		"speed":  100,
		"axis":   map[string]any{"name": "X", "limits": map[string]any{"max": 5000}},
		"a.b":    "flat",
		"a":      map[string]any{"b": "nested"},
		"enable": true,
	})

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"speed", int64(100), true},
		{"axis.name", "X", true},
		{"axis.limits.max", int64(5000), true},
		{"a.b", "flat", true},
		{"enable", true, true},
		{"missing", nil, false},
		{"axis.missing", nil, false},
		{"speed.sub", nil, false},
	}
	for _, tc := range tests {
		got, ok := env.Lookup(tc.path)
		if ok != tc.ok {
			t.Errorf("Lookup(%q) ok = %v, want %v", tc.path, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("Lookup(%q) = %v (%T), want %v (%T)", tc.path, got, got, tc.want, tc.want)
		}
	}
}

func TestEnvironmentDoesNotAliasCallerMap(t *testing.T) {
	values := map[string]any{"speed": 1}
	env := NewEnvironment(values)
	env.Define("speed", 2)
	env.Define("extra", "x")

	if values["speed"] != 1 {
		t.Errorf("caller map modified: speed = %v", values["speed"])
	}
	if _, ok := values["extra"]; ok {
		t.Error("caller map gained a key")
	}
}

func TestEnvironmentClone(t *testing.T) {
	env := NewEnvironment(map[string]any{"speed": 1})
	env.IncludeDirs = []string{"lib"}
	env.markIncluded("a.inc")

	c := env.Clone()
	c.Define("speed", 2)
	c.markIncluded("b.inc")

	if v, _ := env.Lookup("speed"); v != int64(1) {
		t.Errorf("original speed = %v, want 1", v)
	}
	if got := env.Included(); len(got) != 1 {
		t.Errorf("original included = %v, want [a.inc]", got)
	}
	if got := c.Included(); len(got) != 2 || got[0] != "a.inc" || got[1] != "b.inc" {
		t.Errorf("clone included = %v, want [a.inc b.inc]", got)
	}
	if len(c.IncludeDirs) != 1 || c.IncludeDirs[0] != "lib" {
		t.Errorf("clone include dirs = %v", c.IncludeDirs)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{"X", `"X"`},
		{true, "1"},
		{false, "0"},
		{int64(42), "42"},
		{-7, "-7"},
		{2.5, "2.5"},
		{nil, "0"},
		{[]any{1, "a"}, `1, "a"`},
	}
	for _, tc := range tests {
		if got := FormatValue(normalizeValue(tc.value)); got != tc.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestEnvironmentEval(t *testing.T) {
	env := NewEnvironment(map[string]any{
		"DEBUG":   true,
		"speed":   10,
		"axis":    "X",
		"limits":  map[string]any{"max": 5000},
		"verbose": 2,
	})

	tests := []struct {
		expr string
		want any
	}{
		{"1 + 2", int64(3)},
		{"DEBUG", true},
		{"speed * 2", int64(20)},
		{`axis == "X"`, true},
		{`axis == "Y"`, false},
		{"limits.max > 1000", true},
		{"!DEBUG || verbose > 1", true},
		{`"label"`, "label"},
		{"1.5", 1.5},
		{"null", nil},
	}
	for _, tc := range tests {
		got, err := env.Eval(tc.expr)
		if err != nil {
			t.Errorf("Eval(%q) error: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Eval(%q) = %v (%T), want %v (%T)", tc.expr, got, got, tc.want, tc.want)
		}
	}
}

func TestEnvironmentEvalErrors(t *testing.T) {
	env := NewEnvironment(nil)
	for _, expr := range []string{"missing", "1 +", "int"} {
		if _, err := env.Eval(expr); err == nil {
			t.Errorf("Eval(%q) succeeded, want error", expr)
		}
	}
}

func TestEnvironmentTruth(t *testing.T) {
	env := NewEnvironment(map[string]any{"zero": 0, "name": "", "on": true})
	tests := []struct {
		expr string
		want bool
	}{
		{"0", false},
		{"1", true},
		{"zero", false},
		{"name", false},
		{`"x"`, true},
		{"on", true},
		{"null", false},
	}
	for _, tc := range tests {
		got, err := env.Truth(tc.expr)
		if err != nil {
			t.Errorf("Truth(%q) error: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Truth(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestLoaders(t *testing.T) {
	files := MapLoader{"lib/a.inc": "A = 1"}
	if data, err := files.ReadFile("lib/./a.inc"); err != nil || string(data) != "A = 1" {
		t.Errorf("MapLoader.ReadFile = %q, %v", data, err)
	}
	if _, err := files.ReadFile("b.inc"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("MapLoader missing file error = %v, want fs.ErrNotExist", err)
	}

	overlay := OverlayLoader{
		Files: MapLoader{"a.inc": "open buffer"},
		Base:  MapLoader{"a.inc": "on disk", "b.inc": "B = 2"},
	}
	if data, _ := overlay.ReadFile("a.inc"); string(data) != "open buffer" {
		t.Errorf("overlay a.inc = %q, want open buffer", data)
	}
	if data, _ := overlay.ReadFile("b.inc"); string(data) != "B = 2" {
		t.Errorf("overlay b.inc = %q, want base contents", data)
	}
	if _, err := (OverlayLoader{Files: MapLoader{}}).ReadFile("c.inc"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("overlay without base error = %v, want fs.ErrNotExist", err)
	}
}
