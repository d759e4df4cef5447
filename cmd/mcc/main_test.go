package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/mcode/artifact"
	"github.com/chazu/mcode/compiler"
)

func TestApplyDefines(t *testing.T) {
	env := compiler.NewEnvironment(map[string]any{"speed": 100})
	applyDefines(env, []string{"speed=250", "brake", "ratio=1.5", "name=\"home\"", "mode=fast mode"})

	tests := []struct {
		name string
		want any
	}{
		{"speed", int64(250)},
		{"brake", true},
		{"ratio", 1.5},
		{"name", "home"},
		{"mode", "fast mode"},
	}
	for _, tc := range tests {
		got, ok := env.Lookup(tc.name)
		if !ok {
			t.Errorf("%s not defined", tc.name)
			continue
		}
		if got != tc.want {
			t.Errorf("%s = %v (%T), want %v (%T)", tc.name, got, got, tc.want, tc.want)
		}
	}
}

func TestDefineFlags(t *testing.T) {
	var d defineFlags
	for _, v := range []string{"a=1", "b"} {
		if err := d.Set(v); err != nil {
			t.Errorf("Set(%q): %v", v, err)
		}
	}
	if err := d.Set("=1"); err == nil {
		t.Error("Set(\"=1\") succeeded, want error")
	}
	if got := d.String(); got != "a=1,b" {
		t.Errorf("String() = %q, want %q", got, "a=1,b")
	}
}

func TestVerbosity(t *testing.T) {
	var v verbosity
	_ = v.Set("true")
	_ = v.Set("true")
	if v != 2 {
		t.Errorf("verbosity = %d, want 2", v)
	}
	if err := v.Set("x"); err == nil {
		t.Error("Set(\"x\") succeeded, want error")
	}
}

func TestPrintWarnings(t *testing.T) {
	var buf bytes.Buffer
	printWarnings(&buf, []compiler.Warning{{
		Kind: compiler.WarnUnusedLabel,
		Pos:  compiler.Position{File: "home.mxt", Line: 3},
		Name: "HO",
	}})
	if got, want := buf.String(), "Warning: home.mxt:3: HO: Unused label\n"; got != want {
		t.Errorf("printWarnings = %q, want %q", got, want)
	}
}

func TestCompileFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.mxt": "VA SP = $speed\nCL HO\n",
		"home.mxt": "LB HO\n  MA SP\n  RT\n",
	})
	out := filepath.Join(dir, "out.mtx")
	art := filepath.Join(dir, "out.cbor")
	paths := []string{filepath.Join(dir, "main.mxt"), filepath.Join(dir, "home.mxt")}

	if err := compileFiles(paths, []string{"speed=300"}, "", out, art, true, false); err != nil {
		t.Fatalf("compileFiles: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := "VA SP = 300\nPG 100\nCL HO\nLB HO\nMA SP\nRT\nPG\n"; string(data) != want {
		t.Errorf("listing = %q, want %q", data, want)
	}

	raw, err := os.ReadFile(art)
	if err != nil {
		t.Fatal(err)
	}
	a, err := artifact.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if a.Name != "main" || len(a.Body) != 4 {
		t.Errorf("artifact = %q with %d body lines", a.Name, len(a.Body))
	}
}

func TestCompileFilesWerror(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"main.mxt": "VA UN\n"})
	out := filepath.Join(dir, "out.mtx")

	err := compileFiles([]string{filepath.Join(dir, "main.mxt")}, nil, "", out, "", false, true)
	if err == nil || !strings.Contains(err.Error(), "1 warnings treated as errors") {
		t.Errorf("error = %v, want warnings treated as errors", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("listing written despite -Werror")
	}
}

func TestBaseEnvironmentAxisWithoutProject(t *testing.T) {
	if _, err := baseEnvironment(t.TempDir(), "X", nil); err == nil {
		t.Error("baseEnvironment with -axis and no project succeeded, want error")
	}
}
