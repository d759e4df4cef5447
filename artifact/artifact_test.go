package artifact

import (
	"bytes"
	"testing"

	"github.com/chazu/mcode/compiler"
	"github.com/chazu/mcode/compiler/hash"
)

const source = `VA SP = 100
LB HO
  SL SP
  RT
CL HO
UN = 1
`

func compile(t *testing.T) (*compiler.Program, []*compiler.Node) {
	t.Helper()
	env := compiler.NewEnvironment(nil)
	nodes, err := compiler.ParseSource(source, "main.mxt", env, nil)
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	c := compiler.NewCompiler(env)
	if err := c.CompileNodes(nodes); err != nil {
		t.Fatalf("CompileNodes: %v", err)
	}
	c.Check()
	return c.Program(), nodes
}

func TestArtifact_CBORRoundTrip(t *testing.T) {
	p, nodes := compile(t)
	a := New("homing", "X", p)
	a.AddSource("main.mxt", nodes)

	data, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Name != "homing" || got.Axis != "X" {
		t.Errorf("Name/Axis: got %q/%q, want homing/X", got.Name, got.Axis)
	}
	if got.ListingDigest != hash.Listing(p) {
		t.Error("ListingDigest mismatch")
	}
	if len(got.Sources) != 1 || got.Sources[0].Digest != hash.Source(nodes) {
		t.Error("Sources mismatch")
	}
	if len(got.Declarations) != 1 || got.Declarations[0] != "VA SP = 100" {
		t.Errorf("Declarations: got %q", got.Declarations)
	}
	if len(got.Body) != len(p.Body()) {
		t.Errorf("Body: got %d lines, want %d", len(got.Body), len(p.Body()))
	}
	if len(got.Warnings) != len(p.Warnings) {
		t.Errorf("Warnings: got %q, want %d", got.Warnings, len(p.Warnings))
	}
}

func TestArtifactSymbols(t *testing.T) {
	p, _ := compile(t)
	a := New("homing", "", p)

	byName := make(map[string]SymbolRecord)
	for _, s := range a.Symbols {
		byName[s.Name] = s
	}
	home, ok := byName["HO"]
	if !ok {
		t.Fatal("HO missing from symbols")
	}
	if home.Kind != "Label" || !home.Defined || home.Line != 2 || home.Calls != 1 || !home.HasReturn {
		t.Errorf("HO = %+v", home)
	}
	speed := byName["SP"]
	if speed.Kind != "Variable" || !speed.Defined || speed.References != 1 {
		t.Errorf("SP = %+v", speed)
	}
	if unused := byName["UN"]; unused.Defined || unused.Assignments != 1 {
		t.Errorf("UN = %+v", unused)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	p, nodes := compile(t)
	a := New("homing", "X", p)
	a.AddSource("main.mxt", nodes)
	first, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	p2, nodes2 := compile(t)
	b := New("homing", "X", p2)
	b.AddSource("main.mxt", nodes2)
	second, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two compilations of the same source encode differently")
	}
}

func TestUnmarshalErrors(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}

	data, err := Marshal(&Artifact{Version: Version + 1, Name: "future"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("Unmarshal accepted an unknown version")
	}
}
