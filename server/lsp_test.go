package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/mcode/compiler"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		line uint32
		char uint32
		want string
	}{
		{"CL HO", 0, 5, "HO"},
		{"MA", 0, 2, "MA"},
		{"", 0, 0, ""},
		{"A = 1\nB = 2\nSP", 2, 2, "SP"},
		{"A = $spe", 0, 8, "$spe"},
		{"A = $axis.ma", 0, 12, "$axis.ma"},
		{"hello", 0, 0, ""},
		{"single line", 5, 0, ""},
	}
	for _, tc := range tests {
		got := extractPrefix(tc.text, protocol.Position{Line: tc.line, Character: tc.char})
		if got != tc.want {
			t.Errorf("extractPrefix(%q, %d:%d) = %q, want %q", tc.text, tc.line, tc.char, got, tc.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		line uint32
		char uint32
		want string
	}{
		{"CL HOME", 0, 4, "HOME"},
		{"CL HOME", 0, 7, "HOME"},
		{"CL HOME", 0, 2, "CL"},
		{"LB L1\nBR L1, I1 = 0", 1, 4, "L1"},
		{"A_1 = 2", 0, 1, "A_1"},
		{"", 0, 0, ""},
		{"single line", 5, 0, ""},
	}
	for _, tc := range tests {
		got := extractWord(tc.text, protocol.Position{Line: tc.line, Character: tc.char})
		if got != tc.want {
			t.Errorf("extractWord(%q, %d:%d) = %q, want %q", tc.text, tc.line, tc.char, got, tc.want)
		}
	}
}

func TestURIRoundTrip(t *testing.T) {
	path := filepath.Join(string(filepath.Separator), "proj", "modules", "main.mxt")
	uri := pathToURI(path)
	if !strings.HasPrefix(uri, "file://") {
		t.Errorf("pathToURI(%q) = %q, want a file URI", path, uri)
	}
	if got := uriToPath(uri); got != path {
		t.Errorf("uriToPath(%q) = %q, want %q", uri, got, path)
	}
	if got := uriToPath("untitled:Untitled-1"); got != "untitled:Untitled-1" {
		t.Errorf("uriToPath(untitled) = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Analysis-backed features
// ---------------------------------------------------------------------------

const homeSource = `VA SP = 100
LB HO
  SL SP
  RT
CL HO
BR HO, I1 = 0
GH = 1
`

func analyze(t *testing.T, text string) *Analysis {
	t.Helper()
	dir := t.TempDir()
	return NewWorkspace().Open(filepath.Join(dir, "main.mxt"), text)
}

func TestAnalysisReferences(t *testing.T) {
	a := analyze(t, homeSource)
	if a.Err != nil {
		t.Fatalf("analysis error: %v", a.Err)
	}

	locs := references(a, "HO")
	if len(locs) != 3 {
		t.Fatalf("references(HO) = %d locations, want 3", len(locs))
	}
	wantLines := []protocol.UInteger{1, 4, 5}
	for i, loc := range locs {
		if loc.Range.Start.Line != wantLines[i] {
			t.Errorf("reference %d line = %d, want %d", i, loc.Range.Start.Line, wantLines[i])
		}
		if loc.URI != protocol.DocumentUri(pathToURI(a.Path)) {
			t.Errorf("reference %d URI = %q, want %q", i, loc.URI, pathToURI(a.Path))
		}
	}
	if got := len(references(a, "SP")); got != 2 {
		t.Errorf("references(SP) = %d, want 2", got)
	}
	if got := references(a, "NO"); len(got) != 0 {
		t.Errorf("references(NO) = %v, want none", got)
	}
}

func TestDefinition(t *testing.T) {
	a := analyze(t, homeSource)

	locs := definition(a, "HO")
	if len(locs) != 1 {
		t.Fatalf("definition(HO) = %v, want one location", locs)
	}
	if locs[0].Range.Start.Line != 1 {
		t.Errorf("definition(HO) line = %d, want 1", locs[0].Range.Start.Line)
	}
	if locs := definition(a, "SP"); len(locs) != 1 || locs[0].Range.Start.Line != 0 {
		t.Errorf("definition(SP) = %v, want line 0", locs)
	}
	if locs := definition(a, "GH"); locs != nil {
		t.Errorf("definition(GH) = %v, want none for an undeclared variable", locs)
	}
}

func TestHover(t *testing.T) {
	a := analyze(t, homeSource)

	tests := []struct {
		word string
		want []string
	}{
		{"HO", []string{"**HO** label", "1 calls, 1 branches", "returns"}},
		{"SP", []string{"**SP** variable", "`100`", "1 references"}},
		{"GH", []string{"Not declared", "1 assignments"}},
		{"MA", []string{"**MA** instruction"}},
		{"PC", []string{"read-only register"}},
	}
	for _, tc := range tests {
		h := hover(a, tc.word)
		if h == nil {
			t.Errorf("hover(%s) = nil", tc.word)
			continue
		}
		mc, ok := h.Contents.(protocol.MarkupContent)
		if !ok {
			t.Fatalf("hover(%s) contents should be MarkupContent", tc.word)
		}
		if mc.Kind != protocol.MarkupKindMarkdown {
			t.Errorf("hover(%s) markup kind = %q, want markdown", tc.word, mc.Kind)
		}
		for _, want := range tc.want {
			if !strings.Contains(mc.Value, want) {
				t.Errorf("hover(%s) = %q, want it to contain %q", tc.word, mc.Value, want)
			}
		}
	}

	if h := hover(a, "ZZ"); h != nil {
		t.Errorf("hover(ZZ) = %v, want nil", h)
	}
}

func TestComplete(t *testing.T) {
	a := analyze(t, homeSource)

	labels := func(items []protocol.CompletionItem) map[string]protocol.CompletionItemKind {
		out := make(map[string]protocol.CompletionItemKind)
		for _, item := range items {
			out[item.Label] = *item.Kind
		}
		return out
	}

	got := labels(complete(a, "h"))
	if got["HO"] != protocol.CompletionItemKindFunction {
		t.Errorf("complete(h) HO kind = %v, want Function", got["HO"])
	}
	for _, mnemonic := range []string{"H", "HM", "HC", "HT"} {
		if got[mnemonic] != protocol.CompletionItemKindKeyword {
			t.Errorf("complete(h) missing mnemonic %s", mnemonic)
		}
	}

	got = labels(complete(a, "S"))
	if got["SP"] != protocol.CompletionItemKindVariable {
		t.Errorf("complete(S) SP kind = %v, want Variable", got["SP"])
	}
	if got["SL"] != protocol.CompletionItemKindKeyword {
		t.Errorf("complete(S) SL kind = %v, want Keyword", got["SL"])
	}
}

func TestCompleteConfigVariables(t *testing.T) {
	dir := t.TempDir()
	manifest := "[env]\nspeed = 100\nsteps = 51200\nname = \"X\"\n"
	if err := os.WriteFile(filepath.Join(dir, "mcode.toml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	a := NewWorkspace().Open(filepath.Join(dir, "main.mxt"), "X1 = $speed")
	if a.Err != nil {
		t.Fatalf("analysis error: %v", a.Err)
	}
	if len(a.Warnings) != 1 || a.Warnings[0].Kind != compiler.WarnUndeclaredVariable {
		t.Errorf("warnings = %v, want only the undeclared X1", a.Warnings)
	}

	items := complete(a, "$s")
	if len(items) != 2 || items[0].Label != "$speed" || items[1].Label != "$steps" {
		t.Fatalf("complete($s) = %v, want $speed and $steps", items)
	}
	if *items[0].Detail != "100" {
		t.Errorf("$speed detail = %q, want 100", *items[0].Detail)
	}
}

func TestDiagnostics(t *testing.T) {
	a := analyze(t, homeSource)
	diags := diagnostics(a)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %v, want one warning", diags)
	}
	d := diags[0]
	if *d.Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v, want warning", *d.Severity)
	}
	if d.Message != "GH: Undeclared variable" {
		t.Errorf("message = %q", d.Message)
	}
	if d.Range.Start.Line != 6 || d.Range.End.Character-d.Range.Start.Character != 2 {
		t.Errorf("range = %+v, want line 6 spanning GH", d.Range)
	}
}

func TestDiagnosticsFatalError(t *testing.T) {
	a := analyze(t, "X1 = 1\nLB X1\n")
	diags := diagnostics(a)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %v, want one error", diags)
	}
	d := diags[0]
	if *d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *d.Severity)
	}
	if d.Range.Start.Line != 1 {
		t.Errorf("error line = %d, want 1", d.Range.Start.Line)
	}
	if !strings.Contains(d.Message, "used as a label") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestDiagnosticsErrorInInclude(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.inc"), []byte("\n\nA = = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	a := NewWorkspace().Open(filepath.Join(dir, "main.mxt"), "B = 1\n#include \"bad.inc\"\n")
	diags := diagnostics(a)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %v, want one error", diags)
	}
	if diags[0].Range.Start.Line != 0 {
		t.Errorf("include error placed at line %d, want 0", diags[0].Range.Start.Line)
	}
	if !strings.Contains(diags[0].Message, "bad.inc") {
		t.Errorf("message = %q, want it to name bad.inc", diags[0].Message)
	}
}

// ---------------------------------------------------------------------------
// Workspace
// ---------------------------------------------------------------------------

func TestWorkspaceOpenDocumentsShadowDisk(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "speed.inc")
	if err := os.WriteFile(inc, []byte("#define SPEED 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ws := NewWorkspace()
	ws.Open(inc, "#define SPEED 2\n")
	a := ws.Open(filepath.Join(dir, "main.mxt"), "#include \"speed.inc\"\nMA $SPEED\n")
	if a.Err != nil {
		t.Fatalf("analysis error: %v", a.Err)
	}
	if body := a.Program.Body(); len(body) != 1 || body[0] != "MA 2" {
		t.Errorf("body = %q, want [MA 2] from the open buffer", body)
	}

	ws.Close(inc)
	a = ws.Open(filepath.Join(dir, "main.mxt"), "#include \"speed.inc\"\nMA $SPEED\n")
	if body := a.Program.Body(); len(body) != 1 || body[0] != "MA 1" {
		t.Errorf("body after close = %q, want [MA 1] from disk", body)
	}
}

func TestWorkspaceClose(t *testing.T) {
	ws := NewWorkspace()
	ws.Open("/tmp/x.mxt", "A = 1")
	if _, ok := ws.Text("/tmp/x.mxt"); !ok {
		t.Error("document should be stored after open")
	}
	ws.Close("/tmp/x.mxt")
	if _, ok := ws.Text("/tmp/x.mxt"); ok {
		t.Error("document should be removed after close")
	}
	if _, ok := ws.Analysis("/tmp/x.mxt"); ok {
		t.Error("analysis should be removed after close")
	}
}

func TestWorkerSerializesAndRecovers(t *testing.T) {
	w := NewWorker(NewWorkspace())
	defer w.Stop()

	if _, err := w.Do(func(ws *Workspace) interface{} { panic("boom") }); err == nil || err.Error() != "boom" {
		t.Errorf("panic error = %v, want boom", err)
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			w.Do(func(ws *Workspace) interface{} {
				return ws.Open("/tmp/shared.mxt", "A = 1")
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	result, err := w.Do(func(ws *Workspace) interface{} {
		_, ok := ws.Analysis("/tmp/shared.mxt")
		return ok
	})
	if err != nil || result != true {
		t.Errorf("shared analysis present = %v, %v", result, err)
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Error("boolPtr(true) should point at true")
	}
}
