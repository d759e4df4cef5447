package server

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/mcode/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "mcode-lsp"

// LspServer bridges LSP editor features to the microcode compiler via Worker.
type LspServer struct {
	worker *Worker

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server with an empty workspace.
func NewLSP() *LspServer {
	s := &LspServer{
		worker:  NewWorker(NewWorkspace()),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "mcode LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"$"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	path := uriToPath(string(uri))

	if _, err := s.worker.Do(func(ws *Workspace) interface{} {
		ws.Close(path)
		return nil
	}); err != nil {
		log.Errorf("close %s: %v", uri, err)
	}

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update stores the new text, recompiles it and publishes the diagnostics.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	path := uriToPath(string(uri))
	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		return diagnostics(ws.Open(path, text))
	})
	if err != nil {
		log.Errorf("analyze %s: %v", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Language features ---

// withDocument runs fn against the latest analysis of the document at uri.
// It returns nil when the document is not open.
func (s *LspServer) withDocument(uri protocol.DocumentUri, fn func(text string, a *Analysis) interface{}) interface{} {
	path := uriToPath(string(uri))
	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		text, ok := ws.Text(path)
		if !ok {
			return nil
		}
		a, _ := ws.Analysis(path)
		return fn(text, a)
	})
	if err != nil {
		log.Errorf("%s: %v", uri, err)
		return nil
	}
	return result
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	result := s.withDocument(params.TextDocument.URI, func(text string, a *Analysis) interface{} {
		prefix := extractPrefix(text, params.Position)
		if prefix == "" {
			return nil
		}
		return complete(a, prefix)
	})
	if result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	result := s.withDocument(params.TextDocument.URI, func(text string, a *Analysis) interface{} {
		word := extractWord(text, params.Position)
		if word == "" {
			return nil
		}
		return hover(a, word)
	})
	h, _ := result.(*protocol.Hover)
	return h, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	result := s.withDocument(params.TextDocument.URI, func(text string, a *Analysis) interface{} {
		word := extractWord(text, params.Position)
		if word == "" {
			return nil
		}
		return definition(a, word)
	})
	if locations, ok := result.([]protocol.Location); ok && len(locations) > 0 {
		return locations, nil
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	result := s.withDocument(params.TextDocument.URI, func(text string, a *Analysis) interface{} {
		word := extractWord(text, params.Position)
		if word == "" {
			return nil
		}
		return references(a, word)
	})
	locations, _ := result.([]protocol.Location)
	return locations, nil
}

// --- Analysis-backed logic (called on worker goroutine) ---

func complete(a *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		labelCopy := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &labelCopy,
		})
	}

	// Configuration variables
	if strings.HasPrefix(prefix, "$") {
		if a == nil || a.Env == nil {
			return nil
		}
		values := a.Env.Values()
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if strings.HasPrefix(name, prefix[1:]) {
				add("$"+name, compiler.FormatValue(values[name]), protocol.CompletionItemKindConstant)
			}
		}
		return items
	}

	upper := strings.ToUpper(prefix)
	isa := compiler.MDrive()

	// Symbols of the document
	if a != nil && a.Symbols != nil {
		for _, sym := range a.Symbols.All() {
			if !strings.HasPrefix(sym.Name, upper) || isa.IsInternal(sym.Name) {
				continue
			}
			switch sym.Kind {
			case compiler.Label:
				add(sym.Name, "label", protocol.CompletionItemKindFunction)
			case compiler.Variable:
				add(sym.Name, "variable", protocol.CompletionItemKindVariable)
			}
		}
	}

	// Instruction mnemonics
	for _, name := range isa.Mnemonics() {
		if strings.HasPrefix(name, upper) {
			add(name, mnemonicDetail(isa, name), protocol.CompletionItemKindKeyword)
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func mnemonicDetail(isa *compiler.InstructionSet, name string) string {
	switch {
	case isa.IsReadOnly(name):
		return "read-only register"
	case isa.TakesLabel(name):
		return "register (label argument)"
	case isa.IsCommand(name), isa.IsBare(name):
		return "instruction"
	default:
		return "register"
	}
}

func hover(a *Analysis, word string) *protocol.Hover {
	var b strings.Builder
	isa := compiler.MDrive()

	if sym, ok := lookupSymbol(a, word); ok && !isa.IsInternal(word) {
		fmt.Fprintf(&b, "**%s** %s", sym.Name, strings.ToLower(sym.Kind.String()))
		if sym.Default != "" {
			fmt.Fprintf(&b, " = `%s`", sym.Default)
		}
		b.WriteString("\n\n")
		if sym.Defined {
			fmt.Fprintf(&b, "Defined at %s\n\n", sym.DefPos)
		} else {
			b.WriteString("Not declared\n\n")
		}
		switch sym.Kind {
		case compiler.Variable:
			fmt.Fprintf(&b, "%d references, %d assignments", sym.References, sym.Assignments)
		case compiler.Label:
			fmt.Fprintf(&b, "%d calls, %d branches", sym.Calls, sym.Branches)
			if sym.HasReturn {
				b.WriteString(", returns")
			}
		}
	} else if isa.IsInternal(word) {
		fmt.Fprintf(&b, "**%s** %s", word, mnemonicDetail(isa, word))
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func definition(a *Analysis, word string) []protocol.Location {
	sym, ok := lookupSymbol(a, word)
	if !ok || !sym.Defined {
		return nil
	}
	return []protocol.Location{location(a, sym.DefPos, len(sym.Name))}
}

func references(a *Analysis, word string) []protocol.Location {
	if a == nil {
		return nil
	}
	var locations []protocol.Location
	for _, pos := range a.References[word] {
		locations = append(locations, location(a, pos, len(word)))
	}
	return locations
}

func lookupSymbol(a *Analysis, name string) (*compiler.Symbol, bool) {
	if a == nil || a.Symbols == nil {
		return nil, false
	}
	return a.Symbols.Lookup(name)
}

// location converts a compiler position to an LSP location spanning width
// characters. Positions without a file belong to the analyzed document.
func location(a *Analysis, pos compiler.Position, width int) protocol.Location {
	file := pos.File
	if file == "" {
		file = a.Path
	}
	start := lspPosition(pos)
	end := start
	end.Character += protocol.UInteger(width)
	return protocol.Location{
		URI:   protocol.DocumentUri(pathToURI(file)),
		Range: protocol.Range{Start: start, End: end},
	}
}

func lspPosition(pos compiler.Position) protocol.Position {
	var p protocol.Position
	if pos.Line > 0 {
		p.Line = protocol.UInteger(pos.Line - 1)
	}
	if pos.Column > 0 {
		p.Character = protocol.UInteger(pos.Column - 1)
	}
	return p
}

// --- Diagnostics ---

// diagnostics converts an analysis to LSP diagnostics. A fatal error raised
// in an included file is reported at the top of the document.
func diagnostics(a *Analysis) []protocol.Diagnostic {
	source := lspName
	diags := []protocol.Diagnostic{}

	if a.Err != nil {
		severity := protocol.DiagnosticSeverityError
		var start protocol.Position
		if pos, ok := compiler.ErrorPosition(a.Err); ok && (pos.File == "" || pos.File == a.Path) {
			start = lspPosition(pos)
		}
		diags = append(diags, protocol.Diagnostic{
			Range:    protocol.Range{Start: start, End: start},
			Severity: &severity,
			Source:   &source,
			Message:  a.Err.Error(),
		})
	}

	for _, w := range a.Warnings {
		if w.Pos.File != "" && w.Pos.File != a.Path {
			continue
		}
		severity := protocol.DiagnosticSeverityWarning
		loc := location(a, w.Pos, len(w.Name))
		diags = append(diags, protocol.Diagnostic{
			Range:    loc.Range,
			Severity: &severity,
			Source:   &source,
			Message:  fmt.Sprintf("%s: %s", w.Name, w.Kind),
		})
	}
	return diags
}

// --- Text extraction helpers ---

func isWordChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the word fragment before the cursor for completion.
// A leading $ is kept so configuration variables can be completed.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if isWordChar(ch) || ch == '.' {
			start--
		} else {
			break
		}
	}
	if start > 0 && line[start-1] == '$' {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}

	// Find end
	end := col
	for end < len(line) && isWordChar(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
