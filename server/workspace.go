package server

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/chazu/mcode/compiler"
	"github.com/chazu/mcode/manifest"
)

// Analysis is the result of compiling one open document.
type Analysis struct {
	Path     string
	Program  *compiler.Program // nil when compilation failed
	Err      error
	Symbols  *compiler.SymbolTable
	Warnings []compiler.Warning
	Env      *compiler.Environment

	// References maps each identifier to every position it occurs at,
	// including definitions.
	References map[string][]compiler.Position
}

// Workspace holds the open documents and their latest analyses. It is not
// safe for concurrent use; the LSP reaches it through a Worker.
type Workspace struct {
	docs     map[string]string // path -> contents
	analyses map[string]*Analysis
	projects map[string]*manifest.Manifest // document dir -> project, nil when none
	isa      *compiler.InstructionSet
}

// NewWorkspace creates an empty workspace using the MDrive instruction set.
func NewWorkspace() *Workspace {
	return &Workspace{
		docs:     make(map[string]string),
		analyses: make(map[string]*Analysis),
		projects: make(map[string]*manifest.Manifest),
		isa:      compiler.MDrive(),
	}
}

// Open stores or replaces a document and analyzes it.
func (ws *Workspace) Open(path, text string) *Analysis {
	ws.docs[path] = text
	return ws.analyze(path)
}

// Close forgets a document.
func (ws *Workspace) Close(path string) {
	delete(ws.docs, path)
	delete(ws.analyses, path)
}

// Text returns the contents of an open document.
func (ws *Workspace) Text(path string) (string, bool) {
	text, ok := ws.docs[path]
	return text, ok
}

// Analysis returns the latest analysis of an open document.
func (ws *Workspace) Analysis(path string) (*Analysis, bool) {
	a, ok := ws.analyses[path]
	return a, ok
}

// environment returns the compile environment for a document: the project
// environment when an mcode.toml is found above it, else an empty one. Open
// documents shadow files on disk.
func (ws *Workspace) environment(path string) *compiler.Environment {
	var env *compiler.Environment
	if m := ws.project(filepath.Dir(path)); m != nil {
		var err error
		if env, err = m.Environment(""); err != nil {
			log.Warningf("%s: %v", m.Dir, err)
			env = nil
		}
	}
	if env == nil {
		env = compiler.NewEnvironment(nil)
	}

	files := make(compiler.MapLoader, len(ws.docs))
	for p, text := range ws.docs {
		files[filepath.Clean(p)] = text
	}
	env.Loader = compiler.OverlayLoader{Files: files, Base: compiler.OSLoader{}}
	return env
}

func (ws *Workspace) project(dir string) *manifest.Manifest {
	if m, ok := ws.projects[dir]; ok {
		return m
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		log.Warningf("project lookup from %s: %v", dir, err)
		m = nil
	}
	ws.projects[dir] = m
	return m
}

// analyze compiles a document, recording every identifier occurrence
// through a table derived from the compiler's handlers.
func (ws *Workspace) analyze(path string) *Analysis {
	a := &Analysis{
		Path:       path,
		References: make(map[string][]compiler.Position),
	}
	ws.analyses[path] = a

	c := compiler.NewCompiler(ws.environment(path),
		compiler.WithISA(ws.isa),
		compiler.WithDispatch(referenceTable(a.References)),
	)
	a.Symbols = c.Symbols()
	a.Env = c.Env()

	nodes, err := compiler.ParseSource(ws.docs[path], path, c.Env(), ws.isa)
	if err != nil {
		a.Err = err
		return a
	}
	if err := c.CompileNodes(nodes); err != nil {
		a.Err = err
		a.Warnings = c.Warnings()
		return a
	}
	c.Check()
	a.Program = c.Program()
	a.Warnings = a.Program.Warnings
	return a
}

// referenceTable extends the compiler's handlers so every statement records
// the identifiers it mentions before it is compiled.
func referenceTable(refs map[string][]compiler.Position) *compiler.DispatchTable[compiler.Handler] {
	base := compiler.Handlers()
	statement, err := base.Resolve(compiler.KindStatement)
	if err != nil {
		panic(err)
	}
	table := base.Extend()
	table.On(func(c *compiler.Compiler, node *compiler.Node) error {
		node.Walk(func(n *compiler.Node) bool {
			if n.Kind == compiler.KindName {
				refs[n.Text] = append(refs[n.Text], n.Pos)
			}
			return true
		})
		return statement(c, node)
	}, compiler.KindStatement)
	return table
}

// uriToPath converts a file:// URI to a filesystem path. Other schemes are
// returned unchanged so untitled buffers still get a stable key.
func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.Clean(filepath.FromSlash(u.Path))
}

// pathToURI is the inverse of uriToPath.
func pathToURI(path string) string {
	if strings.Contains(path, "://") || strings.HasPrefix(path, "untitled:") {
		return path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
