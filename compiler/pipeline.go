package compiler

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// Pipeline: source -> parse -> preprocess -> compile
// ---------------------------------------------------------------------------

// ParseFile reads path through the environment's loader, parses it and
// resolves its pragmas. The file is recorded in the include history first, so
// an #include of it is a no-op.
func ParseFile(path string, env *Environment, isa *InstructionSet) ([]*Node, error) {
	path = filepath.Clean(path)
	env.markIncluded(path)
	data, err := env.loader().ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return preprocessSource(string(data), path, env, isa, defaultPragmas)
}

// ParseSource parses and preprocesses an in-memory buffer. name is used for
// positions and to resolve relative includes; it may be empty.
func ParseSource(src, name string, env *Environment, isa *InstructionSet) ([]*Node, error) {
	if name != "" {
		name = filepath.Clean(name)
		env.markIncluded(name)
	}
	return preprocessSource(src, name, env, isa, defaultPragmas)
}

func preprocessSource(src, file string, env *Environment, isa *InstructionSet, table *DispatchTable[PragmaHandler]) ([]*Node, error) {
	nodes, err := Parse(src, file, isa)
	if err != nil {
		return nil, err
	}
	return newPreprocessor(env, isa, table).Process(nodes)
}

// CompileFiles compiles paths as one unit sharing env.
func CompileFiles(env *Environment, paths []string, opts ...Option) (*Program, error) {
	c := NewCompiler(env, opts...)
	for _, path := range paths {
		nodes, err := ParseFile(path, c.env, c.isa)
		if err != nil {
			return nil, err
		}
		if err := c.CompileNodes(nodes); err != nil {
			return nil, err
		}
	}
	c.Check()
	return c.Program(), nil
}

// CompileSource compiles a single buffer.
func CompileSource(src, name string, env *Environment, opts ...Option) (*Program, error) {
	c := NewCompiler(env, opts...)
	nodes, err := ParseSource(src, name, c.env, c.isa)
	if err != nil {
		return nil, err
	}
	if err := c.CompileNodes(nodes); err != nil {
		return nil, err
	}
	c.Check()
	return c.Program(), nil
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Line is one emitted instruction and the statement it came from.
type Line struct {
	Text string
	Pos  Position
}

// Program is a compiled unit.
type Program struct {
	Lines    []Line
	Symbols  *SymbolTable
	Warnings []Warning
}

// Text returns every line in source order.
func (p *Program) Text() []string {
	out := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		out[i] = l.Text
	}
	return out
}

func isDeclaration(text string) bool {
	return strings.HasPrefix(text, keywordDeclaration+" ")
}

// Declarations returns the VA lines in first-definition order. A variable
// declared more than once contributes only its first line.
func (p *Program) Declarations() []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range p.Lines {
		if !isDeclaration(l.Text) {
			continue
		}
		name := strings.Fields(l.Text)[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, l.Text)
	}
	return out
}

// Body returns every line that is not a declaration, in source order.
func (p *Program) Body() []string {
	var out []string
	for _, l := range p.Lines {
		if !isDeclaration(l.Text) {
			out = append(out, l.Text)
		}
	}
	return out
}

// HasProgramEntry reports whether the body opens its own program block.
func (p *Program) HasProgramEntry() bool {
	for _, text := range p.Body() {
		if f := strings.Fields(text); len(f) > 0 && f[0] == "PG" {
			return true
		}
	}
	return false
}

// Compose writes declarations followed by the body. With wrap set, a body
// without its own PG is enclosed in PG 100 ... PG so it is stored as a
// program rather than executed immediately.
func (p *Program) Compose(w io.Writer, wrap bool) error {
	wrap = wrap && !p.HasProgramEntry()
	var sb strings.Builder
	for _, line := range p.Declarations() {
		sb.WriteString(line + "\n")
	}
	if wrap {
		sb.WriteString("PG 100\n")
	}
	for _, line := range p.Body() {
		sb.WriteString(line + "\n")
	}
	if wrap {
		sb.WriteString("PG\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Check runs post-pass checks over the program's symbols, typically after
// merging fragments compiled without checks. opts select the instruction set
// and checks as for NewCompiler.
func (p *Program) Check(opts ...Option) []Warning {
	c := NewCompiler(nil, opts...)
	if p.Symbols != nil {
		c.symbols = p.Symbols
	}
	found := c.Check()
	p.Warnings = append(p.Warnings, found...)
	return found
}

// Merge appends another fragment's lines, warnings and symbols.
func (p *Program) Merge(other *Program) error {
	if p.Symbols == nil {
		p.Symbols = NewSymbolTable()
	}
	if other.Symbols != nil {
		if err := p.Symbols.Merge(other.Symbols); err != nil {
			return err
		}
	}
	p.Lines = append(p.Lines, other.Lines...)
	p.Warnings = append(p.Warnings, other.Warnings...)
	return nil
}
