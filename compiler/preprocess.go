package compiler

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Preprocessor: conditional compilation, defines and includes
// ---------------------------------------------------------------------------

// PragmaHandler handles one directive keyword.
type PragmaHandler func(p *Preprocessor, keyword, args string, node *Node) error

// Preprocessor resolves the pragmas of one unit (one file) against an
// environment. Statements and comments pass through untouched unless they
// sit in an excluded branch.
type Preprocessor struct {
	env   *Environment
	isa   *InstructionSet
	table *DispatchTable[PragmaHandler]

	depth   int
	skip    []bool     // code at this level is excluded
	matched []bool     // a branch at this level already matched
	opened  []Position // #if position per level, for diagnostics
	tree    []*Node
}

// NewPreprocessor creates a preprocessor using the default pragma table.
func NewPreprocessor(env *Environment, isa *InstructionSet) *Preprocessor {
	return newPreprocessor(env, isa, defaultPragmas)
}

func newPreprocessor(env *Environment, isa *InstructionSet, table *DispatchTable[PragmaHandler]) *Preprocessor {
	if isa == nil {
		isa = MDrive()
	}
	return &Preprocessor{
		env:     env,
		isa:     isa,
		table:   table,
		skip:    []bool{false},
		matched: []bool{false},
		opened:  []Position{{}},
	}
}

// PragmaTable returns the default pragma table, for extension.
func PragmaTable() *DispatchTable[PragmaHandler] {
	return defaultPragmas
}

// WithPragmas returns a copy of p that dispatches through table.
func (p *Preprocessor) WithPragmas(table *DispatchTable[PragmaHandler]) *Preprocessor {
	return newPreprocessor(p.env, p.isa, table)
}

// Env returns the environment being preprocessed against.
func (p *Preprocessor) Env() *Environment {
	return p.env
}

// Process walks the top level of a parsed unit and returns the nodes that
// survive conditional compilation, with includes spliced in place.
func (p *Preprocessor) Process(nodes []*Node) ([]*Node, error) {
	p.tree = nil
	for _, node := range nodes {
		if err := p.visit(node); err != nil {
			return nil, err
		}
	}
	if p.depth > 0 {
		return nil, compileErrorf(p.opened[p.depth], "unterminated conditional (openended pragma)")
	}
	return p.tree, nil
}

func (p *Preprocessor) visit(node *Node) error {
	if node.Kind != KindPragma {
		if !p.skipping() {
			p.tree = append(p.tree, node)
		}
		return nil
	}

	keyword, args := splitPragma(node.Text)
	handler, err := p.table.Resolve(Kind(keyword))
	if err != nil {
		return compileErrorf(node.Pos, "unsupported pragma: #%s", keyword)
	}
	return handler(p, keyword, args, node)
}

// skipping reports whether any open level excludes code.
func (p *Preprocessor) skipping() bool {
	for _, s := range p.skip {
		if s {
			return true
		}
	}
	return false
}

func splitPragma(text string) (keyword, args string) {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}

// condition evaluates a #if/#elseif expression. Failures exclude the branch.
func (p *Preprocessor) condition(node *Node, args string) bool {
	ok, err := p.env.Truth(args)
	if err != nil {
		log.Debugf("%s: condition %q treated as false: %v", node.Pos, args, err)
		return false
	}
	return ok
}

// ---------------------------------------------------------------------------
// Directive handlers
// ---------------------------------------------------------------------------

var defaultPragmas = newPragmaTable()

func newPragmaTable() *DispatchTable[PragmaHandler] {
	t := NewDispatchTable[PragmaHandler](true)
	t.SetDefault(func(p *Preprocessor, keyword, args string, node *Node) error {
		return compileErrorf(node.Pos, "unsupported pragma: #%s", keyword)
	})
	t.On(pragmaIf, "if")
	t.On(pragmaElseIf, "elseif")
	t.On(pragmaElse, "else")
	t.On(pragmaEndIf, "endif")
	t.On(pragmaDefine, "define")
	t.On(pragmaInclude, "include")
	return t
}

func pragmaIf(p *Preprocessor, keyword, args string, node *Node) error {
	matched := p.condition(node, args)
	p.matched = append(p.matched, matched)
	p.skip = append(p.skip, !matched)
	p.opened = append(p.opened, node.Pos)
	p.depth++
	return nil
}

func pragmaElseIf(p *Preprocessor, keyword, args string, node *Node) error {
	if p.depth == 0 {
		return compileErrorf(node.Pos, "else-if without if")
	}
	if p.matched[p.depth] {
		p.skip[p.depth] = true
		return nil
	}
	p.matched[p.depth] = p.condition(node, args)
	p.skip[p.depth] = !p.matched[p.depth]
	return nil
}

func pragmaElse(p *Preprocessor, keyword, args string, node *Node) error {
	if p.depth == 0 {
		return compileErrorf(node.Pos, "else without if")
	}
	p.skip[p.depth] = p.matched[p.depth]
	return nil
}

func pragmaEndIf(p *Preprocessor, keyword, args string, node *Node) error {
	if p.depth == 0 {
		return compileErrorf(node.Pos, "unmatched endif")
	}
	p.skip = p.skip[:p.depth]
	p.matched = p.matched[:p.depth]
	p.opened = p.opened[:p.depth]
	p.depth--
	return nil
}

// pragmaDefine handles #define NAME [VALUE]. A bare #define NAME stores true.
func pragmaDefine(p *Preprocessor, keyword, args string, node *Node) error {
	if p.skipping() {
		return nil
	}
	name, value := splitPragma(args)
	if name == "" {
		return compileErrorf(node.Pos, "#define: missing name")
	}
	if value == "" {
		p.env.Define(name, true)
		return nil
	}
	v, err := p.env.Eval(value)
	if err != nil {
		return compileErrorf(node.Pos, "#define %s: %v", name, err)
	}
	log.Debugf("%s: #define %s = %v", node.Pos, name, v)
	p.env.Define(name, v)
	return nil
}

// pragmaInclude handles #include "path". The path is tried relative to the
// including file, then in each include directory. A file already in the
// environment's include history is skipped silently.
func pragmaInclude(p *Preprocessor, keyword, args string, node *Node) error {
	if p.skipping() {
		return nil
	}
	name, err := strconv.Unquote(strings.TrimSpace(args))
	if err != nil || name == "" {
		return compileErrorf(node.Pos, "#include: malformed path %s", args)
	}

	for _, candidate := range p.includeCandidates(node, name) {
		if p.env.included[candidate] {
			log.Debugf("%s: %s already included", node.Pos, candidate)
			return nil
		}
		data, err := p.env.loader().ReadFile(candidate)
		if err != nil {
			continue
		}
		p.env.markIncluded(candidate)
		log.Debugf("%s: including %s", node.Pos, candidate)

		nodes, err := preprocessSource(string(data), candidate, p.env, p.isa, p.table)
		if err != nil {
			return err
		}
		p.tree = append(p.tree, nodes...)
		return nil
	}
	return compileErrorf(node.Pos, "#include %q: file not found", name)
}

func (p *Preprocessor) includeCandidates(node *Node, name string) []string {
	if filepath.IsAbs(name) {
		return []string{filepath.Clean(name)}
	}
	candidates := []string{filepath.Join(filepath.Dir(node.Pos.File), name)}
	for _, dir := range p.env.IncludeDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	return candidates
}
