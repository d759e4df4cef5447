package compiler

import (
	"regexp"
	"strings"
)

// ---------------------------------------------------------------------------
// Codegen: Compile the preprocessed AST to instruction text
// ---------------------------------------------------------------------------

// Handler compiles one node kind.
type Handler func(c *Compiler, node *Node) error

// Option configures a Compiler.
type Option func(*Compiler)

// WithISA selects the target instruction set.
func WithISA(isa *InstructionSet) Option {
	return func(c *Compiler) {
		if isa != nil {
			c.isa = isa
		}
	}
}

// WithDispatch replaces the handler table, normally with one derived from
// Handlers() via Extend.
func WithDispatch(table *DispatchTable[Handler]) Option {
	return func(c *Compiler) {
		if table != nil {
			c.table = table
		}
	}
}

// WithChecks replaces the post-pass check list.
func WithChecks(checks ...Check) Option {
	return func(c *Compiler) {
		c.checks = append([]Check(nil), checks...)
	}
}

// Compiler walks a preprocessed AST and produces instruction lines. A
// Compiler compiles one unit; it is not safe for concurrent use.
type Compiler struct {
	env     *Environment
	isa     *InstructionSet
	table   *DispatchTable[Handler]
	checks  []Check
	symbols *SymbolTable

	// Frame stack. stack[0] collects finished statements; each compound
	// construct pushes a frame and joins it on the way out.
	stack    [][]string
	linePos  []Position
	label    string // currently open label
	warnings []Warning
}

// NewCompiler creates a compiler for env. A nil env is treated as empty.
func NewCompiler(env *Environment, opts ...Option) *Compiler {
	if env == nil {
		env = NewEnvironment(nil)
	}
	c := &Compiler{
		env:     env,
		isa:     MDrive(),
		table:   baseHandlers,
		checks:  DefaultChecks(),
		symbols: NewSymbolTable(),
		stack:   [][]string{nil},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handlers returns the base handler table. Derive from it with Extend to
// override or observe individual node kinds.
func Handlers() *DispatchTable[Handler] {
	return baseHandlers
}

// ISA returns the compiler's instruction set.
func (c *Compiler) ISA() *InstructionSet { return c.isa }

// Env returns the compiler's environment.
func (c *Compiler) Env() *Environment { return c.env }

// Symbols returns the symbol table.
func (c *Compiler) Symbols() *SymbolTable { return c.symbols }

// Warnings returns the warnings recorded so far.
func (c *Compiler) Warnings() []Warning { return c.warnings }

// AddCheck appends a post-pass check.
func (c *Compiler) AddCheck(check Check) {
	c.checks = append(c.checks, check)
}

// Warn records a warning.
func (c *Compiler) Warn(kind WarningKind, pos Position, name string) {
	c.warnings = append(c.warnings, Warning{Kind: kind, Pos: pos, Name: name})
}

// Depth returns the number of open frames above the root.
func (c *Compiler) Depth() int {
	return len(c.stack) - 1
}

// ---------------------------------------------------------------------------
// Frame stack
// ---------------------------------------------------------------------------

func (c *Compiler) push(text string) {
	top := len(c.stack) - 1
	c.stack[top] = append(c.stack[top], text)
}

func (c *Compiler) pop() string {
	top := len(c.stack) - 1
	frame := c.stack[top]
	if len(frame) == 0 {
		return ""
	}
	text := frame[len(frame)-1]
	c.stack[top] = frame[:len(frame)-1]
	return text
}

func (c *Compiler) pushBlock() {
	c.stack = append(c.stack, nil)
}

func (c *Compiler) popBlock() []string {
	top := len(c.stack) - 1
	frame := c.stack[top]
	c.stack = c.stack[:top]
	return frame
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Visit compiles one node through the dispatch table.
func (c *Compiler) Visit(node *Node) error {
	h, err := c.table.Resolve(node.Kind)
	if err != nil {
		return &UnsupportedError{Kind: node.Kind, Pos: node.Pos}
	}
	return h(c, node)
}

// VisitChildren compiles the children of node in order.
func (c *Compiler) VisitChildren(node *Node) error {
	for _, child := range node.Children {
		if err := c.Visit(child); err != nil {
			return err
		}
	}
	return nil
}

// CompileNodes compiles a preprocessed node sequence. It may be called more
// than once to append to the same unit. On error the open frames are
// discarded; statements already finished are kept.
func (c *Compiler) CompileNodes(nodes []*Node) error {
	for _, node := range nodes {
		if err := c.Visit(node); err != nil {
			c.stack = c.stack[:1]
			return err
		}
	}
	if c.Depth() > 0 {
		return compileErrorf(Position{}, "unterminated block")
	}
	return nil
}

// Check runs the post-pass checks and returns the warnings they found.
func (c *Compiler) Check() []Warning {
	var found []Warning
	for _, check := range c.checks {
		found = append(found, check(c)...)
	}
	c.warnings = append(c.warnings, found...)
	return found
}

// Lines returns the finished statements.
func (c *Compiler) Lines() []Line {
	lines := make([]Line, len(c.stack[0]))
	for i, text := range c.stack[0] {
		lines[i] = Line{Text: text, Pos: c.linePos[i]}
	}
	return lines
}

// Program returns the compiled unit.
func (c *Compiler) Program() *Program {
	return &Program{
		Lines:    c.Lines(),
		Symbols:  c.symbols,
		Warnings: append([]Warning(nil), c.warnings...),
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

var baseHandlers = newBaseHandlers()

func newBaseHandlers() *DispatchTable[Handler] {
	t := NewDispatchTable[Handler](true)
	t.SetDefault(compileContainer)
	t.On(compileComment, KindComment)
	t.On(compileStatement, KindStatement)
	t.On(compileLabel, KindLabel)
	t.On(compileDeclaration, KindDeclaration)
	t.On(compileAssignment, KindAssignment)
	t.On(compileJump, KindJump)
	t.On(compileReturn, KindReturn)
	t.On(compileExpression, KindExpression)
	t.On(compileString, KindString)
	t.On(compileConfigVar, KindConfigVar)
	t.On(compileName, KindName)
	t.On(compileVerbatim, KindOperator, KindNumber, KindCommand)
	return t
}

// compileContainer visits the children of a compound node. A leaf that no
// handler claims is a contract violation between parser and compiler.
func compileContainer(c *Compiler, node *Node) error {
	if len(node.Children) == 0 {
		return &UnsupportedError{Kind: node.Kind, Pos: node.Pos}
	}
	return c.VisitChildren(node)
}

func compileComment(c *Compiler, node *Node) error {
	return nil
}

func compileStatement(c *Compiler, node *Node) error {
	c.pushBlock()
	if err := c.VisitChildren(node); err != nil {
		return err
	}
	c.push(strings.Join(c.popBlock(), " "))
	if c.Depth() == 0 {
		c.linePos = append(c.linePos, node.Pos)
	}
	return nil
}

func compileLabel(c *Compiler, node *Node) error {
	name := node.Child(0)
	if err := c.Visit(name); err != nil {
		return err
	}
	sym, err := c.symbols.Label(name.Text, name.Pos)
	if err != nil {
		return err
	}
	switch {
	case sym.Defined:
		return compileErrorf(node.Pos, "label %s redefined, first defined at %s", sym.Name, sym.DefPos)
	case c.isa.IsInternal(sym.Name):
		return compileErrorf(node.Pos, "%s: internal variable used as label", sym.Name)
	}
	sym.Defined = true
	sym.DefPos = node.Pos
	c.label = sym.Name
	c.push("LB " + c.pop())
	return nil
}

func compileDeclaration(c *Compiler, node *Node) error {
	c.pushBlock()
	if err := c.VisitChildren(node); err != nil {
		return err
	}
	items := c.popBlock()

	name := node.Child(0)
	sym, err := c.symbols.Variable(name.Text, name.Pos)
	if err != nil {
		return err
	}
	if !sym.Defined {
		sym.DefPos = node.Pos
	}
	sym.Defined = true
	if len(items) == 2 {
		sym.Default = items[1]
		c.push("VA " + items[0] + " = " + items[1])
		return nil
	}
	c.push("VA " + items[0])
	return nil
}

func compileAssignment(c *Compiler, node *Node) error {
	lhs := node.Child(0)
	switch {
	case c.isa.IsReadOnly(lhs.Text):
		return compileErrorf(node.Pos, "assignment to read-only internal variable %s", lhs.Text)
	case c.isa.IsInternal(lhs.Text) && !c.isa.IsAssignable(lhs.Text):
		return compileErrorf(node.Pos, "%s: assignment to internal command", lhs.Text)
	}

	c.pushBlock()
	if err := c.Visit(lhs); err != nil {
		return err
	}
	takesLabel := c.isa.TakesLabel(lhs.Text)
	for _, operand := range node.Children[1:] {
		var err error
		if ref := bareName(operand); takesLabel && ref != nil {
			err = c.labelOperand(ref)
		} else {
			err = c.Visit(operand)
		}
		if err != nil {
			return err
		}
	}
	items := c.popBlock()

	sym, err := c.symbols.Variable(lhs.Text, lhs.Pos)
	if err != nil {
		return err
	}
	sym.Assignments++

	sep := " = "
	if c.isa.IsCommand(lhs.Text) {
		sep = " "
	}
	c.push(items[0] + sep + strings.Join(items[1:], ", "))
	return nil
}

// bareName returns the name leaf of an expression that is a single
// identifier.
func bareName(expr *Node) *Node {
	if expr.Kind != KindExpression || len(expr.Children) != 1 {
		return nil
	}
	if atom := expr.Child(0); atom.Kind == KindName {
		return atom
	}
	return nil
}

// labelOperand compiles an operand of a label-argument command. Anything not
// already a Variable counts as a call of that label.
func (c *Compiler) labelOperand(name *Node) error {
	if err := c.Visit(name); err != nil {
		return err
	}
	if c.symbols.Touch(name.Text, name.Pos).Kind == Variable {
		c.Warn(WarnLabelOperand, name.Pos, name.Text)
		return nil
	}
	sym, err := c.symbols.Label(name.Text, name.Pos)
	if err != nil {
		return err
	}
	sym.Calls++
	return nil
}

func compileJump(c *Compiler, node *Node) error {
	c.pushBlock()
	if err := c.VisitChildren(node); err != nil {
		return err
	}
	items := c.popBlock()

	target := node.Child(0)
	sym, err := c.symbols.Label(target.Text, target.Pos)
	if err != nil {
		return err
	}
	keyword := keywordCall
	if node.Kind == KindBranch {
		keyword = keywordBranch
		sym.Branches++
	} else {
		sym.Calls++
	}

	line := keyword + " " + items[0]
	if len(items) > 1 {
		line += ", " + strings.Join(items[1:], ", ")
	}
	c.push(line)
	return nil
}

func compileReturn(c *Compiler, node *Node) error {
	if sym, ok := c.symbols.Lookup(c.label); ok && sym.Kind == Label {
		sym.HasReturn = true
	}
	c.push(keywordReturn)
	return nil
}

// compileExpression joins the terms of an expression. A leading identifier
// counts as a variable reference unless it is already known as a label.
func compileExpression(c *Compiler, node *Node) error {
	c.pushBlock()
	if err := c.VisitChildren(node); err != nil {
		return err
	}
	items := c.popBlock()

	for _, term := range node.Children {
		if term.Kind == KindUnary {
			continue
		}
		if term.Kind == KindName {
			if sym, err := c.symbols.Variable(term.Text, term.Pos); err == nil {
				sym.References++
			}
		}
		break
	}
	c.push(strings.Join(items, " "))
	return nil
}

var configRef = regexp.MustCompile(`\$([\w.]+)`)

// compileString interpolates $name references into a string literal.
func compileString(c *Compiler, node *Node) error {
	text := configRef.ReplaceAllStringFunc(node.Text, func(ref string) string {
		path := strings.TrimRight(ref[1:], ".")
		tail := ref[1+len(path):]
		if v, ok := c.env.Lookup(path); ok {
			return formatInterpolated(v) + tail
		}
		c.Warn(WarnUndefinedConfig, node.Pos, path)
		return ref
	})
	c.push(text)
	return nil
}

func compileConfigVar(c *Compiler, node *Node) error {
	if v, ok := c.env.Lookup(node.Text); ok {
		c.push(FormatValue(v))
		return nil
	}
	c.Warn(WarnUndefinedConfig, node.Pos, node.Text)
	c.push("$" + node.Text)
	return nil
}

func compileName(c *Compiler, node *Node) error {
	c.symbols.Touch(node.Text, node.Pos)
	c.push(node.Text)
	return nil
}

func compileVerbatim(c *Compiler, node *Node) error {
	c.push(node.Text)
	return nil
}
