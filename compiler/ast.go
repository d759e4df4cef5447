package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: tagged parse tree for microcode
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	File   string // source file, empty for anonymous buffers
	Offset int    // byte offset
	Line   int    // 1-based line number
	Column int    // 1-based column number
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Kind tags an AST node.
type Kind string

const (
	KindComment     Kind = "comment"
	KindPragma      Kind = "pragma"
	KindStatement   Kind = "statement"
	KindCall        Kind = "call"
	KindBranch      Kind = "branch"
	KindReturn      Kind = "return"
	KindLabel       Kind = "label"
	KindDeclaration Kind = "declaration"
	KindAssignment  Kind = "assignment"
	KindCommand     Kind = "command"
	KindExpression  Kind = "expression"
	KindUnary       Kind = "unary"
	KindCompare     Kind = "compare"
	KindMath        Kind = "math"
	KindNumber      Kind = "number"
	KindString      Kind = "string"
	KindName        Kind = "name"
	KindConfigVar   Kind = "configvar"

	// Abstract kinds. No node carries them; handlers registered under them
	// match their sub-kinds.
	KindJump     Kind = "jump"
	KindOperator Kind = "operator"
	KindLiteral  Kind = "literal"
	KindAtom     Kind = "atom"
)

var kindParents = map[Kind]Kind{
	KindCall:      KindJump,
	KindBranch:    KindJump,
	KindUnary:     KindOperator,
	KindCompare:   KindOperator,
	KindMath:      KindOperator,
	KindNumber:    KindLiteral,
	KindString:    KindLiteral,
	KindLiteral:   KindAtom,
	KindName:      KindAtom,
	KindConfigVar: KindAtom,
}

// IsA reports whether k is of, or descends from, the kind of.
func (k Kind) IsA(of Kind) bool {
	for {
		if k == of {
			return true
		}
		parent, ok := kindParents[k]
		if !ok {
			return false
		}
		k = parent
	}
}

// Node is a tagged tree node. Leaves carry their token text in Text;
// compound nodes carry Children. Nodes are not modified after parsing.
type Node struct {
	Kind     Kind
	Text     string
	Children []*Node
	Pos      Position
}

// NewLeaf creates a leaf node.
func NewLeaf(kind Kind, text string, pos Position) *Node {
	return &Node{Kind: kind, Text: text, Pos: pos}
}

// NewNode creates a compound node.
func NewNode(kind Kind, pos Position, children ...*Node) *Node {
	return &Node{Kind: kind, Children: children, Pos: pos}
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Walk calls fn for n and every descendant in source order. fn returning
// false prunes the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// String renders the node as an s-expression, for debugging and tests.
func (n *Node) String() string {
	var sb strings.Builder
	n.format(&sb)
	return sb.String()
}

func (n *Node) format(sb *strings.Builder) {
	if len(n.Children) == 0 {
		fmt.Fprintf(sb, "%s:%q", n.Kind, n.Text)
		return
	}
	sb.WriteString("(")
	sb.WriteString(string(n.Kind))
	for _, c := range n.Children {
		sb.WriteString(" ")
		c.format(sb)
	}
	sb.WriteString(")")
}
