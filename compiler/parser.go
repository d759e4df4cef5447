package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for microcode
// ---------------------------------------------------------------------------

// Parser parses microcode source into a sequence of top-level nodes:
// comments, pragmas and statements.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	input     string
	isa       *InstructionSet
	err       *SyntaxError
}

// NewParser creates a new parser for the given input. Lone identifiers are
// accepted as commands when isa lists them as bare.
func NewParser(input, file string, isa *InstructionSet) *Parser {
	if isa == nil {
		isa = MDrive()
	}
	p := &Parser{
		lexer: NewLexer(input, file),
		input: input,
		isa:   isa,
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole buffer.
func Parse(input, file string, isa *InstructionSet) ([]*Node, error) {
	return NewParser(input, file, isa).ParseProgram()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// peekAtStatementEnd reports whether the peek token ends a statement.
func (p *Parser) peekAtStatementEnd() bool {
	switch p.peekToken.Type {
	case TokenNewline, TokenComment, TokenEOF:
		return true
	}
	return false
}

// errorf records the first parse error. There is no recovery: once set, the
// parse unwinds.
func (p *Parser) errorf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	tok := p.curToken
	text := tok.Literal
	msg := fmt.Sprintf(format, args...)
	if tok.Type == TokenError {
		msg = tok.Literal
		text = ""
	}
	p.err = &SyntaxError{
		Pos:    tok.Pos,
		Text:   text,
		Source: p.sourceLine(tok.Pos),
		Msg:    msg,
	}
}

// sourceLine returns the full text of the line containing pos.
func (p *Parser) sourceLine(pos Position) string {
	if pos.Offset > len(p.input) {
		return ""
	}
	start := strings.LastIndexByte(p.input[:pos.Offset], '\n') + 1
	end := strings.IndexByte(p.input[pos.Offset:], '\n')
	if end < 0 {
		return strings.TrimRight(p.input[start:], "\r")
	}
	return strings.TrimRight(p.input[start:pos.Offset+end], "\r")
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses the whole input. The first syntax error aborts the
// parse.
func (p *Parser) ParseProgram() ([]*Node, error) {
	var nodes []*Node
	for !p.curTokenIs(TokenEOF) && p.err == nil {
		switch p.curToken.Type {
		case TokenNewline:
			p.nextToken()

		case TokenComment:
			nodes = append(nodes, NewLeaf(KindComment, p.curToken.Literal, p.curToken.Pos))
			p.nextToken()

		case TokenPragma:
			nodes = append(nodes, NewLeaf(KindPragma, p.curToken.Literal, p.curToken.Pos))
			p.nextToken()

		default:
			stmt := p.ParseStatement()
			if stmt != nil {
				nodes = append(nodes, stmt)
			}
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return nodes, nil
}

// ParseStatement parses one statement line including an optional trailing
// comment.
func (p *Parser) ParseStatement() *Node {
	pos := p.curToken.Pos
	inner := p.parseInstruction()
	if inner == nil {
		return nil
	}

	stmt := NewNode(KindStatement, pos, inner)
	if p.curTokenIs(TokenComment) {
		stmt.Children = append(stmt.Children, NewLeaf(KindComment, p.curToken.Literal, p.curToken.Pos))
		p.nextToken()
	}
	switch {
	case p.curTokenIs(TokenNewline):
		p.nextToken()
	case p.curTokenIs(TokenEOF):
	default:
		p.errorf("unexpected %s at end of statement", p.curToken.Type)
		return nil
	}
	return stmt
}

// parseInstruction picks the statement form from the leading identifier.
func (p *Parser) parseInstruction() *Node {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected statement, got %s", p.curToken.Type)
		return nil
	}

	switch p.curToken.Literal {
	case keywordCall, keywordBranch:
		if p.peekTokenIs(TokenIdentifier) {
			return p.parseJump()
		}
	case keywordReturn:
		if p.peekAtStatementEnd() {
			node := NewLeaf(KindReturn, p.curToken.Literal, p.curToken.Pos)
			p.nextToken()
			return node
		}
	case keywordLabel:
		if p.peekTokenIs(TokenIdentifier) {
			return p.parseLabel()
		}
	case keywordDeclaration:
		if p.peekTokenIs(TokenIdentifier) {
			return p.parseDeclaration()
		}
	}

	if p.peekAtStatementEnd() {
		if !p.isa.IsBare(p.curToken.Literal) {
			p.errorf("%s: expected operand", p.curToken.Literal)
			return nil
		}
		node := NewLeaf(KindCommand, p.curToken.Literal, p.curToken.Pos)
		p.nextToken()
		return node
	}

	return p.parseAssignment()
}

// parseName consumes an identifier as a name leaf.
func (p *Parser) parseName() *Node {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected name, got %s", p.curToken.Type)
		return nil
	}
	node := NewLeaf(KindName, p.curToken.Literal, p.curToken.Pos)
	p.nextToken()
	return node
}

// parseJump parses CL name[, expr...] and BR name[, expr...].
func (p *Parser) parseJump() *Node {
	kind := KindCall
	if p.curToken.Literal == keywordBranch {
		kind = KindBranch
	}
	pos := p.curToken.Pos
	p.nextToken() // consume CL/BR

	name := p.parseName()
	if name == nil {
		return nil
	}
	node := NewNode(kind, pos, name)
	if !p.parseOperandList(node) {
		return nil
	}
	return node
}

// parseLabel parses LB name.
func (p *Parser) parseLabel() *Node {
	pos := p.curToken.Pos
	p.nextToken() // consume LB

	name := p.parseName()
	if name == nil {
		return nil
	}
	return NewNode(KindLabel, pos, name)
}

// parseDeclaration parses VA name [= expr].
func (p *Parser) parseDeclaration() *Node {
	pos := p.curToken.Pos
	p.nextToken() // consume VA

	name := p.parseName()
	if name == nil {
		return nil
	}
	node := NewNode(KindDeclaration, pos, name)
	if p.curTokenIs(TokenCompare) && p.curToken.Literal == "=" {
		p.nextToken()
		expr := p.ParseExpression()
		if expr == nil {
			return nil
		}
		node.Children = append(node.Children, expr)
	}
	return node
}

// parseAssignment parses name [=] expr[, expr...].
func (p *Parser) parseAssignment() *Node {
	pos := p.curToken.Pos
	name := p.parseName()
	if name == nil {
		return nil
	}
	if p.curTokenIs(TokenCompare) && p.curToken.Literal == "=" {
		p.nextToken()
	}

	node := NewNode(KindAssignment, pos, name)
	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	node.Children = append(node.Children, expr)
	if !p.parseOperandList(node) {
		return nil
	}
	return node
}

// parseOperandList appends ", expr" continuations to node.
func (p *Parser) parseOperandList(node *Node) bool {
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		expr := p.ParseExpression()
		if expr == nil {
			return false
		}
		node.Children = append(node.Children, expr)
	}
	return true
}

// ---------------------------------------------------------------------------
// Expression parsing
// ---------------------------------------------------------------------------

// ParseExpression parses [unary] atom [(compare|math) expression]. The chain
// is right recursive: a OP b OP c parses as a OP (b OP c).
func (p *Parser) ParseExpression() *Node {
	pos := p.curToken.Pos
	expr := NewNode(KindExpression, pos)

	if unary := p.parseUnary(); unary != nil {
		expr.Children = append(expr.Children, unary)
	}

	atom := p.parseAtom()
	if atom == nil {
		return nil
	}
	expr.Children = append(expr.Children, atom)

	if p.curTokenIs(TokenCompare) || p.curTokenIs(TokenMath) {
		kind := KindMath
		if p.curTokenIs(TokenCompare) {
			kind = KindCompare
		}
		expr.Children = append(expr.Children, NewLeaf(kind, p.curToken.Literal, p.curToken.Pos))
		p.nextToken()

		rest := p.ParseExpression()
		if rest == nil {
			return nil
		}
		expr.Children = append(expr.Children, rest)
	}
	return expr
}

// parseUnary consumes a leading ! or -. A - written directly against an
// integer is left for parseAtom, which folds it into the literal.
func (p *Parser) parseUnary() *Node {
	switch {
	case p.curTokenIs(TokenBang):
	case p.curTokenIs(TokenMath) && p.curToken.Literal == "-":
		if p.peekTokenIs(TokenInteger) && p.peekToken.Pos.Offset == p.curToken.Pos.Offset+1 {
			return nil
		}
	default:
		return nil
	}
	node := NewLeaf(KindUnary, p.curToken.Literal, p.curToken.Pos)
	p.nextToken()
	return node
}

// parseAtom parses a literal, name or config variable.
func (p *Parser) parseAtom() *Node {
	tok := p.curToken
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		return NewLeaf(KindNumber, tok.Literal, tok.Pos)

	case TokenMath:
		if tok.Literal == "-" && p.peekTokenIs(TokenInteger) {
			p.nextToken()
			num := p.curToken
			p.nextToken()
			return NewLeaf(KindNumber, "-"+num.Literal, tok.Pos)
		}

	case TokenString:
		p.nextToken()
		return NewLeaf(KindString, tok.Literal, tok.Pos)

	case TokenIdentifier:
		p.nextToken()
		return NewLeaf(KindName, tok.Literal, tok.Pos)

	case TokenConfigVar:
		p.nextToken()
		return NewLeaf(KindConfigVar, tok.Literal, tok.Pos)
	}

	p.errorf("expected value, got %s", tok.Type)
	return nil
}
