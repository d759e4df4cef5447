package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for microcode source
// ---------------------------------------------------------------------------

// Lexer tokenizes microcode source. The language is line oriented, so
// newlines are tokens and pragmas are only recognized at the start of a line.
type Lexer struct {
	input       string
	file        string
	pos         int  // current position in input
	readPos     int  // reading position (after current char)
	ch          rune // current character
	line        int  // current line (1-based)
	col         int  // current column (1-based)
	atLineStart bool // no token produced yet on this line
}

// NewLexer creates a new lexer for the given input. file is only used for
// positions.
func NewLexer(input, file string) *Lexer {
	l := &Lexer{
		input:       input,
		file:        file,
		line:        1,
		atLineStart: true,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		File:   l.file,
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}

	pos := l.position()
	lineStart := l.atLineStart
	l.atLineStart = false

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n':
		l.readChar()
		l.atLineStart = true
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}

	case l.ch == '\'':
		return Token{Type: TokenComment, Literal: l.readToEOL(), Pos: pos}

	case l.ch == '#':
		if !lineStart {
			l.readChar()
			return Token{Type: TokenError, Literal: "pragma must start a line", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenPragma, Literal: strings.TrimSpace(l.readToEOL()), Pos: pos}

	case l.ch == '"':
		return l.readString(pos)

	case l.ch == '$':
		return l.readConfigVar(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	case l.ch == '<':
		l.readChar()
		if l.ch == '>' || l.ch == '=' {
			op := "<" + string(l.ch)
			l.readChar()
			return Token{Type: TokenCompare, Literal: op, Pos: pos}
		}
		return Token{Type: TokenCompare, Literal: "<", Pos: pos}

	case l.ch == '>':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenCompare, Literal: ">=", Pos: pos}
		}
		return Token{Type: TokenCompare, Literal: ">", Pos: pos}

	case l.ch == '=':
		l.readChar()
		return Token{Type: TokenCompare, Literal: "=", Pos: pos}

	case isMathChar(l.ch):
		ch := l.ch
		l.readChar()
		return Token{Type: TokenMath, Literal: string(ch), Pos: pos}

	case l.ch == '!':
		l.readChar()
		return Token{Type: TokenBang, Literal: "!", Pos: pos}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
	}
}

// readToEOL consumes the rest of the line, leaving the newline in place.
func (l *Lexer) readToEOL() string {
	start := l.pos
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	return strings.TrimRight(l.input[start:l.pos], "\r")
}

// readString reads a double-quoted string. The quotes are kept in the
// literal; there are no escapes.
func (l *Lexer) readString(pos Position) Token {
	start := l.pos
	l.readChar() // consume opening "
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		l.readChar()
	}
	l.readChar() // consume closing "
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Pos: pos}
}

// readConfigVar reads $name or $name.sub.path. The literal excludes the $.
func (l *Lexer) readConfigVar(pos Position) Token {
	l.readChar() // consume $
	start := l.pos
	for isWordChar(l.ch) || l.ch == '.' {
		l.readChar()
	}
	if start == l.pos {
		return Token{Type: TokenError, Literal: "expected name after $", Pos: pos}
	}
	return Token{Type: TokenConfigVar, Literal: l.input[start:l.pos], Pos: pos}
}

// readNumber reads an unsigned integer. There is no floating point.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		return Token{Type: TokenError, Literal: "floating point literals are not supported", Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads a register or variable name: a letter followed by at
// most one letter, digit or underscore.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isWordChar(l.ch) {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if !isLetter(rune(literal[0])) || len(literal) > 2 {
		return Token{Type: TokenError, Literal: fmt.Sprintf("invalid name %q", literal), Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isWordChar(r rune) bool {
	return isLetter(r) || isDigit(r) || r == '_'
}

func isMathChar(r rune) bool {
	switch r {
	case '+', '-', '*', '/', '&', '|', '^':
		return true
	}
	return false
}

// Tokenize returns all tokens from the input.
func Tokenize(input string) []Token {
	l := NewLexer(input, "")
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
