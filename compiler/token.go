package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the microcode lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	// Literals
	TokenInteger    // 42 (sign handled by the parser)
	TokenString     // "hello"
	TokenConfigVar  // $name, $axis.speed
	TokenIdentifier // A, C1, VA

	// Operators
	TokenCompare // <> <= >= < > =
	TokenMath    // + * / & | ^ -
	TokenBang    // !
	TokenComma   // ,

	// Line-level constructs
	TokenComment // ' to end of line
	TokenPragma  // # to end of line
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenInteger:    "INTEGER",
	TokenString:     "STRING",
	TokenConfigVar:  "CONFIGVAR",
	TokenIdentifier: "IDENTIFIER",
	TokenCompare:    "COMPARE",
	TokenMath:       "MATH",
	TokenBang:       "!",
	TokenComma:      ",",
	TokenComment:    "COMMENT",
	TokenPragma:     "PRAGMA",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Statement keywords. They lex as ordinary identifiers; the parser gives them
// meaning by position.
const (
	keywordCall        = "CL"
	keywordBranch      = "BR"
	keywordReturn      = "RT"
	keywordLabel       = "LB"
	keywordDeclaration = "VA"
)
