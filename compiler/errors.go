package compiler

import (
	"errors"
	"fmt"
)

// SyntaxError aborts a unit on the first malformed line.
type SyntaxError struct {
	Pos    Position
	Text   string // offending token text
	Source string // the full source line
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s: syntax error: %s: %q", e.Pos, e.Msg, e.Source)
	}
	return fmt.Sprintf("%s: syntax error: %s near %q: %q", e.Pos, e.Msg, e.Text, e.Source)
}

// CompileError is a fatal error raised while preprocessing or compiling a
// unit.
type CompileError struct {
	Pos Position
	Msg string
}

func (e *CompileError) Error() string {
	if e.Pos.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func compileErrorf(pos Position, format string, args ...interface{}) *CompileError {
	return &CompileError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports a node kind that no handler accepts.
type UnsupportedError struct {
	Kind Kind
	Pos  Position
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: internal error: unsupported construct %q", e.Pos, e.Kind)
}

// ErrorPosition extracts the source position carried by err, if any.
func ErrorPosition(err error) (Position, bool) {
	var syn *SyntaxError
	if errors.As(err, &syn) {
		return syn.Pos, true
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Pos, ce.Pos.Line > 0
	}
	var ue *UnsupportedError
	if errors.As(err, &ue) {
		return ue.Pos, true
	}
	return Position{}, false
}

// ---------------------------------------------------------------------------
// Warnings
// ---------------------------------------------------------------------------

// WarningKind classifies a warning.
type WarningKind int

const (
	WarnUndefinedConfig WarningKind = iota
	WarnUnusedVariable
	WarnUndeclaredVariable
	WarnUnusedLabel
	WarnUndeclaredLabel
	WarnLabelOperand
)

var warningMessages = map[WarningKind]string{
	WarnUndefinedConfig:    "Undefined config variable",
	WarnUnusedVariable:     "Unused variable",
	WarnUndeclaredVariable: "Undeclared variable",
	WarnUnusedLabel:        "Unused label",
	WarnUndeclaredLabel:    "Undeclared label",
	WarnLabelOperand:       "Variable used as label argument",
}

func (k WarningKind) String() string {
	if msg, ok := warningMessages[k]; ok {
		return msg
	}
	return fmt.Sprintf("Warning(%d)", int(k))
}

// Warning is a non-fatal finding. Warnings never stop compilation.
type Warning struct {
	Kind WarningKind
	Pos  Position
	Name string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Pos, w.Name, w.Kind)
}
