package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Eval evaluates a directive expression with the environment's values in
// scope, using CUE expression syntax: DEBUG, speed * 2, axis == "X",
// !DEBUG && verbose > 1. The result must be concrete and is returned as
// bool, int64, float64, string or nil.
func (e *Environment) Eval(expr string) (any, error) {
	if e.cueCtx == nil {
		e.cueCtx = cuecontext.New()
	}
	scope := e.cueCtx.Encode(e.values)
	if err := scope.Err(); err != nil {
		return nil, fmt.Errorf("encode environment: %w", err)
	}

	v := e.cueCtx.CompileString(expr, cue.Scope(scope))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%q: %w", expr, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%q: %w", expr, err)
	}

	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		return b, err
	case cue.IntKind:
		i, err := v.Int64()
		return i, err
	case cue.FloatKind:
		f, err := v.Float64()
		return f, err
	case cue.StringKind:
		s, err := v.String()
		return s, err
	case cue.NullKind:
		return nil, nil
	}
	return nil, fmt.Errorf("%q: %s is not a literal value", expr, v.Kind())
}

// Truth evaluates expr as a condition. Zero numbers, empty strings and null
// are false.
func (e *Environment) Truth(expr string) (bool, error) {
	v, err := e.Eval(expr)
	if err != nil {
		return false, err
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("%q: not a condition", expr)
}
