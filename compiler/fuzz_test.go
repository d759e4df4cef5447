package compiler

import (
	"io"
	"testing"
)

var fuzzSeeds = []string{
	// Statements
	`MA 100`, `MR -5`, `SL SP`, `A = 1`, `X1 = X2 + 3 * (4 - 1)`,
	`VA SP`, `VA SP = 20`, `LB HO`, `CL HO`, `BR HO, I1 = 0`, `CL HO, IN = 1`,
	`RT`, `PG 100`, `PG`, `E`, `S`, `H`, `H 10`, `PR "speed = ", SP`,
	`TI HO, 2`, `OE HO`,
	// Config references
	`MA $speed`, `PR "at $speed steps"`, `MA $limits.max`, `MA $`,
	// Comments and blank lines
	"' comment\nMA 1", "\n\n\n", "MA 1 ' trailing",
	// Directives
	"#if speed > 10\nMA 1\n#elseif speed\nMA 2\n#else\nMA 3\n#endif",
	"#define GA 4\nMA $GA", "#include \"lib.inc\"", "#if", "#endif", "#else",
	"MA 1 #if 1",
	// Edge cases
	``, `=`, `,`, `(`, `)`, `"unterminated`, `--5`, `- 5`, `MA ,`,
	`LB`, `BR`, `HOME = 1`, `1 = A`, "\t\r\n",
	`+-*/<>=&|!%`,
}

// FuzzLexer checks that the lexer never panics on arbitrary input.
func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data, "fuzz.mxt")
		for i := 0; i < len(data)+100; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF || tok.Type == TokenError {
				break
			}
		}
	})
}

// FuzzParser checks that parsing never panics. Parse errors are fine.
func FuzzParser(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()
		_, _ = Parse(data, "fuzz.mxt", nil)
	})
}

// FuzzCompileSource feeds arbitrary units through preprocessing, codegen and
// the checks. Errors are fine, panics are not.
func FuzzCompileSource(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("pipeline panicked on input %q: %v", data, r)
			}
		}()

		env := NewEnvironment(map[string]any{"speed": 100, "limits": map[string]any{"max": 5000}})
		env.Loader = MapLoader{"lib.inc": "LB LI\nRT\n"}
		prog, err := CompileSource(data, "fuzz.mxt", env)
		if err != nil {
			return
		}
		if err := prog.Compose(io.Discard, true); err != nil {
			t.Fatalf("Compose: %v", err)
		}
	})
}
