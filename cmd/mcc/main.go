// mcc - the microcode compiler
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/mcode/artifact"
	"github.com/chazu/mcode/compiler"
	"github.com/chazu/mcode/manifest"
	"github.com/chazu/mcode/server"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("mcode.cli")

// defineFlags collects repeated -D name=value arguments.
type defineFlags []string

func (d *defineFlags) String() string { return strings.Join(*d, ",") }

func (d *defineFlags) Set(v string) error {
	if name, _, _ := strings.Cut(v, "="); strings.TrimSpace(name) == "" {
		return fmt.Errorf("want name=value, got %q", v)
	}
	*d = append(*d, v)
	return nil
}

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

func main() {
	var defines defineFlags
	var verbose verbosity
	flag.Var(&defines, "D", "Define a configuration value as name=value (repeatable)")
	flag.Var(&verbose, "v", "Verbose logging (repeat for more)")
	output := flag.String("o", "", "Write the listing to a file instead of stdout")
	wrap := flag.Bool("wrap", false, "Wrap a program without PG in PG 100 ... PG")
	artifactPath := flag.String("artifact", "", "Also write a CBOR build artifact to this path")
	axis := flag.String("axis", "", "Use this axis of the enclosing mcode.toml for the environment")
	werror := flag.Bool("Werror", false, "Treat warnings as errors")
	buildMode := flag.Bool("build", false, "Build every axis of the project in the given directory (default .)")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	lspMode := flag.Bool("lsp", false, "Run the language server on stdio")
	serveMode := flag.Bool("serve", false, "Start the compile server (Connect HTTP/JSON + gRPC)")
	servePort := flag.Int("port", 4567, "Compile server port (used with -serve)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mcc [options] files...\n\n")
		fmt.Fprintf(os.Stderr, "Compiles microcode sources as one unit and writes the listing.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mcc main.mxt home.mxt        # Compile to stdout\n")
		fmt.Fprintf(os.Stderr, "  mcc -D speed=200 -wrap -o x.mtx main.mxt\n")
		fmt.Fprintf(os.Stderr, "  mcc -build ./homing          # Build <axis>-axis.mtx for every axis\n")
		fmt.Fprintf(os.Stderr, "  mcc -i                       # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  mcc -lsp                     # Language server on stdio\n")
		fmt.Fprintf(os.Stderr, "  mcc -serve -port 8080        # Compile server on :8080\n")
	}
	flag.Parse()

	// The LSP owns stdout, so logging stays on stderr.
	commonlog.Configure(int(verbose), nil)

	switch {
	case *lspMode:
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}

	case *serveMode:
		addr := fmt.Sprintf(":%d", *servePort)
		srv := server.New()
		defer srv.Stop()
		if err := srv.ListenAndServe(addr); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}

	case *buildMode:
		dir := "."
		if flag.NArg() > 0 {
			dir = flag.Arg(0)
		}
		warnings, err := buildProject(dir, defines)
		printWarnings(os.Stderr, warnings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *werror && len(warnings) > 0 {
			os.Exit(1)
		}

	case *interactive || flag.NArg() == 0:
		env, err := baseEnvironment(".", *axis, defines)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		runREPL(env)

	default:
		if err := compileFiles(flag.Args(), defines, *axis, *output, *artifactPath, *wrap, *werror); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// compileFiles compiles paths as one unit and writes the listing.
func compileFiles(paths []string, defines []string, axis, output, artifactPath string, wrap, werror bool) error {
	env, err := baseEnvironment(filepath.Dir(paths[0]), axis, defines)
	if err != nil {
		return err
	}

	prog, err := compiler.CompileFiles(env, paths)
	if err != nil {
		return err
	}
	printWarnings(os.Stderr, prog.Warnings)
	if werror && len(prog.Warnings) > 0 {
		return fmt.Errorf("%d warnings treated as errors", len(prog.Warnings))
	}

	w := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := prog.Compose(w, wrap); err != nil {
		return err
	}

	if artifactPath != "" {
		name := strings.TrimSuffix(filepath.Base(paths[0]), filepath.Ext(paths[0]))
		if err := writeArtifact(artifactPath, artifact.New(name, axis, prog)); err != nil {
			return err
		}
	}
	return nil
}

// baseEnvironment returns the environment of the enclosing project (empty
// when there is none) with -D defines applied on top.
func baseEnvironment(dir, axis string, defines []string) (*compiler.Environment, error) {
	env := compiler.NewEnvironment(nil)
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m != nil {
		log.Infof("using project %s", m.Dir)
		if env, err = m.Environment(axis); err != nil {
			return nil, err
		}
	} else if axis != "" {
		return nil, fmt.Errorf("-axis %s: no %s found", axis, manifest.FileName)
	}
	applyDefines(env, defines)
	return env, nil
}

// applyDefines evaluates each name=value with the directive evaluator. A
// value that does not evaluate is stored as a plain string.
func applyDefines(env *compiler.Environment, defines []string) {
	for _, d := range defines {
		name, raw, _ := strings.Cut(d, "=")
		name = strings.TrimSpace(name)
		if raw == "" {
			env.Define(name, true)
			continue
		}
		v, err := env.Eval(raw)
		if err != nil {
			log.Debugf("-D %s: %v; using the raw string", name, err)
			v = raw
		}
		env.Define(name, v)
	}
}

func printWarnings(w io.Writer, warnings []compiler.Warning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "Warning: %s:%d: %s: %s\n", warn.Pos.File, warn.Pos.Line, warn.Name, warn.Kind)
	}
}

func writeArtifact(path string, a *artifact.Artifact) error {
	data, err := artifact.Marshal(a)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
