package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/chazu/mcode/compiler"
)

// replSession compiles input incrementally into one unit.
type replSession struct {
	base    *compiler.Environment // pristine environment restored by :reset
	c       *compiler.Compiler
	pending strings.Builder // lines of an open #if block
	depth   int
	out     io.Writer
}

func newREPLSession(env *compiler.Environment, out io.Writer) *replSession {
	s := &replSession{base: env, out: out}
	s.reset()
	return s
}

func (s *replSession) reset() {
	s.c = compiler.NewCompiler(s.base.Clone())
	s.pending.Reset()
	s.depth = 0
}

// conditionalDelta reports how a line changes the #if nesting depth.
func conditionalDelta(line string) int {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return 0
	}
	switch fields[0] {
	case "#if":
		return 1
	case "#endif":
		return -1
	}
	return 0
}

// feed handles one input line. It returns false when the session should end.
func (s *replSession) feed(line string) bool {
	if s.depth == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
		return s.command(strings.TrimSpace(line))
	}

	s.pending.WriteString(line)
	s.pending.WriteString("\n")
	s.depth += conditionalDelta(line)
	if s.depth > 0 {
		return true
	}
	src := s.pending.String()
	s.pending.Reset()
	s.depth = 0
	s.compile(src)
	return true
}

func (s *replSession) compile(src string) {
	nodes, err := compiler.ParseSource(src, "", s.c.Env(), s.c.ISA())
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	before := len(s.c.Lines())
	warnBefore := len(s.c.Warnings())
	if err := s.c.CompileNodes(nodes); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	for _, line := range s.c.Lines()[before:] {
		fmt.Fprintf(s.out, "%s\n", line.Text)
	}
	printWarnings(s.out, s.c.Warnings()[warnBefore:])
}

func (s *replSession) command(cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return false
	case ":help", ":h":
		fmt.Fprintln(s.out, "Commands:")
		fmt.Fprintln(s.out, "  :symbols     List identifiers and their counters")
		fmt.Fprintln(s.out, "  :check       Run the unused/undeclared checks")
		fmt.Fprintln(s.out, "  :listing     Print the listing compiled so far")
		fmt.Fprintln(s.out, "  :env         Print the configuration values")
		fmt.Fprintln(s.out, "  :reset       Start a new unit")
		fmt.Fprintln(s.out, "  :quit        Leave the REPL")
	case ":symbols":
		for _, sym := range s.c.Symbols().All() {
			fmt.Fprintln(s.out, sym.String())
		}
	case ":check":
		// The snapshot takes the warnings; the session keeps none of them.
		prog := s.c.Program()
		found := prog.Check()
		if len(found) == 0 {
			fmt.Fprintln(s.out, "No warnings")
		}
		printWarnings(s.out, found)
	case ":listing":
		if err := s.c.Program().Compose(s.out, false); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	case ":env":
		values := s.c.Env().Values()
		for _, name := range sortedKeys(values) {
			fmt.Fprintf(s.out, "%s = %s\n", name, compiler.FormatValue(values[name]))
		}
	case ":reset":
		s.reset()
		fmt.Fprintln(s.out, "Reset")
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type :help)\n", fields[0])
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runREPL reads statements from stdin. A terminal gets line editing and
// history; anything else is read line by line.
func runREPL(env *compiler.Environment) {
	s := newREPLSession(env, os.Stdout)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		runScript(s, os.Stdin)
		return
	}

	fmt.Println("mcc REPL (type :help for commands, :quit to leave)")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := historyFile()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}

	for {
		prompt := ">> "
		if s.depth > 0 {
			prompt = ".. "
		}
		input, err := line.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		if !s.feed(input) {
			break
		}
	}

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			defer f.Close()
			_, _ = line.WriteHistory(f)
		}
	}
}

func runScript(s *replSession, rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		if !s.feed(scanner.Text()) {
			return
		}
	}
	if s.pending.Len() > 0 {
		s.compile(s.pending.String())
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".mcc_history")
}
