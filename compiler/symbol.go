package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Symbols: lazily classified identifiers
// ---------------------------------------------------------------------------

// SymbolKind is the class of an identifier. Every symbol starts Unclassified
// and is promoted at most once, to Variable or Label.
type SymbolKind int

const (
	Unclassified SymbolKind = iota
	Variable
	Label
)

func (k SymbolKind) String() string {
	switch k {
	case Variable:
		return "Variable"
	case Label:
		return "Label"
	}
	return "Name"
}

// Symbol records one identifier of a compilation unit. The counters of the
// class the symbol is not in stay zero.
type Symbol struct {
	Name    string
	Pos     Position // first occurrence
	DefPos  Position // LB or VA line, when Defined
	Defined bool
	Kind    SymbolKind

	// Variable
	References  int
	Assignments int
	Default     string

	// Label
	Calls     int
	Branches  int
	HasReturn bool
}

// classify promotes s to kind. Promoting to the current class is a no-op;
// promoting across classes is an error.
func (s *Symbol) classify(kind SymbolKind, at Position) error {
	switch s.Kind {
	case Unclassified:
		s.Kind = kind
		return nil
	case kind:
		return nil
	}
	if kind == Label {
		return compileErrorf(at, "%s used as a label, first seen at %s", s.Name, s.Pos)
	}
	return compileErrorf(at, "%s used as a variable, first seen at %s", s.Name, s.Pos)
}

// merge folds other, a record of the same identifier, into s.
func (s *Symbol) merge(other *Symbol) error {
	if other.Name != s.Name {
		return fmt.Errorf("compiler: merging symbol %s into %s", other.Name, s.Name)
	}
	if other.Kind != Unclassified {
		if err := s.classify(other.Kind, other.Pos); err != nil {
			return compileErrorf(other.Pos, "%s used as both a variable and a label", s.Name)
		}
	}
	if other.Defined && !s.Defined {
		s.DefPos = other.DefPos
	}
	s.Defined = s.Defined || other.Defined
	s.References += other.References
	s.Assignments += other.Assignments
	if s.Default == "" {
		s.Default = other.Default
	}
	s.Calls += other.Calls
	s.Branches += other.Branches
	s.HasReturn = s.HasReturn || other.HasReturn
	return nil
}

func (s *Symbol) String() string {
	switch s.Kind {
	case Variable:
		return fmt.Sprintf("Variable %s (defined=%t refs=%d assigns=%d)",
			s.Name, s.Defined, s.References, s.Assignments)
	case Label:
		return fmt.Sprintf("Label %s (defined=%t calls=%d branches=%d return=%t)",
			s.Name, s.Defined, s.Calls, s.Branches, s.HasReturn)
	}
	return fmt.Sprintf("Name %s", s.Name)
}

// SymbolTable holds the symbols of a unit in first-seen order.
type SymbolTable struct {
	symbols map[string]*Symbol
	order   []string
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*Symbol)}
}

// Lookup returns the symbol for name.
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := t.symbols[name]
	return s, ok
}

// Touch returns the symbol for name, creating an unclassified one at pos.
func (t *SymbolTable) Touch(name string, pos Position) *Symbol {
	if s, ok := t.symbols[name]; ok {
		return s
	}
	s := &Symbol{Name: name, Pos: pos}
	t.symbols[name] = s
	t.order = append(t.order, name)
	return s
}

// Variable returns name promoted to a Variable.
func (t *SymbolTable) Variable(name string, at Position) (*Symbol, error) {
	s := t.Touch(name, at)
	if err := s.classify(Variable, at); err != nil {
		return nil, err
	}
	return s, nil
}

// Label returns name promoted to a Label.
func (t *SymbolTable) Label(name string, at Position) (*Symbol, error) {
	s := t.Touch(name, at)
	if err := s.classify(Label, at); err != nil {
		return nil, err
	}
	return s, nil
}

// All returns the symbols in first-seen order.
func (t *SymbolTable) All() []*Symbol {
	out := make([]*Symbol, len(t.order))
	for i, name := range t.order {
		out[i] = t.symbols[name]
	}
	return out
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	return len(t.order)
}

// Merge folds the symbols of another fragment into t. Symbols new to t are
// copied; shared ones are combined.
func (t *SymbolTable) Merge(other *SymbolTable) error {
	for _, name := range other.order {
		theirs := other.symbols[name]
		mine, ok := t.symbols[name]
		if !ok {
			cp := *theirs
			t.symbols[name] = &cp
			t.order = append(t.order, name)
			continue
		}
		if err := mine.merge(theirs); err != nil {
			return err
		}
	}
	return nil
}
