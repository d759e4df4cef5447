package compiler

import "sort"

// InstructionSet partitions the target's mnemonics. A mnemonic may appear in
// more than one set (H and PG are both bare and commands).
type InstructionSet struct {
	Bare      map[string]bool // take no operands
	Commands  map[string]bool // MNEMONIC arg, arg
	ReadOnly  map[string]bool // registers that cannot be assigned
	ReadWrite map[string]bool // registers assigned with NAME = value
	LabelArgs map[string]bool // operands name labels, not values
}

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// MDrive returns the instruction set of the IMS MDrive motion controllers.
func MDrive() *InstructionSet {
	return &InstructionSet{
		Bare: setOf("E", "S", "H", "PG", "RT"),
		Commands: setOf("CL", "DC", "IC", "H", "HM", "MA", "MR", "OE", "PR", "SL",
			"TI", "BR", "PG"),
		ReadOnly: setOf("BY", "DN", "EF", "I1", "I2", "I3", "I4", "I5", "I6", "IF",
			"IH", "IL", "IN", "IT", "MV", "PC", "PN", "SN", "V", "VC", "VR"),
		ReadWrite: setOf("A", "C1", "C2", "CE", "CK", "CM", "CR", "D", "D1", "D2",
			"D3", "D4", "D5", "DB", "DE", "DG", "EE", "EM", "ES", "ER", "FC", "FM",
			"HC", "HT", "JE", "LK", "LM", "MS", "MT", "NE", "OT", "OL", "P", "PM",
			"QD", "R1", "R2", "R3", "R4", "RC", "S1", "S2", "S3", "S4", "S5", "SF",
			"SM", "ST", "TE", "TP", "TR", "TT", "VI", "VM"),
		LabelArgs: setOf("OE", "TI", "TP", "TR", "TT"),
	}
}

// IsBare reports whether name may stand alone as a statement.
func (s *InstructionSet) IsBare(name string) bool { return s.Bare[name] }

// IsCommand reports whether name is invoked as NAME operands, without =.
func (s *InstructionSet) IsCommand(name string) bool { return s.Commands[name] }

// IsReadOnly reports whether name is a read-only register.
func (s *InstructionSet) IsReadOnly(name string) bool { return s.ReadOnly[name] }

// TakesLabel reports whether name's operands are label references.
func (s *InstructionSet) TakesLabel(name string) bool { return s.LabelArgs[name] }

// IsInternal reports whether name belongs to the instruction set at all.
func (s *InstructionSet) IsInternal(name string) bool {
	return s.Commands[name] || s.Bare[name] || s.ReadOnly[name] || s.ReadWrite[name]
}

// IsAssignable reports whether name may appear on the left of an assignment.
func (s *InstructionSet) IsAssignable(name string) bool {
	return s.Commands[name] || s.ReadWrite[name]
}

// Mnemonics returns every internal name, sorted.
func (s *InstructionSet) Mnemonics() []string {
	seen := make(map[string]bool)
	for _, set := range []map[string]bool{s.Bare, s.Commands, s.ReadOnly, s.ReadWrite} {
		for name := range set {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
