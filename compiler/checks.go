package compiler

// Check is a post-pass consistency check. It inspects the finished unit and
// returns warnings; checks never fail a compilation.
type Check func(c *Compiler) []Warning

// DefaultChecks returns the standard checks: variables, then labels.
func DefaultChecks() []Check {
	return []Check{CheckVariables, CheckLabels}
}

// CheckVariables reports unused and undeclared variables. Machine registers
// are exempt.
func CheckVariables(c *Compiler) []Warning {
	var found []Warning
	for _, sym := range c.Symbols().All() {
		if sym.Kind != Variable || c.ISA().IsInternal(sym.Name) {
			continue
		}
		if sym.References+sym.Assignments == 0 {
			found = append(found, Warning{Kind: WarnUnusedVariable, Pos: sym.Pos, Name: sym.Name})
		}
		if !sym.Defined {
			found = append(found, Warning{Kind: WarnUndeclaredVariable, Pos: sym.Pos, Name: sym.Name})
		}
	}
	return found
}

// CheckLabels reports labels never jumped to and labels never defined.
func CheckLabels(c *Compiler) []Warning {
	var found []Warning
	for _, sym := range c.Symbols().All() {
		if sym.Kind != Label {
			continue
		}
		if sym.Calls+sym.Branches == 0 {
			found = append(found, Warning{Kind: WarnUnusedLabel, Pos: sym.Pos, Name: sym.Name})
		}
		if !sym.Defined {
			found = append(found, Warning{Kind: WarnUndeclaredLabel, Pos: sym.Pos, Name: sym.Name})
		}
	}
	return found
}
