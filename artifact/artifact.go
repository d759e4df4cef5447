// Package artifact records a compiled axis program as a canonical CBOR
// document: the listing, its digests, the symbol table and the warnings.
package artifact

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/mcode/compiler"
	"github.com/chazu/mcode/compiler/hash"
)

// Version is the artifact format version.
const Version = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Artifact is the build record of one compiled program.
type Artifact struct {
	Version       uint8          `cbor:"1,keyasint"`
	Name          string         `cbor:"2,keyasint"`
	Axis          string         `cbor:"3,keyasint,omitempty"`
	Declarations  []string       `cbor:"4,keyasint"`
	Body          []string       `cbor:"5,keyasint"`
	ListingDigest [32]byte       `cbor:"6,keyasint"`
	Sources       []Source       `cbor:"7,keyasint,omitempty"`
	Symbols       []SymbolRecord `cbor:"8,keyasint,omitempty"`
	Warnings      []string       `cbor:"9,keyasint,omitempty"`
}

// Source is the digest of one preprocessed module.
type Source struct {
	Path   string   `cbor:"1,keyasint"`
	Digest [32]byte `cbor:"2,keyasint"`
}

// SymbolRecord is the serialized form of a compiler.Symbol.
type SymbolRecord struct {
	Name        string `cbor:"1,keyasint"`
	Kind        string `cbor:"2,keyasint"`
	Defined     bool   `cbor:"3,keyasint"`
	Line        int    `cbor:"4,keyasint,omitempty"` // definition line
	File        string `cbor:"5,keyasint,omitempty"`
	References  int    `cbor:"6,keyasint,omitempty"`
	Assignments int    `cbor:"7,keyasint,omitempty"`
	Calls       int    `cbor:"8,keyasint,omitempty"`
	Branches    int    `cbor:"9,keyasint,omitempty"`
	HasReturn   bool   `cbor:"10,keyasint,omitempty"`
}

// New captures p. Source digests are added separately with AddSource.
func New(name, axis string, p *compiler.Program) *Artifact {
	a := &Artifact{
		Version:       Version,
		Name:          name,
		Axis:          axis,
		Declarations:  p.Declarations(),
		Body:          p.Body(),
		ListingDigest: hash.Listing(p),
	}
	if p.Symbols != nil {
		for _, s := range p.Symbols.All() {
			rec := SymbolRecord{
				Name:        s.Name,
				Kind:        s.Kind.String(),
				Defined:     s.Defined,
				References:  s.References,
				Assignments: s.Assignments,
				Calls:       s.Calls,
				Branches:    s.Branches,
				HasReturn:   s.HasReturn,
			}
			if s.Defined {
				rec.Line = s.DefPos.Line
				rec.File = s.DefPos.File
			}
			a.Symbols = append(a.Symbols, rec)
		}
	}
	for _, w := range p.Warnings {
		a.Warnings = append(a.Warnings, w.String())
	}
	return a
}

// AddSource records the digest of a preprocessed module.
func (a *Artifact) AddSource(path string, nodes []*compiler.Node) {
	a.Sources = append(a.Sources, Source{Path: path, Digest: hash.Source(nodes)})
}

// Marshal serializes an Artifact to canonical CBOR bytes.
func Marshal(a *Artifact) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// Unmarshal deserializes an Artifact from CBOR bytes.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal: %w", err)
	}
	if a.Version != Version {
		return nil, fmt.Errorf("artifact: unsupported version %d", a.Version)
	}
	return &a, nil
}
