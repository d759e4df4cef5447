package hash

import (
	"encoding/binary"

	"github.com/chazu/mcode/compiler"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of parse trees and listings.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Lengths and counts: uint32 big-endian
//   - Strings: uint32 length + UTF-8 bytes
//   - Nodes: tag, text, child count, children inline
//
// Positions, comments and pragmas are not serialized.
// ---------------------------------------------------------------------------

// SerializeNodes produces a deterministic byte serialization of a node
// sequence.
func SerializeNodes(nodes []*compiler.Node) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.writeNodes(nodes)
	return s.buf
}

// SerializeListing serializes a program's declarations and body as two
// tagged sections.
func SerializeListing(p *compiler.Program) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.writeSection(TagDeclarations, p.Declarations())
	s.writeSection(TagBody, p.Body())
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeSection(tag byte, lines []string) {
	s.writeByte(tag)
	s.writeUint32(uint32(len(lines)))
	for _, line := range lines {
		s.writeByte(TagLine)
		s.writeString(line)
	}
}

// writeNodes writes the hashed nodes of a sequence, preceded by their count.
func (s *serializer) writeNodes(nodes []*compiler.Node) {
	hashed := make([]*compiler.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := kindTags[n.Kind]; ok {
			hashed = append(hashed, n)
		}
	}
	s.writeUint32(uint32(len(hashed)))
	for _, n := range hashed {
		s.writeNode(n)
	}
}

func (s *serializer) writeNode(n *compiler.Node) {
	s.writeByte(kindTags[n.Kind])
	s.writeString(n.Text)
	s.writeNodes(n.Children)
}
