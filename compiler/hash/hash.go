package hash

import (
	"crypto/sha256"

	"github.com/chazu/mcode/compiler"
)

// Source computes the SHA-256 digest of a preprocessed node sequence.
//
// The digest covers node kinds, token text and tree shape. Positions and
// comments are ignored, so reformatting or recommenting a file, or moving it,
// leaves the digest unchanged.
func Source(nodes []*compiler.Node) [32]byte {
	return sha256.Sum256(SerializeNodes(nodes))
}

// Listing computes the SHA-256 digest of a program's emitted instructions,
// declarations and body hashed as separate sections.
func Listing(p *compiler.Program) [32]byte {
	return sha256.Sum256(SerializeListing(p))
}
