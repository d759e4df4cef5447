package hash

import "github.com/chazu/mcode/compiler"

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed digests.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing digests.
const HashVersion byte = 1

const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Statements
	TagStatement   byte = 0x01
	TagCall        byte = 0x02
	TagBranch      byte = 0x03
	TagReturn      byte = 0x04
	TagLabel       byte = 0x05
	TagDeclaration byte = 0x06
	TagAssignment  byte = 0x07
	TagCommand     byte = 0x08

	// Expressions
	TagExpression byte = 0x10
	TagUnary      byte = 0x11
	TagCompare    byte = 0x12
	TagMath       byte = 0x13
	TagNumber     byte = 0x14
	TagString     byte = 0x15
	TagName       byte = 0x16
	TagConfigVar  byte = 0x17

	// Listing sections
	TagDeclarations byte = 0x20
	TagBody         byte = 0x21
	TagLine         byte = 0x22

	// Reserved 0xFE-0xFF
)

// kindTags maps hashed node kinds to their tag. Comments and pragmas have no
// tag; they never contribute to a digest.
var kindTags = map[compiler.Kind]byte{
	compiler.KindStatement:   TagStatement,
	compiler.KindCall:        TagCall,
	compiler.KindBranch:      TagBranch,
	compiler.KindReturn:      TagReturn,
	compiler.KindLabel:       TagLabel,
	compiler.KindDeclaration: TagDeclaration,
	compiler.KindAssignment:  TagAssignment,
	compiler.KindCommand:     TagCommand,
	compiler.KindExpression:  TagExpression,
	compiler.KindUnary:       TagUnary,
	compiler.KindCompare:     TagCompare,
	compiler.KindMath:        TagMath,
	compiler.KindNumber:      TagNumber,
	compiler.KindString:      TagString,
	compiler.KindName:        TagName,
	compiler.KindConfigVar:   TagConfigVar,
}

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagStatement, TagCall, TagBranch, TagReturn, TagLabel,
	TagDeclaration, TagAssignment, TagCommand,
	TagExpression, TagUnary, TagCompare, TagMath,
	TagNumber, TagString, TagName, TagConfigVar,
	TagDeclarations, TagBody, TagLine,
}
