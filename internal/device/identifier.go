package device

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// DefaultContextTag is the domain-separation tag mixed into every
// identifier when the configuration does not override it.
const DefaultContextTag = "unique_id"

// Generator derives candidate device identifiers.
//
// The identifier is blake2b-128 over
//
//	entropy ‖ LE32(callIndex) ‖ LE64(round) ‖ tag
//
// Identical inputs always give the identical ID. The generator does not
// consult the registry; uniqueness is enforced by Store.TryCommit.
type Generator struct{}

// NewGenerator returns a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns the identifier for the given inputs.
func (*Generator) Generate(entropy []byte, callIndex uint32, round uint64, tag []byte) ID {
	buf := make([]byte, 0, len(entropy)+4+8+len(tag))
	buf = append(buf, entropy...)
	buf = binary.LittleEndian.AppendUint32(buf, callIndex)
	buf = binary.LittleEndian.AppendUint64(buf, round)
	buf = append(buf, tag...)

	h, err := blake2b.New(IDSize, nil)
	if err != nil {
		// Only reachable with an invalid size or key, both constant here.
		panic("device: blake2b-128: " + err.Error())
	}
	h.Write(buf) //nolint:errcheck // hash.Hash.Write never fails

	var id ID
	copy(id[:], h.Sum(nil))
	return id
}
