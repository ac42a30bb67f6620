package device

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IDSize is the length of a device identifier in bytes.
const IDSize = 16

// ID is a 128-bit device identifier.
type ID [IDSize]byte

// String renders the identifier as 32 lowercase hex characters.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler so IDs serialise as hex in JSON.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses the lowercase hex form produced by ID.String, with an
// optional "0x" prefix.
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != hex.EncodedLen(IDSize) {
		return ID{}, fmt.Errorf("%w: %q: want %d hex characters", ErrInvalidID, s, hex.EncodedLen(IDSize))
	}

	if strings.ToLower(s) != s {
		return ID{}, fmt.Errorf("%w: %q: not lowercase", ErrInvalidID, s)
	}

	var id ID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	return id, nil
}

// Owner is the opaque account reference of an authenticated caller.
type Owner string

// Validate rejects the empty owner.
func (o Owner) Validate() error {
	if strings.TrimSpace(string(o)) == "" {
		return ErrInvalidOwner
	}
	return nil
}

// Record is a registered device. Records are immutable once committed.
type Record struct {
	ID    ID    `json:"id"`
	Owner Owner `json:"owner"`
}
