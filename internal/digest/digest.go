package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// Size is the length of a digest in bytes.
	Size = 32

	// BlockSize is the SHA-256 message block length in bytes.
	BlockSize = 64
)

// ErrMalformed is returned by Parse when the input is not a 64-character hex string.
var ErrMalformed = errors.New("malformed digest")

// Digest is a 256-bit SHA-256 output. Its canonical text form is 64
// lowercase hex characters.
type Digest [Size]byte

// Zero is the all-zero sentinel used as the genesis block's previous link
// and as the Merkle root of an empty transaction list.
var Zero Digest

// String returns the lowercase hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the all-zero sentinel.
func (d Digest) IsZero() bool {
	return d == Zero
}

// MarshalText implements encoding.TextMarshaler so digests encode as hex in JSON.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse decodes a 64-character hex string into a Digest.
func Parse(s string) (Digest, error) {
	if len(s) != 2*Size {
		return Zero, fmt.Errorf("%w: want %d hex characters, got %d", ErrMalformed, 2*Size, len(s))
	}
	var d Digest
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return d, nil
}
