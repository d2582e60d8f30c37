package common

import (
	"encoding/hex"
	"hash/fnv"

	"github.com/pkg/errors"
)

const (
	// FileKeySize is the number of key bytes stored by local and CDN indexes.
	FileKeySize = 9
	// ContentKeySize is the size of content and encoding keys.
	ContentKeySize = 16
)

// Checksum is an immutable run of hash bytes.
// Checksums are comparable and can be used as map keys.
type Checksum struct {
	b    string
	hash uint32
}

func newChecksum(s string) Checksum {
	h := fnv.New32a()
	h.Write([]byte(s))
	return Checksum{b: s, hash: h.Sum32()}
}

// NewChecksum copies b into a Checksum.
func NewChecksum(b []byte) (Checksum, error) {
	if len(b) == 0 {
		return Checksum{}, errors.WithStack(&ParseError{Reason: "empty checksum"})
	}
	return newChecksum(string(b)), nil
}

// NewFileKey returns the first FileKeySize bytes of b.
func NewFileKey(b []byte) (Checksum, error) {
	if len(b) < FileKeySize {
		return Checksum{}, parseErrorf("", "file key of %d bytes, need %d", len(b), FileKeySize)
	}
	return newChecksum(string(b[:FileKeySize])), nil
}

// NewContentKey returns the first ContentKeySize bytes of b.
func NewContentKey(b []byte) (Checksum, error) {
	if len(b) < ContentKeySize {
		return Checksum{}, parseErrorf("", "content key of %d bytes, need %d", len(b), ContentKeySize)
	}
	return newChecksum(string(b[:ContentKeySize])), nil
}

// ParseChecksum decodes a hex string.
func ParseChecksum(s string) (Checksum, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Checksum{}, parseErrorf("", "invalid checksum %q: %v", s, err)
	}
	return NewChecksum(b)
}

// MustParseChecksum is like ParseChecksum but panics on error.
func MustParseChecksum(s string) Checksum {
	c, err := ParseChecksum(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Trim returns the first n bytes of c, or c itself when n >= c.Len().
func (c Checksum) Trim(n int) Checksum {
	if n >= len(c.b) || n <= 0 {
		return c
	}
	return newChecksum(c.b[:n])
}

func (c Checksum) Len() int { return len(c.b) }

// Bytes returns a copy of the checksum bytes.
func (c Checksum) Bytes() []byte { return []byte(c.b) }

func (c Checksum) Hex() string { return hex.EncodeToString([]byte(c.b)) }

func (c Checksum) String() string { return c.Hex() }

// Hash is the FNV-1a hash of the bytes, computed once.
func (c Checksum) Hash() uint32 { return c.hash }

// IsZero reports whether c holds no bytes.
func (c Checksum) IsZero() bool { return len(c.b) == 0 }

func (c Checksum) Equal(o Checksum) bool {
	return c.hash == o.hash && c.b == o.b
}
