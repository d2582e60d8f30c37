package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKey(t *testing.T) {
	_, err := NewFileKey([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Error(t, err)
	assert.True(t, IsParseError(err))

	k, err := NewFileKey([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})
	require.NoError(t, err)
	assert.Equal(t, 9, k.Len())
	assert.Equal(t, "010203040506070809", k.Hex())
}

func TestChecksumTrim(t *testing.T) {
	c := MustParseChecksum("00112233445566778899aabbccddeeff")
	assert.Equal(t, c, c.Trim(16))
	assert.Equal(t, c, c.Trim(20))
	k := c.Trim(9)
	assert.Equal(t, "001122334455667788", k.String())
	assert.False(t, k.Equal(c))

	fk, err := NewFileKey(c.Bytes())
	require.NoError(t, err)
	assert.True(t, fk.Equal(k))
	assert.Equal(t, fk.Hash(), k.Hash())

	m := map[Checksum]int{k: 1}
	assert.Equal(t, 1, m[fk])
}

func TestChecksumImmutable(t *testing.T) {
	b := []byte{0xaa, 0xbb}
	c, err := NewChecksum(b)
	require.NoError(t, err)
	b[0] = 0
	out := c.Bytes()
	out[1] = 0
	assert.Equal(t, "aabb", c.Hex())
}

func TestParseChecksum(t *testing.T) {
	_, err := ParseChecksum("zz")
	assert.True(t, IsParseError(err))
	_, err = ParseChecksum("")
	assert.True(t, IsParseError(err))
}

func TestHashlittle2(t *testing.T) {
	for _, tc := range []struct {
		data   string
		pc, pb uint32
		c, b   uint32
	}{
		{"", 0, 0, 0xdeadbeef, 0xdeadbeef},
		{"", 0, 0xdeadbeef, 0xbd5b7dde, 0xdeadbeef},
		{"", 0xdeadbeef, 0xdeadbeef, 0x9c093ccd, 0xbd5b7dde},
		{"Four score and seven years ago", 0, 0, 0x17770551, 0xce7226e6},
		{"Four score and seven years ago", 0, 1, 0xe3607cae, 0xbd371de4},
		{"Four score and seven years ago", 1, 0, 0xcd628161, 0x6cbea4b3},
	} {
		c, b := Hashlittle2([]byte(tc.data), tc.pc, tc.pb)
		assert.Equal(t, tc.c, c, "%q %#x %#x", tc.data, tc.pc, tc.pb)
		assert.Equal(t, tc.b, b, "%q %#x %#x", tc.data, tc.pc, tc.pb)
	}
}

func TestBucket(t *testing.T) {
	k, _ := NewFileKey([]byte{0x12, 0, 0, 0, 0, 0, 0, 0, 0x30})
	// 0x12^0x30 = 0x22 -> 0x2^0x2
	assert.Equal(t, 0, Bucket(k))
	k, _ = NewFileKey([]byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.Equal(t, 1, Bucket(k))
}
