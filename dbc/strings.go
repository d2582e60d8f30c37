package dbc

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// StringBlock maps byte offsets to the strings starting there.
type StringBlock struct {
	size    int
	strings map[int]string
	lengths map[int]int // encoded length without the terminator
}

// NewStringBlock splits b on zero bytes. Strings that are not valid UTF-8 are
// decoded as Windows-1252.
func NewStringBlock(b []byte) *StringBlock {
	s := &StringBlock{size: len(b), strings: map[int]string{}, lengths: map[int]int{}}
	for off := 0; off < len(b); {
		end := bytes.IndexByte(b[off:], 0)
		if end < 0 {
			end = len(b) - off
		}
		s.strings[off] = decodeString(b[off : off+end])
		s.lengths[off] = end
		off += end + 1
	}
	return s
}

func decodeString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// Get returns the string starting at off.
func (s *StringBlock) Get(off int) (string, bool) {
	v, ok := s.strings[off]
	return v, ok
}

// Resolve returns the string at off or the placeholder <<REF off>>.
func (s *StringBlock) Resolve(off int) string {
	if v, ok := s.strings[off]; ok {
		return v
	}
	return fmt.Sprintf("<<REF %d>>", off)
}

// Len returns the number of strings.
func (s *StringBlock) Len() int { return len(s.strings) }

// Size returns the size of the block in bytes.
func (s *StringBlock) Size() int { return s.size }

// Offsets returns the string offsets in ascending order.
func (s *StringBlock) Offsets() []int {
	out := make([]int, 0, len(s.strings))
	for off := range s.strings {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}

// usage returns the share of the block covered by the strings at offsets.
// The empty string at offset 0 counts as used.
func (s *StringBlock) usage(offsets map[int]struct{}) float64 {
	if s.size == 0 {
		return 1
	}
	used := 0
	for off, n := range s.lengths {
		_, ok := offsets[off]
		if ok || (off == 0 && n == 0) {
			used += n + 1
		}
	}
	return float64(used) / float64(s.size)
}
