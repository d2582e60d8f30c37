package common

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"

	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

const encodingSignature = 0x454e // "EN"

// EncodingHeader is the header of the encoding file.
type EncodingHeader struct {
	Signature      uint16
	Version        uint8
	CKeySize       uint8
	EKeySize       uint8
	CPageSizeKB    uint16
	EPageSizeKB    uint16
	CPageCount     uint32
	EPageCount     uint32
	Unknown        uint8
	ESpecBlockSize uint32
}

// EncodingEntry maps a content key to the encoding keys of its encoded forms.
type EncodingEntry struct {
	ContentKey Checksum
	Keys       []Checksum
	Size       int64 // decoded size
}

// FileKeys returns the keys trimmed for index lookups.
func (e EncodingEntry) FileKeys() []Checksum {
	out := make([]Checksum, len(e.Keys))
	for i, k := range e.Keys {
		out[i] = k.Trim(FileKeySize)
	}
	return out
}

// Encoding is the content key table of the encoding file.
type Encoding struct {
	Header  EncodingHeader
	entries map[Checksum]EncodingEntry
}

// Find returns the entry of a content key.
func (e *Encoding) Find(contentKey Checksum) (EncodingEntry, bool) {
	entry, ok := e.entries[contentKey]
	return entry, ok
}

// Len returns the number of content keys.
func (e *Encoding) Len() int { return len(e.entries) }

// ParseEncoding parses the decoded encoding file. Every content key page is
// verified against the MD5 of the page table.
func ParseEncoding(r *reader.Reader) (*Encoding, error) {
	const name = "encoding"
	hb, err := r.ReadBytes(22)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	h := EncodingHeader{
		Signature:      binary.BigEndian.Uint16(hb[0:]),
		Version:        hb[2],
		CKeySize:       hb[3],
		EKeySize:       hb[4],
		CPageSizeKB:    binary.BigEndian.Uint16(hb[5:]),
		EPageSizeKB:    binary.BigEndian.Uint16(hb[7:]),
		CPageCount:     binary.BigEndian.Uint32(hb[9:]),
		EPageCount:     binary.BigEndian.Uint32(hb[13:]),
		Unknown:        hb[17],
		ESpecBlockSize: binary.BigEndian.Uint32(hb[18:]),
	}
	if h.Signature != encodingSignature {
		return nil, parseErrorf(name, "invalid signature %#04x", h.Signature)
	}
	if h.CKeySize == 0 || h.EKeySize == 0 || h.CPageSizeKB == 0 {
		return nil, parseErrorf(name, "invalid header %+v", h)
	}
	if err := r.Skip(int64(h.ESpecBlockSize)); err != nil {
		return nil, errors.Wrap(err, name)
	}

	type pageIndex struct {
		first    []byte
		checksum []byte
	}
	pageSize := int(h.CPageSizeKB) * 1024
	if rem := r.Remaining(); rem >= 0 {
		if need := int64(h.CPageCount) * (int64(h.CKeySize) + md5.Size + int64(pageSize)); need > rem {
			return nil, parseErrorf(name, "%d content pages need %d bytes, %d left", h.CPageCount, need, rem)
		}
	}
	// the page table is grown as it is read when the size is unknown
	var pages []pageIndex
	for i := 0; i < int(h.CPageCount); i++ {
		b, err := r.ReadBytes(int(h.CKeySize) + md5.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: page index %d", name, i)
		}
		pages = append(pages, pageIndex{first: b[:h.CKeySize], checksum: b[h.CKeySize:]})
	}

	enc := &Encoding{Header: h, entries: map[Checksum]EncodingEntry{}}
	for i, idx := range pages {
		page, err := r.ReadBytes(pageSize)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: page %d", name, i)
		}
		if sum := md5.Sum(page); !bytes.Equal(sum[:], idx.checksum) {
			return nil, parseErrorf(name, "page %d checksum mismatch", i)
		}
		if err := enc.parsePage(page, h); err != nil {
			return nil, errors.Wrapf(err, "%s: page %d", name, i)
		}
	}
	Log.Debugf("encoding: %d content keys", len(enc.entries))
	return enc, nil
}

// parsePage decodes entries until the zero padding or the end of the page.
func (e *Encoding) parsePage(page []byte, h EncodingHeader) error {
	ck, ek := int(h.CKeySize), int(h.EKeySize)
	for len(page) >= 6+ck {
		count := int(page[0])
		if count == 0 {
			return nil
		}
		size := int64(page[1])<<32 | int64(binary.BigEndian.Uint32(page[2:6]))
		need := 6 + ck + count*ek
		if len(page) < need {
			return parseErrorf("encoding", "entry of %d keys overflows its page", count)
		}
		ckey, err := NewChecksum(page[6 : 6+ck])
		if err != nil {
			return err
		}
		entry := EncodingEntry{ContentKey: ckey, Size: size, Keys: make([]Checksum, count)}
		for i := 0; i < count; i++ {
			off := 6 + ck + i*ek
			if entry.Keys[i], err = NewChecksum(page[off : off+ek]); err != nil {
				return err
			}
		}
		if _, ok := e.entries[ckey]; !ok {
			e.entries[ckey] = entry
		}
		page = page[need:]
	}
	return nil
}
