package common

import (
	"bytes"
	"encoding/binary"

	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

const (
	cdnIndexFooterSize = 28
	cdnIndexEntrySize  = ContentKeySize + 4 + 4
)

// CDNIndexFooter is the trailer of an archive .index file.
type CDNIndexFooter struct {
	TOCHash      []byte
	Version      uint8
	BlockSizeKB  uint8
	OffsetBytes  uint8
	SizeBytes    uint8
	KeySize      uint8
	ChecksumSize uint8
	NumElements  uint32
	FooterHash   []byte
}

// CDNIndexFile is a parsed archive .index file.
type CDNIndexFile struct {
	Position int
	Archive  Checksum
	Footer   CDNIndexFooter
	Entries  []CDNIndexEntry
}

// ParseCDNIndex parses the .index file of the archive found at position in
// the CDN config archive list. Forward-only readers are buffered whole since
// the footer comes first.
func ParseCDNIndex(position int, archive Checksum, r *reader.Reader, diag *Diagnostics) (CDNIndexFile, error) {
	f := CDNIndexFile{Position: position, Archive: archive}
	name := archive.Hex() + ".index"
	if !r.Seekable() {
		b, err := r.ReadRemaining()
		if err != nil {
			return f, errors.Wrap(err, name)
		}
		r = reader.NewBuffer(b)
	}
	size := r.Size()
	if size < cdnIndexFooterSize {
		return f, parseErrorf(name, "%d bytes, shorter than the footer", size)
	}
	if err := r.SetPosition(size - cdnIndexFooterSize); err != nil {
		return f, errors.Wrap(err, name)
	}
	footer, err := r.ReadBytes(cdnIndexFooterSize)
	if err != nil {
		return f, errors.Wrap(err, name)
	}
	ft := CDNIndexFooter{
		TOCHash:      footer[0:8],
		Version:      footer[8],
		BlockSizeKB:  footer[11],
		OffsetBytes:  footer[12],
		SizeBytes:    footer[13],
		KeySize:      footer[14],
		ChecksumSize: footer[15],
		NumElements:  binary.LittleEndian.Uint32(footer[16:20]),
		FooterHash:   footer[20:28],
	}
	f.Footer = ft
	if ft.BlockSizeKB == 0 || ft.OffsetBytes != 4 || ft.SizeBytes != 4 || ft.KeySize != ContentKeySize || ft.ChecksumSize != 8 {
		return f, parseErrorf(name, "unsupported footer %d/%d/%d/%d/%d",
			ft.BlockSizeKB, ft.OffsetBytes, ft.SizeBytes, ft.KeySize, ft.ChecksumSize)
	}
	dataEnd := size - cdnIndexFooterSize
	if int64(ft.NumElements)*cdnIndexEntrySize > dataEnd {
		return f, parseErrorf(name, "%d elements do not fit in %d bytes", ft.NumElements, dataEnd)
	}

	blockSize := int64(ft.BlockSizeKB) * 1024
	f.Entries = make([]CDNIndexEntry, 0, ft.NumElements)
	seen := make(map[Checksum]struct{}, ft.NumElements)
	zero := make([]byte, ContentKeySize)
	read := uint32(0)
	for block := int64(0); block < dataEnd && read < ft.NumElements; block += blockSize {
		if err := r.SetPosition(block); err != nil {
			return f, errors.Wrap(err, name)
		}
		for pos := block; pos+cdnIndexEntrySize <= block+blockSize && pos+cdnIndexEntrySize <= dataEnd && read < ft.NumElements; pos += cdnIndexEntrySize {
			e, err := r.ReadBytes(cdnIndexEntrySize)
			if err != nil {
				return f, errors.Wrap(err, name)
			}
			if bytes.Equal(e[:ContentKeySize], zero) {
				break
			}
			read++
			key, err := NewFileKey(e[:ContentKeySize])
			if err != nil {
				return f, err
			}
			if _, ok := seen[key]; ok {
				diag.Warnf(name, "duplicate key %s", key)
				continue
			}
			seen[key] = struct{}{}
			f.Entries = append(f.Entries, CDNIndexEntry{
				FileKey:    key,
				Archive:    position,
				ArchiveKey: archive,
				FileSize:   int64(binary.BigEndian.Uint32(e[16:20])),
				DataOffset: int64(binary.BigEndian.Uint32(e[20:24])),
			})
		}
	}
	Log.Debugf("%s: %d entries", name, len(f.Entries))
	return f, nil
}
