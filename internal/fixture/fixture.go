// Package fixture encodes small CASC files for tests.
package fixture

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/jybp/wowcasc/common"
)

// LocalEntry is an entry of a local .idx file.
type LocalEntry struct {
	Key     []byte // at least 9 bytes
	Archive int
	Offset  uint32
	Size    uint32
}

// LocalIndex encodes a version 7 .idx file.
func LocalIndex(bucket byte, entries ...LocalEntry) []byte {
	header := new(bytes.Buffer)
	binary.Write(header, binary.LittleEndian, uint16(7))
	header.Write([]byte{bucket, 0, 4, 5, 9, 30})
	binary.Write(header, binary.BigEndian, uint64(0x4000000000))

	data := new(bytes.Buffer)
	for _, e := range entries {
		data.Write(e.Key[:9])
		data.WriteByte(byte(e.Archive >> 2))
		binary.Write(data, binary.BigEndian, uint32(e.Archive&3)<<30|e.Offset&0x3FFFFFFF)
		binary.Write(data, binary.LittleEndian, e.Size)
	}

	out := new(bytes.Buffer)
	pc, _ := common.Hashlittle2(header.Bytes(), 0, 0)
	binary.Write(out, binary.LittleEndian, uint32(header.Len()))
	binary.Write(out, binary.LittleEndian, pc)
	out.Write(header.Bytes())
	for out.Len()%16 != 0 {
		out.WriteByte(0)
	}
	dc, _ := common.Hashlittle2(data.Bytes(), 0, 0)
	binary.Write(out, binary.LittleEndian, uint32(data.Len()))
	binary.Write(out, binary.LittleEndian, dc)
	out.Write(data.Bytes())
	return out.Bytes()
}

// CDNEntry is an entry of an archive .index file.
type CDNEntry struct {
	Key    []byte // 16 bytes
	Size   uint32
	Offset uint32
}

// CDNIndex encodes an archive .index file with 4 KiB blocks.
func CDNIndex(entries ...CDNEntry) []byte {
	const blockSize = 4096
	out := new(bytes.Buffer)
	for i, e := range entries {
		if i > 0 && i%(blockSize/24) == 0 {
			pad(out, blockSize)
		}
		key := make([]byte, 16)
		copy(key, e.Key)
		out.Write(key)
		binary.Write(out, binary.BigEndian, e.Size)
		binary.Write(out, binary.BigEndian, e.Offset)
	}
	pad(out, blockSize)
	footer := make([]byte, 28)
	footer[8] = 1
	footer[11] = 4  // block size KB
	footer[12] = 4  // offset bytes
	footer[13] = 4  // size bytes
	footer[14] = 16 // key size
	footer[15] = 8  // checksum size
	binary.LittleEndian.PutUint32(footer[16:], uint32(len(entries)))
	out.Write(footer)
	return out.Bytes()
}

func pad(b *bytes.Buffer, n int) {
	for b.Len()%n != 0 {
		b.WriteByte(0)
	}
}

// EncodingEntry is a content key with its encoding keys.
type EncodingEntry struct {
	ContentKey []byte   // 16 bytes
	Keys       [][]byte // 16 bytes each
	Size       int64
}

// Encoding encodes an encoding file holding entries in a single 4 KiB page.
func Encoding(entries ...EncodingEntry) []byte {
	page := new(bytes.Buffer)
	for _, e := range entries {
		page.WriteByte(byte(len(e.Keys)))
		page.WriteByte(byte(e.Size >> 32))
		binary.Write(page, binary.BigEndian, uint32(e.Size))
		page.Write(e.ContentKey)
		for _, k := range e.Keys {
			page.Write(k)
		}
	}
	pad(page, 4096)

	out := new(bytes.Buffer)
	out.WriteString("EN")
	out.Write([]byte{1, 16, 16})
	binary.Write(out, binary.BigEndian, uint16(4))
	binary.Write(out, binary.BigEndian, uint16(4))
	binary.Write(out, binary.BigEndian, uint32(1))
	binary.Write(out, binary.BigEndian, uint32(0))
	out.WriteByte(0)
	binary.Write(out, binary.BigEndian, uint32(0))
	first := make([]byte, 16)
	if len(entries) > 0 {
		copy(first, entries[0].ContentKey)
	}
	out.Write(first)
	sum := md5.Sum(page.Bytes())
	out.Write(sum[:])
	out.Write(page.Bytes())
	return out.Bytes()
}

// RootRecord is a file of a classic WoW root block.
type RootRecord struct {
	FileDataID uint32
	ContentKey []byte // 16 bytes
	NameHash   uint64
}

// RootBlock is a block of a classic WoW root file.
// Records must be sorted by FileDataID.
type RootBlock struct {
	ContentFlags uint32
	LocaleFlags  uint32
	Records      []RootRecord
}

// Root encodes a classic (pre-MFST) WoW root file.
func Root(blocks ...RootBlock) []byte {
	out := new(bytes.Buffer)
	for _, b := range blocks {
		binary.Write(out, binary.LittleEndian, uint32(len(b.Records)))
		binary.Write(out, binary.LittleEndian, b.ContentFlags)
		binary.Write(out, binary.LittleEndian, b.LocaleFlags)
		next := uint32(0)
		for _, r := range b.Records {
			binary.Write(out, binary.LittleEndian, int32(r.FileDataID-next))
			next = r.FileDataID + 1
		}
		for _, r := range b.Records {
			out.Write(r.ContentKey)
			binary.Write(out, binary.LittleEndian, r.NameHash)
		}
	}
	return out.Bytes()
}

// DBC encodes a WDBC file from raw records and a string block.
func DBC(fieldCount, recordSize int, records [][]byte, strings []byte) []byte {
	out := new(bytes.Buffer)
	out.WriteString("WDBC")
	binary.Write(out, binary.LittleEndian, int32(len(records)))
	binary.Write(out, binary.LittleEndian, int32(fieldCount))
	binary.Write(out, binary.LittleEndian, int32(recordSize))
	binary.Write(out, binary.LittleEndian, int32(len(strings)))
	for _, r := range records {
		out.Write(r)
	}
	out.Write(strings)
	return out.Bytes()
}

// LocalData prefixes body with the header of a data.NNN entry of key.
// The entry size, header included, is len(body)+30.
func LocalData(key, body []byte) []byte {
	out := new(bytes.Buffer)
	for i := 15; i >= 0; i-- {
		out.WriteByte(key[i])
	}
	binary.Write(out, binary.LittleEndian, uint32(30+len(body)))
	out.Write(make([]byte, 10))
	out.Write(body)
	return out.Bytes()
}

// BuildInfo encodes a .build.info with one active build.
func BuildInfo(region string, buildKey, cdnKey []byte, version string) []byte {
	row := []string{region, "1", hex.EncodeToString(buildKey), hex.EncodeToString(cdnKey), "", "0",
		"tpr/wow", "level3.blizzard.com us.cdn.blizzard.com", "Windows?x86_64?US? speech?:Windows?x86_64?US? text?", "", "", version}
	return []byte(common.BuildInfoHeader + "\n" + strings.Join(row, "|") + "\n")
}

// Key returns a 16 byte key filled with b.
func Key(b byte) []byte {
	return bytes.Repeat([]byte{b}, 16)
}

// SeqKey returns the 16 byte key b, b+1, ..., b+15.
func SeqKey(b byte) []byte {
	k := make([]byte, 16)
	for i := range k {
		k[i] = b + byte(i)
	}
	return k
}
