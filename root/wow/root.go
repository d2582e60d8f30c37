// Package wow parses the World of Warcraft root file.
package wow

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

const mfstMagic = 0x4D465354 // "TSFM" little-endian

// Record is a file of a root block.
type Record struct {
	FileDataID   uint32
	ContentKey   common.Checksum
	NameHash     uint64 // zero when the block carries no name hashes
	ContentFlags uint32
	LocaleFlags  uint32
}

// Root indexes the records of a root file by name hash and file data id.
type Root struct {
	records []Record
	byHash  map[uint64][]int
	byID    map[uint32][]int
}

// HashFilename returns the lookup3 name hash of a path. Paths are upper-cased
// and use backslashes.
func HashFilename(name string) uint64 {
	n := strings.ToUpper(strings.ReplaceAll(name, "/", "\\"))
	pc, pb := common.Hashlittle2([]byte(n), 0, 0)
	return uint64(pc)<<32 | uint64(pb)
}

// layout describes how the blocks of a root file are encoded.
type layout struct {
	interleaved   bool // content key and name hash per record (classic)
	wideFlags     bool // MFST v2 block header
	allowNameless bool
}

// Parse reads a decoded root file, either the classic layout or the MFST one.
func Parse(r *reader.Reader) (*Root, error) {
	data, err := r.ReadRemaining()
	if err != nil {
		return nil, errors.Wrap(err, "root")
	}
	root := &Root{byHash: map[uint64][]int{}, byID: map[uint32][]int{}}
	br := reader.NewBuffer(data)
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == mfstMagic {
		err = root.parseMFST(br)
	} else {
		err = root.parseBlocks(br, layout{interleaved: true})
	}
	if err != nil {
		return nil, err
	}
	common.Log.Debugf("root: %d records, %d name hashes", len(root.records), len(root.byHash))
	return root, nil
}

func (root *Root) parseMFST(r *reader.Reader) error {
	var h [5]uint32
	for i := range h {
		if i == 3 && h[1] != 0x18 {
			break
		}
		v, err := reader.Read(r, reader.Uint32, nil)
		if err != nil {
			return errors.Wrap(err, "root header")
		}
		h[i] = v
	}
	headerSize, version, total, named := h[1], h[2], h[3], h[4]
	if headerSize != 0x18 {
		// version 0 header: magic, total count, named count
		headerSize, version, total, named = 12, 0, h[1], h[2]
	} else if version != 1 && version != 2 {
		return parseError("unsupported root version %d", version)
	}
	if err := r.SetPosition(int64(headerSize)); err != nil {
		return errors.Wrap(err, "root header")
	}
	return root.parseBlocks(r, layout{wideFlags: version == 2, allowNameless: total != named})
}

func (root *Root) parseBlocks(r *reader.Reader, l layout) error {
	for block := 0; r.Remaining() > 0; block++ {
		if err := root.parseBlock(r, l); err != nil {
			return errors.Wrapf(err, "root block %d", block)
		}
	}
	return nil
}

func (root *Root) parseBlock(r *reader.Reader, l layout) error {
	count, err := reader.Read(r, reader.Uint32, nil)
	if err != nil {
		return err
	}
	var contentFlags, localeFlags uint32
	if l.wideFlags {
		b, err := r.ReadBytes(13)
		if err != nil {
			return err
		}
		localeFlags = binary.LittleEndian.Uint32(b)
		contentFlags = binary.LittleEndian.Uint32(b[4:]) | binary.LittleEndian.Uint32(b[8:]) | uint32(b[12])<<17
	} else {
		b, err := r.ReadBytes(8)
		if err != nil {
			return err
		}
		contentFlags, localeFlags = binary.LittleEndian.Uint32(b), binary.LittleEndian.Uint32(b[4:])
	}
	if !ValidLocale(localeFlags) {
		return parseError("unknown locale flags %#x", localeFlags)
	}

	// deltas alone need 4 bytes per record
	if int64(count)*4 > r.Remaining() {
		return parseError("%d records overflow the file", count)
	}
	ids := make([]uint32, count)
	next := uint32(0)
	for i := range ids {
		delta, err := reader.Read(r, reader.Int32, nil)
		if err != nil {
			return err
		}
		ids[i] = next + uint32(delta)
		next = ids[i] + 1
	}

	first := len(root.records)
	for _, id := range ids {
		rec := Record{FileDataID: id, ContentFlags: contentFlags, LocaleFlags: localeFlags}
		b, err := r.ReadBytes(common.ContentKeySize)
		if err != nil {
			return err
		}
		if rec.ContentKey, err = common.NewContentKey(b); err != nil {
			return err
		}
		if l.interleaved {
			if rec.NameHash, err = reader.Read(r, reader.Uint64, nil); err != nil {
				return err
			}
		}
		root.records = append(root.records, rec)
	}
	if !l.interleaved && !(l.allowNameless && contentFlags&ContentNoNameHash != 0) {
		for i := range ids {
			h, err := reader.Read(r, reader.Uint64, nil)
			if err != nil {
				return err
			}
			root.records[first+i].NameHash = h
		}
	}
	for i := first; i < len(root.records); i++ {
		rec := root.records[i]
		root.byID[rec.FileDataID] = append(root.byID[rec.FileDataID], i)
		if rec.NameHash != 0 {
			root.byHash[rec.NameHash] = append(root.byHash[rec.NameHash], i)
		}
	}
	return nil
}

func parseError(format string, args ...interface{}) error {
	return errors.WithStack(&common.ParseError{Path: "root", Reason: fmt.Sprintf(format, args...)})
}

// Len returns the number of records.
func (root *Root) Len() int { return len(root.records) }

// Records returns the records in file order.
func (root *Root) Records() []Record {
	return append([]Record(nil), root.records...)
}

func (root *Root) pick(refs []int, locale uint32) (Record, bool) {
	for _, i := range refs {
		if rec := root.records[i]; rec.LocaleFlags&locale != 0 {
			return rec, true
		}
	}
	return Record{}, false
}

// LookupHash returns the content key of the first record with the name hash
// available in locale.
func (root *Root) LookupHash(hash uint64, locale uint32) (common.Checksum, error) {
	rec, ok := root.pick(root.byHash[hash], locale)
	if !ok {
		return common.Checksum{}, errors.Wrapf(common.ErrNotFound, "name hash %016x", hash)
	}
	return rec.ContentKey, nil
}

// Lookup returns the content key of filename in locale.
func (root *Root) Lookup(filename string, locale uint32) (common.Checksum, error) {
	c, err := root.LookupHash(HashFilename(filename), locale)
	if err != nil {
		return c, errors.Wrap(err, filename)
	}
	return c, nil
}

// FileDataID returns the content key of a file data id in locale.
func (root *Root) FileDataID(id uint32, locale uint32) (common.Checksum, error) {
	rec, ok := root.pick(root.byID[id], locale)
	if !ok {
		return common.Checksum{}, errors.Wrapf(common.ErrNotFound, "file data id %d", id)
	}
	return rec.ContentKey, nil
}
