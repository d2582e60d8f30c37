package common

import (
	"encoding/binary"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	localIndexVersion   = 7
	localIndexEntrySize = 18
)

// LocalIndexHeader is the hashed header of a local .idx file.
type LocalIndexHeader struct {
	Version       uint16
	Bucket        uint8
	ExtraBytes    uint8
	SpanSizeBytes uint8 // size field length
	SpanOffBytes  uint8 // archive number + offset field length
	KeyBytes      uint8
	SegmentBits   uint8 // bits of the offset field used for the offset
	MaxFileOffset uint64
}

// LocalIndexFile is a parsed .idx file.
type LocalIndexFile struct {
	Path       string
	FileNumber int
	Version    int
	Header     LocalIndexHeader
	DataHash   uint32 // read, not verified
	Entries    []LocalIndexEntry
}

// ParseIndexFileName decodes the file number and version of a name such as
// "0500000003.idx".
func ParseIndexFileName(name string) (fileNumber, version int, err error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if len(stem) != 10 || !strings.EqualFold(filepath.Ext(base), ".idx") {
		return 0, 0, parseErrorf(name, "not an index file name")
	}
	n, err := strconv.ParseUint(stem[:2], 16, 8)
	if err != nil {
		return 0, 0, parseErrorf(name, "invalid file number: %v", err)
	}
	v, err := strconv.ParseUint(stem[2:], 16, 32)
	if err != nil {
		return 0, 0, parseErrorf(name, "invalid version: %v", err)
	}
	return int(n), int(v), nil
}

// ParseLocalIndex parses the .idx file read by r. path names the file in
// errors and gives the file number and version.
// Duplicate keys inside the file keep the first occurrence and are reported
// to diag.
func ParseLocalIndex(path string, r *reader.Reader, diag *Diagnostics) (LocalIndexFile, error) {
	f := LocalIndexFile{Path: path}
	var err error
	if f.FileNumber, f.Version, err = ParseIndexFileName(path); err != nil {
		return f, err
	}

	headerLen, err := reader.Read(r, reader.Uint32, binary.LittleEndian)
	if err != nil {
		return f, errors.Wrapf(err, "%s: header length", path)
	}
	headerHash, err := reader.Read(r, reader.Uint32, binary.LittleEndian)
	if err != nil {
		return f, errors.Wrapf(err, "%s: header hash", path)
	}
	header, err := r.ReadBytes(int(headerLen))
	if err != nil {
		return f, errors.Wrapf(err, "%s: header", path)
	}
	if pc, _ := Hashlittle2(header, 0, 0); pc != headerHash {
		return f, parseErrorf(path, "Invalid index header hash")
	}
	if f.Header, err = parseLocalIndexHeader(path, header); err != nil {
		return f, err
	}

	if err := r.SetPosition((8 + int64(headerLen) + 0x0F) &^ 0x0F); err != nil {
		return f, errors.Wrapf(err, "%s: align data section", path)
	}
	dataLen, err := reader.Read(r, reader.Uint32, binary.LittleEndian)
	if err != nil {
		return f, errors.Wrapf(err, "%s: data length", path)
	}
	if f.DataHash, err = reader.Read(r, reader.Uint32, binary.LittleEndian); err != nil {
		return f, errors.Wrapf(err, "%s: data hash", path)
	}

	count := int(dataLen / localIndexEntrySize)
	data, err := r.ReadBytes(count * localIndexEntrySize)
	if err != nil {
		return f, errors.Wrapf(err, "%s: %d entries", path, count)
	}
	f.Entries = make([]LocalIndexEntry, 0, count)
	seen := make(map[Checksum]struct{}, count)
	for i := 0; i < count; i++ {
		e := data[i*localIndexEntrySize : (i+1)*localIndexEntrySize]
		key, err := NewFileKey(e[:FileKeySize])
		if err != nil {
			return f, err
		}
		if _, ok := seen[key]; ok {
			diag.Warnf(path, "duplicate key %s at entry %d", key, i)
			continue
		}
		seen[key] = struct{}{}
		high := uint32(e[9])
		low := binary.BigEndian.Uint32(e[10:14])
		f.Entries = append(f.Entries, LocalIndexEntry{
			FileKey:    key,
			Archive:    int(high<<2 | low>>30),
			DataOffset: int64(low & 0x3FFFFFFF),
			FileSize:   int64(binary.LittleEndian.Uint32(e[14:18])),
		})
	}
	Log.Debugf("%s: %d entries, file %d version %d", path, len(f.Entries), f.FileNumber, f.Version)
	return f, nil
}

func parseLocalIndexHeader(path string, header []byte) (LocalIndexHeader, error) {
	var h LocalIndexHeader
	if len(header) < 16 {
		return h, parseErrorf(path, "header of %d bytes", len(header))
	}
	hr := reader.NewBuffer(header)
	h.Version, _ = reader.Read(hr, reader.Uint16, binary.LittleEndian)
	if h.Version != localIndexVersion {
		return h, parseErrorf(path, "unsupported index version %d", h.Version)
	}
	fields, _ := hr.ReadBytes(6)
	h.Bucket, h.ExtraBytes, h.SpanSizeBytes = fields[0], fields[1], fields[2]
	h.SpanOffBytes, h.KeyBytes, h.SegmentBits = fields[3], fields[4], fields[5]
	h.MaxFileOffset, _ = reader.Read(hr, reader.Uint64, binary.BigEndian)
	if h.ExtraBytes != 0 || h.SpanSizeBytes != 4 || h.SpanOffBytes != 5 || h.KeyBytes != FileKeySize {
		return h, parseErrorf(path, "unsupported entry layout %d/%d/%d/%d",
			h.ExtraBytes, h.SpanSizeBytes, h.SpanOffBytes, h.KeyBytes)
	}
	return h, nil
}

// Bucket returns the index file number that holds key.
func Bucket(key Checksum) int {
	var x byte
	for _, c := range key.Trim(FileKeySize).Bytes() {
		x ^= c
	}
	return int((x & 0x0F) ^ (x >> 4))
}

// IndexFileInfo names an .idx file found on disk.
type IndexFileInfo struct {
	Path       string
	FileNumber int
	Version    int
}

// FindLocalIndexFiles walks dataDir recursively and returns, for each file
// number, the .idx file with the highest version, sorted by file number.
func FindLocalIndexFiles(dataDir string) ([]IndexFileInfo, error) {
	latest := map[int]IndexFileInfo{}
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".idx") {
			return nil
		}
		n, v, err := ParseIndexFileName(path)
		if err != nil {
			Log.Debugf("skipping %s: %v", path, err)
			return nil
		}
		if cur, ok := latest[n]; !ok || v > cur.Version {
			latest[n] = IndexFileInfo{Path: path, FileNumber: n, Version: v}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dataDir)
	}
	files := make([]IndexFileInfo, 0, len(latest))
	for _, f := range latest {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FileNumber < files[j].FileNumber })
	return files, nil
}

// ParseLocalIndexes parses files in parallel and merges them, in the order
// given, into one Index. The first file holding a key wins.
func ParseLocalIndexes(files []IndexFileInfo, diag *Diagnostics) (*Index, error) {
	parsed := make([]LocalIndexFile, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, info := range files {
		i, info := i, info
		g.Go(func() error {
			r, err := reader.Map(info.Path)
			if err != nil {
				return err
			}
			defer r.Close()
			parsed[i], err = ParseLocalIndex(info.Path, r, diag)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, f := range parsed {
		total += len(f.Entries)
	}
	b := NewIndexBuilder(total)
	for _, f := range parsed {
		for _, e := range f.Entries {
			b.Add(e)
		}
	}
	if n := b.Duplicates(); n > 0 {
		Log.Debugf("local index: %d keys present in several files", n)
	}
	return b.Index(), nil
}
