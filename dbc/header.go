// Package dbc decodes WDBC and WDB2 client database files.
//
// A file is a header, recordCount fixed size records and a string block of
// zero terminated strings referenced by offset. Records are decoded into Go
// values through a Table: a Schema describing the columns and one setter
// per column.
package dbc

import (
	"fmt"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

const (
	MagicWDBC = "WDBC"
	MagicWDB2 = "WDB2"

	// WDB2 files of later builds carry an id range and sparse tables.
	extendedHeaderBuild = 12880
)

// Header is the header of a DBC or DB2 file.
type Header struct {
	Magic           string
	RecordCount     int32
	FieldCount      int32
	RecordSize      int32
	StringBlockSize int32

	// WDB2 only
	TableHash     uint32
	Build         int32
	Timestamp     uint32
	MinID         int32
	MaxID         int32
	Locale        int32
	CopyTableSize int32
}

// ParseHeader reads the header and skips the WDB2 index and string length
// tables, leaving r at the first record.
func ParseHeader(r *reader.Reader) (Header, error) {
	var h Header
	magic, err := reader.Read(r, reader.FixedString(4), nil)
	if err != nil {
		return h, errors.Wrap(err, "dbc magic")
	}
	h.Magic = magic
	if magic != MagicWDBC && magic != MagicWDB2 {
		return h, parseError("unsupported magic %q", magic)
	}
	fields := []*int32{&h.RecordCount, &h.FieldCount, &h.RecordSize, &h.StringBlockSize}
	if err := readInt32s(r, fields...); err != nil {
		return h, err
	}
	if magic == MagicWDBC {
		return h, h.check()
	}

	if h.TableHash, err = reader.Read(r, reader.Uint32, nil); err != nil {
		return h, errors.Wrap(err, "dbc header")
	}
	if err := readInt32s(r, &h.Build); err != nil {
		return h, err
	}
	if h.Timestamp, err = reader.Read(r, reader.Uint32, nil); err != nil {
		return h, errors.Wrap(err, "dbc header")
	}
	if h.Build > extendedHeaderBuild {
		if err := readInt32s(r, &h.MinID, &h.MaxID, &h.Locale, &h.CopyTableSize); err != nil {
			return h, err
		}
		if h.MaxID > 0 {
			if h.MaxID < h.MinID {
				return h, parseError("id range %d..%d", h.MinID, h.MaxID)
			}
			n := int64(h.MaxID-h.MinID) + 1
			// index table (4 bytes) and string length table (2 bytes) per id
			if err := r.Skip(n*4 + n*2); err != nil {
				return h, errors.Wrap(err, "dbc sparse tables")
			}
		}
	}
	return h, h.check()
}

func (h Header) check() error {
	if h.RecordCount < 0 || h.FieldCount < 0 || h.RecordSize < 0 || h.StringBlockSize < 0 {
		return parseError("negative header field %+v", h)
	}
	return nil
}

func readInt32s(r *reader.Reader, dst ...*int32) error {
	for _, p := range dst {
		v, err := reader.Read(r, reader.Int32, nil)
		if err != nil {
			return errors.Wrap(err, "dbc header")
		}
		*p = v
	}
	return nil
}

func parseError(format string, args ...interface{}) error {
	return errors.WithStack(&common.ParseError{Path: "dbc", Reason: fmt.Sprintf(format, args...)})
}

// File is a parsed file whose records are still raw bytes.
type File struct {
	Header  Header
	Records [][]byte
	Strings *StringBlock
}

// Parse reads a whole DBC or DB2 file.
func Parse(r *reader.Reader) (*File, error) {
	h, err := ParseHeader(r)
	if err != nil {
		return nil, err
	}
	size := int(h.RecordSize)
	if h.RecordCount > 0 && size == 0 {
		return nil, parseError("%d records of 0 bytes", h.RecordCount)
	}
	n := int64(h.RecordCount) * int64(size)
	if rem := r.Remaining(); rem >= 0 && n > rem {
		return nil, parseError("%d records of %d bytes, %d bytes left", h.RecordCount, size, rem)
	}
	data, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, errors.Wrapf(err, "dbc: %d records of %d bytes", h.RecordCount, size)
	}
	f := &File{Header: h, Records: make([][]byte, h.RecordCount)}
	for i := range f.Records {
		f.Records[i] = data[i*size : (i+1)*size : (i+1)*size]
	}
	block, err := r.ReadBytes(int(h.StringBlockSize))
	if err != nil {
		return nil, errors.Wrap(err, "dbc string block")
	}
	f.Strings = NewStringBlock(block)
	common.Log.Debugf("dbc: %s %d records, %d strings", h.Magic, h.RecordCount, f.Strings.Len())
	return f, nil
}
