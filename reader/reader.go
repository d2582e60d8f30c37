// Package reader implements the byte readers the CASC parsers decode from.
//
// A Reader is either random-access (in-memory buffers, local files, memory
// mapped files) or forward-only (HTTP bodies). Both expose the same position
// bookkeeping; forward-only readers refuse to move backwards.
package reader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupported is returned when the operation is not available for the
	// access mode of the reader, e.g. seeking backwards in a stream.
	ErrUnsupported = errors.New("reader: unsupported operation")
	// ErrIllegalArgument is returned for invalid lengths, positions or
	// data type / byte order combinations.
	ErrIllegalArgument = errors.New("reader: illegal argument")
	// ErrClosed is returned when using a closed reader.
	ErrClosed = errors.New("reader: closed")
)

// Reader reads binary values from a byte source.
// A Reader is not safe for concurrent use.
type Reader struct {
	ra io.ReaderAt   // random-access source
	br *bufio.Reader // forward-only source
	c  io.Closer     // released by Close

	pos    int64
	size   int64 // -1 when unknown
	closed bool
}

// NewBuffer returns a random-access Reader over b.
func NewBuffer(b []byte) *Reader {
	return &Reader{ra: bytes.NewReader(b), size: int64(len(b))}
}

// NewSection returns a random-access Reader over n bytes of ra starting at off.
func NewSection(ra io.ReaderAt, off, n int64) *Reader {
	return &Reader{ra: io.NewSectionReader(ra, off, n), size: n}
}

// NewStream returns a forward-only Reader over rc.
// size is the number of bytes rc holds, or -1 when unknown.
// Closing the Reader closes rc.
func NewStream(rc io.ReadCloser, size int64) *Reader {
	if size < 0 {
		size = -1
	}
	return &Reader{br: bufio.NewReader(rc), c: rc, size: size}
}

// Open opens the file at path for random access.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	return &Reader{ra: f, c: f, size: st.Size()}, nil
}

// OpenSection opens n bytes of the file at path starting at off.
func OpenSection(path string, off, n int64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	if off < 0 || n < 0 || off+n > st.Size() {
		f.Close()
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "section %d+%d beyond %s (%d bytes)", off, n, path, st.Size())
	}
	return &Reader{ra: io.NewSectionReader(f, off, n), c: f, size: n}, nil
}

// Map memory-maps the file at path and returns a random-access Reader over it.
// The mapping is released when the Reader is closed.
func Map(path string) (*Reader, error) {
	a, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	b := a.Bytes()
	return &Reader{ra: bytes.NewReader(b), c: a, size: int64(len(b))}, nil
}

// Seekable reports whether the reader supports arbitrary positioning.
func (r *Reader) Seekable() bool {
	return r.ra != nil
}

// Position returns the number of bytes between the start of the source and
// the next byte to be read.
func (r *Reader) Position() int64 {
	return r.pos
}

// Size returns the total size of the source, or -1 when unknown.
func (r *Reader) Size() int64 {
	return r.size
}

// Remaining returns the number of unread bytes, or -1 when the size is unknown.
func (r *Reader) Remaining() int64 {
	if r.size < 0 {
		return -1
	}
	return r.size - r.pos
}

// SetPosition moves the reader to p.
// Forward-only readers fail with ErrUnsupported when p is behind the current position.
func (r *Reader) SetPosition(p int64) error {
	if r.closed {
		return errors.WithStack(ErrClosed)
	}
	if p < 0 {
		return errors.Wrapf(ErrIllegalArgument, "negative position %d", p)
	}
	if r.ra == nil {
		if p < r.pos {
			return errors.Wrapf(ErrUnsupported, "seek from %d back to %d on a forward-only reader", r.pos, p)
		}
		return r.Skip(p - r.pos)
	}
	if r.size >= 0 && p > r.size {
		return errors.Wrapf(io.ErrUnexpectedEOF, "position %d beyond size %d", p, r.size)
	}
	r.pos = p
	return nil
}

// Skip advances the reader by n bytes.
func (r *Reader) Skip(n int64) error {
	if r.closed {
		return errors.WithStack(ErrClosed)
	}
	if r.ra != nil {
		return r.SetPosition(r.pos + n)
	}
	if n < 0 {
		return errors.Wrapf(ErrUnsupported, "skip %d bytes on a forward-only reader", n)
	}
	m, err := io.CopyN(io.Discard, r.br, n)
	r.pos += m
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrapf(err, "skip %d bytes at %d", n, r.pos-m)
	}
	return nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.closed {
		return nil, errors.WithStack(ErrClosed)
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrIllegalArgument, "read %d bytes", n)
	}
	if r.size >= 0 && int64(n) > r.size-r.pos {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read %d bytes at %d: %d remaining", n, r.pos, r.size-r.pos)
	}
	b := make([]byte, n)
	var m int
	var err error
	if r.ra != nil {
		m, err = r.ra.ReadAt(b, r.pos)
		if m == n {
			err = nil
		}
	} else {
		m, err = io.ReadFull(r.br, b)
	}
	r.pos += int64(m)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrapf(err, "read %d bytes at %d", n, r.pos-int64(m))
	}
	return b, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.WithStack(ErrClosed)
	}
	if r.ra == nil {
		n, err := r.br.Read(p)
		r.pos += int64(n)
		return n, err
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}
	if rem := r.size - r.pos; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := r.ra.ReadAt(p, r.pos)
	r.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadRemaining reads every byte left in the source.
func (r *Reader) ReadRemaining() ([]byte, error) {
	if r.closed {
		return nil, errors.WithStack(ErrClosed)
	}
	if r.ra != nil {
		return r.ReadBytes(int(r.size - r.pos))
	}
	b, err := io.ReadAll(r.br)
	r.pos += int64(len(b))
	if err != nil {
		return nil, errors.Wrapf(err, "read remaining bytes at %d", r.pos)
	}
	return b, nil
}

// ReadTerminated reads up to the next zero byte or the end of the data.
// The terminator is consumed but not returned.
func (r *Reader) ReadTerminated() ([]byte, error) {
	if r.closed {
		return nil, errors.WithStack(ErrClosed)
	}
	if r.ra == nil {
		b, err := r.br.ReadBytes(0)
		r.pos += int64(len(b))
		if err == io.EOF && len(b) > 0 {
			return b, nil
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "read terminated string at %d", r.pos)
		}
		return b[:len(b)-1], nil
	}
	if r.size >= 0 && r.pos >= r.size {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read terminated string at %d", r.pos)
	}
	var out []byte
	chunk := make([]byte, 64)
	for {
		m, err := r.ra.ReadAt(chunk, r.pos)
		if i := bytes.IndexByte(chunk[:m], 0); i >= 0 {
			out = append(out, chunk[:i]...)
			r.pos += int64(i + 1)
			return out, nil
		}
		out = append(out, chunk[:m]...)
		r.pos += int64(m)
		if err == io.EOF || (m == 0 && err == nil) {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read terminated string at %d", r.pos)
		}
	}
}

// ReadNext decodes the next value of type t using order.
// A nil order selects the default byte order of t.
func (r *Reader) ReadNext(t Type, order binary.ByteOrder) (interface{}, error) {
	order, err := t.resolve(order)
	if err != nil {
		return nil, err
	}
	b, err := r.read(t.Len())
	if err != nil {
		return nil, err
	}
	return t.decodeValue(b, order)
}

func (r *Reader) read(length int) ([]byte, error) {
	if length < 0 {
		return r.ReadTerminated()
	}
	return r.ReadBytes(length)
}

// Read decodes the next value of type t from r.
func Read[T any](r *Reader, t DataType[T], order binary.ByteOrder) (T, error) {
	var zero T
	order, err := t.resolve(order)
	if err != nil {
		return zero, err
	}
	b, err := r.read(t.Len())
	if err != nil {
		return zero, err
	}
	return t.Decode(b, order)
}

// Close releases the underlying source. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.c == nil {
		return nil
	}
	err := r.c.Close()
	r.c = nil
	return errors.WithStack(err)
}
