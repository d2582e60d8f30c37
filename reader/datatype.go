package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Type describes a binary encoding independently of the Go type it decodes to.
type Type interface {
	// Name is the canonical name of the type.
	Name() string
	// Len is the encoded length in bytes, or -1 when the value is terminated.
	Len() int
	// Order is the byte order used when none is requested.
	Order() binary.ByteOrder

	resolve(order binary.ByteOrder) (binary.ByteOrder, error)
	decodeValue(b []byte, order binary.ByteOrder) (interface{}, error)
}

// DataType is a Type decoding to values of T.
type DataType[T any] struct {
	name      string
	length    int
	order     binary.ByteOrder
	sensitive bool // false for single bytes and strings
	decode    func(b []byte, order binary.ByteOrder) T
	encode    func(v T, order binary.ByteOrder) ([]byte, error)
}

// Name implements Type.
func (t DataType[T]) Name() string { return t.name }

// Len implements Type.
func (t DataType[T]) Len() int { return t.length }

// Order implements Type.
func (t DataType[T]) Order() binary.ByteOrder { return t.order }

func (t DataType[T]) String() string { return t.name }

func (t DataType[T]) resolve(order binary.ByteOrder) (binary.ByteOrder, error) {
	if order == nil {
		return t.order, nil
	}
	if !t.sensitive {
		return order, nil
	}
	switch order.String() {
	case binary.LittleEndian.String(), binary.BigEndian.String():
		return order, nil
	}
	return nil, errors.Wrapf(ErrIllegalArgument, "%s: unsupported byte order %s", t.name, order)
}

// Decode decodes a value from b.
// Fixed length types require at least Len bytes and ignore the rest.
func (t DataType[T]) Decode(b []byte, order binary.ByteOrder) (T, error) {
	var zero T
	order, err := t.resolve(order)
	if err != nil {
		return zero, err
	}
	if t.length >= 0 {
		if len(b) < t.length {
			return zero, errors.Wrapf(ErrIllegalArgument, "%s: %d bytes, need %d", t.name, len(b), t.length)
		}
		b = b[:t.length]
	}
	return t.decode(b, order), nil
}

// Encode encodes v; terminated types include their terminator.
func (t DataType[T]) Encode(v T, order binary.ByteOrder) ([]byte, error) {
	order, err := t.resolve(order)
	if err != nil {
		return nil, err
	}
	return t.encode(v, order)
}

func (t DataType[T]) decodeValue(b []byte, order binary.ByteOrder) (interface{}, error) {
	v, err := t.Decode(b, order)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func put(n int, fn func(b []byte)) []byte {
	b := make([]byte, n)
	fn(b)
	return b
}

// CASC native values are little-endian.
var (
	Int32 = DataType[int32]{
		name: "int32", length: 4, order: binary.LittleEndian, sensitive: true,
		decode: func(b []byte, o binary.ByteOrder) int32 { return int32(o.Uint32(b)) },
		encode: func(v int32, o binary.ByteOrder) ([]byte, error) {
			return put(4, func(b []byte) { o.PutUint32(b, uint32(v)) }), nil
		},
	}
	Uint32 = DataType[uint32]{
		name: "uint32", length: 4, order: binary.LittleEndian, sensitive: true,
		decode: func(b []byte, o binary.ByteOrder) uint32 { return o.Uint32(b) },
		encode: func(v uint32, o binary.ByteOrder) ([]byte, error) {
			return put(4, func(b []byte) { o.PutUint32(b, v) }), nil
		},
	}
	Int16 = DataType[int16]{
		name: "short", length: 2, order: binary.LittleEndian, sensitive: true,
		decode: func(b []byte, o binary.ByteOrder) int16 { return int16(o.Uint16(b)) },
		encode: func(v int16, o binary.ByteOrder) ([]byte, error) {
			return put(2, func(b []byte) { o.PutUint16(b, uint16(v)) }), nil
		},
	}
	Uint16 = DataType[uint16]{
		name: "ushort", length: 2, order: binary.LittleEndian, sensitive: true,
		decode: func(b []byte, o binary.ByteOrder) uint16 { return o.Uint16(b) },
		encode: func(v uint16, o binary.ByteOrder) ([]byte, error) {
			return put(2, func(b []byte) { o.PutUint16(b, v) }), nil
		},
	}
	Uint64 = DataType[uint64]{
		name: "uint64", length: 8, order: binary.LittleEndian, sensitive: true,
		decode: func(b []byte, o binary.ByteOrder) uint64 { return o.Uint64(b) },
		encode: func(v uint64, o binary.ByteOrder) ([]byte, error) {
			return put(8, func(b []byte) { o.PutUint64(b, v) }), nil
		},
	}
	Float32 = DataType[float32]{
		name: "float", length: 4, order: binary.LittleEndian, sensitive: true,
		decode: func(b []byte, o binary.ByteOrder) float32 { return math.Float32frombits(o.Uint32(b)) },
		encode: func(v float32, o binary.ByteOrder) ([]byte, error) {
			return put(4, func(b []byte) { o.PutUint32(b, math.Float32bits(v)) }), nil
		},
	}
	Bool = DataType[bool]{
		name: "boolean", length: 1, order: binary.LittleEndian,
		decode: func(b []byte, _ binary.ByteOrder) bool { return b[0] != 0 },
		encode: func(v bool, _ binary.ByteOrder) ([]byte, error) {
			if v {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		},
	}
	Byte = DataType[uint8]{
		name: "byte", length: 1, order: binary.LittleEndian,
		decode: func(b []byte, _ binary.ByteOrder) uint8 { return b[0] },
		encode: func(v uint8, _ binary.ByteOrder) ([]byte, error) { return []byte{v}, nil },
	}
	// CString is a zero terminated string.
	CString = DataType[string]{
		name: "cstring", length: -1, order: binary.LittleEndian,
		decode: func(b []byte, _ binary.ByteOrder) string { return string(b) },
		encode: func(v string, _ binary.ByteOrder) ([]byte, error) {
			if i := bytes.IndexByte([]byte(v), 0); i >= 0 {
				return nil, errors.Wrapf(ErrIllegalArgument, "cstring: zero byte at %d", i)
			}
			return append([]byte(v), 0), nil
		},
	}
)

// FixedString is a string stored in n bytes, zero padded.
func FixedString(n int) DataType[string] {
	name := fmt.Sprintf("string[%d]", n)
	return DataType[string]{
		name: name, length: n, order: binary.LittleEndian,
		decode: func(b []byte, _ binary.ByteOrder) string {
			if i := bytes.IndexByte(b, 0); i >= 0 {
				b = b[:i]
			}
			return string(b)
		},
		encode: func(v string, _ binary.ByteOrder) ([]byte, error) {
			if len(v) > n {
				return nil, errors.Wrapf(ErrIllegalArgument, "%s: %d bytes value", name, len(v))
			}
			b := make([]byte, n)
			copy(b, v)
			return b, nil
		},
	}
}

// ByteArray is a raw run of n bytes.
func ByteArray(n int) DataType[[]byte] {
	name := fmt.Sprintf("byte[%d]", n)
	return DataType[[]byte]{
		name: name, length: n, order: binary.LittleEndian,
		decode: func(b []byte, _ binary.ByteOrder) []byte {
			out := make([]byte, len(b))
			copy(out, b)
			return out
		},
		encode: func(v []byte, _ binary.ByteOrder) ([]byte, error) {
			if len(v) != n {
				return nil, errors.Wrapf(ErrIllegalArgument, "%s: %d bytes value", name, len(v))
			}
			out := make([]byte, n)
			copy(out, v)
			return out, nil
		},
	}
}

var registry = map[string]Type{}

func init() {
	for _, t := range []Type{Int32, Uint32, Int16, Uint16, Uint64, Float32, Bool, Byte, CString} {
		registry[t.Name()] = t
	}
}

// Lookup returns the type registered under name.
// "string[n]" and "byte[n]" resolve to FixedString(n) and ByteArray(n).
func Lookup(name string) (Type, bool) {
	if t, ok := registry[name]; ok {
		return t, true
	}
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return nil, false
	}
	n, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil || n <= 0 {
		return nil, false
	}
	switch name[:open] {
	case "string":
		return FixedString(n), true
	case "byte":
		return ByteArray(n), true
	}
	return nil, false
}
