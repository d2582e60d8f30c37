package dbc

import (
	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

// Setter stores a decoded column value into a record.
type Setter[T any] func(rec *T, v interface{})

// Int32 adapts f to a Setter of int32 columns.
func Int32[T any](f func(rec *T, v int32)) Setter[T] {
	return func(rec *T, v interface{}) {
		if x, ok := v.(int32); ok {
			f(rec, x)
		}
	}
}

// Uint32 adapts f to a Setter of uint32 columns.
func Uint32[T any](f func(rec *T, v uint32)) Setter[T] {
	return func(rec *T, v interface{}) {
		if x, ok := v.(uint32); ok {
			f(rec, x)
		}
	}
}

// Float32 adapts f to a Setter of float columns.
func Float32[T any](f func(rec *T, v float32)) Setter[T] {
	return func(rec *T, v interface{}) {
		if x, ok := v.(float32); ok {
			f(rec, x)
		}
	}
}

// String adapts f to a Setter of string columns.
func String[T any](f func(rec *T, v string)) Setter[T] {
	return func(rec *T, v interface{}) {
		if x, ok := v.(string); ok {
			f(rec, x)
		}
	}
}

// Table decodes records of type T.
type Table[T any] struct {
	Schema  Schema
	Setters map[string]Setter[T] // by column name
}

// Validate reports mismatches between the table, the schema and header h.
// Mismatches are warnings: decoding proceeds with what fits.
func (t Table[T]) Validate(h Header, diag *common.Diagnostics) {
	src := "dbc " + t.Schema.Name
	if n := len(t.Schema.Columns); int32(n) != h.FieldCount {
		diag.Warnf(src, "schema has %d fields, header %d", n, h.FieldCount)
	}
	if n := t.Schema.RecordSize(); int32(n) != h.RecordSize {
		diag.Warnf(src, "schema records are %d bytes, header %d", n, h.RecordSize)
	}
	for _, c := range t.Schema.Columns {
		if _, ok := t.Setters[c.Name]; !ok {
			diag.Warnf(src, "column %s is not mapped", c.Name)
		}
	}
	for name := range t.Setters {
		if _, ok := t.Schema.Column(name); !ok {
			diag.Warnf(src, "setter for unknown column %s", name)
		}
	}
}

// Decode validates the table against f and decodes every record.
// A string block less than half referenced is reported to diag.
func (t Table[T]) Decode(f *File, diag *common.Diagnostics) ([]T, error) {
	t.Validate(f.Header, diag)
	src := "dbc " + t.Schema.Name
	cols := t.Schema.Ordered()
	refs := map[int]struct{}{}
	out := make([]T, len(f.Records))
	overrun := false
	for i, raw := range f.Records {
		r := reader.NewBuffer(raw)
		for _, c := range cols {
			if int64(c.Len()-c.Padding) > r.Remaining() {
				overrun = true
				break
			}
			v, err := t.readColumn(r, c, f.Strings, refs)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: record %d column %s", src, i, c.Name)
			}
			if set, ok := t.Setters[c.Name]; ok {
				set(&out[i], v)
			}
			if c.Padding > 0 {
				if err := r.Skip(int64(c.Padding)); err != nil {
					overrun = true
					break
				}
			}
		}
	}
	if overrun {
		diag.Warnf(src, "columns beyond the %d byte records were skipped", f.Header.RecordSize)
	}
	if len(f.Records) > 0 && len(refs) > 0 {
		if u := f.Strings.usage(refs); u < 0.5 {
			diag.Warnf(src, "only %.0f%% of the string block is referenced", u*100)
		}
	}
	return out, nil
}

func (t Table[T]) readColumn(r *reader.Reader, c Column, strings *StringBlock, refs map[int]struct{}) (interface{}, error) {
	if !c.StringRef {
		return r.ReadNext(c.Type, nil)
	}
	off, err := reader.Read(r, reader.Uint32, nil)
	if err != nil {
		return nil, err
	}
	refs[int(off)] = struct{}{}
	return strings.Resolve(int(off)), nil
}

// Row is a record decoded without a Go type, keyed by column name.
type Row map[string]interface{}

// RowTable returns a Table decoding every column of s into a Row.
func RowTable(s Schema) Table[Row] {
	t := Table[Row]{Schema: s, Setters: map[string]Setter[Row]{}}
	for _, c := range s.Columns {
		name := c.Name
		t.Setters[name] = func(rec *Row, v interface{}) {
			if *rec == nil {
				*rec = Row{}
			}
			(*rec)[name] = v
		}
	}
	return t
}
