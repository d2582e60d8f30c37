package dbc

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jybp/wowcasc/reader"
)

// Column describes a field of a record.
type Column struct {
	Index     int // position in the record, columns are read in Index order
	Name      string
	Type      reader.Type // ignored for string references
	StringRef bool        // 4 byte offset into the string block
	Padding   int         // bytes skipped after the field
}

// Len returns the number of bytes the column occupies, padding included.
func (c Column) Len() int {
	if c.StringRef {
		return 4 + c.Padding
	}
	return c.Type.Len() + c.Padding
}

// Schema describes the records of a table.
type Schema struct {
	Name     string
	Columns  []Column
	IDColumn string // column holding the record id, "" for none
}

// Ordered returns the columns sorted by Index.
func (s Schema) Ordered() []Column {
	cols := append([]Column(nil), s.Columns...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Index < cols[j].Index })
	return cols
}

// RecordSize returns the record size the schema describes.
func (s Schema) RecordSize() int {
	n := 0
	for _, c := range s.Columns {
		n += c.Len()
	}
	return n
}

// Column returns the column called name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ParseSchema reads a schema from a space separated list of name:type
// columns, e.g. "ID:int32 Directory:string Flags:uint32 _:pad[4]".
// "string" is a string block reference, "pad[n]" pads the previous column
// and the other types are the reader registry names. The first column is
// the id column.
func ParseSchema(name, text string) (Schema, error) {
	s := Schema{Name: name}
	for _, f := range strings.Fields(text) {
		i := strings.IndexByte(f, ':')
		if i <= 0 {
			return s, parseError("schema %s: column %q has no type", name, f)
		}
		col, typ := f[:i], f[i+1:]
		switch {
		case typ == "string":
			s.Columns = append(s.Columns, Column{Index: len(s.Columns), Name: col, StringRef: true})
		case strings.HasPrefix(typ, "pad[") && strings.HasSuffix(typ, "]"):
			n, err := strconv.Atoi(typ[4 : len(typ)-1])
			if err != nil || n <= 0 || len(s.Columns) == 0 {
				return s, parseError("schema %s: invalid padding %q", name, f)
			}
			s.Columns[len(s.Columns)-1].Padding += n
		default:
			t, ok := reader.Lookup(typ)
			if !ok || t.Len() < 0 {
				return s, parseError("schema %s: unknown type %q", name, typ)
			}
			s.Columns = append(s.Columns, Column{Index: len(s.Columns), Name: col, Type: t})
		}
	}
	if len(s.Columns) == 0 {
		return s, parseError("schema %s: no columns", name)
	}
	s.IDColumn = s.Columns[0].Name
	return s, nil
}
