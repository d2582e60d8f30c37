package common

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Column is a typed column of a pipe separated table, e.g. "Build Key!HEX:16".
type Column struct {
	Name string
	Type string
}

// Table is a pipe separated table as found in .build.info and on the patch
// servers. Lines starting with "#" and blank lines are skipped.
type Table struct {
	Header  string
	Columns []Column
	Rows    [][]string
}

// ParseTable reads a pipe separated table. name is used in errors.
func ParseTable(name string, r io.Reader) (Table, error) {
	t := Table{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if t.Columns == nil {
			t.Header = line
			for _, col := range strings.Split(line, "|") {
				i := strings.Index(col, "!")
				if i < 0 {
					return t, parseErrorf(name, "column %q has no type", col)
				}
				t.Columns = append(t.Columns, Column{Name: col[:i], Type: col[i+1:]})
			}
			continue
		}
		values := strings.Split(line, "|")
		if len(values) != len(t.Columns) {
			return t, parseErrorf(name, "row of %d values, header has %d columns", len(values), len(t.Columns))
		}
		t.Rows = append(t.Rows, values)
	}
	if err := scanner.Err(); err != nil {
		return t, errors.Wrap(err, name)
	}
	if t.Columns == nil {
		return t, parseErrorf(name, "missing header")
	}
	return t, nil
}

// Column returns the index of the named column.
func (t Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Maps returns the rows keyed by column name.
func (t Table) Maps() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]string, len(row))
		for i, v := range row {
			m[t.Columns[i].Name] = v
		}
		out = append(out, m)
	}
	return out
}

func (t Table) require(name string, columns ...string) error {
	for _, c := range columns {
		if _, ok := t.Column(c); !ok {
			return parseErrorf(name, "missing column %q", c)
		}
	}
	return nil
}
