//go:build !unix

package reader

import (
	"os"

	"github.com/pkg/errors"
)

// An Arena owns the contents of a file loaded in memory.
// Platforms without mmap read the whole file.
type Arena struct {
	data []byte
}

// MapFile loads the file at path into memory.
func MapFile(path string) (*Arena, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Arena{data: data}, nil
}

// Bytes returns the loaded region.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Release drops the region.
func (a *Arena) Release() error {
	a.data = nil
	return nil
}

// Close implements io.Closer.
func (a *Arena) Close() error {
	return a.Release()
}
