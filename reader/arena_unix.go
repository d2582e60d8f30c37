//go:build unix

package reader

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// An Arena owns a read-only memory mapping of a file.
// The bytes returned by Bytes are invalid once Release has been called.
type Arena struct {
	data   []byte
	mapped bool
}

// MapFile maps the file at path into memory.
func MapFile(path string) (*Arena, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close() // the mapping outlives the descriptor

	st, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	size := st.Size()
	if size == 0 {
		return &Arena{data: []byte{}}, nil
	}
	if size > int64(^uint(0)>>1) {
		return nil, errors.Errorf("reader: %s too large to map (%d bytes)", path, size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	return &Arena{data: data, mapped: true}, nil
}

// Bytes returns the mapped region.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Release unmaps the region. Releasing twice is a no-op.
func (a *Arena) Release() error {
	if a.data == nil {
		return nil
	}
	data := a.data
	a.data = nil
	if !a.mapped {
		return nil
	}
	return errors.WithStack(unix.Munmap(data))
}

// Close implements io.Closer.
func (a *Arena) Close() error {
	return a.Release()
}
