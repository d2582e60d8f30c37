package common_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/internal/fixture"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileKey(t *testing.T, b []byte) common.Checksum {
	t.Helper()
	k, err := common.NewFileKey(b)
	require.NoError(t, err)
	return k
}

func TestParseIndexFileName(t *testing.T) {
	n, v, err := common.ParseIndexFileName("/wow/Data/data/0f0000002a.idx")
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, 42, v)

	for _, name := range []string{"0f0000002a.index", "0f00002a.idx", "zz0000002a.idx"} {
		_, _, err := common.ParseIndexFileName(name)
		assert.True(t, common.IsParseError(err), name)
	}
}

func TestParseLocalIndex(t *testing.T) {
	data := fixture.LocalIndex(3,
		fixture.LocalEntry{Key: fixture.Key(0x11), Archive: 5, Offset: 0x1234, Size: 77},
		fixture.LocalEntry{Key: fixture.Key(0x22), Archive: 0x3FF, Offset: 0x3FFFFFFF, Size: 1},
	)
	var diag common.Diagnostics
	f, err := common.ParseLocalIndex("0300000001.idx", reader.NewBuffer(data), &diag)
	require.NoError(t, err)
	assert.Equal(t, 3, f.FileNumber)
	assert.Equal(t, 1, f.Version)
	assert.Equal(t, uint8(3), f.Header.Bucket)
	assert.Equal(t, uint16(7), f.Header.Version)
	require.Len(t, f.Entries, 2)

	e := f.Entries[0]
	assert.Equal(t, fileKey(t, fixture.Key(0x11)), e.Key())
	assert.Equal(t, 5, e.FileNumber())
	assert.Equal(t, int64(0x1234), e.Offset())
	assert.Equal(t, int64(77), e.Size())

	e = f.Entries[1]
	assert.Equal(t, 0x3FF, e.FileNumber())
	assert.Equal(t, int64(0x3FFFFFFF), e.Offset())
	assert.Equal(t, 0, diag.Len())
}

func TestParseLocalIndexHeaderHash(t *testing.T) {
	data := fixture.LocalIndex(0, fixture.LocalEntry{Key: fixture.Key(1)})
	data[4] ^= 0xff
	_, err := common.ParseLocalIndex("0000000001.idx", reader.NewBuffer(data), nil)
	require.Error(t, err)
	var pe *common.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Invalid index header hash", pe.Reason)
}

func TestParseLocalIndexVersion(t *testing.T) {
	data := fixture.LocalIndex(0)
	data[8] = 6
	// keep the header hash valid so the version check is reached
	pc, _ := common.Hashlittle2(data[8:24], 0, 0)
	data[4], data[5], data[6], data[7] = byte(pc), byte(pc>>8), byte(pc>>16), byte(pc>>24)
	_, err := common.ParseLocalIndex("0000000001.idx", reader.NewBuffer(data), nil)
	assert.True(t, common.IsParseError(err))
}

func TestParseLocalIndexTruncated(t *testing.T) {
	data := fixture.LocalIndex(0, fixture.LocalEntry{Key: fixture.Key(1)}, fixture.LocalEntry{Key: fixture.Key(2)})
	_, err := common.ParseLocalIndex("0000000001.idx", reader.NewBuffer(data[:len(data)-5]), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestParseLocalIndexDuplicates(t *testing.T) {
	data := fixture.LocalIndex(0,
		fixture.LocalEntry{Key: fixture.Key(1), Archive: 1},
		fixture.LocalEntry{Key: fixture.Key(1), Archive: 2},
	)
	var diag common.Diagnostics
	f, err := common.ParseLocalIndex("0000000001.idx", reader.NewBuffer(data), &diag)
	require.NoError(t, err)
	require.Len(t, f.Entries, 1)
	assert.Equal(t, 1, f.Entries[0].Archive)
	assert.Equal(t, 1, diag.Len())
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLocalIndexesKeepLatestVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "0000000003.idx"), fixture.LocalIndex(0,
		fixture.LocalEntry{Key: fixture.Key(0xa0), Archive: 1, Offset: 1}))
	writeFile(t, filepath.Join(dir, "0000000005.idx"), fixture.LocalIndex(0,
		fixture.LocalEntry{Key: fixture.Key(0xa1), Archive: 1, Offset: 2}))
	writeFile(t, filepath.Join(dir, "sub", "0100000002.idx"), fixture.LocalIndex(1,
		fixture.LocalEntry{Key: fixture.Key(0xa1), Archive: 7, Offset: 3},
		fixture.LocalEntry{Key: fixture.Key(0xb0), Archive: 7, Offset: 4}))
	writeFile(t, filepath.Join(dir, "data.000"), []byte("not an index"))

	files, err := common.FindLocalIndexFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 0, files[0].FileNumber)
	assert.Equal(t, 5, files[0].Version)
	assert.Equal(t, 1, files[1].FileNumber)

	idx, err := common.ParseLocalIndexes(files, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	_, ok := idx.Find(fileKey(t, fixture.Key(0xa0)))
	assert.False(t, ok, "entries of version 3 are dropped")

	e, ok := idx.Find(fileKey(t, fixture.Key(0xa1)))
	require.True(t, ok)
	assert.Equal(t, int64(2), e.Offset(), "file 0 is merged first")
}

func TestParseLocalIndexesError(t *testing.T) {
	dir := t.TempDir()
	data := fixture.LocalIndex(0)
	data[4] ^= 1
	writeFile(t, filepath.Join(dir, "0000000001.idx"), data)
	files, err := common.FindLocalIndexFiles(dir)
	require.NoError(t, err)
	_, err = common.ParseLocalIndexes(files, nil)
	assert.True(t, common.IsParseError(err))
}
