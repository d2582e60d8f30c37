package casc

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/internal/fixture"
	"github.com/jybp/wowcasc/root/wow"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mapDBC = "DBFilesClient\\Map.dbc"

// testBuild holds the files of a build with a single Map.dbc.
type testBuild struct {
	buildKey, cdnKey   []byte
	encCKey, encEKey   []byte
	rootCKey, rootEKey []byte
	fileCKey, fileEKey []byte
	archiveKey         []byte

	encoding, root, file   []byte
	buildConfig, cdnConfig []byte
}

func dbcRecord(id, name int32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, uint32(id))
	binary.LittleEndian.PutUint32(b[4:], uint32(name))
	return b
}

func newTestBuild() *testBuild {
	b := &testBuild{
		buildKey:   fixture.SeqKey(0x01),
		cdnKey:     fixture.SeqKey(0x11),
		encCKey:    fixture.Key(0xE1),
		encEKey:    fixture.SeqKey(0x21),
		rootCKey:   fixture.Key(0xA1),
		rootEKey:   fixture.SeqKey(0x41),
		fileCKey:   fixture.Key(0xF1),
		fileEKey:   fixture.SeqKey(0x61),
		archiveKey: fixture.SeqKey(0x81),
	}
	b.file = fixture.DBC(2, 8, [][]byte{dbcRecord(1, 1), dbcRecord(530, 9)}, []byte("\x00Azeroth\x00Expansion01\x00"))
	b.root = fixture.Root(fixture.RootBlock{
		LocaleFlags: wow.LocaleEnUS,
		Records: []fixture.RootRecord{
			{FileDataID: 1349477, ContentKey: b.fileCKey, NameHash: wow.HashFilename(mapDBC)},
		},
	})
	b.encoding = fixture.Encoding(
		fixture.EncodingEntry{ContentKey: b.rootCKey, Keys: [][]byte{b.rootEKey}, Size: int64(len(b.root))},
		fixture.EncodingEntry{ContentKey: b.fileCKey, Keys: [][]byte{b.fileEKey}, Size: int64(len(b.file))},
	)
	b.buildConfig = []byte(fmt.Sprintf("# Build Configuration\n\nroot = %x\nencoding = %x %x\nencoding-size = %d %d\nbuild-name = WOW-31650patch1.13.2_Retail\n",
		b.rootCKey, b.encCKey, b.encEKey, len(b.encoding), len(b.encoding)))
	b.cdnConfig = []byte(fmt.Sprintf("# CDN Configuration\n\narchives = %x\narchive-group = %x\n", b.archiveKey, fixture.Key(0x99)))
	return b
}

func checksum(t *testing.T, b []byte) common.Checksum {
	t.Helper()
	c, err := common.NewChecksum(b)
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// writeInstall lays out an installation directory holding b in data.000.
func writeInstall(t *testing.T, b *testBuild) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".build.info"), fixture.BuildInfo("us", b.buildKey, b.cdnKey, "1.13.2.31650"))
	cfg, err := common.ConfigPath(dir, checksum(t, b.buildKey))
	require.NoError(t, err)
	writeFile(t, cfg, b.buildConfig)

	var data []byte
	var entries []fixture.LocalEntry
	for _, f := range []struct{ key, body []byte }{
		{b.encEKey, b.encoding},
		{b.rootEKey, b.root},
		{b.fileEKey, b.file},
	} {
		chunk := fixture.LocalData(f.key, f.body)
		entries = append(entries, fixture.LocalEntry{Key: f.key, Offset: uint32(len(data)), Size: uint32(len(chunk))})
		data = append(data, chunk...)
	}
	writeFile(t, filepath.Join(dir, "Data", "data", "data.000"), data)
	writeFile(t, filepath.Join(dir, "Data", "data", "0000000001.idx"), fixture.LocalIndex(0, entries...))
	return dir
}

func TestOpenLocal(t *testing.T) {
	b := newTestBuild()
	l, err := OpenLocal(writeInstall(t, b), LocalOptions{})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "1.13.2.31650", l.Version())
	assert.Equal(t, 31650, l.BuildInfo().BuildNumber)
	assert.Equal(t, "WOW-31650patch1.13.2_Retail", l.BuildConfig().BuildName)
	assert.True(t, l.BuildConfig().EncodingKey.Equal(checksum(t, b.encEKey)))
	assert.Equal(t, 3, l.Index().Len())

	e, err := l.Locate(checksum(t, b.fileEKey))
	require.NoError(t, err)
	assert.Equal(t, 0, e.FileNumber())
	assert.Equal(t, int64(30+len(b.file)), e.Size())

	r, err := l.Open(context.Background(), checksum(t, b.fileEKey))
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadRemaining()
	require.NoError(t, err)
	assert.Equal(t, b.file, got)

	_, err = l.Open(context.Background(), checksum(t, fixture.Key(0x55)))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpenLocalCorrupted(t *testing.T) {
	b := newTestBuild()
	encSize := uint32(30 + len(b.encoding))
	for name, entry := range map[string]fixture.LocalEntry{
		"key":  {Key: b.fileEKey, Offset: 0, Size: encSize},
		"size": {Key: b.encEKey, Offset: 0, Size: encSize - 1},
	} {
		t.Run(name, func(t *testing.T) {
			dir := writeInstall(t, b)
			writeFile(t, filepath.Join(dir, "Data", "data", "0000000002.idx"), fixture.LocalIndex(0, entry))
			l, err := OpenLocal(dir, LocalOptions{})
			require.NoError(t, err)
			assert.Equal(t, 1, l.Index().Len(), "only the latest version of an idx file is read")
			_, err = l.Open(context.Background(), checksum(t, entry.Key))
			assert.True(t, common.IsParseError(err), "%+v", err)
		})
	}
}

func TestOpenLocalMissing(t *testing.T) {
	_, err := OpenLocal(t.TempDir(), LocalOptions{})
	assert.Error(t, err)

	b := newTestBuild()
	dir := writeInstall(t, b)
	require.NoError(t, os.Remove(filepath.Join(dir, "Data", "data", "0000000001.idx")))
	_, err = OpenLocal(dir, LocalOptions{})
	assert.Error(t, err)
}

func TestOpenLocalSnapshot(t *testing.T) {
	b := newTestBuild()
	dir := writeInstall(t, b)
	snapshots := t.TempDir()

	l, err := OpenLocal(dir, LocalOptions{SnapshotDir: snapshots})
	require.NoError(t, err)
	paths, err := filepath.Glob(filepath.Join(snapshots, "local-*.snapshot"))
	require.NoError(t, err)
	require.Len(t, paths, 1)

	// A second session reads the snapshot instead of the idx files.
	files, err := common.FindLocalIndexFiles(filepath.Join(dir, "Data", "data"))
	require.NoError(t, err)
	extra := common.LocalIndexEntry{FileKey: checksum(t, fixture.Key(0x77)).Trim(common.FileKeySize), Archive: 3, DataOffset: 10, FileSize: 40}
	idx := common.NewIndex(append(l.Index().Entries(), extra)...)
	require.NoError(t, SaveSnapshotFile(paths[0], LocalSnapshotKey(files), idx))

	l2, err := OpenLocal(dir, LocalOptions{SnapshotDir: snapshots})
	require.NoError(t, err)
	assert.Equal(t, 4, l2.Index().Len())
	e, err := l2.Locate(checksum(t, fixture.Key(0x77)))
	require.NoError(t, err)
	assert.Equal(t, extra, e)
}
