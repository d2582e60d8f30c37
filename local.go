package casc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

// localHeaderSize is the size of the header preceding each file of the
// data.NNN archives.
const localHeaderSize = 30

// LocalOptions configures OpenLocal.
type LocalOptions struct {
	// Diagnostics collects the warnings met while parsing. Optional.
	Diagnostics *common.Diagnostics
	// SnapshotDir caches the merged index between sessions when set.
	SnapshotDir string
}

// Local is a storage backed by an installation directory.
type Local struct {
	dir   string
	info  common.BuildInfo
	build common.BuildConfig
	index *common.Index
}

// OpenLocal opens the installation at installDir: .build.info, the build
// config and every .idx file under Data/data.
func OpenLocal(installDir string, opts LocalOptions) (*Local, error) {
	l := &Local{dir: installDir}
	f, err := os.Open(filepath.Join(installDir, ".build.info"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	l.info, err = common.ParseBuildInfo(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	common.Log.Infof("local build %s (%s)", l.info.Version, l.info.Region)

	cfgPath, err := common.ConfigPath(installDir, l.info.BuildKey)
	if err != nil {
		return nil, err
	}
	f, err = os.Open(cfgPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	l.build, err = common.ParseBuildConfig(f)
	f.Close()
	if err != nil {
		return nil, errors.Wrap(err, cfgPath)
	}

	files, err := common.FindLocalIndexFiles(filepath.Join(installDir, "Data", "data"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no index files in %s", installDir)
	}
	if l.index, err = loadLocalIndex(files, opts); err != nil {
		return nil, err
	}
	common.Log.Infof("local index: %d keys from %d files", l.index.Len(), len(files))
	return l, nil
}

func loadLocalIndex(files []common.IndexFileInfo, opts LocalOptions) (*common.Index, error) {
	if opts.SnapshotDir == "" {
		return common.ParseLocalIndexes(files, opts.Diagnostics)
	}
	key := LocalSnapshotKey(files)
	path := filepath.Join(opts.SnapshotDir, "local-"+key+".snapshot")
	if idx, err := LoadSnapshotFile(path, key); err == nil {
		common.Log.Debugf("index snapshot %s", path)
		return idx, nil
	} else if !os.IsNotExist(errors.Cause(err)) {
		common.Log.Warnf("ignoring index snapshot %s: %v", path, err)
	}
	idx, err := common.ParseLocalIndexes(files, opts.Diagnostics)
	if err != nil {
		return nil, err
	}
	if err := SaveSnapshotFile(path, key, idx); err != nil {
		common.Log.Warnf("saving index snapshot %s: %v", path, err)
	}
	return idx, nil
}

// BuildInfo returns the parsed .build.info.
func (l *Local) BuildInfo() common.BuildInfo { return l.info }

// Version returns the version of the active build.
func (l *Local) Version() string { return l.info.Version }

// BuildConfig returns the build configuration named by .build.info.
func (l *Local) BuildConfig() common.BuildConfig { return l.build }

// Index returns the merged index of every data file.
func (l *Local) Index() *common.Index { return l.index }

// Locate returns where key is stored, or ErrNotFound.
func (l *Local) Locate(key common.Checksum) (common.IndexEntry, error) {
	e, ok := l.index.Find(key)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	return e, nil
}

// DataPath returns the path of data.NNN.
func (l *Local) DataPath(fileNumber int) string {
	return filepath.Join(l.dir, "Data", "data", fmt.Sprintf("data.%03d", fileNumber))
}

// Open returns the encoded bytes of key, without the archive header.
func (l *Local) Open(_ context.Context, key common.Checksum) (*reader.Reader, error) {
	e, err := l.Locate(key)
	if err != nil {
		return nil, err
	}
	if e.Size() < localHeaderSize {
		return nil, errors.WithStack(&common.ParseError{
			Path: l.DataPath(e.FileNumber()), Reason: fmt.Sprintf("entry %s of %d bytes", key, e.Size())})
	}
	path := l.DataPath(e.FileNumber())
	h, err := reader.OpenSection(path, e.Offset(), localHeaderSize)
	if err != nil {
		return nil, err
	}
	err = checkLocalHeader(path, h, e)
	h.Close()
	if err != nil {
		return nil, err
	}
	return reader.OpenSection(path, e.Offset()+localHeaderSize, e.Size()-localHeaderSize)
}

// checkLocalHeader reads the archive header of e: the reversed encoding
// key, the size and two checksums.
func checkLocalHeader(path string, r *reader.Reader, e common.IndexEntry) error {
	h, err := r.ReadBytes(localHeaderSize)
	if err != nil {
		return errors.Wrap(err, path)
	}
	hash := make([]byte, 16)
	for i := range hash {
		hash[i] = h[15-i]
	}
	if !bytes.Equal(hash[:common.FileKeySize], e.Key().Bytes()) {
		return errors.WithStack(&common.ParseError{Path: path, Reason: fmt.Sprintf("corrupted file at %d: key %x, want %s", e.Offset(), hash, e.Key())})
	}
	if size, _ := reader.Uint32.Decode(h[16:20], nil); int64(size) != e.Size() {
		return errors.WithStack(&common.ParseError{Path: path, Reason: fmt.Sprintf("inconsistent size at %d", e.Offset())})
	}
	return nil
}

// Close is a no-op: data files are opened per read.
func (l *Local) Close() error { return nil }
