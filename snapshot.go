package casc

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jybp/wowcasc/common"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

// ErrStaleSnapshot is returned when a snapshot was saved for another set of
// index files.
var ErrStaleSnapshot = errors.New("casc: stale index snapshot")

type snapshotEntry struct {
	Key        []byte `msgpack:"k"`
	FileNumber int    `msgpack:"n"`
	Offset     int64  `msgpack:"o"`
	Size       int64  `msgpack:"s"`
	ArchiveKey []byte `msgpack:"a,omitempty"` // set for CDN entries only
}

type snapshot struct {
	Version int             `msgpack:"v"`
	Key     string          `msgpack:"key"`
	Entries []snapshotEntry `msgpack:"e"`
}

// SaveSnapshot writes idx to w. key identifies the sources idx was built
// from and is checked by LoadSnapshot.
func SaveSnapshot(w io.Writer, key string, idx *common.Index) error {
	s := snapshot{Version: snapshotVersion, Key: key, Entries: make([]snapshotEntry, 0, idx.Len())}
	var err error
	idx.Each(func(e common.IndexEntry) bool {
		se := snapshotEntry{Key: e.Key().Bytes(), FileNumber: e.FileNumber(), Offset: e.Offset(), Size: e.Size()}
		switch e := e.(type) {
		case common.LocalIndexEntry:
		case common.CDNIndexEntry:
			se.ArchiveKey = e.ArchiveKey.Bytes()
		default:
			err = errors.Errorf("snapshot: unsupported entry %T", e)
			return false
		}
		s.Entries = append(s.Entries, se)
		return true
	})
	if err != nil {
		return err
	}
	return errors.WithStack(msgpack.NewEncoder(w).Encode(&s))
}

// LoadSnapshot reads an index written by SaveSnapshot. An empty key accepts
// any snapshot.
func LoadSnapshot(r io.Reader, key string) (*common.Index, error) {
	var s snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	if s.Version != snapshotVersion {
		return nil, errors.Wrapf(ErrStaleSnapshot, "version %d", s.Version)
	}
	if key != "" && s.Key != key {
		return nil, errors.Wrapf(ErrStaleSnapshot, "key %s, want %s", s.Key, key)
	}
	b := common.NewIndexBuilder(len(s.Entries))
	for _, se := range s.Entries {
		k, err := common.NewChecksum(se.Key)
		if err != nil {
			return nil, errors.Wrap(err, "snapshot")
		}
		if se.ArchiveKey == nil {
			b.Add(common.LocalIndexEntry{FileKey: k, Archive: se.FileNumber, DataOffset: se.Offset, FileSize: se.Size})
			continue
		}
		ak, err := common.NewChecksum(se.ArchiveKey)
		if err != nil {
			return nil, errors.Wrap(err, "snapshot")
		}
		b.Add(common.CDNIndexEntry{FileKey: k, Archive: se.FileNumber, ArchiveKey: ak, DataOffset: se.Offset, FileSize: se.Size})
	}
	return b.Index(), nil
}

// SaveSnapshotFile writes the snapshot to path through a temporary file.
func SaveSnapshotFile(path, key string, idx *common.Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := SaveSnapshot(f, key, idx); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(f.Name(), path))
}

// LoadSnapshotFile reads a snapshot written by SaveSnapshotFile.
func LoadSnapshotFile(path, key string) (*common.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	return LoadSnapshot(f, key)
}

// LocalSnapshotKey identifies a set of .idx files by name, version, size and
// modification time.
func LocalSnapshotKey(files []common.IndexFileInfo) string {
	h := md5.New()
	for _, f := range files {
		fmt.Fprintf(h, "%d:%d", f.FileNumber, f.Version)
		if st, err := os.Stat(f.Path); err == nil {
			fmt.Fprintf(h, ":%d:%d", st.Size(), st.ModTime().UnixNano())
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// onlineSnapshotKey identifies the archive indexes of a CDN config.
func onlineSnapshotKey(archives []common.Checksum) string {
	h := md5.New()
	for _, a := range archives {
		h.Write(a.Bytes())
	}
	return hex.EncodeToString(h.Sum(nil))
}
