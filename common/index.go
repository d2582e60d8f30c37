package common

// IndexEntry locates the encoded bytes of a file.
type IndexEntry interface {
	Key() Checksum
	// FileNumber is the data.NNN number for local entries and the
	// position in the archive list for CDN entries.
	FileNumber() int
	Offset() int64
	Size() int64
}

// LocalIndexEntry is an entry of a local .idx file.
type LocalIndexEntry struct {
	FileKey    Checksum
	Archive    int
	DataOffset int64
	FileSize   int64
}

func (e LocalIndexEntry) Key() Checksum   { return e.FileKey }
func (e LocalIndexEntry) FileNumber() int { return e.Archive }
func (e LocalIndexEntry) Offset() int64   { return e.DataOffset }
func (e LocalIndexEntry) Size() int64     { return e.FileSize }

// CDNIndexEntry is an entry of a CDN archive .index file.
type CDNIndexEntry struct {
	FileKey    Checksum
	Archive    int      // position in the CDN config archive list
	ArchiveKey Checksum // name of the archive on the CDN
	DataOffset int64
	FileSize   int64
}

func (e CDNIndexEntry) Key() Checksum   { return e.FileKey }
func (e CDNIndexEntry) FileNumber() int { return e.Archive }
func (e CDNIndexEntry) Offset() int64   { return e.DataOffset }
func (e CDNIndexEntry) Size() int64     { return e.FileSize }

// Index maps FileKeys to entries. It is immutable once built and safe for
// concurrent readers.
type Index struct {
	entries []IndexEntry
	buckets map[uint32][]int32
}

// NewIndex builds an Index from entries; the first entry of a key wins.
func NewIndex(entries ...IndexEntry) *Index {
	b := NewIndexBuilder(len(entries))
	for _, e := range entries {
		b.Add(e)
	}
	return b.Index()
}

// Find returns the entry for key. Keys longer than FileKeySize are trimmed.
func (idx *Index) Find(key Checksum) (IndexEntry, bool) {
	if idx == nil {
		return nil, false
	}
	return idx.find(key.Trim(FileKeySize))
}

// find looks up a key already trimmed to FileKeySize. Entries are compared
// on their trimmed key as well.
func (idx *Index) find(key Checksum) (IndexEntry, bool) {
	for _, i := range idx.buckets[key.Hash()] {
		if e := idx.entries[i]; e.Key().Trim(FileKeySize).Equal(key) {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of distinct keys.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Entries returns the entries in insertion order.
func (idx *Index) Entries() []IndexEntry {
	if idx == nil {
		return nil
	}
	return append([]IndexEntry(nil), idx.entries...)
}

// Each calls fn for every entry in insertion order until fn returns false.
func (idx *Index) Each(fn func(IndexEntry) bool) {
	if idx == nil {
		return
	}
	for _, e := range idx.entries {
		if !fn(e) {
			return
		}
	}
}

// IndexBuilder accumulates entries into an Index.
// An IndexBuilder must not be used after Index is called.
type IndexBuilder struct {
	idx  *Index
	dups int
}

// NewIndexBuilder returns an empty builder sized for capacity entries.
func NewIndexBuilder(capacity int) *IndexBuilder {
	return &IndexBuilder{idx: &Index{
		entries: make([]IndexEntry, 0, capacity),
		buckets: make(map[uint32][]int32, capacity),
	}}
}

// Add inserts e unless its key, trimmed to FileKeySize, is already present.
// It reports whether e was inserted.
func (b *IndexBuilder) Add(e IndexEntry) bool {
	key := e.Key().Trim(FileKeySize)
	if prev, ok := b.idx.find(key); ok {
		b.dups++
		Log.Tracef("index: dropping %s in file %d, already in file %d", e.Key(), e.FileNumber(), prev.FileNumber())
		return false
	}
	h := key.Hash()
	b.idx.buckets[h] = append(b.idx.buckets[h], int32(len(b.idx.entries)))
	b.idx.entries = append(b.idx.entries, e)
	return true
}

// Duplicates returns the number of entries Add dropped.
func (b *IndexBuilder) Duplicates() int { return b.dups }

// Index returns the index built so far.
func (b *IndexBuilder) Index() *Index { return b.idx }
