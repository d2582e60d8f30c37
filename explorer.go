package casc

import (
	"context"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/jybp/wowcasc/root/wow"
	"github.com/pkg/errors"
)

// Decoder turns the encoded bytes of a file into its content. It takes
// ownership of r. BLTE decoding is left to callers.
type Decoder func(r *reader.Reader) (*reader.Reader, error)

func identity(r *reader.Reader) (*reader.Reader, error) { return r, nil }

// ExplorerOptions configures an Explorer.
type ExplorerOptions struct {
	// Locale selects among the root records of a file, default enUS.
	Locale uint32
	// Decode is applied to every file read from the storage, including the
	// encoding and root files. Files are returned as stored when nil.
	Decode Decoder
}

func (o ExplorerOptions) locale() uint32 {
	if o.Locale == 0 {
		return wow.LocaleEnUS
	}
	return o.Locale
}

func (o ExplorerOptions) decoder() Decoder {
	if o.Decode == nil {
		return identity
	}
	return o.Decode
}

// Explorer resolves file names and file data ids to the files of a Storage.
type Explorer struct {
	storage  Storage
	encoding *common.Encoding
	root     *wow.Root
	locale   uint32
	decode   Decoder
}

// NewLocalExplorer opens the installation at installDir.
func NewLocalExplorer(ctx context.Context, installDir string, local LocalOptions, opts ExplorerOptions) (*Explorer, error) {
	s, err := OpenLocal(installDir, local)
	if err != nil {
		return nil, err
	}
	e, err := NewExplorer(ctx, s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	return e, nil
}

// NewOnlineExplorer opens a build on the CDN.
func NewOnlineExplorer(ctx context.Context, online OnlineOptions, opts ExplorerOptions) (*Explorer, error) {
	s, err := OpenOnline(ctx, online)
	if err != nil {
		return nil, err
	}
	e, err := NewExplorer(ctx, s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	return e, nil
}

// NewExplorer loads the encoding and root files of the build of s.
func NewExplorer(ctx context.Context, s Storage, opts ExplorerOptions) (*Explorer, error) {
	e := &Explorer{storage: s, locale: opts.locale(), decode: opts.decoder()}
	build := s.BuildConfig()
	if build.EncodingKey.IsZero() {
		return nil, errors.WithStack(&common.ParseError{Path: "build config", Reason: "no encoding key"})
	}
	r, err := e.openKey(ctx, build.EncodingKey)
	if err != nil {
		return nil, errors.Wrap(err, "encoding")
	}
	e.encoding, err = common.ParseEncoding(r)
	r.Close()
	if err != nil {
		return nil, err
	}

	r, err = e.OpenContent(ctx, build.Root)
	if err != nil {
		return nil, errors.Wrap(err, "root")
	}
	e.root, err = wow.Parse(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Version returns the version of the build.
func (e *Explorer) Version() string { return e.storage.Version() }

// Storage returns the storage the explorer reads from.
func (e *Explorer) Storage() Storage { return e.storage }

// Encoding returns the parsed encoding file.
func (e *Explorer) Encoding() *common.Encoding { return e.encoding }

// Root returns the parsed root file.
func (e *Explorer) Root() *wow.Root { return e.root }

// FileDataIDs returns the file data ids available in the locale, in root order.
func (e *Explorer) FileDataIDs() []uint32 {
	seen := map[uint32]bool{}
	var ids []uint32
	for _, rec := range e.root.Records() {
		if rec.LocaleFlags&e.locale == 0 || seen[rec.FileDataID] {
			continue
		}
		seen[rec.FileDataID] = true
		ids = append(ids, rec.FileDataID)
	}
	return ids
}

// Locate returns the index entry of the first encoded form of a content key.
func (e *Explorer) Locate(contentKey common.Checksum) (common.IndexEntry, error) {
	entry, ok := e.encoding.Find(contentKey)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "content key %s", contentKey)
	}
	for _, key := range entry.FileKeys() {
		if ie, err := e.storage.Locate(key); err == nil {
			return ie, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "content key %s: no indexed encoding key", contentKey)
}

// OpenContent returns the decoded content of a content key, trying each of
// its encoding keys in turn.
func (e *Explorer) OpenContent(ctx context.Context, contentKey common.Checksum) (*reader.Reader, error) {
	entry, ok := e.encoding.Find(contentKey)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "content key %s", contentKey)
	}
	for _, key := range entry.Keys {
		r, err := e.openKey(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return r, err
	}
	return nil, errors.Wrapf(ErrNotFound, "content key %s: no stored encoding key", contentKey)
}

func (e *Explorer) openKey(ctx context.Context, key common.Checksum) (*reader.Reader, error) {
	r, err := e.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.decode(r)
}

// Extract returns the decoded content of filename.
func (e *Explorer) Extract(ctx context.Context, filename string) (*reader.Reader, error) {
	c, err := e.root.Lookup(filename, e.locale)
	if err != nil {
		return nil, err
	}
	return e.OpenContent(ctx, c)
}

// ExtractFileDataID returns the decoded content of a file data id.
func (e *Explorer) ExtractFileDataID(ctx context.Context, id uint32) (*reader.Reader, error) {
	c, err := e.root.FileDataID(id, e.locale)
	if err != nil {
		return nil, err
	}
	return e.OpenContent(ctx, c)
}

// Close closes the underlying storage.
func (e *Explorer) Close() error { return e.storage.Close() }
