package casc

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/downloader"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// OnlineOptions configures OpenOnline. The zero value opens the live
// World of Warcraft build of the US region.
type OnlineOptions struct {
	Product string
	Region  string

	// CDNURL, BuildConfig and CDNConfig skip the patch server lookup when
	// all are set. A lone CDNURL replaces the CDN of the cdns table.
	// Version names the cache directory, default the versions name.
	CDNURL      string
	BuildConfig common.Checksum
	CDNConfig   common.Checksum
	Version     string

	// CacheDir keeps downloaded files, patch server tables and index
	// snapshots when set.
	CacheDir string
	Client   *http.Client
	// Concurrency bounds the parallel archive index downloads.
	Concurrency int
	Diagnostics *common.Diagnostics
}

func (o OnlineOptions) product() string {
	if o.Product == "" {
		return WorldOfWarcraft
	}
	return o.Product
}

func (o OnlineOptions) region() string {
	if o.Region == "" {
		return RegionUS
	}
	return o.Region
}

func (o OnlineOptions) concurrency() int {
	if o.Concurrency <= 0 {
		return 8
	}
	return o.Concurrency
}

func (o OnlineOptions) explicit() bool {
	return o.CDNURL != "" && !o.BuildConfig.IsZero() && !o.CDNConfig.IsZero()
}

// Online is a storage backed by the CDN.
type Online struct {
	cdnURL  string
	version string
	build   common.BuildConfig
	cdn     common.CDNConfig
	index   *common.Index

	data    downloader.RangeGetter
	configs *downloader.MemCache
}

// OpenOnline resolves the build of a product, downloads its configs and every
// archive index of the CDN config.
func OpenOnline(ctx context.Context, opts OnlineOptions) (*Online, error) {
	o := &Online{cdnURL: opts.CDNURL, version: opts.Version}
	buildKey, cdnKey := opts.BuildConfig, opts.CDNConfig
	if !opts.explicit() {
		v, cdn, err := lookupVersion(ctx, opts)
		if err != nil {
			return nil, err
		}
		if o.cdnURL == "" {
			o.cdnURL = cdn.URL()
		}
		if o.version == "" {
			o.version = v.VersionsName
		}
		buildKey, cdnKey = v.BuildConfig, v.CDNConfig
	}
	if o.version == "" {
		o.version = buildKey.Hex()
	}
	common.Log.Infof("online build %s from %s", o.version, o.cdnURL)

	var data downloader.RangeGetter = downloader.HTTP{Client: opts.Client}
	if opts.CacheDir != "" {
		data = &downloader.FileCache{
			Getter:  data,
			Dir:     opts.CacheDir,
			Version: o.version,
			Root:    o.cdnURL,
		}
	}
	o.data = data
	configs, err := downloader.NewMemCache(data, downloader.MemCacheConfig{})
	if err != nil {
		return nil, err
	}
	o.configs = configs

	if err := o.fetchConfig(ctx, buildKey, func(r *reader.Reader) (err error) {
		o.build, err = common.ParseBuildConfig(r)
		return err
	}); err != nil {
		o.Close()
		return nil, err
	}
	if err := o.fetchConfig(ctx, cdnKey, func(r *reader.Reader) (err error) {
		o.cdn, err = common.ParseCDNConfig(r)
		return err
	}); err != nil {
		o.Close()
		return nil, err
	}
	if o.index, err = o.loadIndex(ctx, opts); err != nil {
		o.Close()
		return nil, err
	}
	common.Log.Infof("online index: %d keys from %d archives", o.index.Len(), len(o.cdn.Archives))
	return o, nil
}

func lookupVersion(ctx context.Context, opts OnlineOptions) (common.Version, common.CDN, error) {
	var tablesDir string
	if opts.CacheDir != "" {
		tablesDir = filepath.Join(opts.CacheDir, "ngdp")
	}
	var base http.RoundTripper
	if opts.Client != nil {
		base = opts.Client.Transport
	}
	tables := downloader.HTTP{Client: downloader.NewCachingClient(tablesDir, base)}
	product, region := opts.product(), opts.region()

	r, err := tables.Get(ctx, common.NGDPVersionsURL(product, region))
	if err != nil {
		return common.Version{}, common.CDN{}, err
	}
	versions, err := common.ParseVersions(r)
	r.Close()
	if err != nil {
		return common.Version{}, common.CDN{}, err
	}
	v, ok := common.FindVersion(versions, region)
	if !ok {
		return v, common.CDN{}, errors.Wrapf(ErrNotFound, "%s: no version for region %s", product, region)
	}

	r, err = tables.Get(ctx, common.NGDPCdnsURL(product, region))
	if err != nil {
		return v, common.CDN{}, err
	}
	cdns, err := common.ParseCDNs(r)
	r.Close()
	if err != nil {
		return v, common.CDN{}, err
	}
	cdn, ok := common.FindCDN(cdns, region)
	if !ok {
		return v, cdn, errors.Wrapf(ErrNotFound, "%s: no cdn for region %s", product, region)
	}
	return v, cdn, nil
}

func (o *Online) fetchConfig(ctx context.Context, key common.Checksum, parse func(*reader.Reader) error) error {
	u, err := common.URL(o.cdnURL, common.PathTypeConfig, key, "")
	if err != nil {
		return err
	}
	r, err := o.configs.Get(ctx, u)
	if err != nil {
		return err
	}
	defer r.Close()
	return errors.Wrapf(parse(r), "config %s", key)
}

func (o *Online) loadIndex(ctx context.Context, opts OnlineOptions) (*common.Index, error) {
	archives := o.cdn.Archives
	var snapshot, key string
	if opts.CacheDir != "" {
		key = onlineSnapshotKey(archives)
		snapshot = filepath.Join(opts.CacheDir, "snapshots", "cdn-"+key+".snapshot")
		if idx, err := LoadSnapshotFile(snapshot, key); err == nil {
			common.Log.Debugf("index snapshot %s", snapshot)
			return idx, nil
		} else if !os.IsNotExist(errors.Cause(err)) {
			common.Log.Warnf("ignoring index snapshot %s: %v", snapshot, err)
		}
	}

	files := make([]common.CDNIndexFile, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())
	for i, archive := range archives {
		i, archive := i, archive
		g.Go(func() error {
			u, err := common.CDNIndexURL(o.cdnURL, archive)
			if err != nil {
				return err
			}
			r, err := o.data.Get(gctx, u)
			if err != nil {
				return err
			}
			defer r.Close()
			files[i], err = common.ParseCDNIndex(i, archive, r, opts.Diagnostics)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, f := range files {
		total += len(f.Entries)
	}
	b := common.NewIndexBuilder(total)
	for _, f := range files {
		for _, e := range f.Entries {
			b.Add(e)
		}
	}
	if n := b.Duplicates(); n > 0 {
		common.Log.Debugf("online index: %d keys present in several archives", n)
	}
	idx := b.Index()
	if snapshot != "" {
		if err := SaveSnapshotFile(snapshot, key, idx); err != nil {
			common.Log.Warnf("saving index snapshot %s: %v", snapshot, err)
		}
	}
	return idx, nil
}

// CDNURL returns the CDN root the storage downloads from.
func (o *Online) CDNURL() string { return o.cdnURL }

// CDNConfig returns the archive list of the build.
func (o *Online) CDNConfig() common.CDNConfig { return o.cdn }

// Version returns the version of the build.
func (o *Online) Version() string { return o.version }

// BuildConfig returns the build configuration fetched from the CDN.
func (o *Online) BuildConfig() common.BuildConfig { return o.build }

// Index returns the merged index of the CDN archives.
func (o *Online) Index() *common.Index { return o.index }

// Locate returns the archive entry of key, or ErrNotFound.
func (o *Online) Locate(key common.Checksum) (common.IndexEntry, error) {
	e, ok := o.index.Find(key)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	return e, nil
}

// Open fetches the encoded bytes of key: a byte range of its archive, or the
// whole loose file when no archive holds it. Loose files need the full key.
func (o *Online) Open(ctx context.Context, key common.Checksum) (*reader.Reader, error) {
	if e, ok := o.index.Find(key); ok {
		ce, ok := e.(common.CDNIndexEntry)
		if !ok {
			return nil, errors.Errorf("key %s: unexpected entry %T", key, e)
		}
		u, err := common.URL(o.cdnURL, common.PathTypeData, ce.ArchiveKey, "")
		if err != nil {
			return nil, err
		}
		return o.data.GetRange(ctx, u, ce.DataOffset, ce.FileSize)
	}
	if key.Len() < common.ContentKeySize {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	u, err := common.URL(o.cdnURL, common.PathTypeData, key, "")
	if err != nil {
		return nil, err
	}
	r, err := o.data.Get(ctx, u)
	if downloader.IsNotFound(err) {
		return nil, errors.Wrapf(ErrNotFound, "key %s: %v", key, err)
	}
	return r, err
}

// Close releases the in-memory config cache.
func (o *Online) Close() error {
	if o.configs != nil {
		o.configs.Close()
	}
	return nil
}
