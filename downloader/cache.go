package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// FileCache uses the filesystem as a cache in front of a Getter.
// Files are stored at <Dir>/v<Version>/<path of the URL relative to Root>,
// with the dots of Version replaced by underscores.
type FileCache struct {
	Getter  Getter
	Dir     string
	Version string
	Root    string // CDN root URL, optional

	group singleflight.Group
}

// Path returns the cache path of rawurl.
func (c *FileCache) Path(rawurl string) (string, error) {
	var rel string
	if root := strings.TrimSuffix(c.Root, "/"); root != "" && strings.HasPrefix(rawurl, root+"/") {
		rel = strings.TrimPrefix(rawurl, root+"/")
	} else {
		u, err := url.Parse(rawurl)
		if err != nil {
			return "", errors.WithStack(err)
		}
		rel = u.Hostname() + u.Path
	}
	rel = path.Clean("/" + rel)
	if rel == "/" {
		return "", errors.Errorf("no cache path for %s", rawurl)
	}
	version := "v" + strings.ReplaceAll(c.Version, ".", "_")
	return filepath.Join(c.Dir, version, filepath.FromSlash(rel)), nil
}

// Get returns the cached copy of rawurl, downloading it first if needed.
// The returned reader is random-access.
func (c *FileCache) Get(ctx context.Context, rawurl string) (*reader.Reader, error) {
	p, err := c.Path(rawurl)
	if err != nil {
		return nil, err
	}
	return c.load(ctx, p, func(ctx context.Context) (*reader.Reader, error) {
		return c.Getter.Get(ctx, rawurl)
	})
}

// GetRange is like Get for n bytes of rawurl at off. Ranges are cached as
// separate files. The Getter must be a RangeGetter.
func (c *FileCache) GetRange(ctx context.Context, rawurl string, off, n int64) (*reader.Reader, error) {
	rg, ok := c.Getter.(RangeGetter)
	if !ok {
		return nil, errors.Wrapf(reader.ErrUnsupported, "%T does not fetch ranges", c.Getter)
	}
	p, err := c.Path(rawurl)
	if err != nil {
		return nil, err
	}
	return c.load(ctx, fmt.Sprintf("%s.%d-%d", p, off, n), func(ctx context.Context) (*reader.Reader, error) {
		return rg.GetRange(ctx, rawurl, off, n)
	})
}

// load returns the file at p, calling fetch to fill it when missing.
// Concurrent callers for the same file share one download. The download
// is detached from the caller that started it; every caller stops waiting
// when its own ctx is done.
func (c *FileCache) load(ctx context.Context, p string, fetch func(context.Context) (*reader.Reader, error)) (*reader.Reader, error) {
	if r, err := reader.Open(p); err == nil {
		return r, nil
	} else if !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	fctx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(p, func() (interface{}, error) {
		if _, err := os.Stat(p); err == nil {
			return nil, nil
		}
		r, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return nil, write(p, r)
	})
	select {
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	}
	return reader.Open(p)
}

// write stores r at p through a temporary file renamed into place.
func write(p string, r io.Reader) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create cache directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", p)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return errors.WithStack(err)
	}
	common.Log.Debugf("cached %s (%d bytes)", p, n)
	return nil
}
