// Package downloader fetches CDN and patch server resources, optionally
// through disk and memory caches.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

// Getter fetches the resource at a URL.
type Getter interface {
	Get(ctx context.Context, rawurl string) (*reader.Reader, error)
}

// RangeGetter fetches n bytes of a resource starting at off.
type RangeGetter interface {
	Getter
	GetRange(ctx context.Context, rawurl string, off, n int64) (*reader.Reader, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s failed (%d)", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// HTTP is a simple wrapper that makes http.Client implement RangeGetter.
// Returned readers are forward-only streams over the response body.
type HTTP struct{ Client *http.Client }

func (d HTTP) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d HTTP) do(ctx context.Context, rawurl string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	common.Log.Debugf("GET %s %s", rawurl, header.Get("Range"))
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, errors.WithStack(&StatusError{URL: rawurl, StatusCode: resp.StatusCode})
	}
	return resp, nil
}

// Get downloads the file located at rawurl.
func (d HTTP) Get(ctx context.Context, rawurl string) (*reader.Reader, error) {
	resp, err := d.do(ctx, rawurl, nil)
	if err != nil {
		return nil, err
	}
	return reader.NewStream(resp.Body, resp.ContentLength), nil
}

// GetRange downloads n bytes of rawurl starting at off. Servers ignoring the
// Range header are handled by discarding the bytes before off.
func (d HTTP) GetRange(ctx context.Context, rawurl string, off, n int64) (*reader.Reader, error) {
	if off < 0 || n <= 0 {
		return nil, errors.Wrapf(reader.ErrIllegalArgument, "range %d+%d", off, n)
	}
	h := http.Header{}
	h.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))
	resp, err := d.do(ctx, rawurl, h)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPartialContent {
		return reader.NewStream(resp.Body, n), nil
	}
	if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
		resp.Body.Close()
		return nil, errors.Wrapf(err, "skip to %d in %s", off, rawurl)
	}
	return reader.NewStream(limitedBody{io.LimitReader(resp.Body, n), resp.Body}, n), nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
