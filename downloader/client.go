package downloader

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingClient returns an http.Client honouring HTTP caching headers,
// storing responses under dir. An empty dir keeps them in memory and a nil
// base uses http.DefaultTransport.
// It suits the patch server tables, which are small and revalidated.
func NewCachingClient(dir string, base http.RoundTripper) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if dir != "" {
		cache = diskcache.New(dir)
	}
	t := httpcache.NewTransport(cache)
	t.Transport = base
	return &http.Client{Transport: t}
}
