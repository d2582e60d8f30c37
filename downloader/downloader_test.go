package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "0123456789abcdefghijklmnopqrstuvwxyz"

type server struct {
	*httptest.Server
	hits  int32
	paths sync.Map
}

// newServer serves payload on every path except /missing.
// ranges tells whether Range headers are honoured.
func newServer(t *testing.T, ranges bool) *server {
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		s.paths.Store(r.URL.Path, true)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if ranges && r.Header.Get("Range") != "" {
			http.ServeContent(w, r, "payload", time.Time{}, strings.NewReader(payload))
			return
		}
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *server) count() int { return int(atomic.LoadInt32(&s.hits)) }

func TestHTTPGet(t *testing.T) {
	s := newServer(t, false)
	r, err := HTTP{}.Get(context.Background(), s.URL+"/data/ab/cd/abcd")
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.Seekable())
	assert.Equal(t, int64(len(payload)), r.Size())
	b, err := r.ReadRemaining()
	require.NoError(t, err)
	assert.Equal(t, payload, string(b))
}

func TestHTTPStatusError(t *testing.T) {
	s := newServer(t, false)
	_, err := HTTP{}.Get(context.Background(), s.URL+"/missing")
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.True(t, IsNotFound(err))
}

func TestHTTPGetRange(t *testing.T) {
	for _, ranges := range []bool{true, false} {
		s := newServer(t, ranges)
		r, err := HTTP{}.GetRange(context.Background(), s.URL+"/archive", 10, 5)
		require.NoError(t, err)
		b, err := r.ReadRemaining()
		require.NoError(t, err)
		assert.Equal(t, "abcde", string(b), "ranges honoured: %v", ranges)
		r.Close()
	}
	_, err := HTTP{}.GetRange(context.Background(), "http://unused", 0, 0)
	assert.Error(t, err)
}

func TestFileCachePath(t *testing.T) {
	c := &FileCache{Dir: "/cache", Version: "1.2.3.45", Root: "http://cdn.example.com/tpr/wow"}
	p, err := c.Path("http://cdn.example.com/tpr/wow/data/ab/cd/abcd.index")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/cache/v1_2_3_45/data/ab/cd/abcd.index"), p)

	p, err = c.Path("http://other.example.com/tpr/wow/config/ab/cd/abcd")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/cache/v1_2_3_45/other.example.com/tpr/wow/config/ab/cd/abcd"), p)

	p, err = c.Path("http://cdn.example.com/tpr/wow/../../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, filepath.FromSlash("/cache/v1_2_3_45/")), p)
}

func TestFileCache(t *testing.T) {
	s := newServer(t, true)
	dir := t.TempDir()
	c := &FileCache{Getter: HTTP{}, Dir: dir, Version: "9.0.1", Root: s.URL}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, err := c.Get(ctx, s.URL+"/data/00/11/0011.index")
		require.NoError(t, err)
		assert.True(t, r.Seekable())
		b, err := r.ReadRemaining()
		require.NoError(t, err)
		assert.Equal(t, payload, string(b))
		r.Close()
	}
	assert.Equal(t, 1, s.count(), "second request served from disk")
	_, err := os.Stat(filepath.Join(dir, "v9_0_1", "data", "00", "11", "0011.index"))
	assert.NoError(t, err)

	r, err := c.GetRange(ctx, s.URL+"/data/00/11/0011", 1, 3)
	require.NoError(t, err)
	b, err := r.ReadRemaining()
	require.NoError(t, err)
	assert.Equal(t, "123", string(b))
	r.Close()
	_, err = c.GetRange(ctx, s.URL+"/data/00/11/0011", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, s.count())

	_, err = c.Get(ctx, s.URL+"/missing")
	assert.True(t, IsNotFound(err))
	entries, err := os.ReadDir(filepath.Join(dir, "v9_0_1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed downloads leave nothing behind")
}

func TestFileCacheConcurrent(t *testing.T) {
	s := newServer(t, false)
	c := &FileCache{Getter: HTTP{}, Dir: t.TempDir(), Root: s.URL}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Get(context.Background(), s.URL+"/config/aa/bb/aabb")
			if assert.NoError(t, err) {
				b, _ := r.ReadRemaining()
				assert.Equal(t, payload, string(b))
				r.Close()
			}
		}()
	}
	wg.Wait()
	assert.True(t, s.count() <= 8)
	_, err := os.Stat(filepath.Join(c.Dir, "v", "config", "aa", "bb", "aabb"))
	assert.NoError(t, err)
}

// gatedGetter blocks every Get until release is closed.
type gatedGetter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   int32
}

func (g *gatedGetter) Get(ctx context.Context, rawurl string) (*reader.Reader, error) {
	atomic.AddInt32(&g.calls, 1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reader.NewBuffer([]byte(payload)), nil
}

func TestFileCacheCancelledCaller(t *testing.T) {
	g := &gatedGetter{started: make(chan struct{}), release: make(chan struct{})}
	c := &FileCache{Getter: g, Dir: t.TempDir(), Root: "http://cdn.example.com"}
	rawurl := "http://cdn.example.com/data/aa/bb/aabb"

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, rawurl)
		errc <- err
	}()
	<-g.started
	cancel()
	assert.True(t, errors.Is(<-errc, context.Canceled))

	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := c.Get(context.Background(), rawurl)
		if assert.NoError(t, err) {
			b, _ := r.ReadRemaining()
			assert.Equal(t, payload, string(b))
			r.Close()
		}
	}()
	close(g.release)
	<-done
	assert.Equal(t, int32(1), atomic.LoadInt32(&g.calls), "download outlives the cancelled caller")
}

func TestFileCacheUnwritable(t *testing.T) {
	s := newServer(t, false)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	c := &FileCache{Getter: HTTP{}, Dir: file, Root: s.URL}
	_, err := c.Get(context.Background(), s.URL+"/config/aa/bb/aabb")
	assert.Error(t, err)
}

func TestMemCache(t *testing.T) {
	s := newServer(t, false)
	m, err := NewMemCache(HTTP{}, MemCacheConfig{MaxBlob: 1024})
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 3; i++ {
		r, err := m.Get(context.Background(), s.URL+"/config/aa/bb/aabb")
		require.NoError(t, err)
		assert.True(t, r.Seekable())
		b, err := r.ReadRemaining()
		require.NoError(t, err)
		assert.Equal(t, payload, string(b))
	}
	assert.Equal(t, 1, s.count())

	_, err = m.Get(context.Background(), s.URL+"/missing")
	assert.True(t, IsNotFound(err))
}

func TestMemCacheSkipsLargeBlobs(t *testing.T) {
	s := newServer(t, false)
	m, err := NewMemCache(HTTP{}, MemCacheConfig{MaxBlob: 4})
	require.NoError(t, err)
	defer m.Close()
	for i := 0; i < 2; i++ {
		_, err := m.Get(context.Background(), s.URL+"/data/big")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.count())
}

func TestCachingClient(t *testing.T) {
	s := newServer(t, false)
	d := HTTP{Client: NewCachingClient(t.TempDir(), nil)}
	for i := 0; i < 2; i++ {
		r, err := d.Get(context.Background(), s.URL+"/wow/versions")
		require.NoError(t, err)
		b, err := r.ReadRemaining()
		require.NoError(t, err)
		assert.Equal(t, payload, string(b))
		r.Close()
	}
	assert.Equal(t, 1, s.count())
}
