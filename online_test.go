package casc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jybp/wowcasc/common"
	"github.com/jybp/wowcasc/internal/fixture"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCDN serves a build under /tpr/wow and the patch server tables under /wow.
type testCDN struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func newTestCDN(t *testing.T, b *testBuild) *testCDN {
	c := &testCDN{files: map[string][]byte{}, hits: map[string]int{}}
	put := func(kind string, key []byte, suffix string, body []byte) {
		h := hex.EncodeToString(key)
		c.files[fmt.Sprintf("/tpr/wow/%s/%s/%s/%s%s", kind, h[0:2], h[2:4], h, suffix)] = body
	}
	put("config", b.buildKey, "", b.buildConfig)
	put("config", b.cdnKey, "", b.cdnConfig)
	put("data", b.encEKey, "", b.encoding)

	archive := append([]byte("head:"), b.root...)
	archive = append(archive, b.file...)
	put("data", b.archiveKey, "", archive)
	put("data", b.archiveKey, ".index", fixture.CDNIndex(
		fixture.CDNEntry{Key: b.rootEKey, Size: uint32(len(b.root)), Offset: 5},
		fixture.CDNEntry{Key: b.fileEKey, Size: uint32(len(b.file)), Offset: uint32(5 + len(b.root))},
	))

	c.files["/wow/versions"] = []byte(fmt.Sprintf(`Region!STRING:0|BuildConfig!HEX:16|CDNConfig!HEX:16|KeyRing!HEX:16|BuildId!DEC:4|VersionsName!String:0|ProductConfig!HEX:16
## seqn = 1
us|%x|%x||31650|1.13.2.31650|
`, b.buildKey, b.cdnKey))
	c.files["/wow/cdns"] = []byte(`Name!STRING:0|Path!STRING:0|Hosts!STRING:0|Servers!STRING:0|ConfigPath!STRING:0
## seqn = 1
us|tpr/wow|cdn.example.com|http://cdn.example.com/?maxhosts=4|tpr/configs/data
`)

	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.hits[r.URL.Path]++
		body, ok := c.files[r.URL.Path]
		c.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(body))
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *testCDN) hitsOf(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

func (c *testCDN) options(t *testing.T, b *testBuild) OnlineOptions {
	return OnlineOptions{
		CDNURL:      c.URL + "/tpr/wow",
		BuildConfig: checksum(t, b.buildKey),
		CDNConfig:   checksum(t, b.cdnKey),
		Version:     "1.13.2.31650",
	}
}

// redirect sends every request to target.
type redirect struct{ target *url.URL }

func (rt redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	req.Host = ""
	return http.DefaultTransport.RoundTrip(req)
}

func readAll(t *testing.T, s Storage, key []byte) []byte {
	t.Helper()
	r, err := s.Open(context.Background(), checksum(t, key))
	require.NoError(t, err)
	defer r.Close()
	b, err := r.ReadRemaining()
	require.NoError(t, err)
	return b
}

func TestOpenOnline(t *testing.T) {
	b := newTestBuild()
	cdn := newTestCDN(t, b)
	o, err := OpenOnline(context.Background(), cdn.options(t, b))
	require.NoError(t, err)
	defer o.Close()

	var _ Storage = o
	assert.Equal(t, "1.13.2.31650", o.Version())
	assert.Equal(t, "WOW-31650patch1.13.2_Retail", o.BuildConfig().BuildName)
	require.Len(t, o.CDNConfig().Archives, 1)
	assert.Equal(t, 2, o.Index().Len())

	e, err := o.Locate(checksum(t, b.fileEKey))
	require.NoError(t, err)
	ce, ok := e.(common.CDNIndexEntry)
	require.True(t, ok)
	assert.Equal(t, 0, ce.Archive)
	assert.Equal(t, hex.EncodeToString(b.archiveKey), ce.ArchiveKey.Hex())
	assert.Equal(t, int64(5+len(b.root)), ce.DataOffset)

	assert.Equal(t, b.file, readAll(t, o, b.fileEKey), "archived file")
	assert.Equal(t, b.encoding, readAll(t, o, b.encEKey), "loose file")

	_, err = o.Open(context.Background(), checksum(t, fixture.Key(0x55)))
	assert.True(t, errors.Is(err, ErrNotFound), "%+v", err)
	_, err = o.Open(context.Background(), checksum(t, fixture.Key(0x55)).Trim(common.FileKeySize))
	assert.True(t, errors.Is(err, ErrNotFound), "%+v", err)
}

func TestOpenOnlinePatchServer(t *testing.T) {
	b := newTestBuild()
	cdn := newTestCDN(t, b)
	target, err := url.Parse(cdn.URL)
	require.NoError(t, err)

	o, err := OpenOnline(context.Background(), OnlineOptions{
		Client: &http.Client{Transport: redirect{target}},
	})
	require.NoError(t, err)
	defer o.Close()
	assert.Equal(t, "1.13.2.31650", o.Version())
	assert.Equal(t, "http://cdn.example.com/tpr/wow", o.CDNURL())
	assert.Equal(t, b.file, readAll(t, o, b.fileEKey))

	_, err = OpenOnline(context.Background(), OnlineOptions{
		Region: RegionKR,
		Client: &http.Client{Transport: redirect{target}},
	})
	assert.True(t, errors.Is(err, ErrNotFound), "%+v", err)
}

func TestOpenOnlineCache(t *testing.T) {
	b := newTestBuild()
	cdn := newTestCDN(t, b)
	opts := cdn.options(t, b)
	opts.CacheDir = t.TempDir()

	for i := 0; i < 2; i++ {
		o, err := OpenOnline(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, b.file, readAll(t, o, b.fileEKey))
		assert.Equal(t, b.file, readAll(t, o, b.fileEKey))
		o.Close()
	}

	h := hex.EncodeToString(b.archiveKey)
	archive := fmt.Sprintf("/tpr/wow/data/%s/%s/%s", h[0:2], h[2:4], h)
	assert.Equal(t, 1, cdn.hitsOf(archive+".index"), "index snapshot")
	assert.Equal(t, 1, cdn.hitsOf(archive), "cached range")
	h = hex.EncodeToString(b.buildKey)
	assert.Equal(t, 1, cdn.hitsOf(fmt.Sprintf("/tpr/wow/config/%s/%s/%s", h[0:2], h[2:4], h)))
}

func TestOpenOnlineErrors(t *testing.T) {
	b := newTestBuild()
	cdn := newTestCDN(t, b)

	opts := cdn.options(t, b)
	opts.BuildConfig = checksum(t, fixture.Key(0x42))
	_, err := OpenOnline(context.Background(), opts)
	require.Error(t, err)

	h := hex.EncodeToString(b.archiveKey)
	cdn.mu.Lock()
	cdn.files[fmt.Sprintf("/tpr/wow/data/%s/%s/%s.index", h[0:2], h[2:4], h)] = []byte("garbage")
	cdn.mu.Unlock()
	_, err = OpenOnline(context.Background(), cdn.options(t, b))
	assert.True(t, common.IsParseError(err), "%+v", err)
}
