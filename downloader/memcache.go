package downloader

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/jybp/wowcasc/reader"
	"github.com/pkg/errors"
)

// MemCache keeps small resources in memory in front of a Getter.
type MemCache struct {
	getter  Getter
	maxBlob int64
	c       *ristretto.Cache
}

// MemCacheConfig configures a MemCache.
type MemCacheConfig struct {
	MaxCost int64 // total bytes kept, default 64 MiB
	MaxBlob int64 // larger resources are not kept, default 4 MiB
}

func (c MemCacheConfig) maxCost() int64 {
	if c.MaxCost <= 0 {
		return 64 << 20
	}
	return c.MaxCost
}

func (c MemCacheConfig) maxBlob() int64 {
	if c.MaxBlob <= 0 {
		return 4 << 20
	}
	return c.MaxBlob
}

// NewMemCache returns a MemCache in front of g.
func NewMemCache(g Getter, cfg MemCacheConfig) (*MemCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     cfg.maxCost(),
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemCache{getter: g, maxBlob: cfg.maxBlob(), c: c}, nil
}

// Get returns rawurl from memory or from the wrapped Getter.
// The returned reader is random-access.
func (m *MemCache) Get(ctx context.Context, rawurl string) (*reader.Reader, error) {
	if v, ok := m.c.Get(rawurl); ok {
		if b, ok := v.([]byte); ok {
			return reader.NewBuffer(b), nil
		}
		m.c.Del(rawurl)
	}
	r, err := m.getter.Get(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := r.ReadRemaining()
	if err != nil {
		return nil, errors.Wrap(err, rawurl)
	}
	if int64(len(b)) <= m.maxBlob {
		m.c.Set(rawurl, b, int64(len(b)))
		m.c.Wait()
	}
	return reader.NewBuffer(b), nil
}

// Close releases the cache.
func (m *MemCache) Close() {
	m.c.Close()
}
