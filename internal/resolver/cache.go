package resolver

import (
	"context"
	"net/netip"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type ttlResolver interface {
	LookupIPTTL(ctx context.Context, host string) ([]netip.Addr, time.Duration, error)
}

// Cached remembers successful lookups of another Resolver. Answers carrying a
// TTL are kept for that long, capped at maxTTL; the rest for maxTTL.
type Cached struct {
	next   Resolver
	maxTTL time.Duration
	cache  *gocache.Cache
}

func NewCached(next Resolver, maxTTL time.Duration) *Cached {
	return &Cached{
		next:   next,
		maxTTL: maxTTL,
		cache:  gocache.New(maxTTL, 2*maxTTL),
	}
}

func (c *Cached) LookupIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if v, ok := c.cache.Get(host); ok {
		return v.([]netip.Addr), nil
	}

	var addrs []netip.Addr
	ttl := c.maxTTL
	var err error
	if tr, ok := c.next.(ttlResolver); ok {
		var got time.Duration
		addrs, got, err = tr.LookupIPTTL(ctx, host)
		if got < ttl {
			ttl = got
		}
	} else {
		addrs, err = c.next.LookupIP(ctx, host)
	}
	if err != nil {
		return nil, err
	}

	if ttl > 0 {
		c.cache.Set(host, addrs, ttl)
	}
	return addrs, nil
}

// Len returns the number of cached names, including expired ones not yet
// evicted.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
