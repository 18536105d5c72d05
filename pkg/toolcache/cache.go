// Package toolcache memoizes an MCP aggregate's tool catalogue behind a
// TTL, collapsing concurrent refreshes into a single underlying fetch.
package toolcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mcpflow/pkg/chatmsg"
)

// CatalogueFetcher retrieves the current tool catalogue from the mounted
// MCP servers. cmd/mcpflow supplies one that returns pkg/mcp.Aggregate's
// Catalogue as it stands.
type CatalogueFetcher func(ctx context.Context) ([]chatmsg.ServerTool, error)

// Cache is a TTL-bounded, version-counted memoization of one aggregate's
// catalogue. A monotonic version counter lets callers detect a rebuild
// (via Version) without comparing tool slices.
type Cache struct {
	fetch CatalogueFetcher
	ttl   time.Duration

	mu        sync.Mutex
	tools     []chatmsg.ServerTool
	fetchedAt time.Time
	primed    bool

	version uint64
	group   singleflight.Group
}

// New builds a Cache backed by fetch with the given TTL.
func New(fetch CatalogueFetcher, ttl time.Duration) *Cache {
	return &Cache{fetch: fetch, ttl: ttl}
}

// GetTools returns the cached catalogue, refreshing it first if the TTL has
// elapsed or forceRefresh is set. Concurrent callers that arrive while a
// refresh is already in flight share its result instead of each issuing
// their own fetch.
func (c *Cache) GetTools(ctx context.Context, forceRefresh bool) ([]chatmsg.ServerTool, error) {
	c.mu.Lock()
	stale := forceRefresh || !c.primed || time.Since(c.fetchedAt) > c.ttl
	if !stale {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("catalogue", func() (any, error) {
		// A refresh that finished after the check above already stored a
		// fresh catalogue; reuse it rather than fetching again.
		if !forceRefresh {
			c.mu.Lock()
			if c.primed && time.Since(c.fetchedAt) <= c.ttl {
				tools := c.tools
				c.mu.Unlock()
				return tools, nil
			}
			c.mu.Unlock()
		}

		tools, err := c.fetch(ctx)
		if err != nil {
			return nil, chatmsg.TransportError("fetch tool catalogue", err)
		}

		c.mu.Lock()
		c.tools = tools
		c.fetchedAt = time.Now()
		c.primed = true
		c.mu.Unlock()
		atomic.AddUint64(&c.version, 1)

		return tools, nil
	})
	if err != nil {
		// A transport failure leaves previously stored state and version
		// untouched (§4.1, §7 TransportError) — the singleflight call
		// above never reached the lock-and-store section on error.
		return nil, err
	}
	return v.([]chatmsg.ServerTool), nil
}

// Invalidate forces the next GetTools call to refresh regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primed = false
}

// Prime seeds the cache directly, bypassing fetch — used in tests and at
// startup once the initial catalogue is already in hand.
func (c *Cache) Prime(tools []chatmsg.ServerTool) {
	c.mu.Lock()
	c.tools = tools
	c.fetchedAt = time.Now()
	c.primed = true
	c.mu.Unlock()
	atomic.AddUint64(&c.version, 1)
}

// Version returns the monotonic counter, incremented once per successful
// refresh (including Prime). Callers use it to detect whether a catalogue
// a prior step observed is still current.
func (c *Cache) Version() uint64 {
	return atomic.LoadUint64(&c.version)
}
