package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"relay/internal/cache"
	"relay/internal/tools"
)

const (
	cacheKeyPrefix = "mcp_tools"

	// DefaultCatalogTTL is how long a cached per-server catalog stays
	// live.
	DefaultCatalogTTL = 5 * time.Minute

	// DefaultAggregateTTL is how long the all-connections catalog stays
	// live. The aggregate is fetched once per session, so it tolerates
	// a much longer horizon than a single server's listing.
	DefaultAggregateTTL = 24 * time.Hour

	// maxListPages caps cursor pagination so a misbehaving server
	// cannot loop the catalog fetch forever.
	maxListPages = 1000
)

// Options configures a Client.
type Options struct {
	Connections map[string]Connection
	// Cache is optional; without one every catalog request fetches live.
	Cache cache.Cache
	// CatalogTTL defaults to DefaultCatalogTTL.
	CatalogTTL time.Duration
	// AggregateTTL defaults to DefaultAggregateTTL.
	AggregateTTL time.Duration
	// Dialer defaults to OpenSession.
	Dialer Dialer
	Logger zerolog.Logger
}

// Client manages named connections to tool servers and materializes
// their tool catalogs, optionally through a cache.
type Client struct {
	connections  map[string]Connection
	cache        cache.Cache
	ttl          time.Duration
	aggregateTTL time.Duration
	dial         Dialer
	log          zerolog.Logger
}

// NewClient validates the connection set and builds a client.
func NewClient(opts Options) (*Client, error) {
	connections := make(map[string]Connection, len(opts.Connections))
	for name, conn := range opts.Connections {
		if err := conn.Validate(); err != nil {
			return nil, fmt.Errorf("connection %q: %w", name, err)
		}
		connections[name] = conn
	}

	ttl := opts.CatalogTTL
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	aggregateTTL := opts.AggregateTTL
	if aggregateTTL <= 0 {
		aggregateTTL = DefaultAggregateTTL
	}
	dial := opts.Dialer
	if dial == nil {
		dial = OpenSession
	}

	return &Client{
		connections:  connections,
		cache:        opts.Cache,
		ttl:          ttl,
		aggregateTTL: aggregateTTL,
		dial:         dial,
		log:          opts.Logger,
	}, nil
}

// ConnectionNames returns the configured server names in sorted order.
func (c *Client) ConnectionNames() []string {
	names := make([]string, 0, len(c.connections))
	for name := range c.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTools returns the tool catalog for one named server, or for every
// configured server when serverName is empty. With a cache configured,
// a live cached catalog is rebound to its connections instead of
// refetched; a fetch writes the raw descriptors back under the same
// key. A fetch failure on any connection fails the whole call.
func (c *Client) GetTools(ctx context.Context, serverName string) ([]tools.Tool, error) {
	var cacheKey string
	ttl := c.ttl
	toFetch := map[string]Connection{}

	if serverName != "" {
		conn, ok := c.connections[serverName]
		if !ok {
			return nil, fmt.Errorf("connection %q not found in client configuration", serverName)
		}
		cacheKey = fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, serverName, ConnectionHash(conn))
		toFetch[serverName] = conn
	} else {
		cacheKey = fmt.Sprintf("%s:all_connections:%s", cacheKeyPrefix, ConnectionsHash(c.connections))
		ttl = c.aggregateTTL
		for name, conn := range c.connections {
			toFetch[name] = conn
		}
	}

	if c.cache != nil {
		if cached, ok := c.readCache(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	byConnection, err := c.fetchAll(ctx, toFetch)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.writeCache(ctx, cacheKey, byConnection, ttl)
	}

	return c.bindAll(byConnection), nil
}

// readCache loads and rebinds a cached catalog. Any failure is logged
// and treated as a miss; a stale cache entry is deleted so the next
// write starts clean.
func (c *Client) readCache(ctx context.Context, key string) ([]tools.Tool, bool) {
	value, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		return nil, false
	}
	if !ok {
		c.log.Debug().Str("key", key).Msg("catalog cache miss")
		return nil, false
	}

	byConnection := map[string][]descriptor{}
	if err := json.Unmarshal([]byte(value), &byConnection); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("cached catalog undecodable, refetching")
		if derr := c.cache.Delete(ctx, key); derr != nil {
			c.log.Warn().Err(derr).Str("key", key).Msg("cached catalog delete failed")
		}
		return nil, false
	}

	bound := c.bindAll(byConnection)
	c.log.Info().Str("key", key).Int("tools", len(bound)).Msg("catalog served from cache")
	return bound, true
}

func (c *Client) writeCache(ctx context.Context, key string, byConnection map[string][]descriptor, ttl time.Duration) {
	value, err := json.Marshal(byConnection)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("catalog serialization failed")
		return
	}
	if err := c.cache.Set(ctx, key, string(value), ttl); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("catalog cache write failed")
		return
	}
	c.log.Info().Str("key", key).Msg("catalog cached")
}

// bindAll rebuilds invocable tools from raw descriptors. Descriptors
// for connections no longer configured are skipped with a warning.
func (c *Client) bindAll(byConnection map[string][]descriptor) []tools.Tool {
	names := make([]string, 0, len(byConnection))
	for name := range byConnection {
		names = append(names, name)
	}
	sort.Strings(names)

	var bound []tools.Tool
	for _, connName := range names {
		conn, ok := c.connections[connName]
		if !ok {
			c.log.Warn().Str("connection", connName).Msg("cached tools reference unknown connection, skipping")
			continue
		}
		for _, desc := range byConnection[connName] {
			bound = append(bound, bindTool(desc, conn, c.dial, c.log))
		}
	}
	return bound
}

type fetchResult struct {
	name        string
	descriptors []descriptor
}

// fetchAll fans out one concurrent fetch per connection and joins the
// results. The first failure cancels the remaining fetches and
// propagates; a partial catalog is never returned.
func (c *Client) fetchAll(ctx context.Context, connections map[string]Connection) (map[string][]descriptor, error) {
	p := pool.NewWithResults[fetchResult]().WithContext(ctx).WithCancelOnError()
	for name, conn := range connections {
		name, conn := name, conn
		p.Go(func(ctx context.Context) (fetchResult, error) {
			descriptors, err := c.fetchConnection(ctx, name, conn)
			if err != nil {
				return fetchResult{}, fmt.Errorf("fetch tools from %q: %w", name, err)
			}
			return fetchResult{name: name, descriptors: descriptors}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	byConnection := make(map[string][]descriptor, len(results))
	for _, res := range results {
		byConnection[res.name] = res.descriptors
	}
	return byConnection, nil
}

// fetchConnection opens one session and lists every tool page.
func (c *Client) fetchConnection(ctx context.Context, name string, conn Connection) ([]descriptor, error) {
	sessionCtx, cancel := context.WithTimeout(ctx, conn.sessionTimeout())
	defer cancel()

	session, err := c.dial(sessionCtx, conn)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.log.Debug().Err(cerr).Str("connection", name).Msg("session close failed")
		}
	}()

	if err := session.Initialize(sessionCtx); err != nil {
		return nil, err
	}

	remote, err := listAllTools(sessionCtx, session)
	if err != nil {
		return nil, err
	}

	descriptors := make([]descriptor, 0, len(remote))
	for _, tool := range remote {
		descriptors = append(descriptors, toDescriptor(tool))
	}
	c.log.Info().Str("connection", name).Int("tools", len(descriptors)).Msg("fetched tool catalog")
	return descriptors, nil
}

// listAllTools walks cursor pagination to exhaustion, bounded by
// maxListPages.
func listAllTools(ctx context.Context, session Session) ([]mcpproto.Tool, error) {
	var all []mcpproto.Tool
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxListPages {
			return nil, fmt.Errorf("tool listing exceeded %d pages", maxListPages)
		}
		tools, next, err := session.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, tools...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
