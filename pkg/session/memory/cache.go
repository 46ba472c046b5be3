// Package sessionmemory keeps the session cache in process memory. Entries are
// lost when the process exits.
package sessionmemory

import (
	"context"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// Cache implements session.Cache on top of go-cache. Entries never expire on
// their own; the session manager purges them.
type Cache struct {
	entries *gocache.Cache
}

func NewCache() *Cache {
	return &Cache{
		entries: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	value, ok := v.([]byte)
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	return value, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	c.entries.Set(key, append([]byte(nil), value...), gocache.NoExpiration)
	return nil
}

func (c *Cache) Keys(_ context.Context) ([]string, error) {
	items := c.entries.Items()

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.entries.Delete(k)
	}

	return nil
}
