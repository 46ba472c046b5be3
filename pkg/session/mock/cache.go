package sessionmock

import (
	"context"
	"sort"
	"sync"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// Cache is an in-memory session.Cache with injectable failures.
type Cache struct {
	mu      sync.Mutex
	Entries map[string][]byte

	keysErr, deleteErr error
}

type CacheOption func(*Cache)

func WithEntries(entries map[string][]byte) CacheOption {
	return func(c *Cache) {
		for k, v := range entries {
			c.Entries[k] = v
		}
	}
}

func WithKeysError(err error) CacheOption {
	return func(c *Cache) {
		c.keysErr = err
	}
}

func WithDeleteError(err error) CacheOption {
	return func(c *Cache) {
		c.deleteErr = err
	}
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{Entries: make(map[string][]byte)}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.Entries[key]
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	return v, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries[key] = value

	return nil
}

func (c *Cache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keysErr != nil {
		return nil, c.keysErr
	}

	keys := make([]string, 0, len(c.Entries))
	for k := range c.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleteErr != nil {
		return c.deleteErr
	}

	for _, k := range keys {
		delete(c.Entries, k)
	}

	return nil
}
