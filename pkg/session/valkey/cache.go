// Package sessionvalkey keeps the session cache in Valkey, so the identity
// provider's tokens survive restarts of the client.
package sessionvalkey

import (
	"context"
	"fmt"
	"sort"

	"github.com/valkey-io/valkey-go"
)

// Cache implements session.Cache on top of a Valkey client. Every key is
// stored under the configured prefix.
type Cache struct {
	store *store
}

func NewCache(valkeyClient valkey.Client, prefix string) *Cache {
	return &Cache{
		store: newStore(valkeyClient, prefix),
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("getting %s from store: %w", key, err)
	}

	return value, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("setting %s into store: %w", key, err)
	}

	return nil
}

// Keys lists every key under the prefix, sorted.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.store.scan(ctx, "*")
	if err != nil {
		return nil, fmt.Errorf("listing keys from store: %w", err)
	}

	sort.Strings(keys)

	return keys, nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if err := c.store.Destroy(ctx, keys...); err != nil {
		return fmt.Errorf("deleting keys from store: %w", err)
	}

	return nil
}
