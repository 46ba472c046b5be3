package sessionmsal

import (
	"context"
	"errors"
	"fmt"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

const defaultPartitionKey = "default"

// tokenCache persists the serialized MSAL token cache in a session.Cache.
type tokenCache struct {
	cache     session.Cache
	namespace string
}

var _ cache.ExportReplace = (*tokenCache)(nil)

func newTokenCache(c session.Cache, namespace string) *tokenCache {
	return &tokenCache{cache: c, namespace: namespace}
}

func (t *tokenCache) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	data, err := t.cache.Get(ctx, t.key(hints.PartitionKey))
	if errors.Is(err, serviceerr.ErrNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("loading token cache: %w", err)
	}

	if err := u.Unmarshal(data); err != nil {
		return fmt.Errorf("unmarshaling token cache: %w", err)
	}

	return nil
}

func (t *tokenCache) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling token cache: %w", err)
	}

	if err := t.cache.Set(ctx, t.key(hints.PartitionKey), data); err != nil {
		return fmt.Errorf("storing token cache: %w", err)
	}

	return nil
}

func (t *tokenCache) key(partition string) string {
	if partition == "" {
		partition = defaultPartitionKey
	}

	return t.namespace + ":cache:" + partition
}
