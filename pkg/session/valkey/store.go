package sessionvalkey

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/session-client/internal/serviceerr"
)

const scanBatchSize = 100

type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *store) Get(ctx context.Context, key string) ([]byte, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(key)).Build()).AsBytes()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return nil, errors.Join(valkeyErr, serviceerr.ErrNotFound)
		}

		return nil, fmt.Errorf("executing get command: %w", err)
	}

	return bytes, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value)).Build()).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) Destroy(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.key(key))
	}

	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(prefixed...).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

// scan lists the unprefixed keys matching the glob pattern.
func (s *store) scan(ctx context.Context, pattern string) ([]string, error) {
	match := s.key(pattern)

	var keys []string
	var cursor uint64
	for {
		scan, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(match).Count(scanBatchSize).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("executing scan command: %w", err)
		}

		cursor = scan.Cursor
		keys = slices.Grow(keys, len(scan.Elements))
		for _, key := range scan.Elements {
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+":")
			}

			keys = append(keys, key)
		}

		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *store) key(key string) string {
	if s.prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", s.prefix, key)
}
