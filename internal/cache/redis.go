package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin byte-level cache used as a read-through in front of the
// rounds and market tables. A nil *Store is a no-op cache.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(opt *redis.Options, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{Client: redis.NewClient(opt), TTL: ttl}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.Client == nil {
		return nil, false, nil
	}
	b, err := s.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Set(ctx, key, value, s.TTL).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Del(ctx, key).Err()
}

func (s *Store) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}
