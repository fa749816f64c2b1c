package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/ecolage/core"
)

const keyPrefix = "ecolage:idempotency:"

// Store reserves idempotency keys of mutating requests.
type Store interface {
	// Reserve returns false when key was already reserved and has not expired.
	Reserve(ctx context.Context, key string) (bool, error)
	// Release frees key so that a failed request can be retried.
	Release(ctx context.Context, key string) error
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*redisStore)(nil)

// NewRedisStore connects to conf.Redis.URL, eg. redis://localhost:6379/0.
func NewRedisStore(conf *core.Config) (*redisStore, error) {
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return NewRedisStoreWithClient(client, conf.Redis.IdempotencyTTL), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *redisStore {
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "reserving idempotency key")
	}
	return ok, nil
}

func (s *redisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return errors.Wrap(err, "releasing idempotency key")
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

type memoryStore struct {
	mu        sync.Mutex
	keys      map[string]time.Time // {key: expiry}
	ttl       time.Duration
	nextSweep time.Time
	now       func() time.Time
}

var _ Store = (*memoryStore)(nil)

// NewMemoryStore is used when no redis URL is configured, and in tests.
func NewMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{keys: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (s *memoryStore) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(s.nextSweep) {
		s.sweep(now)
	}
	if expiry, ok := s.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.keys[key] = now.Add(s.ttl)
	return true, nil
}

// sweep drops expired keys; it runs at most once per ttl.
func (s *memoryStore) sweep(now time.Time) {
	for key, expiry := range s.keys {
		if !now.Before(expiry) {
			delete(s.keys, key)
		}
	}
	s.nextSweep = now.Add(s.ttl)
}

func (s *memoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// New returns a redis store when conf.Redis.URL is set, and an in-memory store otherwise.
func New(conf *core.Config) (Store, error) {
	if conf.Redis.URL == "" {
		return NewMemoryStore(conf.Redis.IdempotencyTTL), nil
	}
	return NewRedisStore(conf)
}
