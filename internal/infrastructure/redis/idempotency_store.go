package redisstore

import (
	"context"
	"time"

	"uow-service/internal/application"

	"github.com/redis/go-redis/v9"
)

var _ application.IdempotencyStore = (*Store)(nil)

const DefaultPrefix = "uow:idem:"

// Store reserves batch idempotency keys with SET NX and a TTL.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{Client: client, TTL: ttl, Prefix: DefaultPrefix}
}

func (s *Store) TryReserve(ctx context.Context, key string) (bool, error) {
	return s.Client.SetNX(ctx, s.Prefix+key, time.Now().UTC().Format(time.RFC3339), s.TTL).Result()
}
