package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// RedisCache encapsula o cache de odds correntes no Redis.
// Atende apenas o read path HTTP; o placement sempre lê o Postgres
// dentro da própria transação.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisCache cria uma instância de cache Redis com TTL configurável
func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// key gera a chave Redis para as odds atuais de uma partida
func key(matchID string) string { return "odds:match:" + matchID }

// SetCurrent armazena a atualização mais recente da partida com TTL definido
func (r *RedisCache) SetCurrent(ctx context.Context, e events.FixtureUpdate) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key(e.MatchID), b, r.TTL).Err()
}

// GetCurrent busca a atualização cacheada; ok=false em cache miss
func (r *RedisCache) GetCurrent(ctx context.Context, matchID string) (events.FixtureUpdate, bool, error) {
	var e events.FixtureUpdate
	b, err := r.Client.Get(ctx, key(matchID)).Bytes()
	if err == redis.Nil {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	return e, true, json.Unmarshal(b, &e)
}
