package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alihub/ali-intent/internal/config"
)

// RedisStore keeps the serialized state under a per-user key so several
// engine hosts can share one backend.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func stateKey(userID string) string {
	return "ali:intent:" + userID
}

func (r *RedisStore) Load(ctx context.Context, userID string) (*State, error) {
	raw, err := r.rdb.Get(ctx, stateKey(userID)).Result()
	if err == redis.Nil {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	state := &State{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return state, nil
}

func (r *RedisStore) Save(ctx context.Context, state *State) error {
	state.trim()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.rdb.Set(ctx, stateKey(state.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.rdb.Close() }
