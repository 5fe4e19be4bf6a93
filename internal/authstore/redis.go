package authstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "legalwise:auth:"

// RedisStore keeps the state as one JSON value per profile.
type RedisStore struct {
	rdb     *redis.Client
	key     string
	expires time.Duration
}

// NewRedisStore stores under legalwise:auth:{profile}. A zero ttl keeps the value forever.
func NewRedisStore(rdb *redis.Client, profile string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, key: redisKeyPrefix + profileName(profile), expires: ttl}
}

func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode saved state: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *State) error {
	if !st.LoggedIn() {
		return errors.New("save state: empty api key")
	}
	cp := *st
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now()
	}
	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, s.expires).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
