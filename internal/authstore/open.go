package authstore

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/legalwise/internal/config"
)

// Open returns the store selected by cfg.StateBackend.
func Open(cfg *config.Config, profile string) (Store, error) {
	switch cfg.StateBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisStore(rdb, profile, 0), nil
	case "sqlite", "":
		return OpenSQLite(cfg.StateDSN, profile)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
