package dlock

import (
	"github.com/medimarket/platform/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the optional redis client and account locker. Both are
// nil when REDIS_ADDR is unset; consumers must tolerate that.
var Module = fx.Module("dlock",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)

func NewClient(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("redis account locking enabled", zap.String("addr", cfg.RedisAddr))
	return client
}
