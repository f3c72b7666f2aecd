package database

import (
	"context"
	"time"

	"med-assist-go/internal/config"
	"med-assist-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 在 history.backend=redis 时初始化，否则为 nil。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Infof("Redis client connected successfully, addr: %s", cfg.Addr)
}
