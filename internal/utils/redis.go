package utils

import (
	"net"

	"github.com/redis/go-redis/v9"

	"whoami-api/internal/config"
	"whoami-api/internal/logger"
)

// OpenRedis：按配置创建 Redis 客户端；未启用时返回 nil，调用方据此跳过缓存与分布式限流
func OpenRedis(c config.Config) *redis.Client {
	if !c.RedisEnable {
		return nil
	}
	addr := net.JoinHostPort(c.RedisHost, c.RedisPort)
	logger.L().Debug("redis_env", "addr", addr, "db", c.RedisDB)
	return redis.NewClient(&redis.Options{Addr: addr, Password: c.RedisPass, DB: c.RedisDB})
}
