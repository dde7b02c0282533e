package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
	"github.com/taoyao-code/flemlink/internal/outbound"
	redisstorage "github.com/taoyao-code/flemlink/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil, nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewStores 按 queue.backend 创建命令队列与结果存储
func NewStores(cfg cfgpkg.QueueConfig, client *redisstorage.Client, logger *zap.Logger) (outbound.Queue, outbound.ResultStore) {
	if cfg.Backend == cfgpkg.BackendRedis && client != nil {
		logger.Info("using redis command queue", zap.String("prefix", cfg.KeyPrefix), zap.Duration("result_ttl", cfg.ResultTTL))
		return redisstorage.NewOutboundQueue(client, cfg.KeyPrefix), redisstorage.NewResultStore(client, cfg.KeyPrefix, cfg.ResultTTL)
	}
	logger.Info("using in-memory command queue", zap.Int("result_limit", cfg.ResultLimit))
	return outbound.NewMemoryQueue(), outbound.NewMemoryResultStore(cfg.ResultLimit)
}
