package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
)

// defaultPingTimeout 未配置 dialTimeout 时的连通性检查超时
const defaultPingTimeout = 5 * time.Second

// Client 命令队列与结果存储共用的 Redis 连接。
// 链路单 goroutine 收发，队列与结果读写都很轻，小连接池即可；
// 所有键位于 queue.keyPrefix 之下，多个 flemd 实例可按前缀共用一个库。
type Client struct {
	*redis.Client
	addr string
}

// NewClient 按配置建立连接池并 ping 一次，失败时关闭连接池
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Client{Client: rdb, addr: cfg.Addr}, nil
}

// Addr 服务端地址
func (c *Client) Addr() string { return c.addr }

// Close 关闭连接池
func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// HealthCheck 供 health.RedisChecker 使用
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stats 连接池统计，利用率过高时健康检查降级
func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}

// DeletePrefix 删除前缀下的全部键（队列与结果），返回删除数量
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	iter := c.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("del %s: %w", iter.Val(), err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %s*: %w", prefix, err)
	}
	return deleted, nil
}
