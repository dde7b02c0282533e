package tcpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter 基于Token Bucket的建连速率限流器
type RateLimiter struct {
	limiter       *rate.Limiter
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter 创建速率限流器
// perSec: 每秒允许的新连接数；<=0 表示不限速
// burst: 突发容量（桶的大小），<=0 时取 perSec 的 2 倍
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = int(perSec * 2)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Allow 检查是否允许（非阻塞）
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// Stats 获取统计信息
func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RatePerSecond: float64(l.limiter.Limit()),
		Burst:         l.limiter.Burst(),
		AllowedTotal:  l.allowedCount.Load(),
		RejectedTotal: l.rejectedCount.Load(),
	}
}

// RateLimiterStats 速率限流器统计信息
type RateLimiterStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	RejectedTotal int64   `json:"rejected_total"`
}
