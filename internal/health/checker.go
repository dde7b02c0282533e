package health

import (
	"context"
	"time"
)

// Status 组件健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"   // 链路已连接 / Redis 可用
	StatusDegraded  Status = "degraded"  // 重连中或连接池吃紧，命令仍可入队
	StatusUnhealthy Status = "unhealthy" // 熔断打开或 Redis 不可达
)

// 组件名，即 /health 报告中 checks 的键
const (
	ComponentLink  = "link"
	ComponentRedis = "redis"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worse 返回两者中更差的状态；未知状态按 Unhealthy 处理
func (s Status) Worse(o Status) Status {
	if o.severity() > s.severity() {
		return o
	}
	return s
}

// CheckResult 单个组件的检查结果
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// Checker 组件检查器；Check 不应阻塞超过 ctx
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
