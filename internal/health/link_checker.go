package health

import (
	"context"
	"time"

	"github.com/taoyao-code/flemlink/internal/gateway"
)

// LinkStatusProvider 提供链路状态快照（*gateway.Link）
type LinkStatusProvider interface {
	Status() gateway.Status
}

// LinkChecker 设备链路健康检查器
type LinkChecker struct {
	link LinkStatusProvider
}

// NewLinkChecker 创建链路健康检查器
func NewLinkChecker(link LinkStatusProvider) *LinkChecker {
	return &LinkChecker{link: link}
}

// Name 返回检查器名称
func (c *LinkChecker) Name() string {
	return ComponentLink
}

// Check 已连接为健康；断开但仍在重连为降级；熔断打开为不健康
func (c *LinkChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.link.Status()

	status := StatusHealthy
	message := "ok"
	switch {
	case st.Connected:
	case st.Breaker == gateway.BreakerOpen.String():
		status = StatusUnhealthy
		message = "reconnect circuit open"
	default:
		status = StatusDegraded
		message = "link disconnected"
	}

	details := map[string]any{
		"connected":    st.Connected,
		"session":      st.Session,
		"breaker":      st.Breaker,
		"sent":         st.Sent,
		"completed":    st.Completed,
		"failed":       st.Failed,
		"frame_errors": st.FrameErrors,
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
