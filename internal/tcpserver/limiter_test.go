package tcpserver

import (
	"testing"
	"time"
)

func TestConnectionLimiter(t *testing.T) {
	t.Run("基本限流功能", func(t *testing.T) {
		limiter := NewConnectionLimiter(3)

		for i := 0; i < 3; i++ {
			if !limiter.TryAcquire() {
				t.Fatalf("第%d次获取失败", i+1)
			}
		}

		// 第4次应该失败
		if limiter.TryAcquire() {
			t.Fatal("第4次获取应该失败")
		}

		// 释放一个后再次获取应该成功
		limiter.Release()
		if !limiter.TryAcquire() {
			t.Fatal("释放后获取失败")
		}
		if got := limiter.Stats().RejectedTotal; got != 1 {
			t.Errorf("期望拒绝1次，实际: %d", got)
		}
	})

	t.Run("统计功能", func(t *testing.T) {
		limiter := NewConnectionLimiter(10)

		for i := 0; i < 5; i++ {
			limiter.TryAcquire()
		}
		limiter.Release()
		limiter.Release()

		stats := limiter.Stats()
		if stats.ActiveConnections != 3 {
			t.Errorf("期望3个活跃连接，实际: %d", stats.ActiveConnections)
		}
		if stats.PeakConnections != 5 {
			t.Errorf("期望峰值5，实际: %d", stats.PeakConnections)
		}
		if stats.MaxConnections != 10 {
			t.Errorf("期望最大10个连接，实际: %d", stats.MaxConnections)
		}
		if stats.Utilization != 0.3 {
			t.Errorf("期望利用率0.3，实际: %.2f", stats.Utilization)
		}
	})

	t.Run("默认上限", func(t *testing.T) {
		if got := NewConnectionLimiter(0).Stats().MaxConnections; got != defaultMaxConnections {
			t.Errorf("期望默认上限%d，实际: %d", defaultMaxConnections, got)
		}
	})

	t.Run("多余的释放不影响计数", func(t *testing.T) {
		limiter := NewConnectionLimiter(2)
		limiter.Release()
		if limiter.Current() != 0 {
			t.Errorf("期望0个活跃连接，实际: %d", limiter.Current())
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("速率限流", func(t *testing.T) {
		limiter := NewRateLimiter(10, 20) // 每秒10个，突发20个

		for i := 0; i < 20; i++ {
			if !limiter.Allow() {
				t.Fatalf("突发第%d个请求被拒绝", i+1)
			}
		}

		// 第21个应该被拒绝
		if limiter.Allow() {
			t.Fatal("第21个请求应该被拒绝")
		}

		// 等待后应能补充至少1个token
		time.Sleep(150 * time.Millisecond)
		if !limiter.Allow() {
			t.Fatal("等待后的请求应该成功")
		}

		stats := limiter.Stats()
		if stats.AllowedTotal != 21 || stats.RejectedTotal != 1 {
			t.Errorf("统计不符: %+v", stats)
		}
	})

	t.Run("不限速", func(t *testing.T) {
		limiter := NewRateLimiter(0, 0)
		for i := 0; i < 1000; i++ {
			if !limiter.Allow() {
				t.Fatalf("第%d个请求被拒绝", i+1)
			}
		}
	})
}
