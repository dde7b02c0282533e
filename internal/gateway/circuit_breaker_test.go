package gateway

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(threshold, cooldown)
	cb.now = clk.now
	return cb, clk
}

func TestCircuitBreaker(t *testing.T) {
	dialErr := errors.New("dial refused")

	t.Run("熔断器状态转换", func(t *testing.T) {
		cb, clk := newTestBreaker(3, time.Second)
		if cb.State() != BreakerClosed {
			t.Fatalf("初始状态应该是closed，实际: %v", cb.State())
		}

		for i := 0; i < 3; i++ {
			_ = cb.Call(func() error { return dialErr })
		}
		if cb.State() != BreakerOpen {
			t.Fatalf("3次失败后应该是open，实际: %v", cb.State())
		}

		called := false
		if err := cb.Call(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("open状态应该返回ErrCircuitOpen，实际: %v", err)
		}
		if called {
			t.Fatal("open状态不应执行拨号")
		}

		clk.advance(time.Second)
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("冷却结束后试探应该放行: %v", err)
		}
		if cb.State() != BreakerClosed {
			t.Fatalf("试探成功应该恢复closed，实际: %v", cb.State())
		}
	})

	t.Run("半开状态失败立即熔断", func(t *testing.T) {
		cb, clk := newTestBreaker(2, time.Second)
		_ = cb.Call(func() error { return dialErr })
		_ = cb.Call(func() error { return dialErr })

		clk.advance(2 * time.Second)
		_ = cb.Call(func() error { return dialErr })
		if cb.State() != BreakerOpen {
			t.Fatalf("试探失败应该回到open，实际: %v", cb.State())
		}
		if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("重新计时期间应该拒绝，实际: %v", err)
		}
		if got := cb.Stats().TripCount; got != 2 {
			t.Errorf("期望熔断2次，实际: %d", got)
		}
	})

	t.Run("半开状态只放行一次试探", func(t *testing.T) {
		cb, clk := newTestBreaker(1, time.Second)
		_ = cb.Call(func() error { return dialErr })
		clk.advance(time.Second)

		err := cb.Call(func() error {
			if inner := cb.Call(func() error { return nil }); !errors.Is(inner, ErrProbeInFlight) {
				t.Errorf("并发试探应该被拒绝，实际: %v", inner)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("试探失败: %v", err)
		}
	})

	t.Run("成功重置失败计数", func(t *testing.T) {
		cb, _ := newTestBreaker(3, time.Second)
		_ = cb.Call(func() error { return dialErr })
		_ = cb.Call(func() error { return dialErr })
		_ = cb.Call(func() error { return nil })
		_ = cb.Call(func() error { return dialErr })
		if cb.State() != BreakerClosed {
			t.Fatalf("非连续失败不应熔断，实际: %v", cb.State())
		}
		if got := cb.Stats().Failures; got != 1 {
			t.Errorf("期望失败计数1，实际: %d", got)
		}
	})

	t.Run("状态变化回调", func(t *testing.T) {
		ch := make(chan [2]BreakerState, 2)
		cb, _ := newTestBreaker(1, time.Second)
		cb.SetStateChangeCallback(func(from, to BreakerState) { ch <- [2]BreakerState{from, to} })

		_ = cb.Call(func() error { return dialErr })
		select {
		case evt := <-ch:
			if evt[0] != BreakerClosed || evt[1] != BreakerOpen {
				t.Errorf("状态转换回调错误: %v -> %v", evt[0], evt[1])
			}
		case <-time.After(time.Second):
			t.Fatal("状态变化回调未触发")
		}

		cb.Reset()
		if cb.State() != BreakerClosed {
			t.Fatalf("Reset后应该是closed")
		}
	})
}
