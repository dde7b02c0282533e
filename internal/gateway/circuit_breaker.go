package gateway

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常拨号
	BreakerOpen                         // 冷却期内拒绝拨号
	BreakerHalfOpen                     // 冷却结束，允许一次试探拨号
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断器打开，拒绝拨号
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrProbeInFlight 半开状态已有试探拨号在进行
	ErrProbeInFlight = errors.New("half-open probe in flight")
)

// CircuitBreaker 链路重连熔断器：连续失败达到阈值后停止拨号，
// 冷却结束只放行一次试探，成功即恢复，失败重新计时。
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	probing      bool
	lastFailTime time.Time
	lastChange   time.Time
	tripCount    int64

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold:  threshold,
		cooldown:   cooldown,
		now:        time.Now,
		lastChange: time.Now(),
	}
}

// Call 在熔断器保护下执行 fn
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.lastFailTime) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.transitionTo(BreakerHalfOpen)
		cb.probing = true
		return nil
	case BreakerHalfOpen:
		if cb.probing {
			return ErrProbeInFlight
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	if err == nil {
		cb.failures = 0
		cb.transitionTo(BreakerClosed)
		return
	}

	cb.failures++
	cb.lastFailTime = cb.now()
	if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
		if cb.state != BreakerOpen {
			cb.tripCount++
		}
		cb.transitionTo(BreakerOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(s BreakerState) {
	if cb.state == s {
		return
	}
	from := cb.state
	cb.state = s
	cb.lastChange = cb.now()
	if cb.onStateChange != nil {
		// 异步回调，避免持锁执行外部代码
		go cb.onStateChange(from, s)
	}
}

// State 当前状态
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// SetStateChangeCallback 设置状态变化回调
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Reset 手动恢复
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(BreakerClosed)
	cb.failures = 0
	cb.probing = false
}

// Stats 统计信息
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:           cb.state.String(),
		Failures:        cb.failures,
		TripCount:       cb.tripCount,
		LastStateChange: cb.lastChange,
	}
}

// BreakerStats 熔断器统计
type BreakerStats struct {
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	TripCount       int64     `json:"trip_count"`
	LastStateChange time.Time `json:"last_state_change"`
}
