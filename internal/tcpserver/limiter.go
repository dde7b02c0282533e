package tcpserver

import "sync/atomic"

// defaultMaxConnections 模拟器默认同时服务的设备会话数
const defaultMaxConnections = 16

// ConnectionLimiter 并发会话上限。
// 每个连接独占一个设备侧会话，accept 时非阻塞占用许可，ConnHandler 返回后释放。
type ConnectionLimiter struct {
	sem      chan struct{}
	maxConn  int
	active   atomic.Int64
	peak     atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter 创建连接限流器，maxConn<=0 时使用默认值
func NewConnectionLimiter(maxConn int) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = defaultMaxConnections
	}
	return &ConnectionLimiter{
		sem:     make(chan struct{}, maxConn),
		maxConn: maxConn,
	}
}

// TryAcquire 占用一个许可；已满时记一次拒绝并返回 false
func (l *ConnectionLimiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		n := l.active.Add(1)
		for {
			p := l.peak.Load()
			if n <= p || l.peak.CompareAndSwap(p, n) {
				break
			}
		}
		return true
	default:
		l.rejected.Add(1)
		return false
	}
}

// Release 归还许可，多余的调用被忽略
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

// Current 当前活跃会话数
func (l *ConnectionLimiter) Current() int {
	return int(l.active.Load())
}

// Stats 获取统计信息
func (l *ConnectionLimiter) Stats() LimiterStats {
	cur := l.Current()
	return LimiterStats{
		MaxConnections:    l.maxConn,
		ActiveConnections: cur,
		PeakConnections:   int(l.peak.Load()),
		RejectedTotal:     l.rejected.Load(),
		Utilization:       float64(cur) / float64(l.maxConn),
	}
}

// LimiterStats 限流器统计信息
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	PeakConnections   int     `json:"peak_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"` // 0.0 - 1.0
}
