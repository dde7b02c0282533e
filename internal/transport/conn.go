package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ConnConfig 连接参数
type ConnConfig struct {
	BufferSize   int           // 接收环形缓冲区容量
	ReadTimeout  time.Duration // 读超时，到期后刷新 deadline 继续读
	WriteTimeout time.Duration // 写超时
	OnRecvBytes  func(n int)   // 可选的接收字节回调
}

// Conn 将 net.Conn 适配为 Transport：后台读循环写入环形缓冲区，
// ReadAvailable 只取已到达的数据，不阻塞会话轮询。
type Conn struct {
	c   net.Conn
	cfg ConnConfig

	mu  sync.Mutex
	in  *ring
	err error

	closed atomic.Bool
	doneC  chan struct{}
}

// NewConn 包装已建立的连接并启动读循环
func NewConn(c net.Conn, cfg ConnConfig) *Conn {
	cc := &Conn{
		c:     c,
		cfg:   cfg,
		in:    newRing(cfg.BufferSize),
		doneC: make(chan struct{}),
	}
	go cc.readLoop()
	return cc
}

// Dial 建立 TCP 连接（如 ser2net 串口桥或模拟设备）
func Dial(ctx context.Context, addr string, cfg ConnConfig) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c, cfg), nil
}

// RemoteAddr 返回远端地址
func (cc *Conn) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Write 同步写出，受写超时影响
func (cc *Conn) Write(p []byte) (int, error) {
	if cc.closed.Load() {
		return 0, ErrClosed
	}
	if cc.cfg.WriteTimeout > 0 {
		_ = cc.c.SetWriteDeadline(time.Now().Add(cc.cfg.WriteTimeout))
	}
	return cc.c.Write(p)
}

// ReadAvailable 取出已缓冲字节；缓冲为空且连接已结束时返回结束原因
func (cc *Conn) ReadAvailable(p []byte) (int, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	n := cc.in.read(p)
	if n == 0 && cc.err != nil {
		return 0, cc.err
	}
	return n, nil
}

// Dropped 因缓冲区溢出丢弃的字节数
func (cc *Conn) Dropped() uint64 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.in.dropped
}

// Close 关闭连接
func (cc *Conn) Close() error {
	if !cc.closed.CompareAndSwap(false, true) {
		return nil
	}
	return cc.c.Close()
}

// Done 返回连接结束通知通道
func (cc *Conn) Done() <-chan struct{} { return cc.doneC }

// Err 连接结束原因（未结束时为 nil）
func (cc *Conn) Err() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.err
}

func (cc *Conn) readLoop() {
	defer close(cc.doneC)
	if cc.cfg.ReadTimeout > 0 {
		_ = cc.c.SetReadDeadline(time.Now().Add(cc.cfg.ReadTimeout))
	}

	buf := make([]byte, 4096)
	for {
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.cfg.OnRecvBytes != nil {
				cc.cfg.OnRecvBytes(n)
			}
			cc.mu.Lock()
			cc.in.write(buf[:n])
			cc.mu.Unlock()
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && !cc.closed.Load() {
				// 读超时，刷新 deadline 继续
				if cc.cfg.ReadTimeout > 0 {
					_ = cc.c.SetReadDeadline(time.Now().Add(cc.cfg.ReadTimeout))
				}
				continue
			}
			if cc.closed.Load() {
				err = ErrClosed
			}
			cc.mu.Lock()
			cc.err = err
			cc.mu.Unlock()
			return
		}
	}
}
