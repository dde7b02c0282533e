package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/metrics"
	"github.com/taoyao-code/flemlink/internal/outbound"
	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/session"
	"github.com/taoyao-code/flemlink/internal/transport"
)

// ErrLinkLost 在途请求因连接断开而失败
var ErrLinkLost = errors.New("link lost")

// Dialer 建立到对端的传输通道
type Dialer func(ctx context.Context) (transport.Transport, error)

// TCPDialer 通过 TCP 连接对端（ser2net 串口桥或模拟设备）
func TCPDialer(addr string, timeout time.Duration, cfg transport.ConnConfig) Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		c, err := transport.Dial(ctx, addr, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Config 链路参数
type Config struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	ReadBufferSize int
	Session        session.Config
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = flem.MaxFrameSize
	}
}

// Status 链路状态快照
type Status struct {
	Connected   bool      `json:"connected"`
	Session     string    `json:"session"`
	Breaker     string    `json:"breaker"`
	InFlight    string    `json:"in_flight,omitempty"`
	Sent        uint64    `json:"sent"`
	Completed   uint64    `json:"completed"`
	Failed      uint64    `json:"failed"`
	Frames      uint64    `json:"frames"`
	FrameErrors uint64    `json:"frame_errors"`
	LastError   string    `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Option Link 可选项
type Option func(*Link)

func WithLogger(l *zap.Logger) Option {
	return func(k *Link) {
		if l != nil {
			k.log = l
		}
	}
}

func WithMetrics(m *metrics.LinkMetrics) Option { return func(k *Link) { k.m = m } }

// WithHandlers 设置对端主动命令的处理表
func WithHandlers(t *flem.Table) Option { return func(k *Link) { k.table = t } }

func WithBreaker(cb *CircuitBreaker) Option { return func(k *Link) { k.breaker = cb } }

// Link 在单个 goroutine 中驱动一条会话：拨号、轮询收包、空闲时从队列取下一条命令发送，
// 并把结果写入 ResultStore。断线后经熔断器保护重连。
type Link struct {
	cfg     Config
	dial    Dialer
	queue   outbound.Queue
	results outbound.ResultStore
	table   *flem.Table
	breaker *CircuitBreaker
	log     *zap.Logger
	m       *metrics.LinkMetrics
	start   time.Time

	mu     sync.RWMutex
	status Status
}

// NewLink 创建链路
func NewLink(dial Dialer, q outbound.Queue, rs outbound.ResultStore, cfg Config, opts ...Option) *Link {
	cfg.applyDefaults()
	l := &Link{
		cfg:     cfg,
		dial:    dial,
		queue:   q,
		results: rs,
		log:     zap.NewNop(),
		start:   time.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.table == nil {
		l.table = flem.NewTable()
	}
	if l.breaker == nil {
		l.breaker = NewCircuitBreaker(5, 30*time.Second)
	}
	l.status.Session = session.StateIdle.String()
	return l
}

// Submit 记录待处理结果并入队。
// 先写 pending 再入队，避免覆盖链路已写入的最终结果；入队失败时改写为 failed。
func (l *Link) Submit(ctx context.Context, msg *outbound.Message) error {
	if err := l.results.Put(ctx, outbound.PendingResult(msg)); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	if err := l.queue.Enqueue(ctx, msg); err != nil {
		r := outbound.PendingResult(msg)
		r.Status = outbound.StatusFailed
		r.Error = err.Error()
		if perr := l.results.Put(context.WithoutCancel(ctx), r); perr != nil {
			l.log.Error("store result failed", zap.String("msg_id", msg.ID), zap.Error(perr))
		}
		return fmt.Errorf("enqueue: %w", err)
	}
	l.refreshQueueDepth(ctx)
	return nil
}

// Result 查询命令结果
func (l *Link) Result(ctx context.Context, id string) (*outbound.Result, error) {
	return l.results.Get(ctx, id)
}

// Status 返回链路状态快照
func (l *Link) Status() Status {
	l.mu.RLock()
	st := l.status
	l.mu.RUnlock()
	st.Breaker = l.breaker.State().String()
	return st
}

// Run 运行链路直至 ctx 结束
func (l *Link) Run(ctx context.Context) error {
	l.log.Info("link started")
	defer l.log.Info("link stopped")

	for {
		var t transport.Transport
		err := l.breaker.Call(func() error {
			var derr error
			t, derr = l.dial(ctx)
			return derr
		})
		if ctx.Err() != nil {
			closeTransport(t)
			return ctx.Err()
		}
		if err != nil {
			if !errors.Is(err, ErrCircuitOpen) && !errors.Is(err, ErrProbeInFlight) {
				l.log.Warn("link dial failed", zap.Error(err))
			}
			l.setLastError(err)
		} else {
			l.onConnected()
			err = l.serve(ctx, t)
			closeTransport(t)
			l.onDisconnected(err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

func closeTransport(t transport.Transport) {
	if c, ok := t.(io.Closer); ok {
		_ = c.Close()
	}
}

// serve 在一个已连接的传输上轮询，返回断线原因
func (l *Link) serve(ctx context.Context, t transport.Transport) error {
	obs := NewMetricsObserver(l.log, l.m)
	sess := session.New(t, l.table, l.cfg.Session, session.WithLogger(l.log), session.WithObserver(obs))

	var inflight *outbound.Message
	defer func() {
		if inflight != nil {
			l.finish(context.WithoutCancel(ctx), sess, inflight, nil, ErrLinkLost)
		}
	}()

	buf := make([]byte, l.cfg.ReadBufferSize)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, rerr := t.ReadAvailable(buf)
		if n > 0 && l.m != nil {
			l.m.BytesReceived.Add(float64(n))
		}
		resp, perr := sess.Poll(buf[:n], l.now())
		switch {
		case resp != nil:
			l.finish(ctx, sess, inflight, resp, nil)
			inflight = nil
		case perr != nil:
			l.finish(ctx, sess, inflight, nil, perr)
			inflight = nil
		}
		if rerr != nil {
			return fmt.Errorf("read: %w", rerr)
		}

		if sess.State() == session.StateIdle {
			msg, err := l.queue.Dequeue(ctx)
			if err != nil {
				l.log.Error("dequeue failed", zap.Error(err))
			} else if msg != nil {
				l.refreshQueueDepth(ctx)
				if err := sess.Send(msg.Cmd, msg.Payload, l.now()); err != nil {
					l.finish(ctx, sess, msg, nil, err)
					if !errors.Is(err, flem.ErrPayloadTooLarge) {
						return err
					}
				} else {
					inflight = msg
					l.markSent(ctx, msg)
				}
			}
		}

		l.updateSession(sess, inflight)
	}
}

// now 会话使用的单调时钟读数
func (l *Link) now() time.Duration { return time.Since(l.start) }

func (l *Link) markSent(ctx context.Context, msg *outbound.Message) {
	r := &outbound.Result{ID: msg.ID, Cmd: msg.Cmd, Status: outbound.StatusSent, UpdatedAt: time.Now()}
	if err := l.results.Put(ctx, r); err != nil {
		l.log.Error("store result failed", zap.String("msg_id", msg.ID), zap.Error(err))
	}
	if l.m != nil {
		l.m.RequestsSent.Inc()
	}
	l.mu.Lock()
	l.status.Sent++
	l.mu.Unlock()
}

// finish 记录在途命令的最终结果；resp 与 err 恰有一个非 nil
func (l *Link) finish(ctx context.Context, sess *session.Session, msg *outbound.Message, resp *session.Response, err error) {
	if msg == nil {
		return
	}
	r := &outbound.Result{ID: msg.ID, Cmd: msg.Cmd, UpdatedAt: time.Now()}
	if resp != nil {
		r.Status = outbound.StatusDone
		r.Code = resp.Code
		r.Payload = append([]byte(nil), resp.Payload...)
		r.Retries = resp.Retries
	} else {
		r.Status = outbound.StatusFailed
		r.Error = err.Error()
		if errors.Is(err, session.ErrTimeout) {
			r.Retries = sess.Config().MaxRetries
		}
	}
	if perr := l.results.Put(ctx, r); perr != nil {
		l.log.Error("store result failed", zap.String("msg_id", msg.ID), zap.Error(perr))
	}

	l.mu.Lock()
	if r.Status == outbound.StatusDone {
		l.status.Completed++
	} else {
		l.status.Failed++
		l.status.LastError = r.Error
	}
	l.mu.Unlock()

	l.log.Info("command finished",
		zap.String("msg_id", msg.ID),
		zap.Uint8("cmd", uint8(msg.Cmd)),
		zap.String("status", string(r.Status)),
		zap.Stringer("code", r.Code),
		zap.String("error", r.Error))
}

func (l *Link) refreshQueueDepth(ctx context.Context) {
	if l.m == nil {
		return
	}
	if n, err := l.queue.Len(ctx); err == nil {
		l.m.QueueDepth.Set(float64(n))
	}
}

func (l *Link) onConnected() {
	l.log.Info("link connected")
	if l.m != nil {
		l.m.Connected.Set(1)
		l.m.Reconnects.Inc()
	}
	l.mu.Lock()
	l.status.Connected = true
	l.status.ConnectedAt = time.Now()
	l.status.Session = session.StateIdle.String()
	l.mu.Unlock()
}

func (l *Link) onDisconnected(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		l.log.Warn("link disconnected", zap.Error(err))
	}
	if l.m != nil {
		l.m.Connected.Set(0)
	}
	l.mu.Lock()
	l.status.Connected = false
	l.status.InFlight = ""
	l.status.Session = session.StateIdle.String()
	if err != nil {
		l.status.LastError = err.Error()
	}
	l.mu.Unlock()
}

func (l *Link) setLastError(err error) {
	l.mu.Lock()
	l.status.LastError = err.Error()
	l.mu.Unlock()
}

func (l *Link) updateSession(sess *session.Session, inflight *outbound.Message) {
	st := sess.DecoderStats()
	l.mu.Lock()
	l.status.Session = sess.State().String()
	l.status.Frames = st.Frames
	l.status.FrameErrors = st.FrameTooLarge + st.IntegrityErrors
	if inflight != nil {
		l.status.InFlight = inflight.ID
	} else {
		l.status.InFlight = ""
	}
	l.mu.Unlock()
}
