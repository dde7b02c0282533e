package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/metrics"
)

// ConnHandler 处理单个连接，返回后连接被关闭
type ConnHandler func(ctx context.Context, c net.Conn)

// Config TCP 服务参数
type Config struct {
	Addr           string
	MaxConnections int
	AcceptRate     float64 // 每秒新连接数，<=0 不限
	AcceptBurst    int
}

// Option Server 可选项
type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.ServerMetrics) Option { return func(s *Server) { s.m = m } }

// Server 接受 TCP 连接，经并发与速率限流后交给 ConnHandler
type Server struct {
	cfg     Config
	handler ConnHandler
	conns   *ConnectionLimiter
	rate    *RateLimiter
	log     *zap.Logger
	m       *metrics.ServerMetrics

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建 TCP 服务
func New(cfg Config, h ConnHandler, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		handler: h,
		conns:   NewConnectionLimiter(cfg.MaxConnections),
		rate:    NewRateLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("tcp server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址（":0" 时用于获取端口）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stats 限流统计
func (s *Server) Stats() (LimiterStats, RateLimiterStats) {
	return s.conns.Stats(), s.rate.Stats()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.rate.Allow() {
			s.reject(c, "rate")
			continue
		}
		if !s.conns.TryAcquire() {
			s.reject(c, "limit")
			continue
		}
		if s.m != nil {
			s.m.Accepted.Inc()
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.conns.Release()
			defer c.Close()
			s.log.Info("connection accepted", zap.String("remote", c.RemoteAddr().String()))
			s.handler(s.ctx, c)
			s.log.Info("connection closed", zap.String("remote", c.RemoteAddr().String()))
		}(c)
	}
}

func (s *Server) reject(c net.Conn, reason string) {
	s.log.Warn("connection rejected", zap.String("remote", c.RemoteAddr().String()), zap.String("reason", reason))
	if s.m != nil {
		s.m.Rejected.WithLabelValues(reason).Inc()
	}
	_ = c.Close()
}

// Shutdown 关闭监听，通知处理器退出并等待
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
