package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/transport"
)

var (
	// ErrTimeout 重试耗尽仍未收到应答
	ErrTimeout = errors.New("response timeout")
	// ErrBusy 已有待决请求，拒绝新的 Send
	ErrBusy = errors.New("session busy")
	// ErrUnhandledCommand 对端命令没有注册处理器
	ErrUnhandledCommand = errors.New("unhandled command")
)

// State 会话状态
type State uint8

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Config 会话参数，构造后不可修改
type Config struct {
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`
	MaxRetries      int           `mapstructure:"maxRetries"`
}

// DefaultConfig 默认 200ms 超时、最多重传 3 次
func DefaultConfig() Config {
	return Config{ResponseTimeout: 200 * time.Millisecond, MaxRetries: 3}
}

// PendingRequest 待决请求
type PendingRequest struct {
	Cmd      flem.Command
	Deadline time.Duration // 单调时钟读数，now > Deadline 视为超时
	Retries  int
}

// Response 已匹配的应答。Payload 引用会话内部缓冲区，下一次 Poll/Send 前有效。
type Response struct {
	Cmd     flem.Command
	Code    flem.Code
	Payload []byte
	Retries int
}

// Option 会话可选项
type Option func(*Session)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver 设置事件观察者
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

// Session 单通道请求/应答会话：同一时刻最多一个待决请求，
// 同时分发对端主动发来的命令。非并发安全，由单个 goroutine 驱动。
type Session struct {
	t     transport.Transport
	table *flem.Table
	cfg   Config
	log   *zap.Logger
	obs   Observer

	req   flem.Encoder // 最近一次请求，重传直接复用
	rsp   flem.Encoder // 应答编码，不覆盖请求缓冲
	dec   flem.Decoder
	reply flem.Reply

	state   State
	pending PendingRequest

	resp    Response
	respBuf [flem.MaxPayload]byte
}

// New 创建会话。cfg 中的零值字段使用默认值。
func New(t transport.Transport, table *flem.Table, cfg Config, opts ...Option) *Session {
	def := DefaultConfig()
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if table == nil {
		table = flem.NewTable()
	}
	s := &Session{
		t:     t,
		table: table,
		cfg:   cfg,
		log:   zap.NewNop(),
		obs:   NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config 返回构造时确定的参数
func (s *Session) Config() Config { return s.cfg }

// State 当前状态
func (s *Session) State() State { return s.state }

// Pending 返回待决请求
func (s *Session) Pending() (PendingRequest, bool) {
	return s.pending, s.state == StateAwaitingResponse
}

// DecoderStats 返回解码统计
func (s *Session) DecoderStats() flem.DecoderStats { return s.dec.Stats() }

// Send 发送请求并进入等待应答状态。
// 已有待决请求时返回 ErrBusy 且不影响该请求；写出失败时保持空闲。
func (s *Session) Send(cmd flem.Command, payload []byte, now time.Duration) error {
	if s.state == StateAwaitingResponse {
		return ErrBusy
	}
	frame, err := s.req.EncodeRequest(cmd, payload)
	if err != nil {
		return err
	}
	if _, err := s.t.Write(frame); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	s.pending = PendingRequest{Cmd: cmd, Deadline: now + s.cfg.ResponseTimeout}
	s.state = StateAwaitingResponse
	s.log.Debug("request sent",
		zap.Uint8("cmd", uint8(cmd)),
		zap.Int("len", len(payload)),
		zap.Duration("deadline", s.pending.Deadline))
	return nil
}

// Poll 处理新到达的字节并检查超时。
// 待决请求收到应答时返回该应答；重试耗尽时返回 ErrTimeout；其余情况返回 nil, nil。
// 先投喂数据再检查超时，截止时刻之前到达的应答不会被判为超时。
func (s *Session) Poll(in []byte, now time.Duration) (*Response, error) {
	resolved := false
	for len(in) > 0 || s.dec.Buffered() > 0 {
		n, res, err := s.dec.Feed(in)
		in = in[n:]
		switch res {
		case flem.ResultError:
			s.log.Debug("frame error", zap.Error(err))
			s.obs.OnFrameError(err)
		case flem.ResultComplete:
			if s.handleFrame(s.dec.Frame()) {
				resolved = true
			}
		}
	}
	if resolved {
		return &s.resp, nil
	}

	if s.state != StateAwaitingResponse || now <= s.pending.Deadline {
		return nil, nil
	}

	cmd := s.pending.Cmd
	if s.pending.Retries < s.cfg.MaxRetries {
		s.pending.Retries++
		s.pending.Deadline = now + s.cfg.ResponseTimeout
		s.log.Debug("request retransmit",
			zap.Uint8("cmd", uint8(cmd)),
			zap.Int("attempt", s.pending.Retries))
		s.obs.OnRetry(cmd, s.pending.Retries)
		s.write(s.req.Bytes())
		return nil, nil
	}

	retries := s.pending.Retries
	s.clearPending()
	s.log.Debug("request timeout", zap.Uint8("cmd", uint8(cmd)), zap.Int("retries", retries))
	s.obs.OnTimeout(cmd, retries)
	return nil, ErrTimeout
}

// Cancel 放弃待决请求
func (s *Session) Cancel() { s.clearPending() }

// Reset 放弃待决请求并丢弃解码中的半帧
func (s *Session) Reset() {
	s.clearPending()
	s.dec.Reset()
}

func (s *Session) clearPending() {
	s.pending = PendingRequest{}
	s.state = StateIdle
}

// handleFrame 处理一帧，返回是否完成了待决请求
func (s *Session) handleFrame(f flem.Frame) bool {
	if !f.IsResponse() {
		s.dispatch(f)
		return false
	}

	if s.state != StateAwaitingResponse || f.Cmd != s.pending.Cmd {
		s.log.Debug("stray response", zap.Uint8("cmd", uint8(f.Cmd)), zap.Stringer("code", f.Code))
		s.obs.OnStrayResponse(f.Cmd, f.Code)
		return false
	}
	if f.Code == flem.CodeBusy {
		// 对端忙：保留待决请求，到期后按重试流程重传
		s.obs.OnPeerBusy(f.Cmd)
		return false
	}

	n := copy(s.respBuf[:], f.Payload)
	s.resp = Response{
		Cmd:     f.Cmd,
		Code:    f.Code,
		Payload: s.respBuf[:n],
		Retries: s.pending.Retries,
	}
	s.clearPending()
	s.obs.OnResolved(s.resp.Cmd, s.resp.Code, s.resp.Retries)
	return true
}

// dispatch 查表处理对端命令并回复
func (s *Session) dispatch(f flem.Frame) {
	h, ok := s.table.Lookup(f.Cmd)
	if !ok {
		s.log.Debug("unhandled command", zap.Uint8("cmd", uint8(f.Cmd)))
		s.obs.OnDispatchError(f.Cmd, ErrUnhandledCommand)
		s.respond(f.Cmd, flem.CodeUnknownRequest, nil)
		return
	}

	s.reply.Reset()
	if err := h(f.Payload, &s.reply); err != nil {
		s.log.Debug("handler failed", zap.Uint8("cmd", uint8(f.Cmd)), zap.Error(err))
		s.obs.OnDispatchError(f.Cmd, err)
		s.respond(f.Cmd, flem.CodeError, nil)
		return
	}
	if s.reply.Discarded() {
		return
	}
	s.respond(f.Cmd, s.reply.Code(), s.reply.Bytes())
}

func (s *Session) respond(cmd flem.Command, code flem.Code, payload []byte) {
	if code == flem.CodeRequest {
		code = flem.CodeError
	}
	frame, err := s.rsp.EncodeResponse(cmd, code, payload)
	if err != nil {
		s.obs.OnDispatchError(cmd, err)
		return
	}
	s.write(frame)
}

func (s *Session) write(p []byte) {
	if _, err := s.t.Write(p); err != nil {
		s.log.Debug("transport write failed", zap.Error(err))
		s.obs.OnTransportError(err)
	}
}
