package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/session"
	"github.com/taoyao-code/flemlink/internal/transport"
)

// 模拟设备支持的应用命令
const (
	CmdEcho flem.Command = flem.CmdUser     // 原样返回载荷
	CmdSum  flem.Command = flem.CmdUser + 1 // 载荷字节求和，u32 LE
	CmdBusy flem.Command = flem.CmdUser + 2 // 首次以 CodeBusy 应答，重传时成功
)

// Config 模拟设备参数
type Config struct {
	PollInterval  time.Duration
	EventInterval time.Duration // >0 时空闲期间周期上报 CmdEvent
	Session       session.Config
}

// Device 模拟设备：在任意 Transport 上运行设备侧会话。
// 同一 Device 可同时服务多个连接，处理器只使用原子状态。
type Device struct {
	cfg   Config
	table *flem.Table
	log   *zap.Logger

	busyCalls atomic.Uint64
	requests  atomic.Uint64
}

// NewDevice 创建模拟设备并注册命令处理器
func NewDevice(id flem.Identity, cfg Config, log *zap.Logger) *Device {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Device{cfg: cfg, table: flem.NewTable(), log: log}
	d.table.Register(flem.CmdIdentify, d.count(flem.IdentityHandler(id)))
	d.table.Register(CmdEcho, d.count(handleEcho))
	d.table.Register(CmdSum, d.count(handleSum))
	d.table.Register(CmdBusy, d.count(d.handleBusy))
	return d
}

// Table 设备命令表
func (d *Device) Table() *flem.Table { return d.table }

// Requests 已处理的请求数
func (d *Device) Requests() uint64 { return d.requests.Load() }

func (d *Device) count(h flem.Handler) flem.Handler {
	return func(p []byte, r *flem.Reply) error {
		d.requests.Add(1)
		return h(p, r)
	}
}

func handleEcho(p []byte, r *flem.Reply) error {
	_, err := r.Write(p)
	return err
}

func handleSum(p []byte, r *flem.Reply) error {
	var sum uint32
	for _, b := range p {
		sum += uint32(b)
	}
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], sum)
	_, err := r.Write(out[:])
	return err
}

func (d *Device) handleBusy(p []byte, r *flem.Reply) error {
	if d.busyCalls.Add(1)%2 == 1 {
		r.SetCode(flem.CodeBusy)
		return nil
	}
	_, err := r.Write(p)
	return err
}

// Serve 在 t 上运行设备会话，直至 ctx 结束或传输出错
func (d *Device) Serve(ctx context.Context, t transport.Transport) error {
	s := session.New(t, d.table, d.cfg.Session, session.WithLogger(d.log))
	buf := make([]byte, flem.MaxFrameSize)
	start := time.Now()
	var lastEvent time.Duration

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, rerr := t.ReadAvailable(buf)
		now := time.Since(start)
		resp, err := s.Poll(buf[:n], now)
		switch {
		case resp != nil:
			d.log.Debug("event acknowledged", zap.Stringer("code", resp.Code))
		case errors.Is(err, session.ErrTimeout):
			d.log.Warn("event not acknowledged")
		}
		if rerr != nil {
			return rerr
		}

		if d.cfg.EventInterval > 0 && s.State() == session.StateIdle && now-lastEvent >= d.cfg.EventInterval {
			lastEvent = now
			var up [4]byte
			binary.LittleEndian.PutUint32(up[:], uint32(now/time.Second))
			if err := s.Send(flem.CmdEvent, up[:], now); err != nil {
				return err
			}
		}
	}
}
