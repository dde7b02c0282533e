package app

import (
	"encoding/binary"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
	"github.com/taoyao-code/flemlink/internal/gateway"
	"github.com/taoyao-code/flemlink/internal/metrics"
	"github.com/taoyao-code/flemlink/internal/outbound"
	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/session"
	"github.com/taoyao-code/flemlink/internal/transport"
)

// HostTable 主机侧命令表：记录设备上报的事件并应答 OK
func HostTable(log *zap.Logger) *flem.Table {
	t := flem.NewTable()
	t.Register(flem.CmdEvent, func(p []byte, r *flem.Reply) error {
		fields := []zap.Field{zap.Int("len", len(p)), zap.Binary("payload", p)}
		if len(p) >= 4 {
			fields = append(fields, zap.Uint32("uptime_s", binary.LittleEndian.Uint32(p)))
		}
		log.Info("device event", fields...)
		return nil
	})
	return t
}

// NewLink 创建经 TCP 拨号的设备链路
func NewLink(cfg cfgpkg.LinkConfig, q outbound.Queue, rs outbound.ResultStore, m *metrics.LinkMetrics, log *zap.Logger) *gateway.Link {
	dial := gateway.TCPDialer(cfg.Addr, cfg.DialTimeout, transport.ConnConfig{
		BufferSize:   cfg.BufferSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	breaker := gateway.NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
	breaker.SetStateChangeCallback(func(from, to gateway.BreakerState) {
		log.Warn("link breaker state changed",
			zap.String("addr", cfg.Addr),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	})

	return gateway.NewLink(dial, q, rs, gateway.Config{
		PollInterval:   cfg.PollInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		Session: session.Config{
			ResponseTimeout: cfg.Session.ResponseTimeout,
			MaxRetries:      cfg.Session.MaxRetries,
		},
	},
		gateway.WithLogger(log.With(zap.String("link", cfg.Addr))),
		gateway.WithMetrics(m),
		gateway.WithHandlers(HostTable(log)),
		gateway.WithBreaker(breaker),
	)
}
