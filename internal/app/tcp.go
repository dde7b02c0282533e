package app

import (
	"context"
	"net"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
	"github.com/taoyao-code/flemlink/internal/metrics"
	"github.com/taoyao-code/flemlink/internal/simulator"
	"github.com/taoyao-code/flemlink/internal/tcpserver"
	"github.com/taoyao-code/flemlink/internal/transport"
)

// NewSimulatorServer 创建模拟设备 TCP 服务：每个连接运行一个设备侧会话
func NewSimulatorServer(cfg cfgpkg.SimulatorConfig, dev *simulator.Device, m *metrics.ServerMetrics, log *zap.Logger) *tcpserver.Server {
	connCfg := transport.ConnConfig{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if m != nil {
		connCfg.OnRecvBytes = func(n int) { m.BytesReceived.Add(float64(n)) }
	}

	handler := func(ctx context.Context, c net.Conn) {
		tc := transport.NewConn(c, connCfg)
		defer tc.Close()
		if err := dev.Serve(ctx, tc); err != nil && ctx.Err() == nil {
			log.Info("device session ended", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
		}
	}

	return tcpserver.New(tcpserver.Config{
		Addr:           cfg.Addr,
		MaxConnections: cfg.MaxConnections,
		AcceptRate:     cfg.AcceptRate,
		AcceptBurst:    cfg.AcceptBurst,
	}, handler, tcpserver.WithLogger(log), tcpserver.WithMetrics(m))
}
