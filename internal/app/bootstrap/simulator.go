package bootstrap

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/app"
	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
	"github.com/taoyao-code/flemlink/internal/httpserver"
	"github.com/taoyao-code/flemlink/internal/metrics"
	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/session"
	"github.com/taoyao-code/flemlink/internal/simulator"
)

// RunSimulator 模拟设备进程，阻塞直至收到 SIGINT/SIGTERM
func RunSimulator(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunSimulatorContext(ctx, cfg, log)
}

// RunSimulatorContext 在 simulator.addr 上接受主机连接，ctx 结束后关闭
func RunSimulatorContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	sc := cfg.Simulator
	id, err := flem.NewIdentity(sc.Version, flem.MaxFrameSize)
	if err != nil {
		return err
	}

	dev := simulator.NewDevice(id, simulator.Config{
		PollInterval:  sc.PollInterval,
		EventInterval: sc.EventInterval,
		Session: session.Config{
			ResponseTimeout: cfg.Link.Session.ResponseTimeout,
			MaxRetries:      cfg.Link.Session.MaxRetries,
		},
	}, log)

	reg, srvm := app.NewSimulatorMetrics()
	srv := app.NewSimulatorServer(sc, dev, srvm, log)
	if err := srv.Start(); err != nil {
		log.Error("simulator listen failed", zap.Error(err))
		return err
	}
	log.Info("simulator started", zap.String("addr", srv.Addr().String()), zap.String("version", sc.Version))

	var metricsSrv *httpserver.Server
	if sc.MetricsAddr != "" {
		metricsSrv = httpserver.New(cfgpkg.HTTPConfig{Addr: sc.MetricsAddr}, cfg.Metrics.Path, metrics.Handler(reg), nil, log)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("received shutdown signal, gracefully shutting down...")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(sctx)
	}
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("simulator shutdown", zap.Error(err))
	}
	log.Info("simulator stopped", zap.Uint64("requests", dev.Requests()))
	return nil
}
