package bootstrap

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/api"
	"github.com/taoyao-code/flemlink/internal/app"
	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
	"github.com/taoyao-code/flemlink/internal/metrics"
)

// shutdownTimeout 优雅关闭的最长等待
const shutdownTimeout = 10 * time.Second

// Run 主机进程启动流程，阻塞直至收到 SIGINT/SIGTERM
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, cfg, log)
}

// RunContext 按依赖顺序启动各组件，ctx 结束后优雅关闭
func RunContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting flemd",
		zap.String("env", cfg.App.Env),
		zap.String("link", cfg.Link.Addr),
		zap.Duration("response_timeout", cfg.Link.Session.ResponseTimeout),
		zap.Int("max_retries", cfg.Link.Session.MaxRetries))

	// ========== 阶段1: 基础组件 ==========
	reg, linkm := app.NewMetrics()

	// ========== 阶段2: Redis（启用时失败直接返回）==========
	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// ========== 阶段3: 命令队列与设备链路 ==========
	queue, results := app.NewStores(cfg.Queue, redisClient, log)
	link := app.NewLink(cfg.Link, queue, results, linkm, log)

	// ========== 阶段4: HTTP ==========
	healthAgg := app.NewHealthAggregator(link, redisClient)
	readyFn := func() bool {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return healthAgg.Ready(rctx)
	}
	httpSrv := app.NewHTTPServer(cfg, metrics.Handler(reg), readyFn, log,
		app.RegisterHealthRoutes(healthAgg),
		func(r *gin.Engine) { api.RegisterCommandRoutes(r, link, cfg.HTTP.Auth, log) },
	)

	httpErr := make(chan error, 1)
	go func() { httpErr <- httpSrv.Start() }()

	// ========== 阶段5: 链路 ==========
	linkCtx, cancelLink := context.WithCancel(context.Background())
	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		if err := link.Run(linkCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("link stopped unexpectedly", zap.Error(err))
		}
	}()
	log.Info("all services started")

	// ========== 阶段6: 等待关闭 ==========
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case runErr = <-httpErr:
		if runErr != nil {
			log.Error("http server error", zap.Error(runErr))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("http server stopped")

	cancelLink()
	select {
	case <-linkDone:
		log.Info("link stopped")
	case <-sctx.Done():
		log.Warn("link stop timed out")
	}

	log.Info("shutdown complete")
	return runErr
}
