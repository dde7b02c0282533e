package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
	"github.com/taoyao-code/flemlink/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default $FLEM_CONFIG or configs/example.yaml)")
	addr := flag.String("addr", "", "listen address, overrides simulator.addr")
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *addr != "" {
		cfg.Simulator.Addr = *addr
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := bootstrap.RunSimulator(cfg, logger.Named("flemsim")); err != nil {
		logger.Fatal("flemsim exited", zap.Error(err))
	}
}
