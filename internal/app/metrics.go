package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/flemlink/internal/metrics"
)

// NewMetrics 初始化注册表与链路指标
func NewMetrics() (*prometheus.Registry, *metrics.LinkMetrics) {
	reg := metrics.NewRegistry()
	return reg, metrics.NewLinkMetrics(reg)
}

// NewSimulatorMetrics 初始化注册表与模拟器 TCP 指标
func NewSimulatorMetrics() (*prometheus.Registry, *metrics.ServerMetrics) {
	reg := metrics.NewRegistry()
	return reg, metrics.NewServerMetrics(reg)
}
