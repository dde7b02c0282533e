package gateway

import (
	"errors"

	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/metrics"
	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/session"
)

// MetricsObserver 将会话事件写入日志与 Prometheus 指标
type MetricsObserver struct {
	log *zap.Logger
	m   *metrics.LinkMetrics
}

var _ session.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver m 可为 nil（仅记录日志）
func NewMetricsObserver(log *zap.Logger, m *metrics.LinkMetrics) *MetricsObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &MetricsObserver{log: log, m: m}
}

func (o *MetricsObserver) OnFrameError(err error) {
	reason := "integrity"
	if errors.Is(err, flem.ErrFrameTooLarge) {
		reason = "too_large"
	}
	o.log.Warn("frame discarded", zap.String("reason", reason), zap.Error(err))
	if o.m != nil {
		o.m.FrameErrors.WithLabelValues(reason).Inc()
	}
}

func (o *MetricsObserver) OnDispatchError(cmd flem.Command, err error) {
	reason := "handler"
	if errors.Is(err, session.ErrUnhandledCommand) {
		reason = "unhandled"
	}
	o.log.Warn("peer command not handled",
		zap.Uint8("cmd", uint8(cmd)),
		zap.String("reason", reason),
		zap.Error(err))
	if o.m != nil {
		o.m.DispatchErrors.WithLabelValues(reason).Inc()
	}
}

func (o *MetricsObserver) OnStrayResponse(cmd flem.Command, code flem.Code) {
	o.log.Info("stray response", zap.Uint8("cmd", uint8(cmd)), zap.Stringer("code", code))
	if o.m != nil {
		o.m.StrayResponses.Inc()
	}
}

func (o *MetricsObserver) OnPeerBusy(cmd flem.Command) {
	o.log.Debug("peer busy", zap.Uint8("cmd", uint8(cmd)))
	if o.m != nil {
		o.m.PeerBusy.Inc()
	}
}

func (o *MetricsObserver) OnRetry(cmd flem.Command, attempt int) {
	o.log.Info("request retransmitted", zap.Uint8("cmd", uint8(cmd)), zap.Int("attempt", attempt))
	if o.m != nil {
		o.m.Retries.Inc()
	}
}

func (o *MetricsObserver) OnTimeout(cmd flem.Command, retries int) {
	o.log.Warn("request timed out", zap.Uint8("cmd", uint8(cmd)), zap.Int("retries", retries))
	if o.m != nil {
		o.m.Timeouts.Inc()
	}
}

func (o *MetricsObserver) OnTransportError(err error) {
	o.log.Error("transport write failed", zap.Error(err))
	if o.m != nil {
		o.m.TransportErrors.Inc()
	}
}

func (o *MetricsObserver) OnResolved(cmd flem.Command, code flem.Code, retries int) {
	o.log.Debug("response received",
		zap.Uint8("cmd", uint8(cmd)),
		zap.Stringer("code", code),
		zap.Int("retries", retries))
	if o.m != nil {
		o.m.Responses.WithLabelValues(code.String()).Inc()
	}
}
