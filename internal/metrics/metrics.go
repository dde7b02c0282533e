package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// LinkMetrics 链路与会话指标
type LinkMetrics struct {
	Connected       prometheus.Gauge
	Reconnects      prometheus.Counter
	BytesReceived   prometheus.Counter
	RequestsSent    prometheus.Counter
	Responses       *prometheus.CounterVec // labels: code
	FrameErrors     *prometheus.CounterVec // labels: reason=too_large|integrity
	DispatchErrors  *prometheus.CounterVec // labels: reason=unhandled|handler
	StrayResponses  prometheus.Counter
	PeerBusy        prometheus.Counter
	Retries         prometheus.Counter
	Timeouts        prometheus.Counter
	TransportErrors prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// NewLinkMetrics 注册并返回链路指标
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	m := &LinkMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flem_link_connected",
			Help: "1 when the link transport is connected.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_link_reconnects_total",
			Help: "Successful link (re)connections.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_link_bytes_received_total",
			Help: "Total bytes received from the peer.",
		}),
		RequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_requests_sent_total",
			Help: "Requests sent to the peer.",
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flem_responses_total",
			Help: "Resolved responses by status code.",
		}, []string{"code"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flem_frame_errors_total",
			Help: "Discarded frames by reason.",
		}, []string{"reason"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flem_dispatch_errors_total",
			Help: "Peer commands that could not be handled.",
		}, []string{"reason"}),
		StrayResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_stray_responses_total",
			Help: "Responses without a matching pending request.",
		}),
		PeerBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_peer_busy_total",
			Help: "Busy responses received from the peer.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_retries_total",
			Help: "Request retransmissions.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_timeouts_total",
			Help: "Requests that exhausted their retries.",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flem_transport_errors_total",
			Help: "Transport write failures.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flem_outbound_queue_depth",
			Help: "Commands waiting in the outbound queue.",
		}),
	}
	reg.MustRegister(
		m.Connected, m.Reconnects, m.BytesReceived, m.RequestsSent, m.Responses,
		m.FrameErrors, m.DispatchErrors, m.StrayResponses, m.PeerBusy,
		m.Retries, m.Timeouts, m.TransportErrors, m.QueueDepth,
	)
	return m
}

// ServerMetrics 模拟器 TCP 服务指标
type ServerMetrics struct {
	Accepted      prometheus.Counter
	Rejected      *prometheus.CounterVec // labels: reason=rate|limit
	BytesReceived prometheus.Counter
}

// NewServerMetrics 注册并返回 TCP 服务指标
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcp_reject_total",
			Help: "Rejected TCP connections by reason.",
		}, []string{"reason"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
	}
	reg.MustRegister(m.Accepted, m.Rejected, m.BytesReceived)
	return m
}
