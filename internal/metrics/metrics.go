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

// AppMetrics 协议与会话指标。方法均容忍 nil 接收者。
type AppMetrics struct {
	FramesSent        *prometheus.CounterVec // labels: type
	FramesReceived    *prometheus.CounterVec // labels: type
	FrameErrors       *prometheus.CounterVec // labels: reason
	ParamRequests     prometheus.Counter
	ParamTimeouts     prometheus.Counter
	ParamsMissing     prometheus.Counter
	ParamsLoaded      prometheus.Counter
	DevicesDiscovered prometheus.Gauge // 当前注册表内设备数
	LinkGood          prometheus.Gauge
	LinkBad           prometheus.Gauge
	CommandPolls      prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crsf_frames_sent_total",
			Help: "Frames sent to the bus by type.",
		}, []string{"type"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crsf_frames_received_total",
			Help: "Frames received from the bus by type.",
		}, []string{"type"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crsf_frame_errors_total",
			Help: "Rejected or dropped frames by reason.",
		}, []string{"reason"}),
		ParamRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crsf_param_requests_total",
			Help: "Parameter chunk requests issued.",
		}),
		ParamTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crsf_param_timeouts_total",
			Help: "Parameter requests that timed out.",
		}),
		ParamsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crsf_params_missing_total",
			Help: "Parameters recorded as missing after exhausting retries.",
		}),
		ParamsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crsf_params_loaded_total",
			Help: "Parameters decoded and stored.",
		}),
		DevicesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crsf_devices_discovered",
			Help: "Devices currently in the registry.",
		}),
		LinkGood: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crsf_link_good_packets",
			Help: "Good packet counter from the last status frame.",
		}),
		LinkBad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crsf_link_bad_packets",
			Help: "Bad packet counter from the last status frame.",
		}),
		CommandPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crsf_command_polls_total",
			Help: "Command status polls sent.",
		}),
	}
	reg.MustRegister(m.FramesSent, m.FramesReceived, m.FrameErrors, m.ParamRequests, m.ParamTimeouts,
		m.ParamsMissing, m.ParamsLoaded, m.DevicesDiscovered, m.LinkGood, m.LinkBad, m.CommandPolls)
	return m
}

func (m *AppMetrics) FrameSent(t string) {
	if m != nil {
		m.FramesSent.WithLabelValues(t).Inc()
	}
}

func (m *AppMetrics) FrameReceived(t string) {
	if m != nil {
		m.FramesReceived.WithLabelValues(t).Inc()
	}
}

func (m *AppMetrics) FrameError(reason string) {
	if m != nil {
		m.FrameErrors.WithLabelValues(reason).Inc()
	}
}

func (m *AppMetrics) ParamRequested() {
	if m != nil {
		m.ParamRequests.Inc()
	}
}

func (m *AppMetrics) ParamTimedOut() {
	if m != nil {
		m.ParamTimeouts.Inc()
	}
}

func (m *AppMetrics) ParamMissing() {
	if m != nil {
		m.ParamsMissing.Inc()
	}
}

func (m *AppMetrics) ParamLoaded() {
	if m != nil {
		m.ParamsLoaded.Inc()
	}
}

func (m *AppMetrics) SetDevices(n int) {
	if m != nil {
		m.DevicesDiscovered.Set(float64(n))
	}
}

func (m *AppMetrics) SetLink(good, bad int) {
	if m != nil {
		m.LinkGood.Set(float64(good))
		m.LinkBad.Set(float64(bad))
	}
}

func (m *AppMetrics) CommandPolled() {
	if m != nil {
		m.CommandPolls.Inc()
	}
}
