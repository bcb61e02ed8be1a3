package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qsession"

// 标签取值
const (
	ResultOK        = "ok"
	ResultUntrusted = "untrusted"
	ResultError     = "error"

	SideListener  = "listener"
	SideInitiator = "initiator"

	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics 会话层指标集合
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	AcceptFailures      prometheus.Counter
	HandlerFailures     *prometheus.CounterVec
	ActiveHandlers      prometheus.Gauge
	Exchanges           *prometheus.CounterVec
	Dials               *prometheus.CounterVec
	TrustedCertificates prometheus.Gauge
	Bytes               *prometheus.CounterVec
}

// New 创建并向 reg 注册全部指标
//
// 同一个 reg 只能调用一次，重复注册会 panic。
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_accepted_total",
				Help:      "Connections accepted by listeners after a completed handshake",
			},
		),
		AcceptFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accept_failures_total",
				Help:      "Listener accept failures, including failed handshakes",
			},
		),
		HandlerFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_failures_total",
				Help:      "Per-stream listener failures",
			},
			[]string{"stage"}, // stage=read/ack/handler/write/stopped
		),
		ActiveHandlers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_handlers",
				Help:      "Streams currently being served by listeners",
			},
		),
		Exchanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Initiator exchanges by result",
			},
			[]string{"result"}, // result=ok/error
		),
		Dials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dials_total",
				Help:      "Initiator dials by result",
			},
			[]string{"result"}, // result=ok/untrusted/error
		),
		TrustedCertificates: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trusted_certificates",
				Help:      "Certificates in initiator trust stores",
			},
		),
		Bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_total",
				Help:      "Greeting payload bytes",
			},
			[]string{"side", "direction"},
		),
	}
}

// ConnectionAccepted 记录一个已接受的连接
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
}

// AcceptFailed 记录一次接受失败
func (m *Metrics) AcceptFailed() {
	if m == nil {
		return
	}
	m.AcceptFailures.Inc()
}

// HandlerFailed 记录监听端单流处理在 stage 阶段失败
func (m *Metrics) HandlerFailed(stage string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(stage).Inc()
}

// HandlerStarted 活跃处理数加一，返回的函数用于减一
func (m *Metrics) HandlerStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveHandlers.Inc()
	return m.ActiveHandlers.Dec
}

// ExchangeDone 记录一次交换结果
func (m *Metrics) ExchangeDone(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Exchanges.WithLabelValues(ResultError).Inc()
		return
	}
	m.Exchanges.WithLabelValues(ResultOK).Inc()
}

// Dialed 记录一次拨号结果
func (m *Metrics) Dialed(result string) {
	if m == nil {
		return
	}
	m.Dials.WithLabelValues(result).Inc()
}

// CertificateTrusted 信任库新增一张证书
func (m *Metrics) CertificateTrusted() {
	if m == nil {
		return
	}
	m.TrustedCertificates.Inc()
}

// Transferred 记录问候负载字节数
func (m *Metrics) Transferred(side, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Bytes.WithLabelValues(side, direction).Add(float64(n))
}
