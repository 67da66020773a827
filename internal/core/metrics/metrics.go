// Package metrics 集中定义 Prometheus 指标，注册到调用方传入的 Registerer
package metrics

import "github.com/prometheus/client_golang/prometheus"

// 入群结果标签
const (
	OutcomeEnrolled      = "enrolled"
	OutcomeAlreadyMember = "already_member"
	OutcomeNotFound      = "not_found"
	OutcomeConflict      = "conflict"
	OutcomeError         = "error"
)

type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	Enrollments  *prometheus.CounterVec
	TxAttempts   *prometheus.CounterVec
}

// New 创建并注册全部指标；reg 为 nil 时只创建不注册（测试用）
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests"},
			[]string{"path", "method", "status"},
		),
		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Latency of HTTP requests",
				Buckets: prometheus.DefBuckets,
			}, []string{"path", "method"},
		),
		Enrollments: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "quiz_enrollments_total", Help: "Enrollment requests by outcome"},
			[]string{"outcome"},
		),
		TxAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "docstore_tx_attempts_total", Help: "Document transaction attempts by result"},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.HTTPRequests, m.HTTPLatency, m.Enrollments, m.TxAttempts)
	}
	return m
}

// Enrollment 记录一次入群结果；m 为 nil 时忽略
func (m *Metrics) Enrollment(outcome string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(outcome).Inc()
}
