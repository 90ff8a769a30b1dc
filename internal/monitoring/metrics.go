package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record 方法在 nil 接收者上是空操作，测试中可以不注入指标。
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 地址目录指标
	ResolveTotal      *prometheus.CounterVec
	ResolveDuration   prometheus.Histogram
	DirectoryOpsTotal *prometheus.CounterVec

	// 配额计数器指标
	QuotaTrackerErrors prometheus.Counter

	// SMTP 收件人验证指标
	RecipientChecks *prometheus.CounterVec
	SessionsLimited prometheus.Counter

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 在给定注册表上创建监控指标
//
// reg 为 nil 时使用独立的新注册表。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addrdir_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "addrdir_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ResolveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addrdir_resolve_total",
				Help: "Total number of address resolutions by result",
			},
			[]string{"result"},
		),

		ResolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "addrdir_resolve_duration_seconds",
				Help:    "Address resolution duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),

		DirectoryOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addrdir_directory_operations_total",
				Help: "Total number of directory mutations by operation and result",
			},
			[]string{"operation", "result"},
		),

		QuotaTrackerErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "addrdir_quota_tracker_errors_total",
				Help: "Total number of failed forward counter reads",
			},
		),

		RecipientChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addrdir_smtp_recipient_checks_total",
				Help: "Total number of SMTP RCPT verifications by result",
			},
			[]string{"result"},
		),

		SessionsLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "addrdir_smtp_sessions_limited_total",
				Help: "Total number of SMTP sessions refused by the rate limiter",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "addrdir_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordResolve 记录一次地址解析
//
// result: user, forwarded, not_found, invalid, error
func (m *Metrics) RecordResolve(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ResolveTotal.WithLabelValues(result).Inc()
	m.ResolveDuration.Observe(duration.Seconds())
}

// RecordDirectoryOperation 记录目录写操作
func (m *Metrics) RecordDirectoryOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DirectoryOpsTotal.WithLabelValues(operation, result).Inc()
}

// RecordQuotaTrackerError 记录计数器读取失败
func (m *Metrics) RecordQuotaTrackerError() {
	if m == nil {
		return
	}
	m.QuotaTrackerErrors.Inc()
}

// RecordRecipientCheck 记录一次 RCPT 验证
func (m *Metrics) RecordRecipientCheck(result string) {
	if m == nil {
		return
	}
	m.RecipientChecks.WithLabelValues(result).Inc()
}

// RecordSessionLimited 记录被限流拒绝的 SMTP 会话
func (m *Metrics) RecordSessionLimited() {
	if m == nil {
		return
	}
	m.SessionsLimited.Inc()
}

// RecordPanic 记录恐慌
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus 指标导出处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
