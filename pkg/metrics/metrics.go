// Package metrics 提供 Prometheus 指标。
//
// 未调用 InitRegistry 时，构造函数返回 no-op 实现，调用方无需判断指标是否开启。
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	vault     VaultMetrics
	vaultOnce sync.Once
)

// InitRegistry 初始化全局 registry，重复调用无效果。
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// GetRegistry 返回全局 registry，未初始化时为 nil。
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled 报告指标是否开启。
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Handler 返回 /metrics 的 HTTP handler。
func Handler() http.Handler {
	if !IsEnabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// VaultMetrics 记录上传与工具调用的指标。
type VaultMetrics interface {
	// ObserveUpload 记录一次上传的结果（success / partial / failed）、耗时与字节数。
	ObserveUpload(outcome string, duration time.Duration, bytes int64)
	// ObserveTool 记录一次工具调用。
	ObserveTool(tool string, isError bool, duration time.Duration)
}

type vaultMetrics struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadBytes    prometheus.Counter
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
}

// NewVaultMetrics 返回进程内唯一的指标实例，未开启时返回 no-op 实现。
func NewVaultMetrics() VaultMetrics {
	if !IsEnabled() {
		return noopVaultMetrics{}
	}
	vaultOnce.Do(func() {
		vault = newVaultMetrics(GetRegistry())
	})
	return vault
}

func newVaultMetrics(reg *prometheus.Registry) *vaultMetrics {
	return &vaultMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentvault_uploads_total",
				Help: "Total number of uploads by outcome",
			},
			[]string{"outcome"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentvault_upload_duration_seconds",
				Help:    "Duration of staged uploads in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		uploadBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "agentvault_upload_bytes_total",
				Help: "Total bytes handed to storage providers",
			},
		),
		toolCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentvault_tool_calls_total",
				Help: "Total number of tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentvault_tool_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}
}

func (m *vaultMetrics) ObserveUpload(outcome string, duration time.Duration, bytes int64) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	m.uploadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == "success" || outcome == "partial" {
		m.uploadBytes.Add(float64(bytes))
	}
}

func (m *vaultMetrics) ObserveTool(tool string, isError bool, duration time.Duration) {
	status := "ok"
	if isError {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

type noopVaultMetrics struct{}

func (noopVaultMetrics) ObserveUpload(string, time.Duration, int64) {}
func (noopVaultMetrics) ObserveTool(string, bool, time.Duration)    {}
