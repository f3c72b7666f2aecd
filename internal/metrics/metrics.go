// Package metrics 暴露提交流水线、上传校验和聊天历史的 Prometheus 指标。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medassist"

// 提交结果标签。
const (
	ResultCompleted = "completed"
	ResultEmpty     = "empty"
	ResultInFlight  = "in_flight"
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
)

// Metrics 持有独立的 Registry，测试中可以多次创建而不冲突。
type Metrics struct {
	registry *prometheus.Registry

	submissions       *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	uploadValidations *prometheus.CounterVec
	historyEntries    prometheus.Counter
	processing        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Question submissions by outcome.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5},
		}, []string{"stage"}),
		uploadValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_validations_total",
			Help:      "Upload slot validations by result.",
		}, []string{"result"}),
		historyEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_entries_total",
			Help:      "Chat entries appended to history.",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_processing",
			Help:      "Pipelines currently running a submission.",
		}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.stageDuration,
		m.uploadValidations,
		m.historyEntries,
		m.processing,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks 返回挂到流水线上的回调。
func (m *Metrics) Hooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnStatus: func(_ string, s model.PipelineStatus) {
			switch s.State {
			case model.StateValidating:
				m.processing.Inc()
			case model.StateIdle:
				m.processing.Dec()
			}
		},
		OnStageDone: func(_ string, stage pipeline.Stage, elapsed time.Duration) {
			m.stageDuration.WithLabelValues(stage.Name).Observe(elapsed.Seconds())
		},
		OnComplete: func(string, model.ChatEntry) {
			m.historyEntries.Inc()
		},
	}
}

// ObserveSubmission 按错误类型记录一次提交的结果。
func (m *Metrics) ObserveSubmission(err error) {
	m.submissions.WithLabelValues(SubmissionResult(err)).Inc()
}

func SubmissionResult(err error) string {
	switch {
	case err == nil:
		return ResultCompleted
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return ResultEmpty
	case errors.Is(err, pipeline.ErrSubmissionInFlight):
		return ResultInFlight
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCancelled
	default:
		return ResultFailed
	}
}

// ObserveUpload 记录一次上传校验的结果。
func (m *Metrics) ObserveUpload(err error) {
	m.uploadValidations.WithLabelValues(UploadResult(err)).Inc()
}

func UploadResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, session.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, session.ErrTooLarge):
		return "too_large"
	default:
		return "error"
	}
}

// TrackSessions 注册活跃会话数指标，只能调用一次。
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions held in the registry.",
	}, func() float64 { return float64(count()) }))
}
