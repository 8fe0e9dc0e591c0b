package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 与 CLI 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ChatTurnsTotal, EscalationsTotal, QualityRejectionsTotal,
		LLMDuration, ToolDuration, RateLimitWaitSeconds,
		LearnedNotesTotal,
	)
}

// ChatTurnsTotal 对话轮数（按最终回覆来源）
var ChatTurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "perfume_chat_turns_total",
		Help: "对话轮数（按回覆来源）",
	},
	[]string{"engine"}, // retrieval-only | primary-model | escalation-model | tool-authority | weather | error
)

// EscalationsTotal 升级到高阶模型的次数
var EscalationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "perfume_escalations_total",
		Help: "升级到高阶模型的次数",
	},
	[]string{"reason"}, // forced | primary_error | quality | correction | no_hits | uncertain
)

// QualityRejectionsTotal 一级模型输出被质量门槛拒绝的次数
var QualityRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "perfume_quality_rejections_total",
		Help: "一级模型输出被拒绝次数",
	},
	[]string{"reason"}, // garbled | english | short
)

// LLMDuration LLM 调用耗时（秒）
var LLMDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "perfume_llm_duration_seconds",
		Help:    "LLM 调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "perfume_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// RateLimitWaitSeconds 限流等待耗时
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "perfume_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	},
	[]string{"kind", "provider"},
)

// LearnedNotesTotal 自动学习结果
var LearnedNotesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "perfume_learned_notes_total",
		Help: "自动学习笔记（按结果）",
	},
	[]string{"result"}, // persisted | skipped | rejected | gated
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
