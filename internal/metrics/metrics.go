package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tool metrics
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_andy_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audience_andy_tool_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	ToolCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_andy_tool_cache_lookups_total",
			Help: "Tool result cache lookups",
		},
		[]string{"tool", "result"},
	)

	// Workflow metrics
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_andy_stage_runs_total",
			Help: "Total number of workflow stage runs",
		},
		[]string{"stage", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audience_andy_stage_duration_seconds",
			Help:    "Workflow stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_andy_llm_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"kind", "model", "status"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_andy_llm_tokens_total",
			Help: "Tokens consumed by language model calls",
		},
		[]string{"model", "direction"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audience_andy_llm_cost_usd_total",
			Help: "Estimated language model spend in USD",
		},
		[]string{"model"},
	)
)

// RecordTool records one tool execution.
func RecordTool(tool string, success bool, seconds float64) {
	ToolExecutions.WithLabelValues(tool, statusLabel(success)).Inc()
	ToolDuration.WithLabelValues(tool).Observe(seconds)
}

// RecordStage records one stage run.
func RecordStage(stage string, success bool, seconds float64) {
	StageRuns.WithLabelValues(stage, statusLabel(success)).Inc()
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordLLMUsage records token counts and spend for one model call.
func RecordLLMUsage(modelName string, promptTokens, completionTokens int, costUSD float64) {
	LLMTokens.WithLabelValues(modelName, "prompt").Add(float64(promptTokens))
	LLMTokens.WithLabelValues(modelName, "completion").Add(float64(completionTokens))
	if costUSD > 0 {
		LLMCostUSD.WithLabelValues(modelName).Add(costUSD)
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
