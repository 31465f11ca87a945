// Package metrics 通过 Prometheus 暴露网关的运行指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletmcp",
		Name:      "requests_total",
		Help:      "按传输与方法统计的请求总数。",
	}, []string{"transport", "method", "code"})

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletmcp",
		Name:      "tool_call_duration_seconds",
		Help:      "工具调用耗时分布。",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"tool"})

	activeSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletmcp",
		Name:      "active_sessions",
		Help:      "按传输类型统计的活跃会话数。",
	}, []string{"transport"})

	txTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletmcp",
		Name:      "tx_state_transitions_total",
		Help:      "交易记录状态推进次数。",
	}, []string{"state"})
)

// ObserveRequest 记录一次协议请求。code 为统一错误码，成功时为 "OK"。
func ObserveRequest(transport, method, code string) {
	requestsTotal.WithLabelValues(transport, method, code).Inc()
}

// ObserveToolCall 记录一次工具调用耗时。
func ObserveToolCall(tool string, duration time.Duration) {
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// SessionOpened 登记一个新会话。
func SessionOpened(transport string) {
	activeSessions.WithLabelValues(transport).Inc()
}

// SessionClosed 注销一个会话。
func SessionClosed(transport string) {
	activeSessions.WithLabelValues(transport).Dec()
}

// TxTransition 记录一次交易状态推进。
func TxTransition(state string) {
	txTransitions.WithLabelValues(state).Inc()
}
