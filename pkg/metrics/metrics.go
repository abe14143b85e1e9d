// Package metrics 提供 Prometheus helper，覆盖钱包操作、outbox 中继与消费者的核心指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/spotledger/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数（按方法、路径、状态码）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 钱包操作计数（按操作与结果）
	WalletOpsTotal *prometheus.CounterVec

	// Outbox 认领行数
	OutboxClaimedTotal prometheus.Counter
	// Outbox 发布成功行数
	OutboxPublishedTotal prometheus.Counter
	// Outbox 发布失败（进入退避）行数
	OutboxFailedTotal prometheus.Counter
	// Outbox 进入 DEAD 的行数
	OutboxDeadTotal prometheus.Counter
	// Outbox 单轮耗时
	OutboxCycleDuration prometheus.Histogram

	// 消费成功计数
	ConsumerSuccessTotal *prometheus.CounterVec
	// 消费重试计数
	ConsumerRetriesTotal *prometheus.CounterVec
	// 死信计数
	ConsumerDeadLetteredTotal *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}),
		WalletOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "wallet_ops_total",
			Help:      "Wallet engine operations by operation and outcome",
		}, []string{"op", "outcome"}),
		OutboxClaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "outbox_claimed_total",
			Help:      "Outbox rows claimed for publishing",
		}),
		OutboxPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "outbox_published_total",
			Help:      "Outbox rows successfully published",
		}),
		OutboxFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "outbox_failed_total",
			Help:      "Outbox publish failures scheduled for retry",
		}),
		OutboxDeadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "outbox_dead_total",
			Help:      "Outbox rows marked DEAD after exhausting attempts",
		}),
		OutboxCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "outbox_cycle_duration_seconds",
			Help:      "Duration of one outbox relay cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		ConsumerSuccessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "consumer_success_total",
			Help:      "Messages handled successfully by topic",
		}, []string{"topic"}),
		ConsumerRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "consumer_retries_total",
			Help:      "Handler retries by topic",
		}, []string{"topic"}),
		ConsumerDeadLetteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotledger",
			Subsystem: serviceName,
			Name:      "consumer_dead_lettered_total",
			Help:      "Messages dead-lettered by topic",
		}, []string{"topic"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WalletOpsTotal,
		m.OutboxClaimedTotal,
		m.OutboxPublishedTotal,
		m.OutboxFailedTotal,
		m.OutboxDeadTotal,
		m.OutboxCycleDuration,
		m.ConsumerSuccessTotal,
		m.ConsumerRetriesTotal,
		m.ConsumerDeadLetteredTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "failed to register metric", "error", err)
			return err
		}
	}

	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "starting metrics server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "metrics server failed", "error", err)
		}
	}()
}
