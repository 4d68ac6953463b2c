package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 路由指标
	routeDecisionsTotal *prometheus.CounterVec
	routeDuration       prometheus.Histogram
	handoffsTotal       *prometheus.CounterVec
	triggerScores       *prometheus.HistogramVec

	// 会话指标
	sessionsOpen     *prometheus.GaugeVec
	sessionOpsTotal  *prometheus.CounterVec
	sessionOpSeconds *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 路由指标
	c.routeDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"outcome"}, // outcome: handoff, stay
	)

	c.routeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "Routing decision duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		},
	)

	c.handoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of agent handoffs",
		},
		[]string{"from", "to"},
	)

	c.triggerScores = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trigger_score",
			Help:      "Distribution of trigger match scores per candidate agent",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"agent"},
	)

	// 会话指标
	c.sessionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Number of open sessions",
		},
		[]string{"store"},
	)

	c.sessionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_store_ops_total",
			Help:      "Total number of session store operations",
		},
		[]string{"store", "op", "status"},
	)

	c.sessionOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_store_op_duration_seconds",
			Help:      "Session store operation duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"store", "op"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求指标
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveRouteDecision 记录一次路由决策
func (c *Collector) ObserveRouteDecision(from, to string, changed bool, duration time.Duration) {
	outcome := "stay"
	if changed {
		outcome = "handoff"
		c.handoffsTotal.WithLabelValues(from, to).Inc()
	}
	c.routeDecisionsTotal.WithLabelValues(outcome).Inc()
	c.routeDuration.Observe(duration.Seconds())
}

// ObserveScore 记录候选 Agent 的触发评分
func (c *Collector) ObserveScore(agent string, score float64) {
	c.triggerScores.WithLabelValues(agent).Observe(score)
}

// ObserveSessionOp 记录会话存储操作
func (c *Collector) ObserveSessionOp(store, op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.sessionOpsTotal.WithLabelValues(store, op, status).Inc()
	c.sessionOpSeconds.WithLabelValues(store, op).Observe(duration.Seconds())
}

// SetSessionsOpen 设置当前打开的会话数
func (c *Collector) SetSessionsOpen(store string, n float64) {
	c.sessionsOpen.WithLabelValues(store).Set(n)
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}
