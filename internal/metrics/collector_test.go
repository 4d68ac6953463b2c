package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.routeDecisionsTotal)
	assert.NotNil(t, collector.handoffsTotal)
	assert.NotNil(t, collector.triggerScores)
	assert.NotNil(t, collector.sessionsOpen)
}

func TestCollector_ObserveRouteDecision(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// 一次保持、一次切换
	collector.ObserveRouteDecision("sales", "sales", false, time.Millisecond)
	collector.ObserveRouteDecision("sales", "billing", true, 2*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(collector.routeDecisionsTotal), 0)
	// 只有切换会计入 handoffs_total
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.handoffsTotal.WithLabelValues("sales", "billing")))
}

func TestCollector_ObserveScore(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveScore("billing", 0.85)
	collector.ObserveScore("support", 0.0)

	assert.Greater(t, testutil.CollectAndCount(collector.triggerScores), 0)
}

func TestCollector_ObserveSessionOp(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveSessionOp("memory", "append", time.Millisecond, nil)
	collector.ObserveSessionOp("redis", "get", time.Millisecond, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.sessionOpsTotal.WithLabelValues("memory", "append", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.sessionOpsTotal.WithLabelValues("redis", "get", "error")))
}

func TestCollector_SessionsAndCache(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetSessionsOpen("memory", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.sessionsOpen.WithLabelValues("memory")))

	collector.RecordCacheHit("score")
	collector.RecordCacheMiss("score")
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheHits.WithLabelValues("score")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("score")))
}
