package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaykit/relay/agent"
	"github.com/relaykit/relay/agent/handoff"
	"github.com/relaykit/relay/api"
	"github.com/relaykit/relay/config"
)

// =============================================================================
// 🧪 交接事件流测试
// =============================================================================

func newStreamRouter(t *testing.T) *handoff.Router {
	t.Helper()

	agentCfgs := []config.AgentConfig{
		{Name: "sales", Triggers: []string{"pricing"}},
		{Name: "billing", Triggers: []string{"payment"}},
	}
	cfg := &config.Config{
		Agents:  agentCfgs,
		Routing: config.RoutingConfig{DefaultThreshold: 0.6},
	}

	registry, err := agent.FromConfigs(agentCfgs, zap.NewNop())
	require.NoError(t, err)
	rules, err := handoff.RulesFromConfig(cfg)
	require.NoError(t, err)

	return handoff.NewRouter(registry, rules, handoff.NewKeywordScorer(), handoff.RouterConfig{}, nil, zap.NewNop())
}

// publishUntil 周期性触发交接，直到测试结束；绕开订阅建立与发布的竞态。
func publishUntil(t *testing.T, router *handoff.Router, sessionID string) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_, _ = router.Route(context.Background(), sessionID, "sales", "payment failed")
			}
		}
	}()
}

func TestStreamHandler_PublishesHandoffEvents(t *testing.T) {
	router := newStreamRouter(t)
	h := NewStreamHandler(router, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(h.HandleHandoffs))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	publishUntil(t, router, "sess-stream")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event api.HandoffEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "sess-stream", event.SessionID)
	assert.Equal(t, "sales", event.From)
	assert.Equal(t, "billing", event.To)
	assert.GreaterOrEqual(t, event.Score, 0.6)
	assert.False(t, event.At.IsZero())
}

func TestStreamHandler_FiltersBySession(t *testing.T) {
	router := newStreamRouter(t)
	h := NewStreamHandler(router, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(h.HandleHandoffs))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session_id=sess-b"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	publishUntil(t, router, "sess-a")
	publishUntil(t, router, "sess-b")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event api.HandoffEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "sess-b", event.SessionID)
}
