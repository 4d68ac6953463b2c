package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaykit/relay/agent"
	"github.com/relaykit/relay/agent/handoff"
	"github.com/relaykit/relay/api"
	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/session"
	"github.com/relaykit/relay/types"
)

// =============================================================================
// 🧪 会话 Handler 测试
// =============================================================================

func newTestSessionHandler(t *testing.T, trimmer *session.Trimmer) (*SessionHandler, session.Store) {
	t.Helper()

	agentCfgs := []config.AgentConfig{
		{Name: "sales", Triggers: []string{"pricing", "plan", "upgrade"}},
		{Name: "billing", Triggers: []string{"payment", "invoice", "refund"}},
		{Name: "support", Triggers: []string{"error", "bug", "crash"}},
	}
	cfg := &config.Config{
		Agents:  agentCfgs,
		Routing: config.RoutingConfig{DefaultThreshold: 0.6, DefaultAgent: "sales"},
	}

	registry, err := agent.FromConfigs(agentCfgs, zap.NewNop())
	require.NoError(t, err)

	rules, err := handoff.RulesFromConfig(cfg)
	require.NoError(t, err)

	router := handoff.NewRouter(registry, rules, handoff.NewKeywordScorer(), handoff.RouterConfig{}, nil, zap.NewNop())
	store := session.NewMemoryStore(zap.NewNop())

	return NewSessionHandler(store, router, trimmer, registry, "sales", zap.NewNop()), store
}

func postJSON(t *testing.T, handler http.HandlerFunc, target, body string, pathID string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if pathID != "" {
		r.SetPathValue("id", pathID)
	}
	handler(w, r)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestSessionHandler_Create(t *testing.T) {
	h, _ := newTestSessionHandler(t, nil)

	w := postJSON(t, h.HandleCreate, "/api/v1/sessions", `{"agent":"billing"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeData[api.SessionResponse](t, w)
	assert.True(t, strings.HasPrefix(got.ID, "sess_"))
	assert.Equal(t, "billing", got.ActiveAgent)
	assert.Zero(t, got.MessageCount)
}

func TestSessionHandler_Create_DefaultsAgent(t *testing.T) {
	h, _ := newTestSessionHandler(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	h.HandleCreate(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeData[api.SessionResponse](t, w)
	assert.Equal(t, "sales", got.ActiveAgent)
}

func TestSessionHandler_Create_UnknownAgent(t *testing.T) {
	h, _ := newTestSessionHandler(t, nil)

	w := postJSON(t, h.HandleCreate, "/api/v1/sessions", `{"agent":"ghost"}`, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrAgentNotFound), resp.Error.Code)
}

func TestSessionHandler_Get(t *testing.T) {
	h, store := newTestSessionHandler(t, nil)

	sess, err := store.Create(context.Background(), "support")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(context.Background(), sess.ID, types.NewUserMessage("hello")))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID, nil)
	r.SetPathValue("id", sess.ID)
	h.HandleGet(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeData[api.HistoryResponse](t, w)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "support", got.ActiveAgent)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestSessionHandler_Get_NotFound(t *testing.T) {
	h, _ := newTestSessionHandler(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess_missing", nil)
	r.SetPathValue("id", "sess_missing")
	h.HandleGet(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_Message_HandsOff(t *testing.T) {
	h, store := newTestSessionHandler(t, nil)

	sess, err := store.Create(context.Background(), "sales")
	require.NoError(t, err)

	w := postJSON(t, h.HandleMessage, "/api/v1/sessions/"+sess.ID+"/messages",
		`{"content":"I'm interested in your premium plan but I'm having trouble with payment"}`, sess.ID)
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeData[api.MessageResponse](t, w)
	assert.Equal(t, "billing", got.ActiveAgent)
	assert.True(t, got.Handoff.Changed)
	assert.Equal(t, "sales", got.Handoff.From)
	assert.Equal(t, "billing", got.Handoff.To)
	assert.GreaterOrEqual(t, got.Handoff.Score, got.Handoff.Threshold)

	// 存储层同步更新：归属与历史
	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", stored.ActiveAgent)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, types.RoleUser, stored.Messages[0].Role)
}

func TestSessionHandler_Message_StaysWithActiveAgent(t *testing.T) {
	h, store := newTestSessionHandler(t, nil)

	sess, err := store.Create(context.Background(), "sales")
	require.NoError(t, err)

	w := postJSON(t, h.HandleMessage, "/api/v1/sessions/"+sess.ID+"/messages",
		`{"content":"tell me more about what you offer"}`, sess.ID)
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeData[api.MessageResponse](t, w)
	assert.Equal(t, "sales", got.ActiveAgent)
	assert.False(t, got.Handoff.Changed)

	// 未交接时历史同样追加
	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
}

func TestSessionHandler_Message_Validation(t *testing.T) {
	h, store := newTestSessionHandler(t, nil)

	sess, err := store.Create(context.Background(), "sales")
	require.NoError(t, err)

	t.Run("empty content", func(t *testing.T) {
		w := postJSON(t, h.HandleMessage, "/api/v1/sessions/"+sess.ID+"/messages", `{"content":"  "}`, sess.ID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/messages", strings.NewReader("content=hi"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.SetPathValue("id", sess.ID)
		h.HandleMessage(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		w := postJSON(t, h.HandleMessage, "/api/v1/sessions/sess_missing/messages", `{"content":"hi"}`, "sess_missing")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	// 校验失败不得污染历史
	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Messages)
}

func TestSessionHandler_Message_TrimsContextNotHistory(t *testing.T) {
	trimmer := session.NewTrimmer(config.SessionConfig{MaxMessages: 2}, zap.NewNop())
	h, store := newTestSessionHandler(t, trimmer)

	sess, err := store.Create(context.Background(), "sales")
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, store.AppendMessage(context.Background(), sess.ID, types.NewUserMessage(content)))
	}

	w := postJSON(t, h.HandleMessage, "/api/v1/sessions/"+sess.ID+"/messages", `{"content":"four"}`, sess.ID)
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeData[api.MessageResponse](t, w)
	require.Len(t, got.Context, 2)
	assert.Equal(t, "three", got.Context[0].Content)
	assert.Equal(t, "four", got.Context[1].Content)

	// 完整历史仍然保留
	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4)
}

func TestSessionHandler_DeleteAndList(t *testing.T) {
	h, store := newTestSessionHandler(t, nil)

	first, err := store.Create(context.Background(), "sales")
	require.NoError(t, err)
	second, err := store.Create(context.Background(), "billing")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	h.HandleList(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decodeData[map[string][]string](t, w)
	assert.Len(t, listed["sessions"], 2)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+first.ID, nil)
	r.SetPathValue("id", first.ID)
	h.HandleDelete(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = store.Get(context.Background(), first.ID)
	require.Error(t, err)
	_, err = store.Get(context.Background(), second.ID)
	require.NoError(t, err)
}
