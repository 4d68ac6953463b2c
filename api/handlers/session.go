package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/relaykit/relay/agent"
	"github.com/relaykit/relay/agent/handoff"
	"github.com/relaykit/relay/api"
	"github.com/relaykit/relay/session"
	"github.com/relaykit/relay/types"
)

// =============================================================================
// 💬 会话 Handler
// =============================================================================

// SessionHandler 会话处理器：会话 CRUD + 消息路由
type SessionHandler struct {
	store        session.Store
	router       *handoff.Router
	trimmer      *session.Trimmer
	registry     *agent.Registry
	defaultAgent string
	logger       *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(
	store session.Store,
	router *handoff.Router,
	trimmer *session.Trimmer,
	registry *agent.Registry,
	defaultAgent string,
	logger *zap.Logger,
) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		store:        store,
		router:       router,
		trimmer:      trimmer,
		registry:     registry,
		defaultAgent: defaultAgent,
		logger:       logger.With(zap.String("component", "session_handler")),
	}
}

// HandleCreate 处理 POST /api/v1/sessions
// @Summary 创建会话
// @Accept json
// @Produce json
// @Param request body api.CreateSessionRequest true "创建请求"
// @Success 200 {object} api.SessionResponse "会话信息"
// @Failure 404 {object} Response "Agent 不存在"
// @Router /api/v1/sessions [post]
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if r.ContentLength > 0 {
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	agentName := strings.TrimSpace(req.Agent)
	if agentName == "" {
		agentName = h.defaultAgent
	}
	if _, ok := h.registry.Get(agentName); !ok {
		WriteError(w, types.NewError(types.ErrAgentNotFound, "agent not registered: "+agentName), h.logger)
		return
	}

	sess, err := h.store.Create(r.Context(), agentName)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("active_agent", sess.ActiveAgent),
	)

	WriteSuccess(w, sessionResponse(sess))
}

// HandleGet 处理 GET /api/v1/sessions/{id}
// @Summary 获取会话历史
// @Produce json
// @Success 200 {object} api.HistoryResponse "完整历史"
// @Failure 404 {object} Response "会话不存在"
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.HistoryResponse{
		ID:          sess.ID,
		ActiveAgent: sess.ActiveAgent,
		Messages:    sess.Messages,
	})
}

// HandleList 处理 GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"sessions": ids})
}

// HandleDelete 处理 DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"deleted": id})
}

// HandleMessage 处理 POST /api/v1/sessions/{id}/messages
//
// 路由流程：对除当前 Agent 外的每个候选按触发词打分，得分达到该候选
// 阈值则切换归属；无论是否切换，消息都追加进历史。
// @Summary 投递消息并路由
// @Accept json
// @Produce json
// @Param request body api.MessageRequest true "消息请求"
// @Success 200 {object} api.MessageResponse "路由结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "会话不存在"
// @Router /api/v1/sessions/{id}/messages [post]
func (h *SessionHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.MessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "content is required", h.logger)
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")

	sess, err := h.store.Get(ctx, id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	decision, err := h.router.Route(ctx, id, sess.ActiveAgent, req.Content)
	if err != nil {
		WriteError(w, types.NewError(types.ErrNoActiveAgent, "routing failed").WithCause(err), h.logger)
		return
	}

	// 历史永远追加，路由结果只决定归属
	msg := types.NewUserMessage(req.Content)
	if req.Metadata != nil {
		msg.Metadata = req.Metadata
	}
	if err := h.store.AppendMessage(ctx, id, msg); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if decision.Changed {
		if err := h.store.SetActiveAgent(ctx, id, decision.To); err != nil {
			WriteError(w, err, h.logger)
			return
		}
	}

	sess, err = h.store.Get(ctx, id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	window := sess.Messages
	if h.trimmer != nil {
		window = h.trimmer.Trim(window)
	}

	WriteSuccess(w, api.MessageResponse{
		SessionID:   sess.ID,
		ActiveAgent: sess.ActiveAgent,
		Handoff: api.HandoffInfo{
			From:      decision.From,
			To:        decision.To,
			Changed:   decision.Changed,
			Score:     decision.Score,
			Threshold: decision.Threshold,
			Scores:    decision.Scores,
			Reason:    decision.Reason,
		},
		Context: window,
	})
}

func sessionResponse(sess *session.Session) api.SessionResponse {
	return api.SessionResponse{
		ID:           sess.ID,
		ActiveAgent:  sess.ActiveAgent,
		MessageCount: len(sess.Messages),
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
}
