package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/relaykit/relay/agent/handoff"
	"github.com/relaykit/relay/api"
)

// =============================================================================
// 🔔 交接事件 WebSocket 流
// =============================================================================

// StreamHandler 交接事件流处理器：把路由器发布的交接决策推送给订阅客户端
type StreamHandler struct {
	router *handoff.Router
	logger *zap.Logger
}

// NewStreamHandler 创建交接事件流处理器
func NewStreamHandler(router *handoff.Router, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		router: router,
		logger: logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleHandoffs 处理 GET /ws/handoffs
//
// 升级为 WebSocket 后持续推送交接事件；可选查询参数 session_id 只
// 订阅单个会话。连接断开或上下文取消时自动退订。
func (h *StreamHandler) HandleHandoffs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	events, cancel := h.router.Subscribe()
	defer cancel()

	h.logger.Info("handoff stream opened",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("session_id", sessionID),
	)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case decision, ok := <-events:
			if !ok {
				return
			}
			if sessionID != "" && decision.SessionID != sessionID {
				continue
			}
			event := api.HandoffEvent{
				SessionID: decision.SessionID,
				From:      decision.From,
				To:        decision.To,
				Score:     decision.Score,
				At:        decision.At,
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("marshal handoff event", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("handoff stream closed by peer", zap.Error(err))
				return
			}
		}
	}
}
