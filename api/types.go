package api

import (
	"time"

	"github.com/relaykit/relay/types"
)

// =============================================================================
// 会话类型
// =============================================================================

// CreateSessionRequest 创建会话请求。
// @Description 创建会话请求结构
type CreateSessionRequest struct {
	// 初始归属的 Agent 名称；为空时使用配置的默认 Agent
	Agent string `json:"agent,omitempty" example:"sales"`
}

// SessionResponse 会话信息响应。
// @Description 会话信息结构
type SessionResponse struct {
	// 会话 ID
	ID string `json:"id" example:"sess_9f2c"`
	// 当前归属 Agent
	ActiveAgent string `json:"active_agent" example:"sales"`
	// 历史消息数
	MessageCount int `json:"message_count" example:"4"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
	// 最后更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryResponse 会话历史响应。
// @Description 会话历史结构
type HistoryResponse struct {
	// 会话 ID
	ID string `json:"id"`
	// 当前归属 Agent
	ActiveAgent string `json:"active_agent"`
	// 完整历史（追加顺序）
	Messages []types.Message `json:"messages"`
}

// =============================================================================
// 消息路由类型
// =============================================================================

// MessageRequest 向会话投递一条用户消息。
// @Description 消息请求结构
type MessageRequest struct {
	// 消息正文
	Content string `json:"content" binding:"required" example:"having trouble with payment"`
	// 自定义元数据
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageResponse 路由结果响应。
// @Description 消息路由结果结构
type MessageResponse struct {
	// 会话 ID
	SessionID string `json:"session_id"`
	// 路由后的归属 Agent
	ActiveAgent string `json:"active_agent" example:"billing"`
	// 本次路由决策
	Handoff HandoffInfo `json:"handoff"`
	// 交给 Agent 的上下文窗口（历史裁剪后）
	Context []types.Message `json:"context"`
}

// HandoffInfo 单次路由决策详情。
// @Description 路由决策结构
type HandoffInfo struct {
	// 路由前的 Agent
	From string `json:"from" example:"sales"`
	// 路由后的 Agent
	To string `json:"to" example:"billing"`
	// 是否发生切换
	Changed bool `json:"changed"`
	// 胜出候选的得分
	Score float64 `json:"score" example:"1"`
	// 胜出候选的阈值
	Threshold float64 `json:"threshold" example:"0.7"`
	// 各候选得分
	Scores map[string]float64 `json:"scores,omitempty"`
	// 决策原因
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// 事件流类型
// =============================================================================

// HandoffEvent 推送到 websocket 订阅者的切换事件。
// @Description 切换事件结构
type HandoffEvent struct {
	// 会话 ID
	SessionID string `json:"session_id"`
	// 路由前的 Agent
	From string `json:"from"`
	// 路由后的 Agent
	To string `json:"to"`
	// 胜出候选的得分
	Score float64 `json:"score"`
	// 发生时间
	At time.Time `json:"at"`
}
