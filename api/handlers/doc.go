// Copyright (c) Relay Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 relay HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 relay 所有 HTTP 端点的请求处理逻辑，
包括会话管理、消息路由、切换事件流、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - SessionHandler   — 会话 CRUD 与消息路由（评分 → 阈值比较 → 切换）
  - StreamHandler    — websocket 切换事件流
  - HealthHandler    — 服务健康检查（/health, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - HealthCheck      — 可插拔健康检查接口（Store、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
