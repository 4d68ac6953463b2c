// Copyright (c) Relay Authors.
// Licensed under the MIT License.

/*
Package main 提供 Relay 服务端程序入口。

# 概述

cmd/relayd 是 Relay 交接路由器的可执行入口，提供会话 HTTP API、
交接事件 WebSocket 流、健康检查和版本查询等子命令。程序支持 YAML
配置文件加载、结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry
链路追踪。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、JWTAuth（Authorization: Bearer，HS256 / RS256）
  - 会话存储工厂：memory / redis / database（postgres、mysql、sqlite）
  - 评分策略工厂：keyword / regex，可叠加 Redis 评分缓存
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 关闭存储/遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
