package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relaykit/relay/agent"
	"github.com/relaykit/relay/agent/handoff"
	"github.com/relaykit/relay/api/handlers"
	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/internal/cache"
	"github.com/relaykit/relay/internal/metrics"
	"github.com/relaykit/relay/internal/server"
	"github.com/relaykit/relay/internal/telemetry"
	"github.com/relaykit/relay/session"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Relay 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 路由核心
	registry *agent.Registry
	router   *handoff.Router
	store    session.Store
	trimmer  *session.Trimmer

	// 评分缓存（可选）
	scoreCache *cache.Manager

	// Handlers
	healthHandler  *handlers.HealthHandler
	sessionHandler *handlers.SessionHandler
	streamHandler  *handlers.StreamHandler

	// 指标收集器
	metricsCollector *metrics.Collector
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("relay", s.logger)

	// 2. 初始化路由核心（Agent 注册表、评分策略、交接路由器）
	if err := s.initRouting(); err != nil {
		return fmt.Errorf("failed to init routing: %w", err)
	}

	// 3. 初始化会话存储
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init session store: %w", err)
	}

	// 4. 初始化 Handlers
	s.initHandlers()

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("session_store", s.cfg.Session.Store),
		zap.String("scorer", s.cfg.Routing.Scorer),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initRouting 构建 Agent 注册表、评分策略与交接路由器
func (s *Server) initRouting() error {
	registry, err := agent.FromConfigs(s.cfg.Agents, s.logger)
	if err != nil {
		return fmt.Errorf("build agent registry: %w", err)
	}
	s.registry = registry

	rules, err := handoff.RulesFromConfig(s.cfg)
	if err != nil {
		return fmt.Errorf("build handoff rules: %w", err)
	}

	scorer, err := s.buildScorer()
	if err != nil {
		return err
	}

	s.router = handoff.NewRouter(registry, rules, scorer, handoff.RouterConfig{}, s.metricsCollector, s.logger)

	s.logger.Info("Routing initialized",
		zap.Strings("agents", registry.Names()),
		zap.String("default_agent", s.cfg.Routing.DefaultAgent),
	)
	return nil
}

// buildScorer 根据配置选择评分策略，可叠加 Redis 评分缓存。
// llm / embedding 策略需要调用方注入 Completer / Embedder，只能以库的
// 方式使用，relayd 不直接支持。
func (s *Server) buildScorer() (handoff.Scorer, error) {
	var scorer handoff.Scorer
	switch s.cfg.Routing.Scorer {
	case "", "keyword":
		scorer = handoff.NewKeywordScorer()
	case "regex":
		scorer = handoff.NewRegexScorer()
	case "llm", "embedding":
		return nil, fmt.Errorf("scorer %q requires an injected provider; embed relay as a library instead", s.cfg.Routing.Scorer)
	default:
		return nil, fmt.Errorf("unknown scorer: %s", s.cfg.Routing.Scorer)
	}

	if !s.cfg.Routing.CacheScores {
		return scorer, nil
	}

	scoreCache, err := cache.NewManager(s.cfg.Redis, s.cfg.Routing.CacheTTL, s.metricsCollector, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init score cache: %w", err)
	}
	s.scoreCache = scoreCache

	s.logger.Info("Score caching enabled", zap.Duration("ttl", s.cfg.Routing.CacheTTL))
	return handoff.NewCachedScorer(scorer, scoreCache, s.logger), nil
}

// initStore 根据配置选择会话存储后端
func (s *Server) initStore() error {
	var (
		store     session.Store
		storeName string
		err       error
	)
	switch s.cfg.Session.Store {
	case "", "memory":
		store = session.NewMemoryStore(s.logger)
		storeName = "memory"
	case "redis":
		store, err = session.NewRedisStore(s.cfg.Redis, s.cfg.Session.TTL, s.logger)
		storeName = "redis"
	case "database":
		store, err = session.OpenGormStore(s.cfg.Database, s.logger)
		storeName = "database"
	default:
		return fmt.Errorf("unknown session store: %s", s.cfg.Session.Store)
	}
	if err != nil {
		return err
	}

	// 所有存储操作经过指标装饰器，暴露 sessions_open 与 op 延迟
	s.store = session.NewInstrumentedStore(store, storeName, s.metricsCollector)
	s.trimmer = session.NewTrimmer(s.cfg.Session, s.logger)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	// 健康检查 handler：会话存储与评分缓存作为就绪检查项
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("session_store", s.store.Ping))
	if s.scoreCache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("score_cache", s.scoreCache.Ping))
	}

	// 会话 handler
	s.sessionHandler = handlers.NewSessionHandler(
		s.store, s.router, s.trimmer, s.registry, s.cfg.Routing.DefaultAgent, s.logger)

	// 交接事件流 handler
	s.streamHandler = handlers.NewStreamHandler(s.router, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 会话 API 路由
	// ========================================
	mux.HandleFunc("POST /api/v1/sessions", s.sessionHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", s.sessionHandler.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.sessionHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.sessionHandler.HandleDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", s.sessionHandler.HandleMessage)

	// ========================================
	// 交接事件 WebSocket 流
	// ========================================
	mux.HandleFunc("GET /ws/handoffs", s.streamHandler.HandleHandoffs)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/ready", "/version", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Server.JWT.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
		s.logger.Info("JWT authentication enabled")
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭评分缓存与会话存储
	if s.scoreCache != nil {
		if err := s.scoreCache.Close(); err != nil {
			s.logger.Error("Score cache close error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Session store close error", zap.Error(err))
		}
	}

	// 4. 关闭遥测
	if s.providers != nil {
		if err := s.providers.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
