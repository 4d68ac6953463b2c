// =============================================================================
// 📦 Relay 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 密钥文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("relay.yaml").
//	    WithSecretsPath("relay.secrets.yaml").
//	    WithEnvPrefix("RELAY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 密钥文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Relay 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agents Agent 声明（名称、指令、触发规则）
	Agents []AgentConfig `yaml:"agents" env:"-"`

	// Routing 路由配置
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`

	// Session 会话配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Redis 缓存 / 会话存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Secrets 密钥配置（从独立密钥文件合并）
	Secrets SecretsConfig `yaml:"secrets" env:"SECRETS"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// JWT 认证配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC 密钥（HS256）
	Secret string `yaml:"secret" env:"SECRET"`
	// RSA 公钥 PEM（RS256，可选）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 期望的签发者（可选）
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的受众（可选）
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// AgentConfig 声明一个 Agent 及其触发规则。
// Agent 在启动时构建，运行期间不可变。
type AgentConfig struct {
	// 名称（唯一）
	Name string `yaml:"name"`
	// 指令（角色描述）
	Instruction string `yaml:"instruction"`
	// 可调用的外部工具服务器名称
	Servers []string `yaml:"servers"`
	// 触发关键词 / 短语集合（顺序无关）
	Triggers []string `yaml:"triggers"`
	// 置信度阈值 [0,1]；为 0 时使用 routing.default_threshold
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// RoutingConfig 路由配置
type RoutingConfig struct {
	// 评分策略: keyword, regex, llm, embedding
	Scorer string `yaml:"scorer" env:"SCORER"`
	// 会话初始 Agent 名称
	DefaultAgent string `yaml:"default_agent" env:"DEFAULT_AGENT"`
	// 未显式配置阈值时的默认阈值
	DefaultThreshold float64 `yaml:"default_threshold" env:"DEFAULT_THRESHOLD"`
	// 是否缓存评分结果（llm / embedding 策略建议开启）
	CacheScores bool `yaml:"cache_scores" env:"CACHE_SCORES"`
	// 评分缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	// 存储类型: memory, redis, database
	Store string `yaml:"store" env:"STORE"`
	// 上下文窗口最大消息数（0 表示不限制）
	MaxMessages int `yaml:"max_messages" env:"MAX_MESSAGES"`
	// 上下文窗口 Token 预算（0 表示不限制）
	TokenBudget int `yaml:"token_budget" env:"TOKEN_BUDGET"`
	// Token 计数使用的模型编码
	TrimModel string `yaml:"trim_model" env:"TRIM_MODEL"`
	// 会话过期时间（仅 redis 存储生效，0 表示不过期）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// Key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// SecretsConfig 外部服务密钥。
// 评分策略在需要时从这里取 API Key；框架自身不发起任何 LLM 调用。
type SecretsConfig struct {
	// OpenAI API Key
	OpenAIAPIKey string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	// Anthropic API Key
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath  string
	secretsPath string
	envPrefix   string
	validators  []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RELAY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSecretsPath 设置密钥文件路径
func (l *Loader) WithSecretsPath(path string) *Loader {
	l.secretsPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 密钥文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg, l.configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 合并密钥文件
	if l.secretsPath != "" {
		if err := l.loadSecrets(cfg); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	// 4. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadSecrets 从密钥文件合并密钥。
// 密钥文件只包含 secrets 段，避免把 API Key 写进主配置文件。
func (l *Loader) loadSecrets(cfg *Config) error {
	data, err := os.ReadFile(l.secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	var wrapper struct {
		Secrets SecretsConfig `yaml:"secrets"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("failed to parse secrets file: %w", err)
	}

	if wrapper.Secrets.OpenAIAPIKey != "" {
		cfg.Secrets.OpenAIAPIKey = wrapper.Secrets.OpenAIAPIKey
	}
	if wrapper.Secrets.AnthropicAPIKey != "" {
		cfg.Secrets.AnthropicAPIKey = wrapper.Secrets.AnthropicAPIKey
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// 已知的评分策略与会话存储类型
var (
	knownScorers = map[string]bool{"keyword": true, "regex": true, "llm": true, "embedding": true}
	knownStores  = map[string]bool{"memory": true, "redis": true, "database": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	// 验证路由配置
	if !knownScorers[c.Routing.Scorer] {
		errs = append(errs, fmt.Sprintf("unknown scorer %q", c.Routing.Scorer))
	}
	if c.Routing.DefaultThreshold < 0 || c.Routing.DefaultThreshold > 1 {
		errs = append(errs, "default_threshold must be in [0,1]")
	}

	// 验证会话配置
	if !knownStores[c.Session.Store] {
		errs = append(errs, fmt.Sprintf("unknown session store %q", c.Session.Store))
	}

	// 验证 Agent 声明：至少要有一个 Agent，否则路由无事可做
	if len(c.Agents) == 0 {
		errs = append(errs, "at least one agent must be declared")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, "agent with empty name")
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Sprintf("duplicate agent name %q", a.Name))
		}
		seen[a.Name] = true
		if a.ConfidenceThreshold < 0 || a.ConfidenceThreshold > 1 {
			errs = append(errs, fmt.Sprintf("agent %q: confidence_threshold must be in [0,1]", a.Name))
		}
	}
	if c.Routing.DefaultAgent != "" && !seen[c.Routing.DefaultAgent] {
		errs = append(errs, fmt.Sprintf("default_agent %q not declared in agents", c.Routing.DefaultAgent))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Threshold 返回 Agent 的生效阈值：显式配置优先，否则回退到默认阈值。
func (c *Config) Threshold(a AgentConfig) float64 {
	if a.ConfidenceThreshold > 0 {
		return a.ConfidenceThreshold
	}
	return c.Routing.DefaultThreshold
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
