// Package config 提供 TOML 配置加载、默认值与环境变量覆盖
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Outbox 中继配置
	Outbox OutboxConfig `mapstructure:"outbox"`
	// 消费者可靠性配置
	Consumer ConsumerConfig `mapstructure:"consumer"`
	// 幂等保护配置
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	// HTTP 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql
	Driver string `mapstructure:"driver"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host"`
	// 端口
	Port int `mapstructure:"port"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size"`
	// 余额缓存过期时间（秒）
	CacheTTL int `mapstructure:"cache_ttl"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// Consumer Group ID
	GroupID string `mapstructure:"group_id"`
	// 消费者会话超时（秒）
	SessionTimeout int `mapstructure:"session_timeout"`
	// 生产者最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 生产者重试间隔（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// OutboxConfig Outbox 中继配置
type OutboxConfig struct {
	// 单次认领批量大小
	BatchSize int `mapstructure:"batch_size"`
	// 轮询间隔（毫秒）
	PollInterval int `mapstructure:"poll_interval"`
	// 最大发布尝试次数，超出后标记 DEAD
	MaxAttempts int `mapstructure:"max_attempts"`
	// 重试退避基数（毫秒）
	BackoffBase int `mapstructure:"backoff_base"`
	// 重试退避上限（毫秒）
	BackoffCap int `mapstructure:"backoff_cap"`
	// 是否对退避加抖动
	BackoffJitter bool `mapstructure:"backoff_jitter"`
	// PROCESSING 行视为滞留的阈值（秒）
	StaleAfter int `mapstructure:"stale_after"`
}

// ConsumerConfig 消费者可靠性配置
type ConsumerConfig struct {
	// 单条消息最大处理尝试次数
	MaxAttempts int `mapstructure:"max_attempts"`
	// 重试退避基数（毫秒）
	BackoffBase int `mapstructure:"backoff_base"`
	// 重试退避倍率
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	// 重试退避上限（毫秒）
	BackoffCap int `mapstructure:"backoff_cap"`
	// 死信时是否剥离原始载荷
	DLQStripPayload bool `mapstructure:"dlq_strip_payload"`
}

// IdempotencyConfig 幂等保护配置
type IdempotencyConfig struct {
	// 幂等记录保留时长（秒），仅作记账，不做淘汰
	TTL int `mapstructure:"ttl"`
}

// RateLimitConfig HTTP 限流配置
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// 每秒允许的请求数
	QPS int `mapstructure:"qps"`
	// 突发容量
	Burst int `mapstructure:"burst"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	// 日志级别
	Level string `mapstructure:"level"`
	// 输出格式
	Format string `mapstructure:"format"`
	// 输出目标
	Output string `mapstructure:"output"`
	// 文件路径
	FilePath string `mapstructure:"file_path"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age"`
	// 是否压缩
	Compress bool `mapstructure:"compress"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// Load 从 TOML 文件加载配置，设置默认值并支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("SPOTLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch_size must be positive: %d", c.Outbox.BatchSize)
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox max_attempts must be positive: %d", c.Outbox.MaxAttempts)
	}
	if c.Consumer.MaxAttempts <= 0 {
		return fmt.Errorf("consumer max_attempts must be positive: %d", c.Consumer.MaxAttempts)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.cache_ttl", 30)

	v.SetDefault("kafka.session_timeout", 10)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 500)
	v.SetDefault("outbox.max_attempts", 25)
	v.SetDefault("outbox.backoff_base", 1000)
	v.SetDefault("outbox.backoff_cap", 300000)
	v.SetDefault("outbox.backoff_jitter", true)
	v.SetDefault("outbox.stale_after", 60)

	v.SetDefault("consumer.max_attempts", 5)
	v.SetDefault("consumer.backoff_base", 200)
	v.SetDefault("consumer.backoff_multiplier", 2.0)
	v.SetDefault("consumer.backoff_cap", 10000)
	v.SetDefault("consumer.dlq_strip_payload", false)

	v.SetDefault("idempotency.ttl", 86400)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.qps", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
