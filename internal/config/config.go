package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// APIConfig 参数 API 配置
type APIConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// RateLimitConfig 写操作限流
type RateLimitConfig struct {
	RatePerSec int `mapstructure:"ratePerSec"`
	Burst      int `mapstructure:"burst"`
}

// AuthConfig API Key 认证
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// 通道类型
const (
	ChannelWebSocket = "websocket"
	ChannelSerial    = "serial"
	ChannelTCP       = "tcp"
)

// ChannelConfig 与总线之间的传输通道
type ChannelConfig struct {
	Kind         string        `mapstructure:"kind"`
	URL          string        `mapstructure:"url"`  // websocket
	Port         string        `mapstructure:"port"` // serial
	Baud         int           `mapstructure:"baud"`
	Addr         string        `mapstructure:"addr"` // tcp
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// ProtocolConfig 参数协议时序
type ProtocolConfig struct {
	ScanWindow       time.Duration `mapstructure:"scanWindow"`
	ParamTimeout     time.Duration `mapstructure:"paramTimeout"`
	MaxAttempts      int           `mapstructure:"maxAttempts"`
	SettleDelay      time.Duration `mapstructure:"settleDelay"`
	LinkPollInterval time.Duration `mapstructure:"linkPollInterval"`
	EnforceCRC       bool          `mapstructure:"enforceCRC"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig 事件发布使用的 Redis
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Channel      string        `mapstructure:"channel"`
}

// EventsConfig 本地事件缓冲
type EventsConfig struct {
	RingSize  int `mapstructure:"ringSize"`
	QueueSize int `mapstructure:"queueSize"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	API      APIConfig      `mapstructure:"api"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Events   EventsConfig   `mapstructure:"events"`
}

// Validate 检查通道配置是否完整
func (c *Config) Validate() error {
	switch c.Channel.Kind {
	case ChannelWebSocket:
		if c.Channel.URL == "" {
			return errors.New("channel.url is required for websocket")
		}
	case ChannelSerial:
		if c.Channel.Port == "" {
			return errors.New("channel.port is required for serial")
		}
	case ChannelTCP:
		if c.Channel.Addr == "" {
			return errors.New("channel.addr is required for tcp")
		}
	default:
		return fmt.Errorf("unknown channel.kind %q", c.Channel.Kind)
	}
	if c.Protocol.MaxAttempts < 1 {
		return fmt.Errorf("protocol.maxAttempts must be >= 1, got %d", c.Protocol.MaxAttempts)
	}
	return nil
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 CRSF_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 CRSF_，并将点号替换为下划线
	v.SetEnvPrefix("CRSF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// 未指定文件时允许缺少配置，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "crsfctl")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.rateLimit.ratePerSec", 5)
	v.SetDefault("api.rateLimit.burst", 10)
	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.apiKeys", []string{})

	v.SetDefault("channel.kind", ChannelWebSocket)
	v.SetDefault("channel.url", "ws://10.0.0.1/crsf")
	v.SetDefault("channel.port", "")
	v.SetDefault("channel.baud", 420000)
	v.SetDefault("channel.addr", "")
	v.SetDefault("channel.dialTimeout", "5s")
	v.SetDefault("channel.writeTimeout", "1s")

	v.SetDefault("protocol.scanWindow", "2s")
	v.SetDefault("protocol.paramTimeout", "3s")
	v.SetDefault("protocol.maxAttempts", 3)
	v.SetDefault("protocol.settleDelay", "200ms")
	v.SetDefault("protocol.linkPollInterval", "1s")
	v.SetDefault("protocol.enforceCRC", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.channel", "crsf:events")

	v.SetDefault("events.ringSize", 512)
	v.SetDefault("events.queueSize", 1024)
}
