package config

import (
	"errors"
	"fmt"
	"os"
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
	Auth         AuthConfig    `mapstructure:"auth"`
}

// AuthConfig API Key 认证配置
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// BreakerConfig 重连熔断配置
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// SessionConfig 会话超时与重传，构造时固定
type SessionConfig struct {
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`
	MaxRetries      int           `mapstructure:"maxRetries"`
}

// LinkConfig 主机侧链路配置
type LinkConfig struct {
	Addr           string        `mapstructure:"addr"`
	DialTimeout    time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	ReconnectDelay time.Duration `mapstructure:"reconnectDelay"`
	BufferSize     int           `mapstructure:"bufferSize"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
	Session        SessionConfig `mapstructure:"session"`
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

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// QueueConfig 命令队列与结果存储
type QueueConfig struct {
	Backend     string        `mapstructure:"backend"` // memory | redis
	KeyPrefix   string        `mapstructure:"keyPrefix"`
	ResultLimit int           `mapstructure:"resultLimit"`
	ResultTTL   time.Duration `mapstructure:"resultTTL"`
}

// SimulatorConfig 模拟设备配置
type SimulatorConfig struct {
	Addr           string        `mapstructure:"addr"`
	Version        string        `mapstructure:"version"`
	MaxConnections int           `mapstructure:"maxConnections"`
	AcceptRate     float64       `mapstructure:"acceptRate"`
	AcceptBurst    int           `mapstructure:"acceptBurst"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	EventInterval  time.Duration `mapstructure:"eventInterval"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	MetricsAddr    string        `mapstructure:"metricsAddr"` // 为空时不暴露指标
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Link      LinkConfig      `mapstructure:"link"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// 队列后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 FLEM_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("FLEM_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 FLEM_，并将点号替换为下划线
	v.SetEnvPrefix("FLEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Queue.Backend {
	case BackendMemory:
	case BackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.backend=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unknown queue.backend %q", c.Queue.Backend)
	}
	if c.Link.Session.ResponseTimeout <= 0 {
		return fmt.Errorf("link.session.responseTimeout must be positive")
	}
	if c.Link.Session.MaxRetries < 0 {
		return fmt.Errorf("link.session.maxRetries must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flemd")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.auth.enabled", false)
	v.SetDefault("http.auth.apiKeys", []string{})

	v.SetDefault("link.addr", "127.0.0.1:7000")
	v.SetDefault("link.dialTimeout", "3s")
	v.SetDefault("link.readTimeout", "30s")
	v.SetDefault("link.writeTimeout", "1s")
	v.SetDefault("link.pollInterval", "5ms")
	v.SetDefault("link.reconnectDelay", "1s")
	v.SetDefault("link.bufferSize", 4096)
	v.SetDefault("link.breaker.threshold", 5)
	v.SetDefault("link.breaker.cooldown", "30s")
	v.SetDefault("link.session.responseTimeout", "200ms")
	v.SetDefault("link.session.maxRetries", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.keyPrefix", "flem:")
	v.SetDefault("queue.resultLimit", 10000)
	v.SetDefault("queue.resultTTL", "24h")

	v.SetDefault("simulator.addr", ":7000")
	v.SetDefault("simulator.version", "flemsim-1.0")
	v.SetDefault("simulator.maxConnections", 16)
	v.SetDefault("simulator.acceptRate", 10)
	v.SetDefault("simulator.acceptBurst", 20)
	v.SetDefault("simulator.pollInterval", "2ms")
	v.SetDefault("simulator.eventInterval", "0s")
	v.SetDefault("simulator.readTimeout", "60s")
	v.SetDefault("simulator.writeTimeout", "1s")
	v.SetDefault("simulator.metricsAddr", "")
}
