package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Cascade   CascadeConfig   `mapstructure:"cascade"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"`
	CORS    CORSConfig `mapstructure:"cors"`
	// MaxJSONBytes / MaxUploadBytes 请求体上限；上传仅用于学生名单 .xlsx
	MaxJSONBytes   int64 `mapstructure:"max_json_bytes"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（运行锁、Token 黑名单、限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置（签发由外部认证服务负责）
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CascadeConfig 统计级联配置
type CascadeConfig struct {
	FanoutLimit       int `mapstructure:"fanout_limit"`       // 学生统计并发更新上限
	OptimisticRetries int `mapstructure:"optimistic_retries"` // 读-改-写冲突重试次数
}

// ReconcileConfig 数据对账配置
type ReconcileConfig struct {
	ReportsDir      string        `mapstructure:"reports_dir"`
	ScriptsDir      string        `mapstructure:"scripts_dir"`
	BatchSize       int           `mapstructure:"batch_size"`
	HighThreshold   float64       `mapstructure:"high_threshold"`
	MediumThreshold float64       `mapstructure:"medium_threshold"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	// RateLimit 每个管理员在 RateWindow 内可发起的对账运行次数，0 表示不限
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_json_bytes", 1<<20)    // 1MB
	v.SetDefault("server.max_upload_bytes", 10<<20) // 10MB

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "eduroots")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Europe/Paris")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "eduroots")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cascade.fanout_limit", 8)
	v.SetDefault("cascade.optimistic_retries", 3)

	v.SetDefault("reconcile.reports_dir", "reports")
	v.SetDefault("reconcile.scripts_dir", "scripts")
	v.SetDefault("reconcile.batch_size", 500)
	v.SetDefault("reconcile.high_threshold", 0.70)
	v.SetDefault("reconcile.medium_threshold", 0.40)
	v.SetDefault("reconcile.lock_ttl", "30m")
	v.SetDefault("reconcile.rate_limit", 10)
	v.SetDefault("reconcile.rate_window", "1m")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("EDUROOTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Cascade.FanoutLimit <= 0 {
		return fmt.Errorf("配置校验失败: cascade.fanout_limit 必须大于 0")
	}
	if c.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("配置校验失败: reconcile.batch_size 必须大于 0")
	}
	r := c.Reconcile
	if r.HighThreshold <= 0 || r.HighThreshold > 1 || r.MediumThreshold <= 0 || r.MediumThreshold > 1 {
		return fmt.Errorf("配置校验失败: reconcile 阈值必须在 (0,1] 之间")
	}
	if r.MediumThreshold > r.HighThreshold {
		return fmt.Errorf("配置校验失败: reconcile.medium_threshold 不能大于 high_threshold")
	}
	if r.RateLimit > 0 && r.RateWindow < time.Second {
		return fmt.Errorf("配置校验失败: reconcile.rate_window 不能小于 1s")
	}
	if c.Server.MaxJSONBytes <= 0 || c.Server.MaxUploadBytes < c.Server.MaxJSONBytes {
		return fmt.Errorf("配置校验失败: server.max_upload_bytes 不能小于 max_json_bytes")
	}
	return nil
}
