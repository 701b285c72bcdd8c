package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Exam      ExamConfig
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string // mysql | sqlite
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool   `mapstructure:"parse_time"`
	Path      string // sqlite 文件路径
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// AuthConfig 管理员直登账号，不落库
type AuthConfig struct {
	AdminPhone    string `mapstructure:"admin_phone"`
	AdminPassword string `mapstructure:"admin_password"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	Host           string
	Port           int
	Password       string
	DB             int
	BankTTLMinutes int `mapstructure:"bank_ttl_minutes"`
}

// ExamConfig 组卷与考试计时参数
type ExamConfig struct {
	SingleCount             int     `mapstructure:"single_count"`
	TrueFalseCount          int     `mapstructure:"true_false_count"`
	MultipleCount           int     `mapstructure:"multiple_count"`
	TimeLimitMinutes        int     `mapstructure:"time_limit_minutes"`
	TickMillis              int     `mapstructure:"tick_millis"`
	PassPercentage          float64 `mapstructure:"pass_percentage"`
	PercentageBase          string  `mapstructure:"percentage_base"` // fixed | paper
	BasicBank               string  `mapstructure:"basic_bank"`
	AppliedBank             string  `mapstructure:"applied_bank"`
	SessionRetentionMinutes int     `mapstructure:"session_retention_minutes"`
}

const (
	PercentageBaseFixed = "fixed"
	PercentageBasePaper = "paper"
)

func (e ExamConfig) TimeLimit() time.Duration {
	return time.Duration(e.TimeLimitMinutes) * time.Minute
}

func (e ExamConfig) TickInterval() time.Duration {
	if e.TickMillis <= 0 {
		return time.Second
	}
	return time.Duration(e.TickMillis) * time.Millisecond
}

func (e ExamConfig) SessionRetention() time.Duration {
	return time.Duration(e.SessionRetentionMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/exam.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)

	v.SetDefault("jwt.expire_hours", 168)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "storage")

	v.SetDefault("redis.bank_ttl_minutes", 10)

	v.SetDefault("exam.single_count", 50)
	v.SetDefault("exam.true_false_count", 20)
	v.SetDefault("exam.multiple_count", 20)
	v.SetDefault("exam.time_limit_minutes", 90)
	v.SetDefault("exam.tick_millis", 1000)
	v.SetDefault("exam.pass_percentage", 60)
	v.SetDefault("exam.percentage_base", PercentageBaseFixed)
	v.SetDefault("exam.basic_bank", "banks/basic.md")
	v.SetDefault("exam.applied_bank", "banks/questionBank.md")
	v.SetDefault("exam.session_retention_minutes", 30)

	v.SetDefault("log.file", "logs/exam.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EXAM")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.path", "DATABASE_PATH")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// 管理员
	v.BindEnv("auth.admin_phone", "ADMIN_PHONE")
	v.BindEnv("auth.admin_password", "ADMIN_PASSWORD")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "PORT")

	// Storage / OSS
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if err := cfg.Exam.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 检查题量配额和计分方式
func (e ExamConfig) Validate() error {
	if e.SingleCount < 0 || e.TrueFalseCount < 0 || e.MultipleCount < 0 {
		return fmt.Errorf("exam quotas must not be negative")
	}
	if e.SingleCount+e.TrueFalseCount+e.MultipleCount == 0 {
		return fmt.Errorf("exam quotas are all zero")
	}
	if e.TimeLimitMinutes <= 0 {
		return fmt.Errorf("exam.time_limit_minutes must be positive")
	}
	switch e.PercentageBase {
	case PercentageBaseFixed, PercentageBasePaper:
	default:
		return fmt.Errorf("unknown exam.percentage_base %q", e.PercentageBase)
	}
	return nil
}
