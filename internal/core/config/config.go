package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec"`
	IdleTimeoutSec  int    `mapstructure:"idle_timeout_sec"`
}

type App struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	// PublicURL 用于拼接邮件里的验证链接
	PublicURL string     `mapstructure:"public_url"`
	HTTP      HTTP       `mapstructure:"http"`
	CORS      []string   `mapstructure:"cors_origins"`
	Limits    HTTPLimits `mapstructure:"limits"`
}

type HTTPLimits struct {
	// GlobalRPS 整个进程的上限，RPS 为每 IP
	GlobalRPS      float64 `mapstructure:"global_rps"`
	GlobalBurst    int     `mapstructure:"global_burst"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	MaxConcurrent  int64   `mapstructure:"max_concurrent"`
	MaxBodyBytes   int64   `mapstructure:"max_body_bytes"`
	RequestTimeout int     `mapstructure:"request_timeout_sec"`
}

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	File  string `mapstructure:"file"` // 为空则只写 stdout
	// 切割参数
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

type JWT struct {
	Secret             string `mapstructure:"secret"`
	Issuer             string `mapstructure:"issuer"`
	AccessTokenTTLMin  int    `mapstructure:"access_token_ttl_min"`
	RefreshTokenTTLMin int    `mapstructure:"refresh_token_ttl_min"`
	LeewaySec          int    `mapstructure:"leeway_sec"`
}

type Cookie struct {
	Name   string `mapstructure:"name"`
	Path   string `mapstructure:"path"`
	Domain string `mapstructure:"domain"`
	Secure bool   `mapstructure:"secure"`
}

type Auth struct {
	AdminEmails          []string `mapstructure:"admin_emails"`
	VerificationTTLHours int      `mapstructure:"verification_ttl_hours"`
	// ResendInferPending 旧行为：邮箱无匹配且只有一个 PENDING 账号时视为改邮箱
	ResendInferPending bool   `mapstructure:"resend_infer_pending"`
	RefreshCookie      Cookie `mapstructure:"refresh_cookie"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int    `mapstructure:"conn_max_lifetime_min"`
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
	LogLevel           string `mapstructure:"log_level"`
}

type Mail struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// Queue: memory | redis
	Queue    string `mapstructure:"queue"`
	Workers  int    `mapstructure:"workers"`
	Buffer   int    `mapstructure:"buffer"`
	QueueKey string `mapstructure:"queue_key"`
}

type Cleanup struct {
	Enabled           bool `mapstructure:"enabled"`
	Hour              int  `mapstructure:"hour"`
	Minute            int  `mapstructure:"minute"`
	UserRetentionDays int  `mapstructure:"user_retention_days"`
	TodoRetentionDays int  `mapstructure:"todo_retention_days"`
}

type Config struct {
	App     App     `mapstructure:"app"`
	Log     Log     `mapstructure:"log"`
	JWT     JWT     `mapstructure:"jwt"`
	Auth    Auth    `mapstructure:"auth"`
	DB      DB      `mapstructure:"db"`
	Redis   Redis   `mapstructure:"redis"`
	Mail    Mail    `mapstructure:"mail"`
	Cleanup Cleanup `mapstructure:"cleanup"`
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenTTLMin) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTokenTTLMin) * time.Minute
}

func (c *Config) VerificationTTL() time.Duration {
	return time.Duration(c.Auth.VerificationTTLHours) * time.Hour
}

func (c *Config) UserRetention() time.Duration {
	return time.Duration(c.Cleanup.UserRetentionDays) * 24 * time.Hour
}

func (c *Config) TodoRetention() time.Duration {
	return time.Duration(c.Cleanup.TodoRetentionDays) * 24 * time.Hour
}

// Load 读取失败直接退出进程
func Load(path string) *Config {
	c, err := Read(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return c
}

// Read 文件不存在时只使用默认值 + 环境变量
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pe *fs.PathError
		if !errors.As(err, &pe) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	for i, e := range c.Auth.AdminEmails {
		c.Auth.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.AccessTokenTTLMin <= 0 || c.JWT.RefreshTokenTTLMin <= 0 {
		errs = append(errs, errors.New("jwt token ttl must be positive"))
	}
	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q not supported", c.DB.Driver))
	}
	switch c.Mail.Queue {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("mail.queue %q not supported", c.Mail.Queue))
	}
	if c.Mail.Queue == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when mail.queue=redis"))
	}
	if c.Cleanup.Hour < 0 || c.Cleanup.Hour > 23 || c.Cleanup.Minute < 0 || c.Cleanup.Minute > 59 {
		errs = append(errs, errors.New("cleanup.hour/minute out of range"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "todo-auth-api")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.public_url", "http://127.0.0.1:8080")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.read_timeout_sec", 10)
	v.SetDefault("app.http.write_timeout_sec", 15)
	v.SetDefault("app.http.idle_timeout_sec", 60)
	v.SetDefault("app.cors_origins", []string{})
	v.SetDefault("app.limits.global_rps", 500)
	v.SetDefault("app.limits.global_burst", 1000)
	v.SetDefault("app.limits.rps", 20)
	v.SetDefault("app.limits.burst", 40)
	v.SetDefault("app.limits.max_concurrent", 300)
	v.SetDefault("app.limits.max_body_bytes", 1<<20)
	v.SetDefault("app.limits.request_timeout_sec", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "todo-auth-api")
	v.SetDefault("jwt.access_token_ttl_min", 30)
	v.SetDefault("jwt.refresh_token_ttl_min", 7*24*60)
	v.SetDefault("jwt.leeway_sec", 0)

	v.SetDefault("auth.admin_emails", []string{})
	v.SetDefault("auth.verification_ttl_hours", 24)
	v.SetDefault("auth.resend_infer_pending", false)
	v.SetDefault("auth.refresh_cookie.name", "refresh_token")
	v.SetDefault("auth.refresh_cookie.path", "/auth/refresh")
	v.SetDefault("auth.refresh_cookie.domain", "")
	v.SetDefault("auth.refresh_cookie.secure", true)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime_min", 5)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@example.com")
	v.SetDefault("mail.queue", "memory")
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.buffer", 256)
	v.SetDefault("mail.queue_key", "todo-auth:mail:outbox")

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.hour", 0)
	v.SetDefault("cleanup.minute", 0)
	v.SetDefault("cleanup.user_retention_days", 30)
	v.SetDefault("cleanup.todo_retention_days", 90)
}
