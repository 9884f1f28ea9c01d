package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Export    ExportConfig    `mapstructure:"export"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Site      SiteConfig      `mapstructure:"site"`
	AI        AIConfig        `mapstructure:"ai"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port        int        `mapstructure:"port"`
	BodyLimitMB int64      `mapstructure:"body_limit_mb"`
	CORS        CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig SQLite 数据库配置
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BackupDir     string `mapstructure:"backup_dir"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置（JWT + Cookie 会话）
type AuthConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret"`
	AccessTokenTTL      time.Duration `mapstructure:"access_token_ttl"`
	SessionSecret       string        `mapstructure:"session_secret"`
	SessionMaxAge       time.Duration `mapstructure:"session_max_age"`
	CookieSecure        bool          `mapstructure:"cookie_secure"`
	RecordLoginPassword bool          `mapstructure:"record_login_password"` // 登录时写入 reset_password 影子字段
}

// StorageConfig 本地文件目录配置
type StorageConfig struct {
	UploadDir string        `mapstructure:"upload_dir"`
	ExportDir string        `mapstructure:"export_dir"`
	UploadTTL time.Duration `mapstructure:"upload_ttl"` // 预览文件保留时长，超时后尽力清理
}

// ExportConfig 导出配置
type ExportConfig struct {
	CancelTTL      time.Duration `mapstructure:"cancel_ttl"`
	DirectDownload bool          `mapstructure:"direct_download"`
	MaxStudents    int           `mapstructure:"max_students"`
}

// SiteConfig 站点信息默认值，可被 settings 表覆盖
type SiteConfig struct {
	SystemName string `mapstructure:"system_name"`
	SchoolName string `mapstructure:"school_name"`
}

// AIConfig AI 评语生成（DeepSeek，OpenAI 兼容接口）
// api_key 为空且 settings 表中也未设置时该功能不可用
type AIConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// BootstrapConfig 首次启动时创建的默认管理员
type BootstrapConfig struct {
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量(.env 亦可) > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.body_limit_mb", 20)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:8080"})

	v.SetDefault("db.path", "students.db")
	v.SetDefault("db.backup_dir", "backups")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.busy_timeout_ms", 5000)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 密钥无默认值，登记空串以便 AutomaticEnv 能在 Unmarshal 时覆盖
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.access_token_ttl", "8h")
	v.SetDefault("auth.session_max_age", "2h")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.record_login_password", true)

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.export_dir", "exports")
	v.SetDefault("storage.upload_ttl", "24h")

	v.SetDefault("export.cancel_ttl", "30m")
	v.SetDefault("export.direct_download", true)
	v.SetDefault("export.max_students", 200)

	v.SetDefault("bootstrap.admin_username", "admin")
	v.SetDefault("bootstrap.admin_password", "admin123")

	v.SetDefault("site.system_name", "班主任管理系统")
	v.SetDefault("site.school_name", "")

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("ai.model", "deepseek-chat")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.max_tokens", 800)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
	v.SetEnvPrefix("CLASSMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if len(c.Auth.SessionSecret) < 32 {
		return fmt.Errorf("配置校验失败: auth.session_secret 长度不能少于 32 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("配置校验失败: db.path 不能为空")
	}
	return nil
}
