package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "meatchain/pkg/config"
)

// Config meatchain（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	Log      struct {
		Level  string
		Format string
	}
	Auth     AuthConfig
	Invite   InviteConfig
	Mailer   MailerConfig
	Guest    GuestConfig
	Resolver ResolverConfig
	CORS     struct {
		AllowedOrigins []string
	}
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret string        // HMAC 签名密钥
	TokenTTL  time.Duration // access token 有效期
}

// InviteConfig 邀请配置
type InviteConfig struct {
	ExpiryDays int // 邀请有效期（天）
}

// MailerConfig 邮件网关配置
type MailerConfig struct {
	Enabled  bool
	BaseURL  string // 邮件网关地址
	APIKey   string
	FromAddr string
}

// GuestConfig Guest/Demo 租户配置
type GuestConfig struct {
	Enabled  bool
	Password string // guest 用户初始密码
}

// ResolverConfig 租户解析配置
type ResolverConfig struct {
	CacheTTL time.Duration // domain/slug 缓存 TTL
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "meatchain")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "dev-secret-change-me")
	cfg.Auth.TokenTTL = time.Duration(parseInt(getEnv("JWT_TTL_MINUTES", "1440"), 1440)) * time.Minute

	cfg.Invite.ExpiryDays = parseInt(getEnv("INVITE_EXPIRY_DAYS", "7"), 7)

	// 邮件网关（默认禁用：未配置时邀请仍可通过返回的 token 走通）
	cfg.Mailer.Enabled = getEnv("MAILER_ENABLED", "false") == "true"
	cfg.Mailer.BaseURL = getEnv("MAILER_BASE_URL", "")
	cfg.Mailer.APIKey = getEnv("MAILER_API_KEY", "")
	cfg.Mailer.FromAddr = getEnv("MAILER_FROM", "noreply@meatchain.io")

	// Guest/Demo 租户（每次部署启动时幂等创建）
	cfg.Guest.Enabled = getEnv("GUEST_TENANT_ENABLED", "true") == "true"
	cfg.Guest.Password = getEnv("GUEST_PASSWORD", "GuestDemo123!")

	cfg.Resolver.CacheTTL = time.Duration(parseInt(getEnv("RESOLVER_CACHE_TTL_SECONDS", "300"), 300)) * time.Second

	cfg.CORS.AllowedOrigins = splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
