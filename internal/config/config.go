package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Quota      QuotaConfig
	LLM        LLMConfig
	Payment    PaymentConfig
	Admin      AdminConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	// WriteTimeout is derived from the LLM timeout so a slow completion still gets answered.
	WriteTimeout    time.Duration
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
	AutoMigrate    bool
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig is optional; an empty URL disables audit event streaming.
type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// EncryptionConfig holds the hex AES-256 key used for message content at rest.
// Empty means transcripts are stored in plaintext.
type EncryptionConfig struct {
	Key string
}

// QuotaConfig holds the free-tier policy per account kind.
type QuotaConfig struct {
	GuestFreeLimit int
	UserFreeLimit  int
	Window         time.Duration
	BurstPerMinute int
}

type LLMConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemPrompt    string
	Timeout         time.Duration
	ContextMessages int
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	SuccessURL          string
	CancelURL           string
}

type AdminConfig struct {
	Username string
	Password string
	FullName string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	AuthMaxRequests int
	AuthWindowSec   int
	// TrustedProxies may set X-Forwarded-For; any other peer is the client itself.
	TrustedProxies  []netip.Prefix
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
			AutoMigrate:    k.Bool("db.auto.migrate"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Encryption: EncryptionConfig{
			Key: k.String("encryption.key"),
		},
		Quota: QuotaConfig{
			GuestFreeLimit: intOr(k, "quota.guest.free.limit", 10),
			UserFreeLimit:  intOr(k, "quota.user.free.limit", 15),
			BurstPerMinute: intOr(k, "quota.burst.per.minute", 20),
		},
		LLM: LLMConfig{
			BaseURL:         k.String("llm.base.url"),
			APIKey:          k.String("llm.api.key"),
			Model:           k.String("llm.model"),
			Temperature:     floatOr(k, "llm.temperature", 0.7),
			MaxTokens:       k.Int("llm.max.tokens"),
			SystemPrompt:    k.String("llm.system.prompt"),
			ContextMessages: intOr(k, "llm.context.messages", 10),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     k.String("stripe.secret.key"),
			StripeWebhookSecret: k.String("stripe.webhook.secret"),
			Currency:            k.String("payment.currency"),
			SuccessURL:          k.String("payment.success.url"),
			CancelURL:           k.String("payment.cancel.url"),
		},
		Admin: AdminConfig{
			Username: k.String("admin.username"),
			Password: k.String("admin.password"),
			FullName: k.String("admin.full.name"),
		},
		RateLimit: RateLimitConfig{
			AuthMaxRequests: k.Int("ratelimit.auth.max.requests"),
			AuthWindowSec:   k.Int("ratelimit.auth.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	cfg.RateLimit.TrustedProxies, err = parseProxies(k.String("ratelimit.trusted.proxies"))
	if err != nil {
		return nil, err
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "aichat"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "aichat"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.SystemPrompt == "" {
		cfg.LLM.SystemPrompt = "You are a helpful AI assistant. Answer clearly and concisely."
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "rub"
	}
	if cfg.Payment.SuccessURL == "" {
		cfg.Payment.SuccessURL = "http://localhost:3000/payment/success"
	}
	if cfg.Payment.CancelURL == "" {
		cfg.Payment.CancelURL = "http://localhost:3000/payment/cancel"
	}
	if cfg.Admin.FullName == "" {
		cfg.Admin.FullName = "Administrator"
	}
	if cfg.RateLimit.AuthMaxRequests == 0 {
		cfg.RateLimit.AuthMaxRequests = 10
	}
	if cfg.RateLimit.AuthWindowSec == 0 {
		cfg.RateLimit.AuthWindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.JWT.AccessExpiry, err = parseDuration(k, "jwt.access.expiry", "15m")
	if err != nil {
		return nil, err
	}
	cfg.JWT.RefreshExpiry, err = parseDuration(k, "jwt.refresh.expiry", "168h")
	if err != nil {
		return nil, err
	}
	cfg.Quota.Window, err = parseDuration(k, "quota.window", "24h")
	if err != nil {
		return nil, err
	}
	cfg.LLM.Timeout, err = parseDuration(k, "llm.timeout", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Server.ShutdownTimeout, err = parseDuration(k, "server.shutdown.timeout", "30s")
	if err != nil {
		return nil, err
	}
	cfg.Server.WriteTimeout = cfg.LLM.Timeout + writeTimeoutMargin

	return cfg, nil
}

// parseProxies reads a comma-separated list of CIDRs or bare addresses.
func parseProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("parsing RATELIMIT_TRUSTED_PROXIES entry %q: %w", item, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("parsing RATELIMIT_TRUSTED_PROXIES entry %q: %w", item, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// intOr and floatOr fall back only when the key is absent, so an explicit 0
// (no free tier, burst limiter off, deterministic sampling) is kept.
func intOr(k *koanf.Koanf, key string, fallback int) int {
	if !k.Exists(key) {
		return fallback
	}
	return k.Int(key)
}

func floatOr(k *koanf.Koanf, key string, fallback float64) float64 {
	if !k.Exists(key) {
		return fallback
	}
	return k.Float64(key)
}

const writeTimeoutMargin = 30 * time.Second

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	raw := k.String(key)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", strings.ReplaceAll(key, ".", " "), err)
	}
	return d, nil
}
