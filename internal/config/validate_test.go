package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "aichat",
			Password: "secret", Name: "aichat", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		Encryption: EncryptionConfig{Key: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
		Quota:      QuotaConfig{GuestFreeLimit: 10, UserFreeLimit: 15, Window: 24 * time.Hour, BurstPerMinute: 20},
		LLM:        LLMConfig{APIKey: "sk-test", Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1000, ContextMessages: 10},
		Payment: PaymentConfig{
			StripeSecretKey:     "sk_test_123",
			StripeWebhookSecret: "whsec_123",
			Currency:            "rub",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTSecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_EncryptionKeyOptional(t *testing.T) {
	cfg := validConfig()
	cfg.Encryption.Key = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error without encryption key, got: %v", err)
	}
}

func TestValidate_EncryptionKeyWrongLength(t *testing.T) {
	cfg := validConfig()
	cfg.Encryption.Key = "tooshort"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "64 hex characters") {
		t.Fatalf("expected 64 hex characters error, got: %v", err)
	}
}

func TestValidate_EncryptionKeyInvalidHex(t *testing.T) {
	cfg := validConfig()
	cfg.Encryption.Key = strings.Repeat("z", 64)
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "valid hex") {
		t.Fatalf("expected valid hex error, got: %v", err)
	}
}

func TestValidate_QuotaPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.GuestFreeLimit = -1
	cfg.Quota.Window = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected quota validation errors")
	}
	if !strings.Contains(err.Error(), "QUOTA_GUEST_FREE_LIMIT") {
		t.Errorf("expected QUOTA_GUEST_FREE_LIMIT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "QUOTA_WINDOW") {
		t.Errorf("expected QUOTA_WINDOW error in: %v", err)
	}
}

func TestValidate_WebhookSecretRequiredWithStripeKey(t *testing.T) {
	cfg := validConfig()
	cfg.Payment.StripeWebhookSecret = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STRIPE_WEBHOOK_SECRET") {
		t.Fatalf("expected STRIPE_WEBHOOK_SECRET error, got: %v", err)
	}
}

func TestValidate_AdminPasswordLength(t *testing.T) {
	cfg := validConfig()
	cfg.Admin = AdminConfig{Username: "admin", Password: "short"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ADMIN_PASSWORD") {
		t.Fatalf("expected ADMIN_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_ZeroPolicyKnobsAccepted(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.GuestFreeLimit = 0
	cfg.Quota.UserFreeLimit = 0
	cfg.Quota.BurstPerMinute = 0
	cfg.LLM.Temperature = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected zero free tier and disabled burst limit to be valid, got: %v", err)
	}

	cfg.LLM.ContextMessages = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LLM_CONTEXT_MESSAGES") {
		t.Fatalf("expected LLM_CONTEXT_MESSAGES error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
		Quota:  QuotaConfig{Window: 24 * time.Hour},
		LLM:    LLMConfig{MaxTokens: 1000},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "DB_PASSWORD", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
