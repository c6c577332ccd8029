package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Encryption key is optional, but must be 64 hex chars when set
	if c.Encryption.Key != "" {
		if len(c.Encryption.Key) != 64 {
			errs = append(errs, "ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes)")
		} else if _, err := hex.DecodeString(c.Encryption.Key); err != nil {
			errs = append(errs, "ENCRYPTION_KEY must be valid hex")
		}
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota policy
	if c.Quota.GuestFreeLimit < 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_GUEST_FREE_LIMIT must be >= 0, got %d", c.Quota.GuestFreeLimit))
	}
	if c.Quota.UserFreeLimit < 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_USER_FREE_LIMIT must be >= 0, got %d", c.Quota.UserFreeLimit))
	}
	if c.Quota.BurstPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_BURST_PER_MINUTE must be >= 0 (0 disables it), got %d", c.Quota.BurstPerMinute))
	}
	if c.Quota.Window <= 0 {
		errs = append(errs, "QUOTA_WINDOW must be a positive duration")
	}

	if c.LLM.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("LLM_MAX_TOKENS must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.ContextMessages < 1 {
		errs = append(errs, fmt.Sprintf("LLM_CONTEXT_MESSAGES must be positive, got %d", c.LLM.ContextMessages))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("LLM_TEMPERATURE must be 0–2, got %g", c.LLM.Temperature))
	}

	// Optional integrations: warn only
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY is empty, chat completions will fail")
	}
	if c.Payment.StripeSecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY is empty, payment creation is disabled")
	}
	if c.Payment.StripeSecretKey != "" && c.Payment.StripeWebhookSecret == "" {
		errs = append(errs, "STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.Admin.Username != "" && len(c.Admin.Password) < 12 {
		errs = append(errs, "ADMIN_PASSWORD must be at least 12 characters when ADMIN_USERNAME is set")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
