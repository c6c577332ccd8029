package config

import (
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesAndDerivedTimeouts(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("QUOTA_GUEST_FREE_LIMIT", "3")
	t.Setenv("QUOTA_USER_FREE_LIMIT", "7")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Quota.GuestFreeLimit)
	assert.Equal(t, 7, cfg.Quota.UserFreeLimit)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 75*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_ExplicitZeroKeepsOperatorPolicy(t *testing.T) {
	t.Setenv("QUOTA_GUEST_FREE_LIMIT", "0")
	t.Setenv("QUOTA_USER_FREE_LIMIT", "0")
	t.Setenv("QUOTA_BURST_PER_MINUTE", "0")
	t.Setenv("LLM_TEMPERATURE", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Zero(t, cfg.Quota.GuestFreeLimit)
	assert.Zero(t, cfg.Quota.UserFreeLimit)
	assert.Zero(t, cfg.Quota.BurstPerMinute)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Equal(t, 10, cfg.LLM.ContextMessages, "unset keys still get defaults")
}

func TestLoad_AbsentKeysGetDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	if _, set := os.LookupEnv("QUOTA_GUEST_FREE_LIMIT"); !set {
		assert.Equal(t, 10, cfg.Quota.GuestFreeLimit)
	}
	if _, set := os.LookupEnv("QUOTA_USER_FREE_LIMIT"); !set {
		assert.Equal(t, 15, cfg.Quota.UserFreeLimit)
	}
	if _, set := os.LookupEnv("LLM_TEMPERATURE"); !set {
		assert.Equal(t, 0.7, cfg.LLM.Temperature)
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("RATELIMIT_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.10/32"),
	}, cfg.RateLimit.TrustedProxies)

	t.Setenv("RATELIMIT_TRUSTED_PROXIES", "10.0.0.0/33")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("QUOTA_WINDOW", "tomorrow")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota window")
}
