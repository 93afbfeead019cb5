package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"PORT", "SERVER_PORT", "AUTO_VERIFY_ON_LINK", "VERIFICATION_MAX_ATTEMPTS",
		"PROCESSING_DELAY_MS", "SETTLEMENT_DELAY_MS", "PROCESSING_FEE_BPS", "EVENTS_EXCHANGE",
		"SETTLEMENT_FAILURE_RATE", "BUSINESS_TIMEZONE", "MAX_CONNECTIONS_PER_TENANT",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if !cfg.AutoVerifyOnLink {
		t.Fatal("expected auto verification on link to default to true")
	}
	if cfg.VerificationMaxAttempts != 3 {
		t.Fatalf("expected 3 max attempts, got %d", cfg.VerificationMaxAttempts)
	}
	if cfg.ProcessingDelay() != 2*time.Second || cfg.SettlementDelay() != 5*time.Second {
		t.Fatalf("unexpected delays %s/%s", cfg.ProcessingDelay(), cfg.SettlementDelay())
	}
	if cfg.ProcessingFeeBasisPoints != 75 {
		t.Fatalf("expected 75 bps fee, got %d", cfg.ProcessingFeeBasisPoints)
	}
	if cfg.VerificationTTL() != 7*24*time.Hour {
		t.Fatalf("expected 7 day verification TTL, got %s", cfg.VerificationTTL())
	}
	if cfg.EventsExchange != "banklink.events" {
		t.Fatalf("expected default exchange, got %q", cfg.EventsExchange)
	}
	if cfg.MaxConnectionsPerTenant != 10 {
		t.Fatalf("expected 10 connections per tenant, got %d", cfg.MaxConnectionsPerTenant)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("expected PORT to take precedence, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_SanitizesOutOfRangeValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SETTLEMENT_FAILURE_RATE", "1.5")
	setEnvWithCleanup(t, "PROCESSING_FEE_BPS", "-10")
	setEnvWithCleanup(t, "VERIFICATION_MAX_ATTEMPTS", "0")
	setEnvWithCleanup(t, "BUSINESS_TIMEZONE", "Mars/Olympus_Mons")
	setEnvWithCleanup(t, "REDIS_LOCK_PREFIX", "custom:lock:")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SettlementFailureRate != 1 {
		t.Fatalf("expected failure rate clamped to 1, got %f", cfg.SettlementFailureRate)
	}
	if cfg.ProcessingFeeBasisPoints != 0 {
		t.Fatalf("expected negative fee coerced to zero, got %d", cfg.ProcessingFeeBasisPoints)
	}
	if cfg.VerificationMaxAttempts != 3 {
		t.Fatalf("expected max attempts reset to 3, got %d", cfg.VerificationMaxAttempts)
	}
	if cfg.BusinessTimezone != "UTC" {
		t.Fatalf("expected unknown timezone to fall back to UTC, got %q", cfg.BusinessTimezone)
	}
	if cfg.RedisLockPrefix != "custom:lock" {
		t.Fatalf("expected trailing colon trimmed, got %q", cfg.RedisLockPrefix)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "EVENTS_EXCHANGE")
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/.env", []byte("EVENTS_EXCHANGE=file.events\nAUTO_VERIFY_ON_LINK=false\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	unsetEnvWithCleanup(t, "AUTO_VERIFY_ON_LINK")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EventsExchange != "file.events" {
		t.Fatalf("expected exchange from .env, got %q", cfg.EventsExchange)
	}
	if cfg.AutoVerifyOnLink {
		t.Fatal("expected AUTO_VERIFY_ON_LINK=false from .env")
	}
}

func TestConfig_AllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example , ,https://b.example"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
