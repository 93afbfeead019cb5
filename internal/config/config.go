/**
 * @description
 * This package handles the configuration management for the banklink-service. It uses
 * the Viper library to read configuration from environment variables and an optional
 * .env file, providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the banklink-service.
type Config struct {
	ServerPort                 string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                string  `mapstructure:"DATABASE_URL"`
	RedisURL                   string  `mapstructure:"REDIS_URL"`
	RedisLockPrefix            string  `mapstructure:"REDIS_LOCK_PREFIX"`
	RedisLockTTLSeconds        int     `mapstructure:"REDIS_LOCK_TTL_SECONDS"`
	RabbitMQURL                string  `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string  `mapstructure:"EVENTS_EXCHANGE"`
	AutoVerifyOnLink           bool    `mapstructure:"AUTO_VERIFY_ON_LINK"`
	MaxConnectionsPerTenant    int     `mapstructure:"MAX_CONNECTIONS_PER_TENANT"`
	VerificationMaxAttempts    int     `mapstructure:"VERIFICATION_MAX_ATTEMPTS"`
	VerificationTTLHours       int     `mapstructure:"VERIFICATION_TTL_HOURS"`
	ProcessingDelayMS          int     `mapstructure:"PROCESSING_DELAY_MS"`
	SettlementDelayMS          int     `mapstructure:"SETTLEMENT_DELAY_MS"`
	SettlementFailureRate      float64 `mapstructure:"SETTLEMENT_FAILURE_RATE"`
	ProcessingFeeBasisPoints   int64   `mapstructure:"PROCESSING_FEE_BPS"`
	BusinessTimezone           string  `mapstructure:"BUSINESS_TIMEZONE"`
	ObserveFederalHolidays     bool    `mapstructure:"OBSERVE_FEDERAL_HOLIDAYS"`
	CORSAllowedOrigins         string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
	VerificationExpirySchedule string  `mapstructure:"VERIFICATION_EXPIRY_SCHEDULE"`
}

// ProcessingDelay is how long a submitted transaction stays pending.
func (c Config) ProcessingDelay() time.Duration {
	return time.Duration(c.ProcessingDelayMS) * time.Millisecond
}

// SettlementDelay is how long a transaction stays processing before it resolves.
func (c Config) SettlementDelay() time.Duration {
	return time.Duration(c.SettlementDelayMS) * time.Millisecond
}

// VerificationTTL is how long a verification stays open.
func (c Config) VerificationTTL() time.Duration {
	return time.Duration(c.VerificationTTLHours) * time.Hour
}

// RedisLockTTL bounds how long a distributed record lock is held.
func (c Config) RedisLockTTL() time.Duration {
	return time.Duration(c.RedisLockTTLSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	out := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadConfig reads configuration from environment variables and the optional .env
// file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_LOCK_PREFIX", "banklink:lock")
	viper.SetDefault("REDIS_LOCK_TTL_SECONDS", 10)
	viper.SetDefault("EVENTS_EXCHANGE", "banklink.events")
	viper.SetDefault("AUTO_VERIFY_ON_LINK", true)
	viper.SetDefault("MAX_CONNECTIONS_PER_TENANT", 10)
	viper.SetDefault("VERIFICATION_MAX_ATTEMPTS", 3)
	viper.SetDefault("VERIFICATION_TTL_HOURS", 7*24)
	viper.SetDefault("PROCESSING_DELAY_MS", 2000)
	viper.SetDefault("SETTLEMENT_DELAY_MS", 5000)
	viper.SetDefault("SETTLEMENT_FAILURE_RATE", 0.05)
	viper.SetDefault("PROCESSING_FEE_BPS", 75)
	viper.SetDefault("BUSINESS_TIMEZONE", "America/New_York")
	viper.SetDefault("OBSERVE_FEDERAL_HOLIDAYS", false)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("VERIFICATION_EXPIRY_SCHEDULE", "@every 15m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BANKLINK_REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("REDIS_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("AUTO_VERIFY_ON_LINK")
	_ = viper.BindEnv("MAX_CONNECTIONS_PER_TENANT")
	_ = viper.BindEnv("VERIFICATION_MAX_ATTEMPTS")
	_ = viper.BindEnv("VERIFICATION_TTL_HOURS")
	_ = viper.BindEnv("PROCESSING_DELAY_MS")
	_ = viper.BindEnv("SETTLEMENT_DELAY_MS")
	_ = viper.BindEnv("SETTLEMENT_FAILURE_RATE")
	_ = viper.BindEnv("PROCESSING_FEE_BPS")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("OBSERVE_FEDERAL_HOLIDAYS")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("VERIFICATION_EXPIRY_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisLockPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisLockPrefix), ":")
	if config.RedisLockPrefix == "" {
		config.RedisLockPrefix = "banklink:lock"
	}
	if config.RedisLockTTLSeconds <= 0 {
		config.RedisLockTTLSeconds = 10
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = "banklink.events"
	}

	if config.MaxConnectionsPerTenant < 0 {
		log.Printf("level=warn component=config msg=\"negative tenant connection cap; treating as unlimited\" value=%d", config.MaxConnectionsPerTenant)
		config.MaxConnectionsPerTenant = 0
	}
	if config.VerificationMaxAttempts <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive verification max attempts; using default\" value=%d", config.VerificationMaxAttempts)
		config.VerificationMaxAttempts = 3
	}
	if config.VerificationTTLHours <= 0 {
		config.VerificationTTLHours = 7 * 24
	}
	if config.ProcessingDelayMS < 0 {
		config.ProcessingDelayMS = 0
	}
	if config.SettlementDelayMS < 0 {
		config.SettlementDelayMS = 0
	}
	if config.SettlementFailureRate < 0 || config.SettlementFailureRate > 1 {
		log.Printf("level=warn component=config msg=\"settlement failure rate out of range; clamping\" value=%f", config.SettlementFailureRate)
		config.SettlementFailureRate = min(max(config.SettlementFailureRate, 0), 1)
	}
	if config.ProcessingFeeBasisPoints < 0 {
		log.Printf("level=warn component=config msg=\"negative processing fee configured; coercing to zero\" fee_bps=%d", config.ProcessingFeeBasisPoints)
		config.ProcessingFeeBasisPoints = 0
	}
	if _, locErr := time.LoadLocation(config.BusinessTimezone); locErr != nil {
		log.Printf("level=warn component=config msg=\"unknown business timezone; using UTC\" value=%q err=%v", config.BusinessTimezone, locErr)
		config.BusinessTimezone = "UTC"
	}
	if strings.TrimSpace(config.VerificationExpirySchedule) == "" {
		config.VerificationExpirySchedule = "@every 15m"
	}

	return
}
