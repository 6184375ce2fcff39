package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	DBPath   string
	SeedPath string

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Scheduler settings
	Interval       time.Duration
	MaxAttempts    int
	CallTimeout    time.Duration
	ChannelWorkers int

	// Intake settings
	IntakeInterval   time.Duration
	BreakingKeywords []string

	// Channel adapter settings
	WebhookURL     string
	WebhookAPIKey  string
	DiscordToken   string
	DiscordChannel string

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults
// and environment overrides applied.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		DBPath:           GetEnvString("PRESSROOM_DB_PATH", DefaultDBPath),
		SeedPath:         GetEnvString("PRESSROOM_SEED_PATH", DefaultSeedPath),
		ServerHost:       GetEnvString("PRESSROOM_HOST", DefaultServerHost),
		ServerPort:       GetEnvInt("PRESSROOM_PORT", DefaultServerPort),
		APIKey:           GetEnvString("PRESSROOM_API_KEY", ""),
		Interval:         GetEnvDuration("PRESSROOM_INTERVAL", time.Duration(DefaultIntervalSeconds)*time.Second),
		MaxAttempts:      GetEnvInt("PRESSROOM_MAX_ATTEMPTS", DefaultMaxAttempts),
		CallTimeout:      GetEnvDuration("PRESSROOM_CALL_TIMEOUT", time.Duration(DefaultCallTimeoutSecs)*time.Second),
		ChannelWorkers:   GetEnvInt("PRESSROOM_CHANNEL_WORKERS", DefaultChannelWorkers),
		IntakeInterval:   GetEnvDuration("PRESSROOM_INTAKE_INTERVAL", time.Duration(DefaultIntakeMinutes)*time.Minute),
		BreakingKeywords: GetEnvStringSlice("PRESSROOM_BREAKING_KEYWORDS", nil),
		WebhookURL:       GetEnvString("PRESSROOM_WEBHOOK_URL", ""),
		WebhookAPIKey:    GetEnvString("PRESSROOM_WEBHOOK_API_KEY", ""),
		DiscordToken:     GetEnvString("PRESSROOM_DISCORD_TOKEN", ""),
		DiscordChannel:   GetEnvString("PRESSROOM_DISCORD_CHANNEL", ""),
		LogLevel:         GetEnvLogLevel("PRESSROOM_LOG_LEVEL", logLevel),
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
