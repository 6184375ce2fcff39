package config

// Constants defining default values for application configuration
const (
	DefaultDBPath   = "./pressroom.db"
	DefaultSeedPath = "./seed.yaml"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultIntervalSeconds = 30 // Seconds between scheduler ticks
	DefaultIntakeMinutes   = 15 // Minutes between intake cycles

	DefaultMaxAttempts       = 5
	DefaultCallTimeoutSecs   = 15 // Per channel publisher call
	DefaultChannelWorkers    = 4
	DefaultBreakerThreshold  = 5 // Consecutive failures before a channel breaker opens
	DefaultBreakerCooldownMs = 60000

	DefaultLogLevel = "debug"
)
