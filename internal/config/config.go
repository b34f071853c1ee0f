package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
// We use a struct (not globals) so it's testable and explicit.
type Config struct {
	// Server
	ServerAddr string
	Env        string // "development" or "production"
	AppBaseURL string

	// Feature switches
	SFUEnabled        bool
	AIAnalysisEnabled bool

	// WebRTC / TURN
	ICESTUNURLs  []string
	ICETURNURLs  []string
	TURNUsername string
	TURNPassword string

	// Redis (for PubSub horizontal scaling)
	RedisURL   string // e.g., "redis://localhost:6379"
	PubSubType string // "memory" or "redis"

	// Per-room incident retention; oldest entries are dropped beyond this.
	RoomIncidentCap int

	// Query API rate limiting (requests per minute per client)
	RateLimitPerMin int
}

// Load reads configuration from environment variables.
// In production, these come from the host. In dev, from .env via docker-compose.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnvOrDefault("SERVER_ADDR", "0.0.0.0:8080"),
		Env:        getEnvOrDefault("APP_ENV", "development"),
		AppBaseURL: getEnvOrDefault("APP_BASE_URL", "http://localhost:5173"),
	}

	cfg.SFUEnabled = boolEnv("SFU_ENABLED", true)
	cfg.AIAnalysisEnabled = boolEnv("AI_ANALYSIS_ENABLED", true)

	// WebRTC / TURN configuration
	cfg.ICESTUNURLs = splitEnv("ICE_STUN_URLS", "stun:stun.l.google.com:19302")
	cfg.ICETURNURLs = splitEnv("ICE_TURN_URLS", "")
	cfg.TURNUsername = os.Getenv("TURN_USERNAME")
	cfg.TURNPassword = os.Getenv("TURN_PASSWORD")

	// Redis / PubSub configuration
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.PubSubType = getEnvOrDefault("PUBSUB_TYPE", "memory") // "memory" or "redis"

	cfg.RoomIncidentCap = intEnv("ROOM_INCIDENT_CAP", 1000)
	cfg.RateLimitPerMin = intEnv("RATE_LIMIT_PER_MIN", 300)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PubSubType != "memory" && c.PubSubType != "redis" {
		return fmt.Errorf("PUBSUB_TYPE must be \"memory\" or \"redis\", got %q", c.PubSubType)
	}
	if c.PubSubType == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when PUBSUB_TYPE=redis")
	}
	if c.RoomIncidentCap < 1 {
		return fmt.Errorf("ROOM_INCIDENT_CAP must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Mode reports the signaling mode advertised on /health.
func (c *Config) Mode() string {
	if c.SFUEnabled {
		return "SFU"
	}
	return "P2P"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func boolEnv(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func intEnv(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// splitEnv splits a comma-separated env var into a slice
func splitEnv(key, defaultVal string) []string {
	val := os.Getenv(key)
	if val == "" {
		val = defaultVal
	}
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
