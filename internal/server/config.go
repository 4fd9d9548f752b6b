// Package server wires the CollabBoard broker together: HTTP entry and
// WebSocket upgrade, per-connection sessions, message dispatch, and the
// room registry.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/collabboard/server/internal/protocol"
)

// RateLimitConfig defines per-user cursor throttling. MuteAfter is the
// number of consecutive rejections before a timed mute; zero disables
// muting.
type RateLimitConfig struct {
	Rate         float64
	Burst        float64
	MuteAfter    int
	MuteDuration time.Duration
}

// Config holds the server's runtime settings.
type Config struct {
	Port              string
	AllowedOrigins    []string
	MaxMessageSize    int64
	SendQueueDepth    int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RoomGracePeriod   time.Duration
	GhostTimeout      time.Duration
	Cursor            RateLimitConfig
}

// NewConfig creates a Config populated with protocol defaults.
func NewConfig() *Config {
	return &Config{
		Port:              ":8080",
		AllowedOrigins:    []string{"*"},
		MaxMessageSize:    protocol.MaxMessageSize,
		SendQueueDepth:    256,
		HeartbeatInterval: protocol.HeartbeatIntervalMs * time.Millisecond,
		HeartbeatTimeout:  protocol.HeartbeatTimeoutMs * time.Millisecond,
		RoomGracePeriod:   60 * time.Second,
		GhostTimeout:      protocol.GhostCursorTimeoutMs * time.Millisecond,
		Cursor: RateLimitConfig{
			Rate:         protocol.CursorUpdatesPerSecond,
			Burst:        protocol.RateLimitBurstSize,
			MuteAfter:    3,
			MuteDuration: protocol.RateLimitMuteDurationMs * time.Millisecond,
		},
	}
}

// NewConfigFromEnv creates a Config from environment variables.
// Falls back to default values for anything unset.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()

	// Load PORT
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = NormalizePort(port)
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	// Load MAX_MESSAGE_SIZE
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}

	// Load SEND_QUEUE_DEPTH
	if depth := os.Getenv("SEND_QUEUE_DEPTH"); depth != "" {
		cfg.SendQueueDepth = parseIntValue(depth, cfg.SendQueueDepth)
	}

	// Load ROOM_GRACE_PERIOD (seconds)
	if grace := os.Getenv("ROOM_GRACE_PERIOD"); grace != "" {
		cfg.RoomGracePeriod = parseSeconds(grace, cfg.RoomGracePeriod)
	}

	return cfg
}

// configFile mirrors Config for YAML decoding. Durations are written in Go
// syntax ("90s", "10m"); pointer fields distinguish absent from zero.
type configFile struct {
	Port              *string  `yaml:"port"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	MaxMessageSize    *int64   `yaml:"maxMessageSize"`
	SendQueueDepth    *int     `yaml:"sendQueueDepth"`
	HeartbeatInterval *string  `yaml:"heartbeatInterval"`
	HeartbeatTimeout  *string  `yaml:"heartbeatTimeout"`
	RoomGracePeriod   *string  `yaml:"roomGracePeriod"`
	GhostTimeout      *string  `yaml:"ghostTimeout"`
	Cursor            struct {
		Rate         *float64 `yaml:"rate"`
		Burst        *float64 `yaml:"burst"`
		MuteAfter    *int     `yaml:"muteAfter"`
		MuteDuration *string  `yaml:"muteDuration"`
	} `yaml:"cursor"`
}

// LoadConfigFile overlays settings from a YAML file onto cfg. Fields absent
// from the file keep their current values.
func LoadConfigFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var file configFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.Port != nil {
		cfg.Port = NormalizePort(*file.Port)
	}
	if file.AllowedOrigins != nil {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if file.MaxMessageSize != nil {
		cfg.MaxMessageSize = *file.MaxMessageSize
	}
	if file.SendQueueDepth != nil {
		cfg.SendQueueDepth = *file.SendQueueDepth
	}
	if file.Cursor.Rate != nil {
		cfg.Cursor.Rate = *file.Cursor.Rate
	}
	if file.Cursor.Burst != nil {
		cfg.Cursor.Burst = *file.Cursor.Burst
	}
	if file.Cursor.MuteAfter != nil {
		cfg.Cursor.MuteAfter = *file.Cursor.MuteAfter
	}

	durations := []struct {
		raw *string
		dst *time.Duration
	}{
		{file.HeartbeatInterval, &cfg.HeartbeatInterval},
		{file.HeartbeatTimeout, &cfg.HeartbeatTimeout},
		{file.RoomGracePeriod, &cfg.RoomGracePeriod},
		{file.GhostTimeout, &cfg.GhostTimeout},
		{file.Cursor.MuteDuration, &cfg.Cursor.MuteDuration},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Sanitize clamps out-of-range values back to defaults.
func (c *Config) Sanitize() {
	def := NewConfig()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendQueueDepth <= 0 {
		c.SendQueueDepth = def.SendQueueDepth
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.RoomGracePeriod <= 0 {
		c.RoomGracePeriod = def.RoomGracePeriod
	}
	if c.GhostTimeout <= 0 {
		c.GhostTimeout = def.GhostTimeout
	}
	if c.Cursor.Rate <= 0 {
		c.Cursor.Rate = def.Cursor.Rate
	}
	if c.Cursor.Burst <= 0 {
		c.Cursor.Burst = def.Cursor.Burst
	}
	if c.Cursor.MuteDuration <= 0 {
		c.Cursor.MuteDuration = def.Cursor.MuteDuration
	}
}

// NormalizePort accepts "8080" or ":8080" and returns the listen address
// form.
func NormalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
