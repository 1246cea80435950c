package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Push backends
const (
	PushPostgres  = "postgres"
	PushWebSocket = "websocket"
	PushNone      = "none"
)

// Config holds all configuration for the helpdesk client
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Realtime  RealtimeConfig  `json:"realtime"`
	Assistant AssistantConfig `json:"assistant"`
	Sync      SyncConfig      `json:"sync"`
	Caller    CallerConfig    `json:"caller"`
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Tracing   TracingConfig   `json:"tracing"`
}

// DatabaseConfig holds the ticket store connection
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url"`
	MaxConns    int    `json:"max_conns"`
}

// RealtimeConfig selects where insert events are pushed from
type RealtimeConfig struct {
	Backend string `json:"backend"` // "postgres", "websocket" or "none"
	URL     string `json:"url"`     // Realtime gateway URL (websocket backend)
	APIKey  string `json:"api_key"`
}

// AssistantConfig holds the assistant function endpoints
type AssistantConfig struct {
	URL                string   `json:"url"`
	ActionURL          string   `json:"action_url"`
	APIKey             string   `json:"api_key"`
	Timeout            Duration `json:"timeout"`
	BreakerMaxFailures int      `json:"breaker_max_failures"`
	BreakerCooldown    Duration `json:"breaker_cooldown"`
}

// SyncConfig tunes the synchronization engine
type SyncConfig struct {
	PollInterval  Duration `json:"poll_interval"`
	ReplyDeadline Duration `json:"reply_deadline"`
	DedupWindow   Duration `json:"dedup_window"`
}

// CallerConfig identifies the end user the assistant runs for
type CallerConfig struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
}

// ServerConfig holds the local bridge server configuration
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins"` // Allowed CORS origins
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"service_name"`
}

// Duration is a time.Duration read from JSON as "5s" or as a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			PostgresURL: "",
			MaxConns:    10,
		},
		Realtime: RealtimeConfig{
			Backend: PushPostgres,
		},
		Assistant: AssistantConfig{
			URL:                "http://localhost:54321/functions/v1/support-assistant",
			ActionURL:          "http://localhost:54321/functions/v1/ticket-action",
			Timeout:            Duration(30 * time.Second),
			BreakerMaxFailures: 5,
			BreakerCooldown:    Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			PollInterval:  Duration(5 * time.Second),
			ReplyDeadline: Duration(15 * time.Second),
			DedupWindow:   Duration(10 * time.Second),
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8787,
			CORSOrigins: []string{"http://localhost:3000"}, // Default development origin
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "helpdesk",
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envBool loads a boolean environment variable into the target pointer if set and valid
func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// envDuration loads a duration ("5s", "1m") environment variable into the target pointer if set and valid
func envDuration(key string, target *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = Duration(d)
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", configPath, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("HELPDESK_POSTGRES_URL", &c.Database.PostgresURL)
	envInt("HELPDESK_POSTGRES_MAX_CONNS", &c.Database.MaxConns)

	envString("HELPDESK_REALTIME_BACKEND", &c.Realtime.Backend)
	envString("HELPDESK_REALTIME_URL", &c.Realtime.URL)
	envString("HELPDESK_REALTIME_API_KEY", &c.Realtime.APIKey)

	envString("HELPDESK_ASSISTANT_URL", &c.Assistant.URL)
	envString("HELPDESK_ASSISTANT_ACTION_URL", &c.Assistant.ActionURL)
	envString("HELPDESK_ASSISTANT_API_KEY", &c.Assistant.APIKey)
	envDuration("HELPDESK_ASSISTANT_TIMEOUT", &c.Assistant.Timeout)
	envInt("HELPDESK_ASSISTANT_BREAKER_MAX_FAILURES", &c.Assistant.BreakerMaxFailures)
	envDuration("HELPDESK_ASSISTANT_BREAKER_COOLDOWN", &c.Assistant.BreakerCooldown)

	envDuration("HELPDESK_POLL_INTERVAL", &c.Sync.PollInterval)
	envDuration("HELPDESK_REPLY_DEADLINE", &c.Sync.ReplyDeadline)
	envDuration("HELPDESK_DEDUP_WINDOW", &c.Sync.DedupWindow)

	envString("HELPDESK_USER_ID", &c.Caller.UserID)
	envString("HELPDESK_USER_NAME", &c.Caller.DisplayName)
	envString("HELPDESK_USER_TOKEN", &c.Caller.Token)

	envString("HELPDESK_SERVER_HOST", &c.Server.Host)
	envInt("HELPDESK_SERVER_PORT", &c.Server.Port)
	envStringSlice("HELPDESK_CORS_ORIGINS", &c.Server.CORSOrigins)

	envString("HELPDESK_LOG_LEVEL", &c.Logging.Level)
	envString("HELPDESK_LOG_FORMAT", &c.Logging.Format)

	envBool("HELPDESK_TRACING_ENABLED", &c.Tracing.Enabled)
	envString("HELPDESK_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
}

// IsWebSocketPush returns true if insert events come from the realtime gateway
func (c *Config) IsWebSocketPush() bool {
	return c.Realtime.Backend == PushWebSocket
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	// Database validation
	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, "PostgreSQL max_conns must be at least 1")
	}

	// Realtime validation
	switch c.Realtime.Backend {
	case PushPostgres, PushNone:
	case PushWebSocket:
		if c.Realtime.URL == "" {
			errs = append(errs, "realtime URL is required for the websocket backend")
		} else if !isValidURL(c.Realtime.URL) {
			errs = append(errs, "realtime URL must be a valid URL")
		}
	default:
		errs = append(errs, fmt.Sprintf("realtime backend must be one of %s, %s, %s", PushPostgres, PushWebSocket, PushNone))
	}

	// Assistant validation
	if c.Assistant.URL == "" {
		errs = append(errs, "assistant URL is required")
	} else if !isValidURL(c.Assistant.URL) {
		errs = append(errs, "assistant URL must be a valid URL")
	}
	if c.Assistant.ActionURL != "" && !isValidURL(c.Assistant.ActionURL) {
		errs = append(errs, "assistant action URL must be a valid URL")
	}
	if c.Assistant.Timeout <= 0 {
		errs = append(errs, "assistant timeout must be positive")
	}
	if c.Assistant.BreakerMaxFailures < 1 {
		errs = append(errs, "assistant breaker_max_failures must be at least 1")
	}

	// Sync validation
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, "poll interval must be positive")
	}
	if c.Sync.ReplyDeadline <= 0 {
		errs = append(errs, "reply deadline must be positive")
	}
	if c.Sync.DedupWindow <= 0 {
		errs = append(errs, "dedup window must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, "log format must be 'text' or 'json'")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("HELPDESK_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	// Check ~/.config/helpdesk/config.json first
	configDir := filepath.Join(homeDir, ".config", "helpdesk")
	configPath := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	// Check ~/.helpdesk/config.json
	altPath := filepath.Join(homeDir, ".helpdesk", "config.json")
	if _, err := os.Stat(altPath); err == nil {
		return altPath
	}

	return configPath
}
