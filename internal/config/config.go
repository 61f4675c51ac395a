package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"classcast/pkg/types"
)

// EnvPrefix namespaces every environment variable read by LoadFromEnv
const EnvPrefix = "CLASSCAST_"

// Config is the system-wide settings tree
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Broadcast *BroadcastConfig `json:"broadcast"`
	Classroom *ClassroomConfig `json:"classroom"`
	Analysis  *AnalysisConfig  `json:"analysis"`
}

// DatabaseConfig locates the activity journal
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	Host           string        `json:"host"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// WebSocketConfig tunes realtime connections
type WebSocketConfig struct {
	PingInterval       time.Duration `json:"ping_interval"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	BufferSize         int           `json:"buffer_size"`
	MaxMessageBytes    int64         `json:"max_message_bytes"`
	MaxEventsPerMinute int           `json:"max_events_per_minute"`
}

// BroadcastConfig selects fan-out scope: "class" or "global"
type BroadcastConfig struct {
	Scope string `json:"scope"`
}

// ClassroomConfig controls idle class eviction. IdleTTL of zero disables it.
type ClassroomConfig struct {
	IdleTTL      time.Duration `json:"idle_ttl"`
	ReapInterval time.Duration `json:"reap_interval"`
}

// AnalysisConfig points at the external generation endpoint.
// The API key is never read from the config file.
type AnalysisConfig struct {
	APIKey   string        `json:"-"`
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultEndpoint is the generation endpoint used when none is configured
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

// DefaultConfig returns classroom-scale defaults
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/classcast.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second, // analysis requests wait on the upstream
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:       30 * time.Second,
			ReadTimeout:        60 * time.Second,
			WriteTimeout:       5 * time.Second,
			BufferSize:         100,
			MaxMessageBytes:    types.MaxEventBytes,
			MaxEventsPerMinute: 1200,
		},
		Broadcast: &BroadcastConfig{
			Scope: "class",
		},
		Classroom: &ClassroomConfig{
			IdleTTL:      6 * time.Hour,
			ReapInterval: 5 * time.Minute,
		},
		Analysis: &AnalysisConfig{
			Endpoint: DefaultEndpoint,
			Timeout:  30 * time.Second,
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("WebSocket max message bytes must be positive")
	}
	if c.WebSocket.MaxEventsPerMinute <= 0 {
		return fmt.Errorf("WebSocket max events per minute must be positive")
	}

	if c.Broadcast == nil {
		return fmt.Errorf("broadcast configuration is required")
	}
	if c.Broadcast.Scope != "class" && c.Broadcast.Scope != "global" {
		return fmt.Errorf("broadcast scope must be \"class\" or \"global\", got %q", c.Broadcast.Scope)
	}

	if c.Classroom == nil {
		return fmt.Errorf("classroom configuration is required")
	}
	if c.Classroom.IdleTTL < 0 {
		return fmt.Errorf("classroom idle TTL cannot be negative")
	}
	if c.Classroom.IdleTTL > 0 && c.Classroom.ReapInterval <= 0 {
		return fmt.Errorf("classroom reap interval must be positive when idle TTL is set")
	}

	if c.Analysis == nil {
		return fmt.Errorf("analysis configuration is required")
	}
	if c.Analysis.Endpoint == "" {
		return fmt.Errorf("analysis endpoint cannot be empty")
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis timeout must be positive")
	}
	// A missing API key is not a configuration error; the gateway reports it per request.

	return nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// LoadFromEnv overlays CLASSCAST_* environment variables on the defaults
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	config.HTTP.Port = getEnvInt("HTTP_PORT", config.HTTP.Port)
	config.HTTP.Host = getEnv("HTTP_HOST", config.HTTP.Host)
	config.HTTP.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", config.HTTP.ReadTimeout)
	config.HTTP.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", config.HTTP.WriteTimeout)
	config.HTTP.AllowedOrigins = getEnvList("HTTP_ALLOWED_ORIGINS", config.HTTP.AllowedOrigins)

	config.Database.Path = getEnv("DATABASE_PATH", config.Database.Path)
	config.Database.Timeout = getEnvDuration("DATABASE_TIMEOUT", config.Database.Timeout)

	config.WebSocket.PingInterval = getEnvDuration("WEBSOCKET_PING_INTERVAL", config.WebSocket.PingInterval)
	config.WebSocket.ReadTimeout = getEnvDuration("WEBSOCKET_READ_TIMEOUT", config.WebSocket.ReadTimeout)
	config.WebSocket.WriteTimeout = getEnvDuration("WEBSOCKET_WRITE_TIMEOUT", config.WebSocket.WriteTimeout)
	config.WebSocket.BufferSize = getEnvInt("WEBSOCKET_BUFFER_SIZE", config.WebSocket.BufferSize)
	config.WebSocket.MaxMessageBytes = int64(getEnvInt("WEBSOCKET_MAX_MESSAGE_BYTES", int(config.WebSocket.MaxMessageBytes)))
	config.WebSocket.MaxEventsPerMinute = getEnvInt("WEBSOCKET_MAX_EVENTS_PER_MINUTE", config.WebSocket.MaxEventsPerMinute)

	config.Broadcast.Scope = getEnv("BROADCAST_SCOPE", config.Broadcast.Scope)

	config.Classroom.IdleTTL = getEnvDuration("CLASSROOM_IDLE_TTL", config.Classroom.IdleTTL)
	config.Classroom.ReapInterval = getEnvDuration("CLASSROOM_REAP_INTERVAL", config.Classroom.ReapInterval)

	config.Analysis.Endpoint = getEnv("ANALYSIS_ENDPOINT", config.Analysis.Endpoint)
	config.Analysis.Timeout = getEnvDuration("ANALYSIS_TIMEOUT", config.Analysis.Timeout)
	config.Analysis.APIKey = analysisKeyFromEnv()
}

// analysisKeyFromEnv reads the secret once at startup
func analysisKeyFromEnv() string {
	if key := getEnv("ANALYSIS_API_KEY", ""); key != "" {
		return key
	}
	return os.Getenv("GEMINI_API_KEY")
}

// ConfigFile is the JSON layout with durations as strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Broadcast *BroadcastConfig     `json:"broadcast"`
	Classroom *ClassroomConfigFile `json:"classroom"`
	Analysis  *AnalysisConfigFile  `json:"analysis"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port           int      `json:"port"`
	ReadTimeout    string   `json:"read_timeout"`
	WriteTimeout   string   `json:"write_timeout"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval       string `json:"ping_interval"`
	ReadTimeout        string `json:"read_timeout"`
	WriteTimeout       string `json:"write_timeout"`
	BufferSize         int    `json:"buffer_size"`
	MaxMessageBytes    int64  `json:"max_message_bytes"`
	MaxEventsPerMinute int    `json:"max_events_per_minute"`
}

type ClassroomConfigFile struct {
	IdleTTL      string `json:"idle_ttl"`
	ReapInterval string `json:"reap_interval"`
}

type AnalysisConfigFile struct {
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		setDuration(&config.Database.Timeout, file.Database.Timeout)
	}

	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.AllowedOrigins != nil {
			config.HTTP.AllowedOrigins = file.HTTP.AllowedOrigins
		}
		setDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}

	if file.WebSocket != nil {
		if file.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
		if file.WebSocket.MaxMessageBytes > 0 {
			config.WebSocket.MaxMessageBytes = file.WebSocket.MaxMessageBytes
		}
		if file.WebSocket.MaxEventsPerMinute > 0 {
			config.WebSocket.MaxEventsPerMinute = file.WebSocket.MaxEventsPerMinute
		}
		setDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
	}

	if file.Broadcast != nil && file.Broadcast.Scope != "" {
		config.Broadcast.Scope = file.Broadcast.Scope
	}

	if file.Classroom != nil {
		setDuration(&config.Classroom.IdleTTL, file.Classroom.IdleTTL)
		setDuration(&config.Classroom.ReapInterval, file.Classroom.ReapInterval)
	}

	if file.Analysis != nil {
		if file.Analysis.Endpoint != "" {
			config.Analysis.Endpoint = file.Analysis.Endpoint
		}
		setDuration(&config.Analysis.Timeout, file.Analysis.Timeout)
	}

	return nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment > defaults.
// A missing or unreadable file falls back to environment and defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		fileConfig := LoadFromEnv()
		if err := applyFile(fileConfig, filepath); err == nil {
			if err := fileConfig.Validate(); err == nil {
				config = fileConfig
			}
		}
	}

	return config
}

func setDuration(target *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*target = d
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(EnvPrefix + key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
