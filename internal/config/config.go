package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPersona is the system prompt that defines Happy's character
const DefaultPersona = `You are "Happy", a close friend of everyone in this workspace.
Talk in a relaxed, friendly tone and use emoji naturally.
Keep it casual but always respectful.
Answer questions sincerely without sounding formal.
You have a good sense of humor and can be playful at times.`

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// Config holds all configuration for the Happy bot
type Config struct {
	// Slack configuration
	SlackBotToken      string
	SlackSigningSecret string
	SlackBotUserID     string

	// Gemini configuration
	GoogleAPIKey      string
	GeminiModel       string
	GeminiTemperature float64

	// Bot configuration
	BotDisplayName      string
	Persona             string
	ChannelHistoryLimit int
	ThreadHistoryLimit  int
	DedupWindow         time.Duration
	MaxMessageLength    int

	// Logging configuration
	LogLevel            string
	LogFormat           string
	EnableDebug         bool
	ReportErrorsToSlack bool

	// Server configuration
	ServerPort      int
	ServerHost      string
	EventsPath      string
	HealthCheckPath string

	// Database configuration
	Database                  DatabaseConfig
	EnableDatabasePersistence bool
	NotificationChannels      []string
}

// Load loads configuration from environment variables.
// Credentials are not required here; missing ones surface when the
// corresponding API is first called.
func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		GeminiModel:         "gemini-3-flash-preview",
		GeminiTemperature:   0.8,
		BotDisplayName:      "Happy",
		Persona:             DefaultPersona,
		ChannelHistoryLimit: 30,
		ThreadHistoryLimit:  100,
		DedupWindow:         time.Minute,
		MaxMessageLength:    4000,
		LogLevel:            "info",
		LogFormat:           "json",
		ServerPort:          8080,
		ServerHost:          "0.0.0.0",
		EventsPath:          "/api/slack/events",
		HealthCheckPath:     "/health",
		// Database defaults
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "happy_slack",
			User:            "happy_bot",
			MaxConnections:  5,
			IdleConnections: 1,
			MaxLifetime:     time.Hour,
		},
	}

	var err error

	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.SlackSigningSecret = os.Getenv("SLACK_SIGNING_SECRET")
	cfg.SlackBotUserID = os.Getenv("SLACK_BOT_USER_ID")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	if val := os.Getenv("GEMINI_MODEL"); val != "" {
		cfg.GeminiModel = val
	}

	if val := os.Getenv("GEMINI_TEMPERATURE"); val != "" {
		cfg.GeminiTemperature, err = strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GEMINI_TEMPERATURE: %v", err)
		}
	}

	if val := os.Getenv("BOT_DISPLAY_NAME"); val != "" {
		cfg.BotDisplayName = val
	}

	if val := os.Getenv("BOT_PERSONA"); val != "" {
		cfg.Persona = val
	}

	if val := os.Getenv("CHANNEL_HISTORY_LIMIT"); val != "" {
		cfg.ChannelHistoryLimit, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid CHANNEL_HISTORY_LIMIT: %v", err)
		}
	}

	if val := os.Getenv("THREAD_HISTORY_LIMIT"); val != "" {
		cfg.ThreadHistoryLimit, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid THREAD_HISTORY_LIMIT: %v", err)
		}
	}

	if val := os.Getenv("DEDUP_WINDOW"); val != "" {
		cfg.DedupWindow, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DEDUP_WINDOW: %v", err)
		}
	}

	if val := os.Getenv("MAX_MESSAGE_LENGTH"); val != "" {
		cfg.MaxMessageLength, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_MESSAGE_LENGTH: %v", err)
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.LogFormat = val
	}

	if val := os.Getenv("ENABLE_DEBUG"); val != "" {
		cfg.EnableDebug, err = strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_DEBUG: %v", err)
		}
	}

	if val := os.Getenv("REPORT_ERRORS_TO_SLACK"); val != "" {
		cfg.ReportErrorsToSlack, err = strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid REPORT_ERRORS_TO_SLACK: %v", err)
		}
	}

	if val := os.Getenv("SERVER_PORT"); val != "" {
		cfg.ServerPort, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT: %v", err)
		}
	}

	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.ServerHost = val
	}

	if val := os.Getenv("EVENTS_PATH"); val != "" {
		cfg.EventsPath = val
	}

	if val := os.Getenv("HEALTH_CHECK_PATH"); val != "" {
		cfg.HealthCheckPath = val
	}

	// Database configuration
	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.Database.URL = val
	}

	if val := os.Getenv("DB_HOST"); val != "" {
		cfg.Database.Host = val
	}

	if val := os.Getenv("DB_PORT"); val != "" {
		cfg.Database.Port, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %v", err)
		}
	}

	if val := os.Getenv("DB_NAME"); val != "" {
		cfg.Database.Name = val
	}

	if val := os.Getenv("DB_USER"); val != "" {
		cfg.Database.User = val
	}

	if val := os.Getenv("DB_PASSWORD"); val != "" {
		cfg.Database.Password = val
	}

	if val := os.Getenv("DB_MAX_CONNECTIONS"); val != "" {
		cfg.Database.MaxConnections, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_CONNECTIONS: %v", err)
		}
	}

	if val := os.Getenv("DB_IDLE_CONNECTIONS"); val != "" {
		cfg.Database.IdleConnections, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_IDLE_CONNECTIONS: %v", err)
		}
	}

	if val := os.Getenv("DB_MAX_LIFETIME"); val != "" {
		cfg.Database.MaxLifetime, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_LIFETIME: %v", err)
		}
	}

	if val := os.Getenv("ENABLE_DATABASE_PERSISTENCE"); val != "" {
		cfg.EnableDatabasePersistence, err = strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_DATABASE_PERSISTENCE: %v", err)
		}
	}

	if val := os.Getenv("SLACK_NOTIFICATION_CHANNELS"); val != "" {
		cfg.NotificationChannels = splitList(val)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ChannelHistoryLimit <= 0 {
		return fmt.Errorf("channel history limit must be positive")
	}
	if c.ThreadHistoryLimit <= 0 {
		return fmt.Errorf("thread history limit must be positive")
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.EventsPath, "/") {
		return fmt.Errorf("events path must start with /")
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// DSN returns the Postgres connection string, preferring DATABASE_URL
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
