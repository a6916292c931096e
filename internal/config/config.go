package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	OpenAI  OpenAIConfig
	Auth    AuthConfig
	Sync    SyncConfig
	Sources SourcesConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// MongoDBConfig holds MongoDB connection details
type MongoDBConfig struct {
	URI        string
	Username   string
	Password   string
	Host       string
	Port       string
	Database   string
	AuthSource string // Database to authenticate against (default: admin)
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// AuthConfig holds JWT session verification settings
type AuthConfig struct {
	JWTSecret string
}

// SyncConfig holds pipeline tuning knobs
type SyncConfig struct {
	// Workers bounds per-batch item concurrency so source rate limits
	// are respected (mailbox/chat APIs throttle aggressively).
	Workers        int
	ExtractTimeout int // seconds per model call
	FetchTimeout   int // seconds per adapter call
}

// SourcesConfig holds per-source endpoints and adapter settings
type SourcesConfig struct {
	ChatBaseURL      string
	WikiBaseURL      string
	MeetingBaseURL   string
	ProcessedLabel   string // mailbox label applied by markHandled
	CalendarID       string
	MinTranscriptLen int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8086"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		MongoDB: MongoDBConfig{
			URI:        getEnv("MONGODB_URI", ""),
			Username:   getEnv("MONGODB_USERNAME", ""),
			Password:   getEnv("MONGODB_PASSWORD", ""),
			Host:       getEnv("MONGODB_HOST", ""),
			Port:       getEnv("MONGODB_PORT", "27017"),
			Database:   getEnv("MONGODB_DATABASE", "taskharvest"),
			AuthSource: getEnv("MONGODB_AUTH_SOURCE", "admin"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat("OPENAI_TEMPERATURE", 0.2),
			MaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", 1500),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Sync: SyncConfig{
			Workers:        getEnvInt("SYNC_WORKERS", 4),
			ExtractTimeout: getEnvInt("SYNC_EXTRACT_TIMEOUT_SECONDS", 60),
			FetchTimeout:   getEnvInt("SYNC_FETCH_TIMEOUT_SECONDS", 30),
		},
		Sources: SourcesConfig{
			ChatBaseURL:      getEnv("CHAT_API_BASE_URL", "https://slack.com/api"),
			WikiBaseURL:      getEnv("WIKI_API_BASE_URL", "https://api.notion.com/v1"),
			MeetingBaseURL:   getEnv("MEETING_API_BASE_URL", ""),
			ProcessedLabel:   getEnv("MAILBOX_PROCESSED_LABEL", "taskharvest/processed"),
			CalendarID:       getEnv("CALENDAR_ID", "primary"),
			MinTranscriptLen: getEnvInt("MEETING_MIN_TRANSCRIPT_CHARS", 200),
		},
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ValidateConfig validates that required configuration values are present
func ValidateConfig(config *Config) error {
	if config.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if config.Sync.Workers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1")
	}
	return nil
}

// Helper functions for environment variable access
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
