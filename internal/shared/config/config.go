package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OpenAI   OpenAIConfig
	Telegram TelegramConfig
	Calendar CalendarConfig
	Auth     AuthConfig
	Limits   LimitsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// OpenAIConfig holds the text-generation gateway settings.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// RequestTimeout bounds every gateway call; on expiry the caller applies
	// its documented fallback instead of propagating the error.
	RequestTimeout time.Duration
}

// TelegramConfig holds the doctor hand-off channel settings.
type TelegramConfig struct {
	BotToken     string
	DoctorChatID int64
}

// CalendarConfig holds the booking settings for the doctor calendar.
type CalendarConfig struct {
	// AccessToken authorizes Calendar API calls. Empty disables booking,
	// in which case completed consults are marked needs_manual_schedule.
	AccessToken string
	CalendarID  string
	SlotMinutes int
	// LeadHours is how far in the future slot search starts.
	LeadHours int
	// SearchDays is the length of the slot search window.
	SearchDays int
}

type AuthConfig struct {
	JWTSecret string
}

// LimitsConfig holds public-surface rate limits.
type LimitsConfig struct {
	RequestsPerSecond int
	Burst             int
}

func Load() (*Config, error) {
	doctorChat, err := strconv.ParseInt(getEnv("TELEGRAM_DOCTOR_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_DOCTOR_CHAT_ID: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "triage"),
			Password: getEnv("DB_PASSWORD", "triage"),
			Database: getEnv("DB_NAME", "triage"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			RequestTimeout: getEnvDuration("OPENAI_REQUEST_TIMEOUT", 20*time.Second),
		},
		Telegram: TelegramConfig{
			BotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			DoctorChatID: doctorChat,
		},
		Calendar: CalendarConfig{
			AccessToken: getEnv("CALENDAR_ACCESS_TOKEN", ""),
			CalendarID:  getEnv("DOCTOR_CALENDAR_ID", ""),
			SlotMinutes: getEnvInt("CALENDAR_SLOT_MINUTES", 15),
			LeadHours:   getEnvInt("CALENDAR_LEAD_HOURS", 1),
			SearchDays:  getEnvInt("CALENDAR_SEARCH_DAYS", 7),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Limits: LimitsConfig{
			RequestsPerSecond: getEnvInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 40),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
