package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process configuration
type Config struct {
	TelegramToken string
	OpenAIKey     string
	OpenAIModel   string

	Database DatabaseConfig

	// Scheduler
	SchedulerEnabled bool
	Timezone         *time.Location
	DispatchTimeout  time.Duration
	DispatchWorkers  int

	// TopicsFile is an optional .xlsx/.csv catalog imported on startup
	TopicsFile string
	LogMode    string
}

// DatabaseConfig selects and locates the storage backend
type DatabaseConfig struct {
	Type       string // "sqlite" or "postgres"
	URL        string // postgres DSN
	SQLitePath string
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		OpenAIModel: "gpt-4",
		Database: DatabaseConfig{
			Type:       "sqlite",
			SQLitePath: "data/tutorbot.db",
		},
		SchedulerEnabled: true,
		Timezone:         time.UTC,
		DispatchTimeout:  30 * time.Second,
		DispatchWorkers:  4,
		LogMode:          "dev",
	}
}

// Load reads .env (if present) and then the environment
func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := Default()
	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}

	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.Database.Type = strings.ToLower(v)
	}
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	cfg.SchedulerEnabled = os.Getenv("ENABLE_SCHEDULER") != "false"

	if v := os.Getenv("NOTIFY_TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_TIMEZONE %q: %w", v, err)
		}
		cfg.Timezone = loc
	}
	if v := os.Getenv("DISPATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT %q", v)
		}
		cfg.DispatchTimeout = d
	}
	if v := os.Getenv("DISPATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid DISPATCH_WORKERS %q", v)
		}
		cfg.DispatchWorkers = n
	}

	cfg.TopicsFile = os.Getenv("TOPICS_FILE")
	if v := os.Getenv("LOG_MODE"); v != "" {
		cfg.LogMode = v
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings the process cannot run without
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must not be empty")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}
	return nil
}
