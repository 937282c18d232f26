package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"

	defaultDatabasePath      = "data/nutrition.db"
	defaultArchivePath       = "data/completions"
	defaultCompletionTimeout = 60 * time.Second
	defaultPort              = "8080"
)

// Config holds the configuration for the application.
type Config struct {
	LLMProvider  string
	GeminiAPIKey string
	GroqAPIKey   string
	GeminiModel  string
	GroqModel    string

	DatabasePath          string
	ArchivePath           string
	CompletionTimeout     time.Duration
	DistributionTablePath string

	LogLevel  string
	LogFormat string
	Port      string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// Load reads a .env file into the environment when one exists and then
// builds the Config from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return NewFromEnv()
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	if provider == "" {
		provider = ProviderGroq
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	groqAPIKey := os.Getenv("GROQ_API_KEY")

	switch provider {
	case ProviderGemini:
		if geminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderGroq:
		if groqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", provider)
	}

	timeout := defaultCompletionTimeout
	if s := os.Getenv("COMPLETION_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid COMPLETION_TIMEOUT %q", s)
		}
		timeout = d
	}

	// Telegram Config (Optional for CLI, required for Bot)
	var allowed []int64
	for _, s := range strings.Split(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q in TELEGRAM_ALLOWED_USER_IDS: %w", s, err)
		}
		allowed = append(allowed, id)
	}

	return &Config{
		LLMProvider:            provider,
		GeminiAPIKey:           geminiAPIKey,
		GroqAPIKey:             groqAPIKey,
		GeminiModel:            os.Getenv("GEMINI_MODEL"),
		GroqModel:              os.Getenv("GROQ_MODEL"),
		DatabasePath:           getEnv("DATABASE_PATH", defaultDatabasePath),
		ArchivePath:            getEnv("COMPLETION_ARCHIVE_PATH", defaultArchivePath),
		CompletionTimeout:      timeout,
		DistributionTablePath:  os.Getenv("DISTRIBUTION_TABLE_PATH"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "console"),
		Port:                   getEnv("PORT", defaultPort),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
	}, nil
}

// RequireTelegram checks the settings only the bot needs.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
