package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Image     ImageConfig     `mapstructure:"image"`
	Trends    TrendsConfig    `mapstructure:"trends"`
	News      NewsConfig      `mapstructure:"news"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// ServerConfig holds HTTP server and in-process trigger settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// DispatchCron drives the in-process dispatch ticker. Empty disables it,
	// in which case an external scheduler must call the /cron endpoints.
	DispatchCron string `mapstructure:"dispatch_cron"`
}

// AnthropicConfig holds generation model settings. The API key itself is
// stored encrypted per project, not here.
type AnthropicConfig struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// SchedulerConfig holds slot computation and dispatch settings
type SchedulerConfig struct {
	// DispatchBatchSize bounds how many due slots one dispatch invocation
	// processes, to respect external execution-time budgets.
	DispatchBatchSize int `mapstructure:"dispatch_batch_size"`
	RandomStartHour   int `mapstructure:"random_start_hour"` // local time, inclusive
	RandomEndHour     int `mapstructure:"random_end_hour"`   // local time, exclusive
}

// ImageConfig holds image generation settings. Image backends use
// deployment-wide keys; the per-project generation key only covers text.
type ImageConfig struct {
	Provider     string `mapstructure:"provider"` // none, openai or gemini
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
}

// TrendsConfig holds trend search settings. Disabled by default: the
// upstream search endpoint is not available on the free API tier.
type TrendsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BearerToken string `mapstructure:"bearer_token"`
}

// NewsConfig holds news feed locale settings
type NewsConfig struct {
	Language string `mapstructure:"language"` // hl parameter
	Country  string `mapstructure:"country"`  // gl parameter
}

// CryptoConfig holds the credential encryption key
type CryptoConfig struct {
	Key string `mapstructure:"key"` // 64 hex chars (AES-256)
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".autopost-agent"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("AUTOPOST")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.driver", "AUTOPOST_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "AUTOPOST_DATABASE_DSN")
	v.BindEnv("server.addr", "AUTOPOST_SERVER_ADDR")
	v.BindEnv("server.dispatch_cron", "AUTOPOST_SERVER_DISPATCH_CRON")
	v.BindEnv("anthropic.model", "AUTOPOST_ANTHROPIC_MODEL")
	v.BindEnv("image.provider", "AUTOPOST_IMAGE_PROVIDER")
	v.BindEnv("image.openai_api_key", "AUTOPOST_IMAGE_OPENAI_API_KEY")
	v.BindEnv("image.gemini_api_key", "AUTOPOST_IMAGE_GEMINI_API_KEY")
	v.BindEnv("trends.enabled", "AUTOPOST_TRENDS_ENABLED")
	v.BindEnv("trends.bearer_token", "AUTOPOST_TRENDS_BEARER_TOKEN")
	v.BindEnv("crypto.key", "AUTOPOST_CRYPTO_KEY")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/autopost.db")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.dispatch_cron", "*/5 * * * *") // Every 5 minutes

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.7)

	// Scheduler defaults
	v.SetDefault("scheduler.dispatch_batch_size", 5)
	v.SetDefault("scheduler.random_start_hour", 9)
	v.SetDefault("scheduler.random_end_hour", 21)

	// Image defaults. Off until a provider and its key are configured.
	v.SetDefault("image.provider", "none")

	// Trends defaults
	v.SetDefault("trends.enabled", false)

	// News defaults (Japanese locale)
	v.SetDefault("news.language", "ja")
	v.SetDefault("news.country", "JP")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Crypto.Key == "" {
		return fmt.Errorf("crypto.key is required")
	}
	if c.Scheduler.DispatchBatchSize <= 0 {
		return fmt.Errorf("scheduler.dispatch_batch_size must be positive")
	}
	if c.Scheduler.RandomStartHour >= c.Scheduler.RandomEndHour {
		return fmt.Errorf("scheduler.random_start_hour must be before random_end_hour")
	}
	switch c.Image.Provider {
	case "", "none":
	case "openai":
		if c.Image.OpenAIAPIKey == "" {
			return fmt.Errorf("image.openai_api_key is required when image.provider is openai")
		}
	case "gemini":
		if c.Image.GeminiAPIKey == "" {
			return fmt.Errorf("image.gemini_api_key is required when image.provider is gemini")
		}
	default:
		return fmt.Errorf("image.provider must be none, openai or gemini")
	}
	return nil
}
