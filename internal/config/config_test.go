package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Scheduler.DispatchBatchSize != 5 {
		t.Errorf("DispatchBatchSize = %d, want 5", cfg.Scheduler.DispatchBatchSize)
	}
	if cfg.Scheduler.RandomStartHour != 9 || cfg.Scheduler.RandomEndHour != 21 {
		t.Errorf("random window = [%d, %d), want [9, 21)",
			cfg.Scheduler.RandomStartHour, cfg.Scheduler.RandomEndHour)
	}
	if cfg.Trends.Enabled {
		t.Error("Trends.Enabled should default to false")
	}
	if cfg.Image.Provider != "none" {
		t.Errorf("Image.Provider = %q, want none (no deployment-wide image key by default)", cfg.Image.Provider)
	}
	if cfg.News.Language != "ja" || cfg.News.Country != "JP" {
		t.Errorf("news locale = %s/%s, want ja/JP", cfg.News.Language, cfg.News.Country)
	}
	if cfg.Anthropic.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", cfg.Anthropic.MaxTokens)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AUTOPOST_SERVER_ADDR", ":9090")
	t.Setenv("AUTOPOST_TRENDS_ENABLED", "true")
	t.Setenv("AUTOPOST_CRYPTO_KEY", "abc123")
	t.Setenv("AUTOPOST_IMAGE_PROVIDER", "openai")
	t.Setenv("AUTOPOST_IMAGE_OPENAI_API_KEY", "sk-images")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if !cfg.Trends.Enabled {
		t.Error("Trends.Enabled not read from environment")
	}
	if cfg.Crypto.Key != "abc123" {
		t.Errorf("Crypto.Key = %q", cfg.Crypto.Key)
	}
	if cfg.Image.Provider != "openai" || cfg.Image.OpenAIAPIKey != "sk-images" {
		t.Errorf("image config = %q/%q, want openai/sk-images",
			cfg.Image.Provider, cfg.Image.OpenAIAPIKey)
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Crypto:    CryptoConfig{Key: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
		Scheduler: SchedulerConfig{DispatchBatchSize: 5, RandomStartHour: 9, RandomEndHour: 21},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing crypto key", func(c *Config) { c.Crypto.Key = "" }},
		{"zero batch size", func(c *Config) { c.Scheduler.DispatchBatchSize = 0 }},
		{"inverted random window", func(c *Config) { c.Scheduler.RandomStartHour = 21; c.Scheduler.RandomEndHour = 9 }},
		{"openai provider without key", func(c *Config) { c.Image.Provider = "openai" }},
		{"gemini provider without key", func(c *Config) { c.Image.Provider = "gemini" }},
		{"unknown image provider", func(c *Config) { c.Image.Provider = "dalle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
