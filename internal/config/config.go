package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

var (
	ErrNoConfig        = errors.New("config file not found")
	ErrNoAPIKey        = errors.New("api_key not set in config (required for gemini)")
	ErrInvalidJSON     = errors.New("invalid config JSON")
	ErrInvalidProvider = errors.New("provider must be \"gemini\" or \"ollama\"")
	ErrInvalidMatcher  = errors.New("matcher must be \"window\" or \"trim\"")
)

// Config holds the global sled configuration.
type Config struct {
	Provider      string  `json:"provider"`        // "gemini" or "ollama"
	APIKey        string  `json:"api_key"`         // Gemini API key
	GeminiBaseURL string  `json:"gemini_base_url"` // Override for testing/proxies
	OllamaBaseURL string  `json:"ollama_base_url"`
	Model         string  `json:"model"`
	Matcher       *string `json:"matcher"`       // Locator strategy: "window" or "trim"
	RepairBudget  *int    `json:"repair_budget"` // Max automatic repair retries per edit
	ArchiveLimit  *int    `json:"archive_limit"` // Raw responses kept for inspection
}

// Load reads the config from ~/.config/sled/config.json.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(homeDir, ".config", "sled", "config.json")
	return LoadFrom(configPath)
}

// LoadFrom reads the config from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, ErrInvalidJSON
	}

	// Set defaults
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	if cfg.GeminiBaseURL == "" {
		cfg.GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case "gemini":
			cfg.Model = "gemini-2.0-flash"
		default:
			cfg.Model = "qwen2.5-coder:7b"
		}
	}
	if cfg.Matcher == nil {
		m := "window"
		cfg.Matcher = &m
	}
	if cfg.RepairBudget == nil {
		b := 2
		cfg.RepairBudget = &b
	}
	if cfg.ArchiveLimit == nil {
		n := 32
		cfg.ArchiveLimit = &n
	}

	switch cfg.Provider {
	case "gemini", "ollama":
		// valid
	default:
		return nil, ErrInvalidProvider
	}
	if cfg.Provider == "gemini" && cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	switch *cfg.Matcher {
	case "window", "trim":
		// valid
	default:
		return nil, ErrInvalidMatcher
	}

	return &cfg, nil
}
