// Package config loads and saves user preferences from the .refinery
// dot-directory. A project-local .refinery takes precedence; otherwise the
// home-level ~/.refinery is used.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// Config holds user preferences.
type Config struct {
	APIKey          string        `json:"api_key"`
	Model           string        `json:"model"`
	Theme           string        `json:"theme"` // "light" or "dark"
	TranslatorModel string        `json:"translator_model,omitempty"`
	EnableSearch    bool          `json:"enable_search"`
	Logging         LoggingConfig `json:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-2.5-flash",
		Theme:           "dark",
		TranslatorModel: "gemini-2.5-flash",
		EnableSearch:    true,
	}
}

// Dir returns the directory where config is stored.
func Dir() (string, error) {
	// Prefer project-local .refinery directory if present or creatable
	if cwd, err := os.Getwd(); err == nil {
		localDir := filepath.Join(cwd, ".refinery")
		if stat, err := os.Stat(localDir); (err == nil && stat.IsDir()) || os.IsNotExist(err) {
			return localDir, nil
		}
	}

	// Fallback to home-level config
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".refinery"), nil
}

// File returns the full path to the config file.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the configuration from disk. Environment variables override
// the stored values: GEMINI_API_KEY for the key, REFINERY_MODEL for the
// model name.
func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := File()
	if err != nil {
		return applyEnv(cfg), err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return applyEnv(cfg), nil
	}
	if err != nil {
		return applyEnv(cfg), err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return applyEnv(DefaultConfig()), err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("REFINERY_MODEL"); model != "" {
		cfg.Model = model
	}
	return cfg
}

// Save writes the configuration to disk.
func Save(cfg Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := File()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
