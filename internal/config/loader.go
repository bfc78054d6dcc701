package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Environment variables that override the settings file.
const (
	EnvTasksFile   = "CHECKOUT_TASKS_FILE"
	EnvProxiesFile = "CHECKOUT_PROXIES_FILE"
	EnvJournalPath = "CHECKOUT_JOURNAL"
	EnvLogLevel    = "CHECKOUT_LOG_LEVEL"
)

// Load reads settings with this precedence (highest first): environment
// (including envPath, a dotenv file), the settings file at path, defaults.
// Missing files are not errors; a malformed settings file is.
func Load(path, envPath string) (*Settings, error) {
	cfg := DefaultSettings()

	if path != "" {
		if err := mergeSettingsFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}
	applyEnv(cfg)

	return cfg, nil
}

// mergeSettingsFile reads a JSON5 settings file and merges its non-empty
// fields over base.
func mergeSettingsFile(base *Settings, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Settings
	if err := json5.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := mergo.Merge(base, loaded, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Settings) {
	overrides := map[string]*string{
		EnvTasksFile:   &cfg.TasksFile,
		EnvProxiesFile: &cfg.ProxiesFile,
		EnvJournalPath: &cfg.JournalPath,
		EnvLogLevel:    &cfg.LogLevel,
	}
	for key, field := range overrides {
		if v, ok := os.LookupEnv(key); ok {
			*field = v
		}
	}
}
