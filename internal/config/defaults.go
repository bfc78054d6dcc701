package config

import "time"

const (
	DefaultSettingsFile = "settings.json5"
	DefaultEnvFile      = ".env"
)

// DefaultSettings returns the settings used when no file overrides them.
func DefaultSettings() *Settings {
	return &Settings{
		TasksFile:   "tasks.csv",
		ProxiesFile: "proxies.txt",
		JournalPath: "data/journal.db",
		LogLevel:    "info",
		LogDir:      "logs",
	}
}

// DefaultTaskRecord is written to a fresh tasks file as a template.
func DefaultTaskRecord() TaskRecord {
	return TaskRecord{
		Name:                "default",
		ProductIDs:          []uint64{221, 222, 223},
		Cookies:             "your_cookies_here",
		RetryDelay:          2500 * time.Millisecond,
		CartTotalPriceLimit: 1000,
	}
}
