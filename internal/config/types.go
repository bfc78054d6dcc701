package config

import "time"

// Settings controls where the runner reads its inputs and how it reports.
type Settings struct {
	TasksFile   string `json:"tasks_file"`             // CSV of purchase tasks
	ProxiesFile string `json:"proxies_file"`           // One proxy per line
	JournalPath string `json:"journal_path,omitempty"` // SQLite journal; empty disables it
	LogLevel    string `json:"log_level"`              // logrus level name
	LogDir      string `json:"log_dir"`                // Directory for the log file; empty disables it
	TUI         bool   `json:"tui,omitempty"`          // Show the live dashboard
}

// TaskRecord is one row of the tasks file.
type TaskRecord struct {
	Name                string
	ProductIDs          []uint64
	Cookies             string
	RetryDelay          time.Duration
	CartTotalPriceLimit uint64
}
