package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one invocation of the task runner.
type Run struct {
	ID        string
	StartedAt time.Time
	TaskCount int
}

// Attempt is a single phase attempt of one task.
type Attempt struct {
	Task     string
	Phase    string
	Attempt  int
	OK       bool
	Error    string // Empty when OK
	Duration time.Duration
	At       time.Time
}

// Order is the response of a successful order creation.
type Order struct {
	Task     string
	Response string
	At       time.Time
}

// Store is the run journal.
type Store interface {
	// Runs
	StartRun(ctx context.Context, taskCount int) (string, error)
	GetRun(ctx context.Context, runID string) (Run, error)

	// Per-task history
	SaveAttempt(ctx context.Context, runID string, a Attempt) error
	ListAttempts(ctx context.Context, runID string) ([]Attempt, error)
	SaveOrder(ctx context.Context, runID string, o Order) error
	ListOrders(ctx context.Context, runID string) ([]Order, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, a busy timeout
// and foreign keys on every connection.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?%s", dbPath, connPragmas(
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
	))
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named database so parallel tests don't share rows.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", uuid.NewString(), connPragmas("foreign_keys(1)"))
	return open(ctx, connStr)
}

// connPragmas builds the _pragma query parameters modernc.org/sqlite runs
// on each new connection.
func connPragmas(pragmas ...string) string {
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}
	return strings.Join(params, "&")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps concurrent task events from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
