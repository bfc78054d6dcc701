package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// StartRun records a new run and returns its id.
func (s *SQLiteStore) StartRun(ctx context.Context, taskCount int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, task_count)
		VALUES (?, ?, ?)
	`, id, time.Now().UnixMilli(), taskCount)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	return id, nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		run       Run
		startedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, task_count
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &startedAt, &run.TaskCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}

	run.StartedAt = time.UnixMilli(startedAt)
	return run, nil
}

// SaveAttempt appends a phase attempt to the run's history.
func (s *SQLiteStore) SaveAttempt(ctx context.Context, runID string, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, task, phase, attempt, ok, error, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, a.Task, a.Phase, a.Attempt, a.OK, a.Error, a.Duration.Milliseconds(), a.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}

	return nil
}

// ListAttempts returns every attempt of a run in insertion order.
// Returns empty slice (not nil) if there are none.
func (s *SQLiteStore) ListAttempts(ctx context.Context, runID string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT task, phase, attempt, ok, COALESCE(error, ''), duration_ms, at
		FROM attempts
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var (
			a          Attempt
			durationMs int64
			at         int64
		)
		if err := rows.Scan(&a.Task, &a.Phase, &a.Attempt, &a.OK, &a.Error, &durationMs, &at); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.At = time.UnixMilli(at)
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return attempts, nil
}

// SaveOrder records a created order.
func (s *SQLiteStore) SaveOrder(ctx context.Context, runID string, o Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (run_id, task, response, at)
		VALUES (?, ?, ?, ?)
	`, runID, o.Task, o.Response, o.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	return nil
}

// ListOrders returns the orders created during a run.
func (s *SQLiteStore) ListOrders(ctx context.Context, runID string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT task, response, at
		FROM orders
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		var (
			o  Order
			at int64
		)
		if err := rows.Scan(&o.Task, &o.Response, &at); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.At = time.UnixMilli(at)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
