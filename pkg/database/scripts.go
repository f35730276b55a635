package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a script does not exist
var ErrNotFound = errors.New("not found")

// Script is a stored script source
type Script struct {
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run is one recorded script execution
type Run struct {
	ID          int64     `json:"id"`
	Script      string    `json:"script"`
	BarCount    int       `json:"bar_count"`
	PlotCount   int       `json:"plot_count"`
	SignalCount int       `json:"signal_count"`
	DurationMS  float64   `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveScript inserts or updates a script by name
func (db *DB) SaveScript(name, source string) error {
	now := time.Now()
	query := `INSERT INTO scripts (name, source, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`

	if _, err := db.conn.Exec(query, name, source, now, now); err != nil {
		return fmt.Errorf("failed to save script %s: %w", name, err)
	}
	return nil
}

// GetScript returns the named script or ErrNotFound
func (db *DB) GetScript(name string) (*Script, error) {
	query := `SELECT name, source, created_at, updated_at FROM scripts WHERE name = ?`

	s := &Script{}
	err := db.conn.QueryRow(query, name).Scan(&s.Name, &s.Source, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script %s: %w", name, err)
	}
	return s, nil
}

// ListScripts returns all scripts ordered by name
func (db *DB) ListScripts() ([]Script, error) {
	query := `SELECT name, source, created_at, updated_at FROM scripts ORDER BY name`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	defer rows.Close()

	scripts := []Script{}
	for rows.Next() {
		var s Script
		if err := rows.Scan(&s.Name, &s.Source, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		scripts = append(scripts, s)
	}
	return scripts, rows.Err()
}

// DeleteScript removes a script together with its inputs and run history
func (db *DB) DeleteScript(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM scripts WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete script %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM script_inputs WHERE script = ?`, name); err != nil {
		return fmt.Errorf("failed to delete inputs of %s: %w", name, err)
	}
	if _, err := tx.Exec(`DELETE FROM script_runs WHERE script = ?`, name); err != nil {
		return fmt.Errorf("failed to delete runs of %s: %w", name, err)
	}

	return tx.Commit()
}

// SetInputValue stores an input override for a script, keyed by input title
func (db *DB) SetInputValue(script, title string, value float64) error {
	query := `INSERT OR REPLACE INTO script_inputs (script, title, value, updated_at) VALUES (?, ?, ?, ?)`

	if _, err := db.conn.Exec(query, script, title, value, time.Now()); err != nil {
		return fmt.Errorf("failed to store input %s of %s: %w", title, script, err)
	}
	return nil
}

// InputValues returns all stored input overrides of a script
func (db *DB) InputValues(script string) (map[string]float64, error) {
	rows, err := db.conn.Query(`SELECT title, value FROM script_inputs WHERE script = ?`, script)
	if err != nil {
		return nil, fmt.Errorf("failed to query inputs of %s: %w", script, err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var title string
		var value float64
		if err := rows.Scan(&title, &value); err != nil {
			return nil, fmt.Errorf("failed to scan input: %w", err)
		}
		values[title] = value
	}
	return values, rows.Err()
}

// RecordRun appends a run to the script's history and sets its ID
func (db *DB) RecordRun(run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	query := `INSERT INTO script_runs (script, bar_count, plot_count, signal_count, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := db.conn.Exec(query, run.Script, run.BarCount, run.PlotCount, run.SignalCount,
		run.DurationMS, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record run of %s: %w", run.Script, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}
	run.ID = id
	return nil
}

// RecentRuns returns up to limit runs of a script, newest first
func (db *DB) RecentRuns(script string, limit int) ([]Run, error) {
	query := `SELECT id, script, bar_count, plot_count, signal_count, duration_ms, error, created_at
		FROM script_runs WHERE script = ? ORDER BY id DESC LIMIT ?`

	rows, err := db.conn.Query(query, script, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs of %s: %w", script, err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Script, &r.BarCount, &r.PlotCount, &r.SignalCount,
			&r.DurationMS, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
