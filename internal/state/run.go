package state

import (
	"database/sql"
	"fmt"
	"time"
)

// RunStatus represents the status of a run record.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records one interpretation of a stored machine snapshot.
type Run struct {
	ID           string     `json:"id"`
	SnapshotHash string     `json:"snapshot_hash"`
	Status       RunStatus  `json:"status"`
	Terminal     string     `json:"terminal"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

// CreateRun records the start of a run against a snapshot.
func (db *DB) CreateRun(id, snapshotHash string) (*Run, error) {
	r := &Run{
		ID:           id,
		SnapshotHash: snapshotHash,
		Status:       RunRunning,
		StartedAt:    time.Now(),
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, snapshot_hash, status, started_at)
		VALUES (?, ?, ?, ?)
	`, r.ID, r.SnapshotHash, string(r.Status), formatTime(r.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// FinishRun records a run reaching a terminal state.
func (db *DB) FinishRun(id string, status RunStatus, terminal string) error {
	_, err := db.Exec(`
		UPDATE runs SET status = ?, terminal = ?, finished_at = ? WHERE id = ?
	`, string(status), terminal, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil if not found.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, snapshot_hash, status, terminal, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	var r Run
	var terminal sql.NullString
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &r.SnapshotHash, &r.Status, &terminal, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	r.Terminal = terminal.String
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

// ListRuns returns runs for a snapshot, newest first.
func (db *DB) ListRuns(snapshotHash string) ([]*Run, error) {
	rows, err := db.Query(`
		SELECT id, snapshot_hash, status, terminal, started_at, finished_at
		FROM runs WHERE snapshot_hash = ? ORDER BY started_at DESC
	`, snapshotHash)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var r Run
		var terminal sql.NullString
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.SnapshotHash, &r.Status, &terminal, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Terminal = terminal.String
		r.StartedAt, _ = parseTime(startedAt)
		r.FinishedAt = parseNullableTime(finishedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}
