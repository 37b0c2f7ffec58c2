package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weftlabs/weft/pkg/models"
)

// Snapshot is a stored compiled machine, keyed by the hash of its JSON
// form. Identical plans compile to identical JSON, so the hash doubles as
// a change detector between compiles.
type Snapshot struct {
	Hash       string    `json:"hash"`
	PlanName   string    `json:"plan_name"`
	Machine    string    `json:"machine_json"`
	StateCount int       `json:"state_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// States decodes the stored machine back into its state list.
func (s *Snapshot) States() ([]models.State, error) {
	var states []models.State
	if err := json.Unmarshal([]byte(s.Machine), &states); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.Hash, err)
	}
	return states, nil
}

// EncodeMachine serializes a compiled machine and returns the JSON along
// with its content hash.
func EncodeMachine(states []models.State) (machineJSON string, hash string, err error) {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode machine: %w", err)
	}
	sum := sha256.Sum256(data)
	return string(data), hex.EncodeToString(sum[:]), nil
}

// SaveSnapshot stores a compiled machine. Saving the same machine twice is
// a no-op; the returned snapshot carries the content hash either way.
func (db *DB) SaveSnapshot(planName string, states []models.State) (*Snapshot, error) {
	machineJSON, hash, err := EncodeMachine(states)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Hash:       hash,
		PlanName:   planName,
		Machine:    machineJSON,
		StateCount: len(states),
		CreatedAt:  time.Now(),
	}

	_, err = db.Exec(`
		INSERT INTO snapshots (hash, plan_name, machine_json, state_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, snap.Hash, snap.PlanName, snap.Machine, snap.StateCount, formatTime(snap.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// GetSnapshot retrieves a snapshot by content hash. Returns nil if not found.
func (db *DB) GetSnapshot(hash string) (*Snapshot, error) {
	row := db.QueryRow(`
		SELECT hash, plan_name, machine_json, state_count, created_at
		FROM snapshots WHERE hash = ?
	`, hash)

	var s Snapshot
	var createdAt string
	err := row.Scan(&s.Hash, &s.PlanName, &s.Machine, &s.StateCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	s.CreatedAt, _ = parseTime(createdAt)
	return &s, nil
}

// ListSnapshots returns all snapshots, newest first. The machine JSON is
// omitted; fetch a single snapshot by hash when the body is needed.
func (db *DB) ListSnapshots() ([]*Snapshot, error) {
	rows, err := db.Query(`
		SELECT hash, plan_name, state_count, created_at
		FROM snapshots ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var s Snapshot
		var createdAt string
		if err := rows.Scan(&s.Hash, &s.PlanName, &s.StateCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}
