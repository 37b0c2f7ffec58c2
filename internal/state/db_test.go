package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weftlabs/weft/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// On Linux, files can't be created under /proc.
	_, err := Open("/proc/nonexistent/test.db")
	if err == nil {
		t.Error("expected error opening db at invalid path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}

func TestGlobalDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	want := filepath.Join("/tmp/xdg-data", "weft", "weft.db")
	if got := GlobalDBPath(); got != want {
		t.Errorf("GlobalDBPath() = %q, want %q", got, want)
	}
}

func TestProjectDBPath(t *testing.T) {
	want := filepath.Join("/repo", ".weft", "state.db")
	if got := ProjectDBPath("/repo"); got != want {
		t.Errorf("ProjectDBPath() = %q, want %q", got, want)
	}
}

func sampleMachine() []models.State {
	return []models.State{
		models.NewExecutionState("exec_a", "do a", false, []models.Transition{
			{Event: models.EventContinue, Target: models.StateIDSuccess},
			{Event: models.EventError, Target: models.StateIDFailure},
		}),
		models.NewFinalState(models.StateIDSuccess),
		models.NewFinalState(models.StateIDFailure),
	}
}

func TestSaveAndGetSnapshot(t *testing.T) {
	db := setupTestDB(t)

	snap, err := db.SaveSnapshot("demo", sampleMachine())
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if snap.Hash == "" {
		t.Fatal("snapshot has empty hash")
	}
	if snap.StateCount != 3 {
		t.Errorf("StateCount = %d, want 3", snap.StateCount)
	}

	got, err := db.GetSnapshot(snap.Hash)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("GetSnapshot returned nil for a stored hash")
	}
	if got.PlanName != "demo" {
		t.Errorf("PlanName = %q, want %q", got.PlanName, "demo")
	}

	states, err := got.States()
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if len(states) != 3 || states[0].ID != "exec_a" {
		t.Errorf("decoded states = %+v, want the saved machine", states)
	}
}

func TestSaveSnapshotTwiceSameHash(t *testing.T) {
	db := setupTestDB(t)

	first, err := db.SaveSnapshot("demo", sampleMachine())
	if err != nil {
		t.Fatalf("first SaveSnapshot: %v", err)
	}
	second, err := db.SaveSnapshot("demo", sampleMachine())
	if err != nil {
		t.Fatalf("second SaveSnapshot: %v", err)
	}
	if first.Hash != second.Hash {
		t.Errorf("hashes differ: %q vs %q", first.Hash, second.Hash)
	}

	list, err := db.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("stored %d snapshots, want 1 after duplicate save", len(list))
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetSnapshot("deadbeef")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got != nil {
		t.Errorf("GetSnapshot returned %+v for an unknown hash, want nil", got)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)

	snap, err := db.SaveSnapshot("demo", sampleMachine())
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	r, err := db.CreateRun("run-1", snap.Hash)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r.Status != RunRunning {
		t.Errorf("new run status = %q, want running", r.Status)
	}

	if err := db.FinishRun("run-1", RunSucceeded, models.StateIDSuccess); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunSucceeded {
		t.Errorf("finished run status = %q, want succeeded", got.Status)
	}
	if got.Terminal != models.StateIDSuccess {
		t.Errorf("terminal = %q, want %q", got.Terminal, models.StateIDSuccess)
	}
	if got.FinishedAt == nil {
		t.Error("finished run has nil FinishedAt")
	}

	runs, err := db.ListRuns(snap.Hash)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("listed %d runs, want 1", len(runs))
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun returned %+v for an unknown id, want nil", got)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)

	snap, err := db.SaveSnapshot("demo", sampleMachine())
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if _, err := db.Exec(`
		INSERT INTO runs (id, snapshot_hash, status, terminal, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, "old-run", snap.Hash, string(RunSucceeded), models.StateIDSuccess, formatTime(old), formatTime(old)); err != nil {
		t.Fatalf("inserting old run: %v", err)
	}
	if _, err := db.CreateRun("fresh-run", snap.Hash); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	purged, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged %d runs, want 1", purged)
	}
	if got, _ := db.GetRun("fresh-run"); got == nil {
		t.Error("fresh running run was purged")
	}
}
