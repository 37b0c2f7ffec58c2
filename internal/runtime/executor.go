package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/weftlabs/weft/pkg/models"
)

// Executor resolves the task text of an execution state into a result.
// Implementations call out to an agent, a subprocess, or any other task
// backend; the engine only cares about the returned text and error.
type Executor interface {
	// Execute runs the node's task. input is the value stored under the
	// node's input key, or empty if none has been produced yet.
	Execute(ctx context.Context, node *models.Node, input string) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node *models.Node, input string) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, node *models.Node, input string) (string, error) {
	return f(ctx, node, input)
}

// EchoExecutor returns each task's text unchanged. Used for dry runs and tests.
func EchoExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, node *models.Node, _ string) (string, error) {
		return node.Task, nil
	})
}

// resultStore holds task results for downstream consumption, with the
// timestamp needed for TTL staleness checks. Safe for concurrent use by
// parallel branches.
type resultStore struct {
	mu      sync.RWMutex
	entries map[string]resultEntry
}

type resultEntry struct {
	value   string
	written time.Time
}

func newResultStore() *resultStore {
	return &resultStore{entries: make(map[string]resultEntry)}
}

// Get returns the stored value for a key, or "" if absent.
func (r *resultStore) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key].value
}

// Fresh returns the stored value for a key if it was written within ttl.
// A zero ttl never matches.
func (r *resultStore) Fresh(key string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok || time.Since(e.written) > ttl {
		return "", false
	}
	return e.value, true
}

// Put stores a value under a key.
func (r *resultStore) Put(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = resultEntry{value: value, written: time.Now()}
}

// Seed stores a value with an explicit timestamp. Used to preload results
// from a previous planning cycle.
func (r *resultStore) Seed(key, value string, written time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = resultEntry{value: value, written: written}
}

// Snapshot returns a copy of all stored values.
func (r *resultStore) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entries))
	for k, e := range r.entries {
		out[k] = e.value
	}
	return out
}
