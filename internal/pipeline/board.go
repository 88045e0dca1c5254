package pipeline

import (
	"sync"
	"time"

	"pipewatch/internal/store"
)

// State is a live processing state reported to clients polling an upload.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateUnknown    State = "unknown"
)

// Status is a point-in-time snapshot of one upload's progress through the
// pipeline.
type Status struct {
	State      State
	Message    string
	RiskLevel  store.RiskLevel
	Confidence float64
	UpdatedAt  time.Time
}

// board tracks in-flight upload statuses keyed by stored name. Terminal
// entries stay resident so a client that polls after completion still sees the
// outcome without a database round trip.
type board struct {
	mu      sync.RWMutex
	entries map[string]Status
}

func newBoard() *board {
	return &board{entries: make(map[string]Status)}
}

func (b *board) set(storedName string, status Status) {
	status.UpdatedAt = time.Now().UTC()
	b.mu.Lock()
	b.entries[storedName] = status
	b.mu.Unlock()
}

// lookup returns the tracked status, or StateUnknown for names the board has
// never seen.
func (b *board) lookup(storedName string) Status {
	b.mu.RLock()
	status, ok := b.entries[storedName]
	b.mu.RUnlock()
	if !ok {
		return Status{State: StateUnknown}
	}
	return status
}

func (b *board) forget(storedName string) {
	b.mu.Lock()
	delete(b.entries, storedName)
	b.mu.Unlock()
}
