package worker

import (
	"sync"
	"time"

	"github.com/Aman-CERP/rowsearch/internal/errors"
)

// State is the coarse condition of the sync loop.
type State string

const (
	// StateStarting means no cycle has finished yet.
	StateStarting State = "starting"
	// StateSyncing means a cycle is running.
	StateSyncing State = "syncing"
	// StateIdle means the last cycle succeeded.
	StateIdle State = "idle"
	// StateError means the last cycle failed.
	StateError State = "error"
)

// StatusSnapshot is an immutable copy of the worker's progress.
type StatusSnapshot struct {
	State         string     `json:"state"`
	Cycles        int        `json:"cycles"`
	Failures      int        `json:"failures"`
	RowsIngested  int        `json:"rows_ingested"`
	LastKey       *int64     `json:"last_key,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastErrorCode string     `json:"last_error_code,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	UptimeSeconds int        `json:"uptime_seconds"`
}

// Status tracks cycle outcomes. It is safe for concurrent use.
type Status struct {
	mu sync.RWMutex

	state       State
	cycles      int
	failures    int
	rows        int
	lastKey     int64
	haveKey     bool
	lastSuccess time.Time
	lastErr     error
	started     time.Time
}

// NewStatus creates a tracker in StateStarting.
func NewStatus() *Status {
	return &Status{state: StateStarting, started: time.Now()}
}

func (s *Status) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateSyncing
}

func (s *Status) finish(res CycleResult, err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	if err != nil {
		s.state = StateError
		s.failures++
		s.lastErr = err
		return
	}

	s.state = StateIdle
	s.rows += res.Rows
	s.lastSuccess = at
	s.lastErr = nil
	if res.LastKey != NoCheckpoint {
		s.lastKey = res.LastKey
		s.haveKey = true
	}
}

// Healthy reports whether the last finished cycle succeeded. A worker that
// has not finished a cycle yet counts as healthy.
func (s *Status) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr == nil
}

// Snapshot returns a copy of the current state.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		State:         string(s.state),
		Cycles:        s.cycles,
		Failures:      s.failures,
		RowsIngested:  s.rows,
		UptimeSeconds: int(time.Since(s.started).Seconds()),
	}
	if s.haveKey {
		k := s.lastKey
		snap.LastKey = &k
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		snap.LastSuccessAt = &t
	}
	if s.lastErr != nil {
		snap.LastErrorCode = errors.GetCode(s.lastErr)
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
