package storage

import "sync"

// DefaultRestartLogCapacity bounds the restart log.
const DefaultRestartLogCapacity = 100

// RestartLog is an append-only, bounded, in-memory audit trail. Once full the
// oldest lines are evicted first.
type RestartLog struct {
	mu       sync.RWMutex
	capacity int
	lines    []string
}

// NewRestartLog creates a log holding at most capacity lines.
func NewRestartLog(capacity int) *RestartLog {
	if capacity <= 0 {
		capacity = DefaultRestartLogCapacity
	}
	return &RestartLog{capacity: capacity}
}

// Append adds line and truncates the front if the log exceeds its capacity.
func (l *RestartLog) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, line)
	if len(l.lines) > l.capacity {
		l.lines = l.lines[len(l.lines)-l.capacity:]
	}
}

// Snapshot returns a copy of all lines, oldest first.
func (l *RestartLog) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
