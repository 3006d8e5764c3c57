package events

import (
	"context"
	"sync"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Log is an in-memory ring of recent events, newest last. It backs the
// events endpoint and keeps the demo self-contained without a broker.
type Log struct {
	mu       sync.RWMutex
	capacity int
	buf      []domain.Event
}

// NewLog returns a ring holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 100
	}
	return &Log{capacity: capacity}
}

// Publish appends the event, evicting the oldest when full.
func (l *Log) Publish(_ context.Context, ev domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, ev)
	if len(l.buf) > l.capacity {
		l.buf = l.buf[len(l.buf)-l.capacity:]
	}
	return nil
}

// Recent returns up to n most recent events, oldest first.
func (l *Log) Recent(n int) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.buf) {
		n = len(l.buf)
	}
	out := make([]domain.Event, n)
	copy(out, l.buf[len(l.buf)-n:])
	return out
}

// Clear drops all retained events.
func (l *Log) Clear() {
	l.mu.Lock()
	l.buf = nil
	l.mu.Unlock()
}
