// Package history keeps a bounded rolling log of processed voice commands.
package history

import (
	"sync"
	"time"

	"github.com/xPOURY4/voicepay-arc/internal/domain"
)

// DefaultCapacity is the number of entries retained when none is configured.
const DefaultCapacity = 10

// Entry records one processed command, successful or not. Intent and
// Transaction are nil when the pipeline failed before producing them.
type Entry struct {
	Transcript  string
	Intent      *domain.PaymentIntent
	Transaction *domain.Transaction
	Timestamp   time.Time
	Success     bool
	Error       string
}

// Log is a fixed-capacity ring of the most recent entries. Appending beyond
// capacity evicts the oldest entry. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	size    int
}

// NewLog creates a log holding at most capacity entries. Non-positive
// capacity falls back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

// Append records an entry, evicting the oldest when full. A zero timestamp
// is filled with the current time.
func (l *Log) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
}

// List returns the retained entries, newest first.
func (l *Log) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Clear drops all entries. Safe to call repeatedly.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		l.entries[i] = Entry{}
	}
	l.next = 0
	l.size = 0
}
