package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNilEntry is returned when a nil entry is added
	ErrNilEntry = errors.New("history entry cannot be nil")
	// ErrUnknownCall is returned when a result references no prior tool call
	ErrUnknownCall = errors.New("no tool call recorded for call id")
	// ErrCallResolved is returned when a call id already has a terminal entry
	ErrCallResolved = errors.New("tool call already has a result")
	// ErrDuplicateCall is returned when a tool call reuses a call id
	ErrDuplicateCall = errors.New("duplicate tool call id")
)

// Log is the append-only, ordered history of one session
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	// call id -> resolved
	calls map[string]bool
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{
		calls: make(map[string]bool),
	}
}

// FromEntries rebuilds a log from a recorded sequence, re-checking the
// correlation rules on every entry.
func FromEntries(entries []Entry) (*Log, error) {
	l := NewLog()
	for i, e := range entries {
		if err := l.Add(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return l, nil
}

// Add appends an entry. Tool results must reference an unresolved tool call.
func (l *Log) Add(e Entry) error {
	if e == nil {
		return ErrNilEntry
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch v := e.(type) {
	case ToolCall:
		if _, exists := l.calls[v.CallID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCall, v.CallID)
		}
		l.calls[v.CallID] = false
	case ToolOutput:
		if err := l.resolve(v.CallID); err != nil {
			return err
		}
	case ToolError:
		if err := l.resolve(v.CallID); err != nil {
			return err
		}
	case UserQuery, FinalResponse:
	default:
		return fmt.Errorf("unsupported history entry %T", e)
	}

	l.entries = append(l.entries, e)
	return nil
}

// resolve marks a call as answered. Caller holds the write lock.
func (l *Log) resolve(callID string) error {
	resolved, exists := l.calls[callID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	if resolved {
		return fmt.Errorf("%w: %s", ErrCallResolved, callID)
	}
	l.calls[callID] = true
	return nil
}

// Len returns the number of recorded entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the full sequence in insertion order
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns the entries recorded at or after index from
func (l *Log) Since(from int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from >= len(l.entries) {
		return []Entry{}
	}
	out := make([]Entry, len(l.entries)-from)
	copy(out, l.entries[from:])
	return out
}

// Pending returns the call ids that have no output or error yet
func (l *Log) Pending() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var pending []string
	for _, e := range l.entries {
		if call, ok := e.(ToolCall); ok && !l.calls[call.CallID] {
			pending = append(pending, call.CallID)
		}
	}
	return pending
}

// MarshalJSON encodes the log as an array of tagged entries
func (l *Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

// First returns the earliest entry of variant T
func First[T Entry](l *Log) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Latest returns the most recent entry of variant T
func Latest[T Entry](l *Log) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if v, ok := l.entries[i].(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
