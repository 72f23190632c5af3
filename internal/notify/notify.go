// Package notify delivers short user-facing messages.
package notify

import (
	"log/slog"
	"sync"

	"github.com/user/promptline/internal/types"
)

// Log writes notifications to slog: successes at info, errors at error.
type Log struct{}

func (Log) Notify(level types.Level, message string) {
	if level == types.LevelError {
		slog.Error(message)
		return
	}
	slog.Info(message)
}

// Func adapts a function to types.Notifier.
type Func func(level types.Level, message string)

func (f Func) Notify(level types.Level, message string) {
	f(level, message)
}

// Multi fans a notification out to several notifiers.
type Multi []types.Notifier

func (m Multi) Notify(level types.Level, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, message)
		}
	}
}

// Entry is one recorded notification.
type Entry struct {
	Level   types.Level
	Message string
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Notify(level types.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message})
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Last returns the latest notification, if any.
func (r *Recorder) Last() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}
