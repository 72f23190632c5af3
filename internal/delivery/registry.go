// Package delivery forwards rendered prompts to chat targets such as
// Telegram and Slack.
package delivery

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Sender delivers one text message to a chat target.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Registry maps target names (e.g. "telegram", "slack") to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[string]Sender),
	}
}

// Register adds or replaces the sender for target.
func (r *Registry) Register(target string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[target] = s
}

// Targets returns the registered target names, sorted.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.senders))
	for name := range r.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver sends text to the named target.
func (r *Registry) Deliver(ctx context.Context, target, text string) error {
	r.mu.RLock()
	s, ok := r.senders[target]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no sender for target: %s", target)
	}
	return s.Send(ctx, text)
}
