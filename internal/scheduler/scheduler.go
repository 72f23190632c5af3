// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/user/promptline/internal/state"
)

// Handler is the callback invoked when a scheduled session is due.
type Handler func(sched *state.Schedule)

// Scheduler evaluates cron expressions from the schedule store and fires
// session starts through a handler callback.
type Scheduler struct {
	store   *state.ScheduleStore
	handler Handler

	mu   sync.Mutex
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCron reports whether expr is a schedule the scheduler accepts.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return nil
}

// New creates a Scheduler backed by the given schedule store.
func New(store *state.ScheduleStore, handler Handler) *Scheduler {
	return &Scheduler{
		store:   store,
		handler: handler,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers every enabled schedule and starts the cron ticker. Invalid
// expressions are logged and skipped.
func (s *Scheduler) Start() error {
	schedules, err := s.store.List()
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sched := range schedules {
		if sched.Cron == "" || !sched.Enabled {
			continue
		}

		sched := sched
		if _, err := s.cron.AddFunc(sched.Cron, func() {
			slog.Info("cron firing session", "name", sched.Name)
			s.handler(sched)
		}); err != nil {
			slog.Error("invalid cron schedule", "name", sched.Name, "cron", sched.Cron, "error", err)
			continue
		}
		slog.Info("scheduled session", "name", sched.Name, "cron", sched.Cron)
	}

	s.cron.Start()
	return nil
}

// Reload rebuilds the cron table from the store.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	s.cron.Stop()
	s.cron = cron.New(cron.WithParser(cronParser))
	s.mu.Unlock()
	return s.Start()
}

// Entries returns how many schedules are registered.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cron.Entries())
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
}
