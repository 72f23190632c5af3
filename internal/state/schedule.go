// internal/state/schedule.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/promptline/internal/types"
)

// Schedule is a named, cron-triggered prompt session. Zero overrides fall back
// to the settings saved on the backend.
type Schedule struct {
	Name              string `json:"name"`
	Cron              string `json:"cron"`
	Enabled           bool   `json:"enabled"`
	SessionDuration   int    `json:"session_duration,omitempty"`
	MinPromptInterval int    `json:"min_prompt_interval,omitempty"`
}

// Apply returns settings with the schedule's overrides applied.
func (s *Schedule) Apply(settings types.Settings) types.Settings {
	if s.SessionDuration > 0 {
		settings.SessionDuration = s.SessionDuration
	}
	if s.MinPromptInterval > 0 {
		settings.MinPromptInterval = s.MinPromptInterval
	}
	return settings
}

// ScheduleStore is a JSON-file-backed store for schedules.
type ScheduleStore struct {
	path string
	mu   sync.RWMutex
}

// NewScheduleStore creates a new file-backed ScheduleStore at the given file path.
func NewScheduleStore(path string) *ScheduleStore {
	return &ScheduleStore{path: path}
}

// Path returns the file path used by this store.
func (s *ScheduleStore) Path() string {
	return s.path
}

// List returns all schedules. Returns an empty slice if the file doesn't exist.
func (s *ScheduleStore) List() ([]*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules, err := s.load()
	if err != nil {
		return nil, err
	}
	if schedules == nil {
		return []*Schedule{}, nil
	}
	return schedules, nil
}

// Get finds a schedule by name.
func (s *ScheduleStore) Get(name string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, sched := range schedules {
		if sched.Name == name {
			return sched, nil
		}
	}
	return nil, fmt.Errorf("schedule not found: %s", name)
}

// Add appends a schedule. Names are unique.
func (s *ScheduleStore) Add(sched *Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("schedule name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}

	for _, existing := range schedules {
		if existing.Name == sched.Name {
			return fmt.Errorf("schedule already exists: %s", sched.Name)
		}
	}

	schedules = append(schedules, sched)
	return s.save(schedules)
}

// Remove deletes a schedule by name.
func (s *ScheduleStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}

	for i, sched := range schedules {
		if sched.Name == name {
			schedules = append(schedules[:i], schedules[i+1:]...)
			return s.save(schedules)
		}
	}
	return fmt.Errorf("schedule not found: %s", name)
}

// SetEnabled toggles the enabled flag for a schedule.
func (s *ScheduleStore) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}

	for _, sched := range schedules {
		if sched.Name == name {
			sched.Enabled = enabled
			return s.save(schedules)
		}
	}
	return fmt.Errorf("schedule not found: %s", name)
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *ScheduleStore) load() ([]*Schedule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schedules file: %w", err)
	}

	var schedules []*Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("unmarshal schedules: %w", err)
	}
	return schedules, nil
}

// save writes the schedule list using an atomic write (temp file + rename).
func (s *ScheduleStore) save(schedules []*Schedule) error {
	data, err := json.MarshalIndent(schedules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedules: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schedules dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp schedules file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp schedules file: %w", err)
	}
	return nil
}
