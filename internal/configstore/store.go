// Package configstore holds the last-fetched character, theme and settings.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/promptline/internal/types"
)

var (
	ErrCharacterRequired = errors.New("please define a character first")
	ErrThemeRequired     = errors.New("please define a theme first")
)

// Snapshot is a consistent copy of the three records.
type Snapshot struct {
	Character types.Character
	Theme     types.Theme
	Settings  types.Settings
}

// Store is safe for concurrent use. Records are replaced whole.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New returns a store with empty records and default settings.
func New() *Store {
	return &Store{snap: Snapshot{Settings: types.DefaultSettings()}}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Store) Character() types.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Character
}

func (s *Store) SetCharacter(c types.Character) {
	s.mu.Lock()
	s.snap.Character = c
	s.mu.Unlock()
}

func (s *Store) Theme() types.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Theme
}

func (s *Store) SetTheme(t types.Theme) {
	s.mu.Lock()
	s.snap.Theme = t
	s.mu.Unlock()
}

func (s *Store) Settings() types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Settings
}

func (s *Store) SetSettings(settings types.Settings) {
	s.mu.Lock()
	s.snap.Settings = settings
	s.mu.Unlock()
}

// Validate checks that the snapshot can start a session: character name and
// theme name must be non-empty once trimmed.
func (snap Snapshot) Validate() error {
	if strings.TrimSpace(snap.Character.Name) == "" {
		return ErrCharacterRequired
	}
	if strings.TrimSpace(snap.Theme.ThemeName) == "" {
		return ErrThemeRequired
	}
	return nil
}

// Load fetches all three records concurrently. Each record that loads is
// stored even if another fails; the first failure is returned.
func Load(ctx context.Context, backend types.Backend, s *Store) error {
	var g errgroup.Group

	g.Go(func() error {
		c, err := backend.GetCharacter(ctx)
		if err != nil {
			slog.Warn("load character failed", "error", err)
			return fmt.Errorf("load character: %w", err)
		}
		s.SetCharacter(*c)
		return nil
	})
	g.Go(func() error {
		t, err := backend.GetTheme(ctx)
		if err != nil {
			slog.Warn("load theme failed", "error", err)
			return fmt.Errorf("load theme: %w", err)
		}
		s.SetTheme(*t)
		return nil
	})
	g.Go(func() error {
		settings, err := backend.GetSettings(ctx)
		if err != nil {
			slog.Warn("load settings failed", "error", err)
			return fmt.Errorf("load settings: %w", err)
		}
		s.SetSettings(*settings)
		return nil
	})

	return g.Wait()
}
