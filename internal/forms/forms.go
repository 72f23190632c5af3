// Package forms saves the character, theme and settings records, either on
// explicit submit or through debounced autosave.
package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/user/promptline/internal/autosave"
	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/metrics"
	"github.com/user/promptline/internal/notify"
	"github.com/user/promptline/internal/types"
)

var (
	ErrCharacterNameRequired = errors.New("character name is required")
	ErrThemeNameRequired     = errors.New("theme name is required")
	ErrInvalidSettings       = errors.New("session duration and prompt interval must be positive")
)

type Options struct {
	Backend  types.Backend
	Store    *configstore.Store
	Notifier types.Notifier
	Metrics  *metrics.Metrics
	Clock    clock.Clock

	// Quiet and Indicator default to the autosave package defaults.
	Quiet     time.Duration
	Indicator time.Duration
}

type Forms struct {
	opts Options
}

func New(opts Options) *Forms {
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Forms{opts: opts}
}

// SaveCharacter sends the full character record and commits it locally on
// success.
func (f *Forms) SaveCharacter(ctx context.Context, c types.Character) error {
	if strings.TrimSpace(c.Name) == "" {
		f.opts.Notifier.Notify(types.LevelError, "Character name is required")
		return ErrCharacterNameRequired
	}
	if err := f.opts.Backend.SaveCharacter(ctx, c); err != nil {
		slog.Error("save character failed", "error", err)
		f.opts.Notifier.Notify(types.LevelError, "Error saving character")
		return fmt.Errorf("save character: %w", err)
	}
	f.opts.Store.SetCharacter(c)
	f.opts.Notifier.Notify(types.LevelSuccess, "Character saved successfully!")
	return nil
}

func (f *Forms) SaveTheme(ctx context.Context, t types.Theme) error {
	if strings.TrimSpace(t.ThemeName) == "" {
		f.opts.Notifier.Notify(types.LevelError, "Theme name is required")
		return ErrThemeNameRequired
	}
	if err := f.opts.Backend.SaveTheme(ctx, t); err != nil {
		slog.Error("save theme failed", "error", err)
		f.opts.Notifier.Notify(types.LevelError, "Error saving theme")
		return fmt.Errorf("save theme: %w", err)
	}
	f.opts.Store.SetTheme(t)
	f.opts.Notifier.Notify(types.LevelSuccess, "Theme saved successfully!")
	return nil
}

func (f *Forms) SaveSettings(ctx context.Context, s types.Settings) error {
	if s.SessionDuration <= 0 || s.MinPromptInterval <= 0 {
		f.opts.Notifier.Notify(types.LevelError, "Session duration and prompt interval must be positive")
		return ErrInvalidSettings
	}
	if err := f.opts.Backend.SaveSettings(ctx, s); err != nil {
		slog.Error("save settings failed", "error", err)
		f.opts.Notifier.Notify(types.LevelError, "Error saving settings")
		return fmt.Errorf("save settings: %w", err)
	}
	f.opts.Store.SetSettings(s)
	f.opts.Notifier.Notify(types.LevelSuccess, "Settings saved successfully!")
	return nil
}

// CharacterAutosave watches a character form. current reads the form's field
// values at save time. Records with an empty name are never sent.
func (f *Forms) CharacterAutosave(current func() types.Character, onIndicator func(bool)) *autosave.Autosave[types.Character] {
	return autosave.New(autosave.Options[types.Character]{
		Name:        "character",
		Clock:       f.opts.Clock,
		Quiet:       f.opts.Quiet,
		Indicator:   f.opts.Indicator,
		Current:     current,
		Skip:        func(c types.Character) bool { return c.Name == "" },
		Save:        f.opts.Backend.SaveCharacter,
		Commit:      f.opts.Store.SetCharacter,
		OnResult:    f.opts.Metrics.Autosave,
		OnIndicator: onIndicator,
	})
}

// ThemeAutosave watches a theme form. Records with an empty theme name are
// never sent.
func (f *Forms) ThemeAutosave(current func() types.Theme, onIndicator func(bool)) *autosave.Autosave[types.Theme] {
	return autosave.New(autosave.Options[types.Theme]{
		Name:        "theme",
		Clock:       f.opts.Clock,
		Quiet:       f.opts.Quiet,
		Indicator:   f.opts.Indicator,
		Current:     current,
		Skip:        func(t types.Theme) bool { return t.ThemeName == "" },
		Save:        f.opts.Backend.SaveTheme,
		Commit:      f.opts.Store.SetTheme,
		OnResult:    f.opts.Metrics.Autosave,
		OnIndicator: onIndicator,
	})
}
