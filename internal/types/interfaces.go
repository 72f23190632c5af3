// internal/types/interfaces.go
package types

import (
	"context"
)

// Backend is the prompt-session REST surface. Record writes are full
// replacements.
type Backend interface {
	GetCharacter(ctx context.Context) (*Character, error)
	SaveCharacter(ctx context.Context, character Character) error
	GetTheme(ctx context.Context) (*Theme, error)
	SaveTheme(ctx context.Context, theme Theme) error
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error

	StartSession(ctx context.Context, req StartRequest) (SessionID, error)
	StopSession(ctx context.Context, id SessionID) error
	// FetchPrompts returns the prompts with an id greater than lastSeen.
	FetchPrompts(ctx context.Context, id SessionID, lastSeen int) (*PromptBatch, error)
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier surfaces transient, user-facing messages.
type Notifier interface {
	Notify(level Level, message string)
}
