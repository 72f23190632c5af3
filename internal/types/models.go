// internal/types/models.go
package types

import (
	"math"
	"time"
)

// Prompt is one generated writing prompt. Prompts are immutable once received.
type Prompt struct {
	ID           int      `json:"id"`
	Text         string   `json:"text"`
	Timestamp    float64  `json:"timestamp"`
	IsCountdown  bool     `json:"is_countdown"`
	IsFinal      bool     `json:"is_final"`
	NextInterval *float64 `json:"next_interval,omitempty"`
}

// Time converts the fractional epoch timestamp to a time.Time.
func (p Prompt) Time() time.Time {
	sec, frac := math.Modf(p.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// PromptBatch is the body of GET /prompts/{session_id}.
type PromptBatch struct {
	Prompts  []Prompt `json:"prompts"`
	Complete bool     `json:"complete"`
}

type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
}

type Theme struct {
	ThemeName        string `json:"theme_name"`
	ThemeDescription string `json:"theme_description"`
	ExampleMessage   string `json:"example_message"`
}

// Settings controls session pacing. SessionDuration is in minutes,
// MinPromptInterval in seconds.
type Settings struct {
	SessionDuration   int `json:"session_duration"`
	MinPromptInterval int `json:"min_prompt_interval"`
}

// DefaultSettings mirrors the backend's defaults when nothing has been saved.
func DefaultSettings() Settings {
	return Settings{SessionDuration: 15, MinPromptInterval: 60}
}

// StartRequest is the body of POST /start_session: the settings fields merged
// with the character and theme records.
type StartRequest struct {
	SessionDuration   int       `json:"session_duration"`
	MinPromptInterval int       `json:"min_prompt_interval"`
	Character         Character `json:"character"`
	Theme             Theme     `json:"theme"`
}

func NewStartRequest(settings Settings, character Character, theme Theme) StartRequest {
	return StartRequest{
		SessionDuration:   settings.SessionDuration,
		MinPromptInterval: settings.MinPromptInterval,
		Character:         character,
		Theme:             theme,
	}
}

type StartResponse struct {
	SessionID SessionID `json:"session_id"`
}
