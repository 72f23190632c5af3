package render

import (
	"fmt"
	"log/slog"

	"github.com/atotto/clipboard"
)

// CopyHook attaches a "Copy" affordance that places the unit's text on the
// clipboard. A nil write uses the system clipboard.
func CopyHook(write func(string) error) Hook {
	if write == nil {
		write = clipboard.WriteAll
	}
	return func(u *Unit) {
		text := u.Text
		u.Attach(Affordance{
			Key:   "c",
			Label: "Copy",
			Action: func() error {
				if err := write(text); err != nil {
					return fmt.Errorf("copy prompt: %w", err)
				}
				return nil
			},
		})
	}
}

// LogHook logs each rendered prompt at debug level.
func LogHook() Hook {
	return func(u *Unit) {
		slog.Debug("prompt rendered",
			"prompt_id", u.Prompt.ID,
			"countdown", u.Pulse,
			"final", u.Emphasis,
		)
	}
}

// Plain formats a unit as plain text for forwarding to chat services.
func Plain(u *Unit) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s", u.Title(), u.Text, u.Footer())
}
