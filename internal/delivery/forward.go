package delivery

import (
	"log/slog"

	"github.com/user/promptline/internal/render"
)

// ForwardHook returns a render hook that enqueues every rendered prompt to
// each of the registry's targets. The hook never blocks on delivery.
func ForwardHook(q *Queue) render.Hook {
	return func(u *render.Unit) {
		text := render.Plain(u)
		for _, target := range q.registry.Targets() {
			msg := Message{Target: target, Text: text, PromptID: u.Prompt.ID}
			if err := q.Enqueue(msg); err != nil {
				slog.Warn("forward prompt dropped", "target", target, "prompt_id", u.Prompt.ID, "error", err)
			}
		}
	}
}
