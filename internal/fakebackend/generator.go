package fakebackend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/user/promptline/internal/types"
)

// Generator emits prompts for one session the way the real backend paces
// them: regular prompts every min_prompt_interval seconds, a countdown once
// the session is close to its end, then a final prompt.
type Generator struct {
	backend *Backend
	clock   clock.Clock

	// NearEnd is the remaining time at which the countdown starts.
	NearEnd time.Duration
	// CountdownFrom is the first number counted down from.
	CountdownFrom int
	// CountdownEnd is the number at which the countdown's final prompt is sent.
	CountdownEnd int
}

func NewGenerator(b *Backend, clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Generator{
		backend:       b,
		clock:         clk,
		NearEnd:       45 * time.Second,
		CountdownFrom: 10,
		CountdownEnd:  3,
	}
}

func seconds(n float64) *float64 { return &n }

// Run generates until the session's duration elapses, the session is stopped,
// or ctx is done.
func (g *Generator) Run(ctx context.Context, id types.SessionID, req types.StartRequest) {
	settings := types.Settings{
		SessionDuration:   req.SessionDuration,
		MinPromptInterval: req.MinPromptInterval,
	}
	if settings.SessionDuration <= 0 {
		settings.SessionDuration = types.DefaultSettings().SessionDuration
	}
	if settings.MinPromptInterval <= 0 {
		settings.MinPromptInterval = types.DefaultSettings().MinPromptInterval
	}

	interval := time.Duration(settings.MinPromptInterval) * time.Second
	end := g.clock.Now().Add(time.Duration(settings.SessionDuration) * time.Minute)
	done := g.backend.doneChan(id)

	logger := slog.With("session_id", id)
	logger.Info("generator started", "duration_min", settings.SessionDuration, "interval_s", settings.MinPromptInterval)

	for n := 1; ; n++ {
		remaining := end.Sub(g.clock.Now())
		if remaining <= 0 {
			break
		}
		if remaining <= g.NearEnd {
			g.countdown(ctx, id, req, done)
			return
		}

		text := fmt.Sprintf("<p>Prompt %d: <em>%s</em> discovers something new about <strong>%s</strong>.</p>",
			n, req.Character.Name, req.Theme.ThemeName)
		if _, err := g.backend.Push(id, text, false, false, seconds(float64(settings.MinPromptInterval))); err != nil {
			logger.Warn("push prompt failed", "error", err)
			return
		}

		if !g.wait(ctx, done, min(interval, remaining)) {
			return
		}
	}

	if !g.backend.Active(id) {
		return
	}
	text := fmt.Sprintf("<p>Time is up. %s takes a bow.</p>", req.Character.Name)
	if _, err := g.backend.Push(id, text, false, true, nil); err != nil {
		logger.Warn("push final prompt failed", "error", err)
	}
	g.backend.Complete(id)
	logger.Info("generator finished")
}

func (g *Generator) countdown(ctx context.Context, id types.SessionID, req types.StartRequest, done <-chan struct{}) {
	text := fmt.Sprintf("<p>Time is running out! The countdown begins from %d.</p>", g.CountdownFrom)
	if _, err := g.backend.Push(id, text, true, false, seconds(1)); err != nil {
		return
	}

	for number := g.CountdownFrom; ; number-- {
		if !g.wait(ctx, done, time.Second) {
			return
		}
		if number <= g.CountdownEnd {
			text := fmt.Sprintf("<p><strong>%d</strong>. Pens down, %s.</p>", number, req.Character.Name)
			g.backend.Push(id, text, true, true, nil)
			g.backend.Complete(id)
			return
		}
		g.backend.Push(id, fmt.Sprintf("<p><strong>%d</strong>...</p>", number), true, false, seconds(1))
	}
}

// wait sleeps for d and reports whether the session is still running.
func (g *Generator) wait(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-g.clock.After(d):
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
}
