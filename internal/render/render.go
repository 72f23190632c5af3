// Package render turns received prompts into display units.
//
// The Renderer appends exactly one unit per prompt it is given, in the order
// given. It never deduplicates; callers filter already-seen prompts. After a
// unit is appended, registered hooks run against it and may attach
// affordances or trigger side effects.
package render

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/promptline/internal/types"
)

// Placeholder is shown until the first prompt of a session arrives.
const Placeholder = "Waiting for first prompt..."

// Affordance is an action attached to a unit after it is rendered.
type Affordance struct {
	Key    string
	Label  string
	Action func() error
}

// Unit is one rendered prompt.
type Unit struct {
	Prompt types.Prompt
	// Number is the 1-based display number.
	Number int
	// Text is the prompt text converted to markdown.
	Text   string
	Time   time.Time
	NextIn time.Duration
	// Pulse marks countdown prompts for the recurring treatment.
	Pulse bool
	// Emphasis marks the final prompt for the one-time treatment.
	Emphasis bool

	Affordances []Affordance
}

func (u *Unit) Title() string {
	return fmt.Sprintf("Prompt #%d", u.Number)
}

// Footer is the local time of the prompt plus "(Next in Ns)" when known.
func (u *Unit) Footer() string {
	footer := u.Time.Local().Format(time.TimeOnly)
	if u.NextIn > 0 {
		footer += fmt.Sprintf(" (Next in %ds)", int(u.NextIn/time.Second))
	}
	return footer
}

// Attach adds an affordance to the unit.
func (u *Unit) Attach(a Affordance) {
	u.Affordances = append(u.Affordances, a)
}

// Hook runs after each unit is appended.
type Hook func(u *Unit)

// Sink displays units.
type Sink interface {
	ShowPlaceholder(text string)
	ClearPlaceholder()
	Append(u *Unit)
	// Decorated is called once hooks have run on a unit.
	Decorated(u *Unit)
}

type Renderer struct {
	mu          sync.Mutex
	sink        Sink
	hooks       []Hook
	units       []*Unit
	placeholder bool
}

func New(sink Sink, hooks ...Hook) *Renderer {
	return &Renderer{sink: sink, hooks: hooks}
}

// AddHook registers a hook for units rendered from now on.
func (r *Renderer) AddHook(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Reset drops all units and shows the placeholder.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = nil
	r.placeholder = true
	r.sink.ShowPlaceholder(Placeholder)
}

// Render appends one unit per prompt, in order.
func (r *Renderer) Render(prompts []types.Prompt) {
	if len(prompts) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.placeholder {
		r.sink.ClearPlaceholder()
		r.placeholder = false
	}

	for _, p := range prompts {
		u := NewUnit(p)
		r.units = append(r.units, u)
		r.sink.Append(u)
		for _, h := range r.hooks {
			runHook(h, u)
		}
		r.sink.Decorated(u)
	}
}

// Units returns the rendered units in order.
func (r *Renderer) Units() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Unit(nil), r.units...)
}

func runHook(h Hook, u *Unit) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("render hook panicked", "prompt_id", u.Prompt.ID, "panic", rec)
		}
	}()
	h(u)
}

// NewUnit builds the display unit for a prompt.
func NewUnit(p types.Prompt) *Unit {
	u := &Unit{
		Prompt:   p,
		Number:   p.ID + 1,
		Text:     formatText(p.Text),
		Time:     p.Time(),
		Pulse:    p.IsCountdown,
		Emphasis: p.IsFinal,
	}
	if p.NextInterval != nil && *p.NextInterval > 0 {
		u.NextIn = time.Duration(*p.NextInterval * float64(time.Second))
	}
	return u
}

// formatText converts backend HTML to markdown. Plain text passes through.
func formatText(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		slog.Debug("html to markdown failed", "error", err)
		return text
	}
	return strings.TrimSpace(md)
}
