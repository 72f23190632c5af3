package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	pulseCardStyle = cardStyle.
			BorderForeground(lipgloss.Color("214")).
			Blink(true)
	emphasisCardStyle = cardStyle.
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("205")).
				Bold(true)
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	placeholderStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	affordanceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// CardStyle picks the card style for a unit's highlight tags.
func CardStyle(u *Unit) lipgloss.Style {
	switch {
	case u.Emphasis:
		return emphasisCardStyle
	case u.Pulse:
		return pulseCardStyle
	default:
		return cardStyle
	}
}

// Markdown renders unit text for the terminal.
type Markdown struct {
	tr *glamour.TermRenderer
}

// NewMarkdown creates a renderer wrapping at width. If glamour cannot be set
// up, text is passed through unchanged.
func NewMarkdown(width int) *Markdown {
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Markdown{}
	}
	return &Markdown{tr: tr}
}

func (m *Markdown) Render(text string) string {
	if m == nil || m.tr == nil {
		return text
	}
	out, err := m.tr.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Card renders a unit as a bordered block.
func Card(u *Unit, md *Markdown) string {
	return CardWith(u, md, CardStyle(u))
}

// CardWith renders a unit with an explicit card style, e.g. the resting
// style between pulses.
func CardWith(u *Unit, md *Markdown, style lipgloss.Style) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(u.Title()),
		md.Render(u.Text),
		footerStyle.Render(u.Footer()),
	)
	return style.Render(body)
}

// RestingCardStyle is the plain card style.
func RestingCardStyle() lipgloss.Style {
	return cardStyle
}

// PlaceholderText styles the waiting placeholder.
func PlaceholderText(text string) string {
	return placeholderStyle.Render(text)
}

// Terminal is a Sink that streams cards to a writer. Streamed output cannot
// be taken back, so the placeholder stays printed once shown.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
	md *Markdown
}

func NewTerminal(w io.Writer, width int) *Terminal {
	return &Terminal{w: w, md: NewMarkdown(width)}
}

func (t *Terminal) ShowPlaceholder(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, placeholderStyle.Render(text))
}

func (t *Terminal) ClearPlaceholder() {}

func (t *Terminal) Append(u *Unit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, Card(u, t.md))
}

func (t *Terminal) Decorated(u *Unit) {
	if len(u.Affordances) == 0 {
		return
	}
	labels := make([]string, 0, len(u.Affordances))
	for _, a := range u.Affordances {
		labels = append(labels, fmt.Sprintf("[%s] %s", a.Key, a.Label))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, affordanceStyle.Render(strings.Join(labels, "  ")))
}
