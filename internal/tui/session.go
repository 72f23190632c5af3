// Package tui is the interactive terminal front end: a live session view and
// the character and theme forms.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/session"
	"github.com/user/promptline/internal/types"
)

const (
	pulseEvery    = 600 * time.Millisecond
	statusTimeout = 4 * time.Second
	headerHeight  = 2
	footerHeight  = 2
)

// Control is the part of the session controller the view drives.
type Control interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() session.Status
}

type (
	placeholderMsg      struct{ text string }
	clearPlaceholderMsg struct{}
	unitMsg             struct{ unit *render.Unit }
	notifyMsg           struct {
		level types.Level
		text  string
	}
	stateMsg       struct{ state session.State }
	pulseMsg       time.Time
	clearStatusMsg struct{ seq int }
)

// Bridge carries renderer, notifier and controller events into a running
// program. Events sent before Attach are buffered.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	pending []tea.Msg
}

func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	pending := b.pending
	b.program, b.pending = p, nil
	b.mu.Unlock()

	for _, msg := range pending {
		p.Send(msg)
	}
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.program
	if p == nil {
		b.pending = append(b.pending, msg)
	}
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (b *Bridge) ShowPlaceholder(text string) { b.send(placeholderMsg{text: text}) }
func (b *Bridge) ClearPlaceholder()           { b.send(clearPlaceholderMsg{}) }

// Append is a no-op: the view shows a unit once its hooks have run.
func (b *Bridge) Append(*render.Unit) {}

func (b *Bridge) Decorated(u *render.Unit) {
	cp := *u
	cp.Affordances = append([]render.Affordance(nil), u.Affordances...)
	b.send(unitMsg{unit: &cp})
}

func (b *Bridge) Notify(level types.Level, message string) {
	b.send(notifyMsg{level: level, text: message})
}

// OnState is suitable for session.Options.OnStateChange.
func (b *Bridge) OnState(s session.State) {
	b.send(stateMsg{state: s})
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// SessionModel shows the prompts of the running session as a scrolling list
// of cards.
type SessionModel struct {
	control  Control
	md       *render.Markdown
	viewport viewport.Model

	units       []*render.Unit
	placeholder string
	state       session.State

	status    string
	statusErr bool
	statusSeq int

	pulseOn bool
	width   int
	height  int
}

func NewSessionModel(control Control) SessionModel {
	m := SessionModel{
		control:     control,
		md:          render.NewMarkdown(72),
		placeholder: render.Placeholder,
		state:       control.Status().State,
	}
	m.viewport = viewport.New(80, 20)
	m.viewport.Style = lipgloss.NewStyle().Padding(0, 1)
	return m
}

func (m SessionModel) Init() tea.Cmd {
	return pulseTick()
}

func pulseTick() tea.Cmd {
	return tea.Tick(pulseEvery, func(t time.Time) tea.Msg { return pulseMsg(t) })
}

func clearStatusAfter(seq int) tea.Cmd {
	return tea.Tick(statusTimeout, func(time.Time) tea.Msg { return clearStatusMsg{seq: seq} })
}

func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.md = render.NewMarkdown(max(msg.Width-8, 20))
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, m.startCmd()
		case "x":
			return m, m.stopCmd()
		case "c":
			return m.copyLast()
		}

	case placeholderMsg:
		m.units = nil
		m.placeholder = msg.text
		m.refresh()
		return m, nil

	case clearPlaceholderMsg:
		m.placeholder = ""
		m.refresh()
		return m, nil

	case unitMsg:
		m.units = append(m.units, msg.unit)
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case notifyMsg:
		return m.setStatus(msg.text, msg.level == types.LevelError)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case stateMsg:
		m.state = msg.state
		return m, nil

	case pulseMsg:
		if m.hasPulse() {
			m.pulseOn = !m.pulseOn
			m.refresh()
		}
		return m, pulseTick()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m SessionModel) startCmd() tea.Cmd {
	control := m.control
	return func() tea.Msg {
		// Failures reach the view through the notifier.
		_ = control.Start(context.Background())
		return nil
	}
}

func (m SessionModel) stopCmd() tea.Cmd {
	control := m.control
	return func() tea.Msg {
		_ = control.Stop(context.Background())
		return nil
	}
}

// copyLast runs the copy affordance of the newest unit.
func (m SessionModel) copyLast() (tea.Model, tea.Cmd) {
	if len(m.units) == 0 {
		return m, nil
	}
	u := m.units[len(m.units)-1]
	for _, a := range u.Affordances {
		if a.Key != "c" {
			continue
		}
		if err := a.Action(); err != nil {
			return m.setStatus(err.Error(), true)
		}
		return m.setStatus(fmt.Sprintf("Copied %s", u.Title()), false)
	}
	return m, nil
}

func (m SessionModel) setStatus(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.status = text
	m.statusErr = isErr
	m.statusSeq++
	return m, clearStatusAfter(m.statusSeq)
}

func (m SessionModel) hasPulse() bool {
	for _, u := range m.units {
		if u.Pulse && !u.Emphasis {
			return true
		}
	}
	return false
}

func (m *SessionModel) refresh() {
	m.viewport.SetContent(m.content())
}

func (m SessionModel) content() string {
	if len(m.units) == 0 {
		if m.placeholder == "" {
			return ""
		}
		return render.PlaceholderText(m.placeholder)
	}
	cards := make([]string, 0, len(m.units))
	for _, u := range m.units {
		if u.Pulse && !u.Emphasis && !m.pulseOn {
			cards = append(cards, render.CardWith(u, m.md, render.RestingCardStyle()))
			continue
		}
		cards = append(cards, render.Card(u, m.md))
	}
	return strings.Join(cards, "\n")
}

func (m SessionModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("promptline"))
	b.WriteString(stateStyle.Render(m.state.String()))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.status == "":
		b.WriteString(helpStyle.Render("s start • x stop • c copy • q quit"))
	case m.statusErr:
		b.WriteString(errorStyle.Render(m.status))
	default:
		b.WriteString(successStyle.Render(m.status))
	}
	return b.String()
}
