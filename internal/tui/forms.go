package tui

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/promptline/internal/autosave"
	"github.com/user/promptline/internal/forms"
	"github.com/user/promptline/internal/types"
)

const (
	fieldName = iota
	fieldDescription
	fieldPersonality
	fieldThemeName
	fieldThemeDescription
	fieldExampleMessage
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Character name",
	"Description",
	"Personality",
	"Theme name",
	"Theme description",
	"Example message",
}

type indicatorMsg struct {
	record  string
	visible bool
}

var (
	formTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	indicatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Italic(true)
)

// values is the form state shared with the autosave goroutines.
type values struct {
	mu        sync.Mutex
	character types.Character
	theme     types.Theme
}

func (v *values) Character() types.Character {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.character
}

func (v *values) Theme() types.Theme {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.theme
}

// FormModel edits the character and theme. Edits are autosaved after a quiet
// period; ctrl+s saves both records immediately.
type FormModel struct {
	forms   *forms.Forms
	bridge  *Bridge
	inputs  []textinput.Model
	focus   int
	values  *values
	charAS  *autosave.Autosave[types.Character]
	themeAS *autosave.Autosave[types.Theme]

	charSaved  bool
	themeSaved bool
	status     string
	statusErr  bool
	statusSeq  int
}

// NewFormModel pre-fills the inputs from the given records. Indicator changes
// and notifications travel through bridge.
func NewFormModel(f *forms.Forms, bridge *Bridge, character types.Character, theme types.Theme) FormModel {
	m := FormModel{
		forms:  f,
		bridge: bridge,
		values: &values{character: character, theme: theme},
	}

	initial := [fieldCount]string{
		character.Name, character.Description, character.Personality,
		theme.ThemeName, theme.ThemeDescription, theme.ExampleMessage,
	}
	m.inputs = make([]textinput.Model, fieldCount)
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = fieldLabels[i]
		ti.CharLimit = 2000
		ti.Width = 60
		ti.SetValue(initial[i])
		m.inputs[i] = ti
	}
	m.inputs[0].Focus()

	m.charAS = f.CharacterAutosave(m.values.Character, func(visible bool) {
		bridge.send(indicatorMsg{record: "character", visible: visible})
	})
	m.themeAS = f.ThemeAutosave(m.values.Theme, func(visible bool) {
		bridge.send(indicatorMsg{record: "theme", visible: visible})
	})
	return m
}

func (m FormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m FormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Sequence(m.closeCmd(), tea.Quit)
		case tea.KeyTab, tea.KeyDown, tea.KeyEnter:
			return m.moveFocus(1), nil
		case tea.KeyShiftTab, tea.KeyUp:
			return m.moveFocus(-1), nil
		case tea.KeyCtrlS:
			return m, m.submitCmd()
		}

	case indicatorMsg:
		if msg.record == "character" {
			m.charSaved = msg.visible
		} else {
			m.themeSaved = msg.visible
		}
		return m, nil

	case notifyMsg:
		m.status = msg.text
		m.statusErr = msg.level == types.LevelError
		m.statusSeq++
		return m, clearStatusAfter(m.statusSeq)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil
	}

	before := m.inputs[m.focus].Value()
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	if m.inputs[m.focus].Value() != before {
		m.fieldChanged(m.focus)
	}
	return m, cmd
}

// fieldChanged copies the inputs into the shared values and notifies the
// autosave for the record the field belongs to.
func (m FormModel) fieldChanged(field int) {
	m.values.mu.Lock()
	m.values.character = types.Character{
		Name:        m.inputs[fieldName].Value(),
		Description: m.inputs[fieldDescription].Value(),
		Personality: m.inputs[fieldPersonality].Value(),
	}
	m.values.theme = types.Theme{
		ThemeName:        m.inputs[fieldThemeName].Value(),
		ThemeDescription: m.inputs[fieldThemeDescription].Value(),
		ExampleMessage:   m.inputs[fieldExampleMessage].Value(),
	}
	m.values.mu.Unlock()

	if field < fieldThemeName {
		m.charAS.Changed()
	} else {
		m.themeAS.Changed()
	}
}

func (m FormModel) moveFocus(delta int) FormModel {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	m.inputs[m.focus].Focus()
	return m
}

func (m FormModel) submitCmd() tea.Cmd {
	f, v := m.forms, m.values
	charAS, themeAS := m.charAS, m.themeAS
	return func() tea.Msg {
		charAS.Stop()
		themeAS.Stop()
		ctx := context.Background()
		// Each save notifies its own outcome.
		_ = f.SaveCharacter(ctx, v.Character())
		_ = f.SaveTheme(ctx, v.Theme())
		return nil
	}
}

// Close saves any edit still inside its quiet period. It must not run on the
// program's event loop, since saves report back through the bridge.
func (m FormModel) Close() {
	m.charAS.Flush()
	m.themeAS.Flush()
}

func (m FormModel) closeCmd() tea.Cmd {
	return func() tea.Msg {
		m.Close()
		return nil
	}
}

func (m FormModel) View() string {
	var b strings.Builder
	b.WriteString(formTitleStyle.Render("Character & Theme"))
	b.WriteString("\n")

	for i := range m.inputs {
		switch i {
		case fieldName:
			b.WriteString(sectionLine("Character", m.charSaved))
		case fieldThemeName:
			b.WriteString("\n")
			b.WriteString(sectionLine("Theme", m.themeSaved))
		}
		b.WriteString(labelStyle.Render(fieldLabels[i]))
		b.WriteString("\n")
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.status == "":
		b.WriteString(helpStyle.Render("tab next • shift+tab back • ctrl+s save • esc quit"))
	case m.statusErr:
		b.WriteString(errorStyle.Render(m.status))
	default:
		b.WriteString(successStyle.Render(m.status))
	}
	return b.String()
}

func sectionLine(title string, saved bool) string {
	line := sectionStyle.Render(title)
	if saved {
		line += "  " + indicatorStyle.Render(autosave.IndicatorLabel)
	}
	return line + "\n"
}
