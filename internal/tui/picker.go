package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

// Action is what the user picked in the menu.
type Action string

const (
	ActionNone   Action = ""
	ActionAttach Action = "attach"
	ActionNew    Action = "new"
	ActionPause  Action = "pause"
	ActionReady  Action = "ready"
	ActionMerge  Action = "merge"
	ActionClose  Action = "close"
)

// Choice is the picker's result. Session is the selected (or newly typed)
// session name.
type Choice struct {
	Action  Action
	Session string
}

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Attach key.Binding
	New    key.Binding
	Pause  key.Binding
	Ready  key.Binding
	Merge  key.Binding
	Close  key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Attach, k.New, k.Merge, k.Close, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Attach, k.New},
		{k.Pause, k.Ready, k.Merge, k.Close},
		{k.Help, k.Quit},
	}
}

func defaultKeys() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Attach: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "attach")),
		New:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new session")),
		Pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Ready:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "ready")),
		Merge:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "merge")),
		Close:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "close")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Picker is the interactive session menu.
type Picker struct {
	sessions []models.Session
	selected int
	keys     keyMap
	help     help.Model
	input    textinput.Model
	naming   bool
	choice   Choice
	width    int
	now      time.Time
}

// NewPicker creates a picker over sessions.
func NewPicker(sessions []models.Session) *Picker {
	ti := textinput.New()
	ti.Placeholder = "session name"
	ti.CharLimit = 64
	ti.Width = 40

	return &Picker{
		sessions: sessions,
		keys:     defaultKeys(),
		help:     help.New(),
		input:    ti,
		width:    80,
		now:      time.Now(),
	}
}

// Init implements tea.Model.
func (p *Picker) Init() tea.Cmd {
	return nil
}

// Choice returns the user's pick, ActionNone when they quit.
func (p *Picker) Choice() Choice {
	return p.choice
}

// Update implements tea.Model.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.help.Width = msg.Width
		return p, nil

	case tea.KeyMsg:
		if p.naming {
			return p.updateNaming(msg)
		}
		switch {
		case key.Matches(msg, p.keys.Quit):
			return p, tea.Quit
		case key.Matches(msg, p.keys.Up):
			if p.selected > 0 {
				p.selected--
			}
		case key.Matches(msg, p.keys.Down):
			if p.selected < len(p.sessions)-1 {
				p.selected++
			}
		case key.Matches(msg, p.keys.Help):
			p.help.ShowAll = !p.help.ShowAll
		case key.Matches(msg, p.keys.New):
			p.naming = true
			p.input.Reset()
			return p, p.input.Focus()
		case key.Matches(msg, p.keys.Attach):
			return p.pick(ActionAttach)
		case key.Matches(msg, p.keys.Pause):
			return p.pick(ActionPause)
		case key.Matches(msg, p.keys.Ready):
			return p.pick(ActionReady)
		case key.Matches(msg, p.keys.Merge):
			return p.pick(ActionMerge)
		case key.Matches(msg, p.keys.Close):
			return p.pick(ActionClose)
		}
	}
	return p, nil
}

func (p *Picker) updateNaming(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		p.naming = false
		p.input.Blur()
		return p, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(p.input.Value())
		if name == "" {
			return p, nil
		}
		p.choice = Choice{Action: ActionNew, Session: name}
		return p, tea.Quit
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// pick records action on the selected session and quits.
func (p *Picker) pick(action Action) (tea.Model, tea.Cmd) {
	if len(p.sessions) == 0 {
		return p, nil
	}
	p.choice = Choice{Action: action, Session: p.sessions[p.selected].Name}
	return p, tea.Quit
}

// View implements tea.Model.
func (p *Picker) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ClaudeMix sessions"))
	b.WriteString("\n\n")

	if len(p.sessions) == 0 {
		b.WriteString(dimStyle.Render("  No sessions yet. Press n to start one."))
		b.WriteString("\n")
	}
	for i, s := range p.sessions {
		cursor := "  "
		name := s.Name
		if i == p.selected {
			cursor = selectedStyle.Render("> ")
			name = selectedStyle.Render(name)
		}
		line := fmt.Sprintf("%s%s  %s  %s", cursor, name,
			StateStyle(s.State).Render(string(s.State)),
			dimStyle.Render(s.Branch+" · "+Age(p.now.Sub(s.LastActivity))))
		b.WriteString(line)
		b.WriteString("\n")
	}

	if p.naming {
		b.WriteString("\n")
		b.WriteString(boxStyle.Width(min(p.width-2, 50)).Render(selectedStyle.Render("new > ") + p.input.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(p.help.View(p.keys))
	return lipgloss.NewStyle().MaxWidth(p.width).Render(b.String())
}

// Pick runs the picker on the terminal and returns the user's choice.
func Pick(sessions []models.Session) (Choice, error) {
	final, err := tea.NewProgram(NewPicker(sessions)).Run()
	if err != nil {
		return Choice{}, err
	}
	return final.(*Picker).Choice(), nil
}
