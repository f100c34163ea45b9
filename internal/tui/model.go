// Package tui renders the chat client in the terminal with bubbletea. The
// bubbletea update loop is the client's event loop: key presses and
// transport events are both applied inside Update.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gosuda/pipe-chat/internal/chatclient"
)

type screen int

const (
	formScreen screen = iota
	chatScreen
)

const (
	fieldUsername = iota
	fieldServer
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f8fafc")).Background(lipgloss.Color("#b91c1c")).Padding(0, 1)
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af")).Italic(true)
	selfStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Bold(true)
	otherStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#60a5fa")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#1f2937"))

	statusStyles = map[chatclient.State]lipgloss.Style{
		chatclient.StateDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")),
		chatclient.StateConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")),
		chatclient.StateConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")),
	}
)

// eventMsg carries a transport event into Update.
type eventMsg struct{ ev chatclient.Event }

// Model is the bubbletea model and the chatclient.View.
type Model struct {
	client *chatclient.Client

	username textinput.Model
	server   textinput.Model
	input    textinput.Model
	log      viewport.Model
	field    int

	screen   screen
	status   chatclient.State
	messages []chatclient.Message
	presence chatclient.Presence
	alert    string

	width  int
	height int
}

// New builds a model whose connect form is pre-filled with username and
// server.
func New(dial chatclient.DialFunc, username, server string) *Model {
	m := &Model{
		username: newInput("username", username),
		server:   newInput("host:port", server),
		input:    newInput("type a message and press Enter", ""),
		log:      viewport.New(80, 15),
		width:    80,
		height:   24,
	}
	m.client = chatclient.New(m, dial)
	m.focusField(fieldUsername)
	return m
}

func newInput(placeholder, value string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 4096
	ti.Width = 40
	ti.SetValue(value)
	return ti
}

// Client exposes the controller, mainly for tests.
func (m *Model) Client() *chatclient.Client { return m.client }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.client.Events()))
}

func waitForEvent(events <-chan chatclient.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{ev: <-events}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case eventMsg:
		m.client.Handle(msg.ev)
		return m, waitForEvent(m.client.Events())
	case tea.KeyMsg:
		m.alert = ""
		if msg.Type == tea.KeyCtrlC {
			m.client.Disconnect()
			return m, tea.Quit
		}
		if m.screen == chatScreen {
			return m.updateChat(msg)
		}
		return m.updateForm(msg)
	}
	return m, nil
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.focusField(1 - m.field)
		return m, nil
	case tea.KeyEnter:
		err := m.client.Connect(m.username.Value(), m.server.Value())
		switch {
		case errors.Is(err, chatclient.ErrUsernameRequired), errors.Is(err, chatclient.ErrUsernameInvalid),
			errors.Is(err, chatclient.ErrUsernameTooLong):
			m.focusField(fieldUsername)
		case errors.Is(err, chatclient.ErrAddressRequired):
			m.focusField(fieldServer)
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.field == fieldUsername {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.server, cmd = m.server.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		// Failures are already surfaced through Alert or the close path.
		_ = m.client.SendMessage(m.input.Value())
		return m, nil
	case tea.KeyCtrlD:
		m.client.Disconnect()
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) focusField(f int) {
	m.field = f
	if f == fieldUsername {
		m.username.Focus()
		m.server.Blur()
	} else {
		m.server.Focus()
		m.username.Blur()
	}
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.log.Width = max(w-2, 10)
	m.log.Height = max(h-9, 3)
	m.input.Width = max(w-4, 10)
	m.refreshLog()
}

func (m *Model) refreshLog() {
	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		lines = append(lines, renderMessage(msg))
	}
	m.log.SetContent(strings.Join(lines, "\n"))
	m.log.GotoBottom()
}

func renderMessage(msg chatclient.Message) string {
	switch msg.Class {
	case chatclient.ClassSystem:
		return systemStyle.Render("* " + msg.Body)
	case chatclient.ClassSelf:
		return timeStyle.Render(msg.Time) + " " + selfStyle.Render(msg.Sender) + ": " + msg.Body
	default:
		return timeStyle.Render(msg.Time) + " " + otherStyle.Render(msg.Sender) + ": " + msg.Body
	}
}

func (m *Model) View() string {
	var b strings.Builder

	title := "Sign In"
	if m.screen == chatScreen {
		title = "Chat Room"
	}
	status := m.status.String()
	b.WriteString(titleStyle.Render(title) + "  " + statusStyles[m.status].Render(strings.ToUpper(status[:1])+status[1:]) + "\n")
	if m.alert != "" {
		b.WriteString(alertStyle.Render(m.alert) + "\n")
	}
	b.WriteString("\n")

	if m.screen == formScreen {
		b.WriteString("Username: " + m.username.View() + "\n")
		b.WriteString("Server:   " + m.server.View() + "\n\n")
		b.WriteString(helpStyle.Render("enter connect • tab switch field • ctrl+c quit"))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Online: %d  %s\n", m.presence.Count, m.presence.List()))
	b.WriteString(boxStyle.Render(m.log.View()) + "\n")
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("enter send • pgup/pgdown scroll • ctrl+d disconnect • ctrl+c quit"))
	return b.String()
}

func (m *Model) SetStatus(s chatclient.State) { m.status = s }

func (m *Model) ShowChat() {
	m.screen = chatScreen
	m.username.Blur()
	m.server.Blur()
	m.input.Focus()
}

func (m *Model) ShowConnectForm() {
	m.screen = formScreen
	m.input.Blur()
	m.focusField(fieldUsername)
}

func (m *Model) AddMessage(msg chatclient.Message) {
	m.messages = append(m.messages, msg)
	m.refreshLog()
}

func (m *Model) ClearMessages() {
	m.messages = nil
	m.refreshLog()
}

func (m *Model) SetPresence(p chatclient.Presence) { m.presence = p }

func (m *Model) ClearInput() {
	m.input.SetValue("")
	m.input.Focus()
}

func (m *Model) Alert(text string) { m.alert = text }

// Run starts the program on the alternate screen and blocks until the user
// quits or ctx is cancelled. Any open session is closed on the way out.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.client.Disconnect()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
