package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/assistant"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
	"github.com/felixgeelhaar/bankshield/internal/notify"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/session"
)

// ViewType represents the current view being displayed
type ViewType int

// View type constants
const (
	ViewDashboard ViewType = iota
	ViewEvents
	ViewFiles
	ViewAssistant
	ViewHelp
)

// screenViews are the views reachable with tab, in order
var screenViews = []ViewType{ViewDashboard, ViewEvents, ViewFiles, ViewAssistant}

func (v ViewType) String() string {
	switch v {
	case ViewDashboard:
		return "Dashboard"
	case ViewEvents:
		return "Events"
	case ViewFiles:
		return "Files"
	case ViewAssistant:
		return "Assistant"
	case ViewHelp:
		return "Help"
	}
	return "Unknown"
}

// Controller performs the side effects the console asks for
type Controller interface {
	// Show activates the data behind view and deactivates the rest
	Show(view ViewType)
	Refresh(view ViewType)
	Send(ctx context.Context, message string) (*assistant.Entry, error)
	Dismiss(id string)
}

// Model represents the console state
type Model struct {
	ctrl Controller

	// Data, as last delivered by the coordinators
	session       session.Snapshot
	dashboard     coordinator.State[*screens.DashboardData]
	events        coordinator.State[*api.Page[api.Event]]
	files         coordinator.State[*api.Page[api.BankFile]]
	notifications []notify.Message
	chat          []assistant.Entry
	chatPending   bool

	// UI state
	currentView ViewType
	lastView    ViewType
	width       int
	height      int
	ready       bool
	quitting    bool
	signedOut   bool

	input   textinput.Model
	spinner spinner.Model
	keys    keyMap
	styles  Styles
}

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Status      lipgloss.Style
	Error       lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Muted       lipgloss.Style
	Border      lipgloss.Style
	Highlighted lipgloss.Style
	Help        lipgloss.Style
	Key         lipgloss.Style
	KeyDesc     lipgloss.Style
}

// keyMap defines the keyboard shortcuts
type keyMap struct {
	Quit      key.Binding
	Next      key.Binding
	Prev      key.Binding
	Dashboard key.Binding
	Events    key.Binding
	Files     key.Binding
	Assistant key.Binding
	Refresh   key.Binding
	Dismiss   key.Binding
	Help      key.Binding
	Back      key.Binding
	Send      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Next:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
		Prev:      key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous view")),
		Dashboard: key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "dashboard")),
		Events:    key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "events")),
		Files:     key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "files")),
		Assistant: key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "assistant")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Dismiss:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss notifications")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	}
}

// NewModel creates a console model starting on the dashboard
func NewModel(ctrl Controller, snap session.Snapshot) Model {
	input := textinput.New()
	input.Placeholder = "Ask about alerts, events or files"
	input.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctrl:        ctrl,
		session:     snap,
		currentView: ViewDashboard,
		input:       input,
		spinner:     sp,
		keys:        defaultKeys(),
		styles:      DefaultStyles(),
	}
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Status: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")), // Cyan
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")). // Purple
			Padding(0, 1),
		Highlighted: lipgloss.NewStyle().
			Background(lipgloss.Color("63")).  // Purple
			Foreground(lipgloss.Color("230")). // Light yellow
			Bold(true).
			Padding(0, 1),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			MarginTop(1),
		Key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")), // Purple
		KeyDesc: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
	}
}

// Init activates the first screen (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	m.ctrl.Show(m.currentView)
	return m.spinner.Tick
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(20, msg.Width-6)
		m.ready = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SessionMsg:
		m.session = msg.Snapshot
		if !msg.Snapshot.IsAuthenticated() && !msg.Snapshot.IsRestoring() {
			m.signedOut = true
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case DashboardMsg:
		m.dashboard = msg.State
		return m, nil

	case EventsMsg:
		m.events = msg.State
		return m, nil

	case FilesMsg:
		m.files = msg.State
		return m, nil

	case NotificationsMsg:
		m.notifications = msg.Messages
		return m, nil

	case ChatReplyMsg:
		m.chatPending = false
		if msg.Entry != nil {
			m.chat = append(m.chat, *msg.Entry)
		}
		return m, nil
	}

	return m, nil
}

// View renders the TUI (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		return m.renderGoodbye()
	}
	if !m.ready {
		return "Initializing..."
	}

	var body string
	switch m.currentView {
	case ViewDashboard:
		body = m.renderDashboard()
	case ViewEvents:
		body = m.renderEvents()
	case ViewFiles:
		body = m.renderFiles()
	case ViewAssistant:
		body = m.renderAssistant()
	case ViewHelp:
		body = m.renderHelp()
	default:
		body = "Unknown view"
	}

	return strings.Join([]string{
		m.renderHeader(),
		m.renderNotifications(),
		body,
		m.renderHelpLine(),
	}, "\n")
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Ctrl+C always quits
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	// The chat input owns printable keys
	if m.currentView == ViewAssistant {
		switch {
		case key.Matches(msg, m.keys.Send):
			return m.sendChat()
		case key.Matches(msg, m.keys.Back):
			return m.switchTo(ViewDashboard), nil
		case key.Matches(msg, m.keys.Next), key.Matches(msg, m.keys.Prev):
			// fall through to navigation
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			return m.switchTo(m.lastView), nil
		}
		m.lastView = m.currentView
		m.currentView = ViewHelp

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			return m.switchTo(m.lastView), nil
		}

	case key.Matches(msg, m.keys.Next):
		return m.switchTo(m.cycle(1)), nil

	case key.Matches(msg, m.keys.Prev):
		return m.switchTo(m.cycle(-1)), nil

	case key.Matches(msg, m.keys.Dashboard):
		return m.switchTo(ViewDashboard), nil

	case key.Matches(msg, m.keys.Events):
		return m.switchTo(ViewEvents), nil

	case key.Matches(msg, m.keys.Files):
		return m.switchTo(ViewFiles), nil

	case key.Matches(msg, m.keys.Assistant):
		return m.switchTo(ViewAssistant), nil

	case key.Matches(msg, m.keys.Refresh):
		m.ctrl.Refresh(m.currentView)

	case key.Matches(msg, m.keys.Dismiss):
		for _, n := range m.notifications {
			m.ctrl.Dismiss(n.ID)
		}
	}

	return m, nil
}

func (m Model) switchTo(view ViewType) Model {
	if view == ViewHelp {
		return m
	}
	if view != m.currentView {
		m.ctrl.Show(view)
	}
	m.currentView = view
	if view == ViewAssistant {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	return m
}

func (m Model) cycle(step int) ViewType {
	current := m.currentView
	if current == ViewHelp {
		current = m.lastView
	}
	for i, v := range screenViews {
		if v == current {
			return screenViews[(i+step+len(screenViews))%len(screenViews)]
		}
	}
	return ViewDashboard
}

func (m Model) sendChat() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.chatPending {
		return m, nil
	}
	m.input.Reset()
	m.chatPending = true
	m.chat = append(m.chat, assistant.Entry{Sender: assistant.SenderUser, Content: text})

	ctrl := m.ctrl
	return m, func() tea.Msg {
		entry, err := ctrl.Send(context.Background(), text)
		return ChatReplyMsg{Entry: entry, Err: err}
	}
}

// Custom messages delivered by the adapter

// SessionMsg carries a new session snapshot
type SessionMsg struct {
	Snapshot session.Snapshot
}

// DashboardMsg carries the dashboard coordinator state
type DashboardMsg struct {
	State coordinator.State[*screens.DashboardData]
}

// EventsMsg carries the event list coordinator state
type EventsMsg struct {
	State coordinator.State[*api.Page[api.Event]]
}

// FilesMsg carries the file list coordinator state
type FilesMsg struct {
	State coordinator.State[*api.Page[api.BankFile]]
}

// NotificationsMsg carries the visible notifications
type NotificationsMsg struct {
	Messages []notify.Message
}

// ChatReplyMsg completes a chat exchange
type ChatReplyMsg struct {
	Entry *assistant.Entry
	Err   error
}
