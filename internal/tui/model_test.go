package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/assistant"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
	"github.com/felixgeelhaar/bankshield/internal/notify"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/session"
)

type fakeController struct {
	mu        sync.Mutex
	shown     []ViewType
	refreshed []ViewType
	dismissed []string
	sent      []string
	reply     *assistant.Entry
	err       error
}

func (f *fakeController) Show(view ViewType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, view)
}

func (f *fakeController) Refresh(view ViewType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, view)
}

func (f *fakeController) Send(_ context.Context, message string) (*assistant.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return f.reply, f.err
}

func (f *fakeController) Dismiss(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, id)
}

func signedIn() session.Snapshot {
	return session.Snapshot{
		Status: session.Authenticated,
		User:   &api.User{Username: "ada", FirstName: "Ada", LastName: "Lovelace", Role: "admin"},
	}
}

func newTestModel(ctrl *fakeController) Model {
	m := NewModel(ctrl, signedIn())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "shift+tab":
			msg = tea.KeyMsg{Type: tea.KeyShiftTab}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

// TestNewModel tests model initialization
func TestNewModel(t *testing.T) {
	ctrl := &fakeController{}
	model := NewModel(ctrl, signedIn())

	if model.currentView != ViewDashboard {
		t.Errorf("Expected ViewDashboard, got %v", model.currentView)
	}
	if model.quitting {
		t.Error("Expected quitting to be false by default")
	}
	if got := model.View(); got != "Initializing..." {
		t.Errorf("Expected initializing view before the first resize, got %q", got)
	}

	model.Init()
	if len(ctrl.shown) != 1 || ctrl.shown[0] != ViewDashboard {
		t.Errorf("Expected Init to show the dashboard, got %v", ctrl.shown)
	}
}

// TestViewSwitching tests number keys and tab cycling
func TestViewSwitching(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)

	m = press(m, "2")
	if m.currentView != ViewEvents {
		t.Errorf("Expected ViewEvents, got %v", m.currentView)
	}

	m = press(m, "tab")
	if m.currentView != ViewFiles {
		t.Errorf("Expected ViewFiles after tab, got %v", m.currentView)
	}

	m = press(m, "shift+tab", "shift+tab")
	if m.currentView != ViewDashboard {
		t.Errorf("Expected ViewDashboard after two shift+tab, got %v", m.currentView)
	}

	m = press(m, "1")
	want := []ViewType{ViewEvents, ViewFiles, ViewEvents, ViewDashboard}
	if len(ctrl.shown) != len(want) {
		t.Fatalf("Expected %d Show calls, got %v", len(want), ctrl.shown)
	}
	for i, v := range want {
		if ctrl.shown[i] != v {
			t.Errorf("Show call %d: expected %v, got %v", i, v, ctrl.shown[i])
		}
	}
}

// TestHelpToggle tests that help returns to the previous view
func TestHelpToggle(t *testing.T) {
	ctrl := &fakeController{}
	m := press(newTestModel(ctrl), "3", "?")

	if m.currentView != ViewHelp {
		t.Fatalf("Expected ViewHelp, got %v", m.currentView)
	}
	if !strings.Contains(m.View(), "Refresh the current view") {
		t.Error("Expected help view to list key bindings")
	}

	m = press(m, "esc")
	if m.currentView != ViewFiles {
		t.Errorf("Expected to return to ViewFiles, got %v", m.currentView)
	}
}

// TestRefreshAndDismiss tests the actions forwarded to the controller
func TestRefreshAndDismiss(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)

	updated, _ := m.Update(NotificationsMsg{Messages: []notify.Message{
		{ID: "1", Kind: notify.KindError, Title: "Could not load files"},
		{ID: "2", Kind: notify.KindInfo, Title: "Signed out"},
	}})
	m = updated.(Model)
	if !strings.Contains(m.View(), "Could not load files") {
		t.Error("Expected notifications to be rendered")
	}

	m = press(m, "r", "x")
	if len(ctrl.refreshed) != 1 || ctrl.refreshed[0] != ViewDashboard {
		t.Errorf("Expected dashboard refresh, got %v", ctrl.refreshed)
	}
	if len(ctrl.dismissed) != 2 {
		t.Errorf("Expected both notifications dismissed, got %v", ctrl.dismissed)
	}
}

// TestDashboardRendering tests each coordinator phase
func TestDashboardRendering(t *testing.T) {
	m := newTestModel(&fakeController{})

	updated, _ := m.Update(DashboardMsg{State: coordinator.State[*screens.DashboardData]{Phase: coordinator.Loading}})
	m = updated.(Model)
	if !strings.Contains(m.View(), "Loading") {
		t.Error("Expected loading placeholder")
	}

	updated, _ = m.Update(DashboardMsg{State: coordinator.State[*screens.DashboardData]{
		Phase: coordinator.Failure,
		Err:   errors.New("boom"),
	}})
	m = updated.(Model)
	if !strings.Contains(m.View(), "Could not load") {
		t.Error("Expected failure placeholder")
	}

	stats := api.EventStats{Total: 2, SeverityCounts: map[string]int{"CRITICAL": 1, "LOW": 1}}
	updated, _ = m.Update(DashboardMsg{State: coordinator.State[*screens.DashboardData]{
		Phase: coordinator.Success,
		Data: &screens.DashboardData{
			Stats: stats,
			Score: screens.ScoreEvents(stats),
			Alerts: []api.Event{
				{ID: "7", EventType: "DATA_EXFIL", Severity: "CRITICAL", Description: "Bulk export"},
			},
		},
		UpdatedAt: time.Now(),
	}})
	m = updated.(Model)
	view := m.View()
	for _, want := range []string{"Security score", "Bulk export", "Ada Lovelace"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected dashboard to contain %q", want)
		}
	}
}

// TestEventsRendering tests the event list
func TestEventsRendering(t *testing.T) {
	m := press(newTestModel(&fakeController{}), "2")

	updated, _ := m.Update(EventsMsg{State: coordinator.State[*api.Page[api.Event]]{
		Phase: coordinator.Success,
		Data:  &api.Page[api.Event]{},
	}})
	m = updated.(Model)
	if !strings.Contains(m.View(), "No security events") {
		t.Error("Expected empty event list message")
	}

	updated, _ = m.Update(EventsMsg{State: coordinator.State[*api.Page[api.Event]]{
		Phase: coordinator.Success,
		Data: &api.Page[api.Event]{Count: 1, Results: []api.Event{
			{ID: "1", EventType: "LOGIN_FAILED", Severity: "HIGH", Description: "Repeated failures"},
		}},
	}})
	m = updated.(Model)
	if !strings.Contains(m.View(), "LOGIN_FAILED") {
		t.Error("Expected event type in list")
	}
}

// TestChat tests sending a message from the assistant view
func TestChat(t *testing.T) {
	ctrl := &fakeController{reply: &assistant.Entry{
		Sender:  assistant.SenderAssistant,
		Content: "Two alerts are open.",
	}}
	m := press(newTestModel(ctrl), "4")
	if m.currentView != ViewAssistant {
		t.Fatalf("Expected ViewAssistant, got %v", m.currentView)
	}

	// q is typed into the input, not treated as quit
	m = press(m, "q", "?")
	if m.quitting || m.currentView != ViewAssistant {
		t.Fatal("Expected printable keys to go to the input")
	}
	if m.input.Value() != "q?" {
		t.Errorf("Expected input 'q?', got %q", m.input.Value())
	}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("Expected a send command")
	}
	if !m.chatPending || len(m.chat) != 1 || m.chat[0].Content != "q?" {
		t.Errorf("Expected the user's message to be pending, got %+v", m.chat)
	}

	updated, _ = m.Update(cmd())
	m = updated.(Model)
	if m.chatPending {
		t.Error("Expected reply to clear pending state")
	}
	if len(ctrl.sent) != 1 || ctrl.sent[0] != "q?" {
		t.Errorf("Expected controller to receive message, got %v", ctrl.sent)
	}
	if !strings.Contains(m.View(), "Two alerts are open.") {
		t.Error("Expected assistant reply in view")
	}
}

// TestChatFailureKeepsUserMessage tests that a failed send adds no reply
func TestChatFailureKeepsUserMessage(t *testing.T) {
	ctrl := &fakeController{err: errors.New("offline")}
	m := press(newTestModel(ctrl), "4", "h", "i")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	updated, _ = m.Update(cmd())
	m = updated.(Model)

	if len(m.chat) != 1 {
		t.Errorf("Expected only the user's message, got %d entries", len(m.chat))
	}
	if m.chatPending {
		t.Error("Expected pending state to clear after failure")
	}
}

// TestSessionEndQuits tests that losing the session ends the program
func TestSessionEndQuits(t *testing.T) {
	m := newTestModel(&fakeController{})

	updated, cmd := m.Update(SessionMsg{Snapshot: session.Snapshot{Status: session.Restoring}})
	m = updated.(Model)
	if cmd != nil || m.quitting {
		t.Error("Expected restoring session to keep running")
	}

	updated, cmd = m.Update(SessionMsg{Snapshot: session.Snapshot{
		Status:       session.Unauthenticated,
		ErrorMessage: "Session expired",
	}})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if !m.signedOut {
		t.Error("Expected signedOut to be set")
	}
	view := m.View()
	if !strings.Contains(view, "Session expired") || !strings.Contains(view, "bankshield auth login") {
		t.Errorf("Unexpected goodbye view %q", view)
	}
}

// TestQuit tests the quit key
func TestQuit(t *testing.T) {
	m := press(newTestModel(&fakeController{}), "q")
	if !m.quitting {
		t.Error("Expected quitting to be true")
	}
	if m.View() != "" {
		t.Error("Expected empty view after a plain quit")
	}
}

// TestFormatDuration tests duration formatting
func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.duration); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
		}
	}
}

func TestMailboxPreservesOrder(t *testing.T) {
	box := newMailbox()
	for i := 0; i < 5; i++ {
		box.post(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan tea.Msg, 5)
	go box.drain(ctx, func(msg tea.Msg) { got <- msg })

	for i := 0; i < 5; i++ {
		select {
		case msg := <-got:
			if msg != i {
				t.Errorf("message %d: got %v", i, msg)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
}
