package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/app"
	"github.com/felixgeelhaar/bankshield/internal/assistant"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
	"github.com/felixgeelhaar/bankshield/internal/notify"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/session"
)

// Adapter bridges the application components and the TUI. It owns one
// coordinator per screen and forwards their states to the program.
type Adapter struct {
	app *app.App

	dashboard *screens.Dashboard
	events    *screens.Events
	files     *screens.Files

	eventQuery screens.EventQuery
	fileQuery  screens.FileQuery

	box    *mailbox
	unsubs []func()
}

// NewAdapter creates a new TUI adapter over a started application
func NewAdapter(a *app.App) *Adapter {
	ad := &Adapter{
		app:        a,
		dashboard:  a.Dashboard(),
		events:     a.Events(),
		files:      a.Files(),
		eventQuery: screens.EventQuery{Limit: 20, Sort: "-timestamp"},
		fileQuery:  screens.FileQuery{Limit: 20, Sort: "-uploaded_at"},
		box:        newMailbox(),
	}

	ad.unsubs = append(ad.unsubs,
		a.Session.Subscribe(func(s session.Snapshot) { ad.box.post(SessionMsg{Snapshot: s}) }),
		a.Broker.Subscribe(func(msgs []notify.Message) { ad.box.post(NotificationsMsg{Messages: msgs}) }),
		ad.dashboard.Subscribe(func(s coordinator.State[*screens.DashboardData]) { ad.box.post(DashboardMsg{State: s}) }),
		ad.events.Subscribe(func(s coordinator.State[*api.Page[api.Event]]) { ad.box.post(EventsMsg{State: s}) }),
		ad.files.Subscribe(func(s coordinator.State[*api.Page[api.BankFile]]) { ad.box.post(FilesMsg{State: s}) }),
	)
	return ad
}

// Show activates the coordinator behind view and deactivates the others
func (a *Adapter) Show(view ViewType) {
	if view != ViewDashboard {
		a.dashboard.Deactivate()
	}
	if view != ViewEvents {
		a.events.Deactivate()
	}
	if view != ViewFiles {
		a.files.Deactivate()
	}

	switch view {
	case ViewDashboard:
		a.dashboard.Activate(struct{}{})
	case ViewEvents:
		a.events.Activate(a.eventQuery)
	case ViewFiles:
		a.files.Activate(a.fileQuery)
	}
}

// Refresh reloads the data behind view
func (a *Adapter) Refresh(view ViewType) {
	switch view {
	case ViewDashboard:
		a.dashboard.Refresh()
	case ViewEvents:
		a.events.Refresh()
	case ViewFiles:
		a.files.Refresh()
	}
}

// Send forwards a chat message to the assistant
func (a *Adapter) Send(ctx context.Context, message string) (*assistant.Entry, error) {
	return a.app.Assistant.Send(ctx, message)
}

// Dismiss removes a notification
func (a *Adapter) Dismiss(id string) {
	a.app.Broker.Dismiss(id)
}

// Run starts the TUI and blocks until the user quits or ctx ends. It
// returns the final session snapshot so callers can report a sign-out.
func (a *Adapter) Run(ctx context.Context) (session.Snapshot, error) {
	defer a.stop()

	model := NewModel(a, a.app.Session.Snapshot())
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.box.drain(pumpCtx, program.Send)

	final, err := program.Run()
	if m, ok := final.(Model); ok {
		return m.session, err
	}
	return a.app.Session.Snapshot(), err
}

func (a *Adapter) stop() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.dashboard.Deactivate()
	a.events.Deactivate()
	a.files.Deactivate()
}

// mailbox queues messages for the program without blocking the poster.
// Subscribers fire while the program may itself be inside Update, so a
// direct program.Send from there would deadlock.
type mailbox struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (b *mailbox) post(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *mailbox) drain(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}

		b.mu.Lock()
		pending := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, msg := range pending {
			send(msg)
		}
	}
}
