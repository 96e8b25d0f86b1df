// Package assistant is the conversational security assistant: chat history,
// reply preferences and the AI-backed analysis and search helpers.
package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/notify"
)

// Sender identifies who wrote a history entry
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Entry is one message in the chat history
type Entry struct {
	ID               string       `json:"id" yaml:"id"`
	Sender           Sender       `json:"sender" yaml:"sender"`
	Content          string       `json:"content" yaml:"content"`
	Sources          []api.Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	SuggestedActions []string     `json:"suggested_actions,omitempty" yaml:"suggested_actions,omitempty"`
	Timestamp        time.Time    `json:"timestamp" yaml:"timestamp"`
}

// Backend is the part of the API the assistant uses
type Backend interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatReply, error)
	AnalyzeEvent(ctx context.Context, id string) (*api.Analysis, error)
	AnalyzeEventData(ctx context.Context, data any) (*api.Analysis, error)
	SearchFiles(ctx context.Context, query string) (*api.Page[api.BankFile], error)
}

// Assistant keeps one conversation
type Assistant struct {
	backend   Backend
	notifier  notify.Notifier
	logger    *log.Logger
	prefsPath string

	mu      sync.Mutex
	history []Entry
	prefs   Preferences
	pending int
}

// Option configures an Assistant
type Option func(*Assistant)

// WithNotifier reports failures and preference changes through n
func WithNotifier(n notify.Notifier) Option {
	return func(a *Assistant) { a.notifier = n }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithPreferencesFile loads and persists preferences at path
func WithPreferencesFile(path string) Option {
	return func(a *Assistant) { a.prefsPath = path }
}

// New creates an assistant with an empty history
func New(backend Backend, opts ...Option) *Assistant {
	a := &Assistant{backend: backend, prefs: DefaultPreferences()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.OrDefault(a.logger).WithComponent("assistant")

	if a.prefsPath != "" {
		prefs, err := LoadPreferences(a.prefsPath)
		if err != nil {
			a.logger.WithError(err).Warn("using default assistant preferences")
		}
		a.prefs = prefs
	}
	return a
}

// Send posts message with the current preferences and records both sides
// of the exchange. On failure only the user's entry stays in the history.
func (a *Assistant) Send(ctx context.Context, message string) (*Entry, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.NewRequired("message")
	}

	a.mu.Lock()
	prefs := a.prefs
	a.history = append(a.history, Entry{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		Content:   message,
		Timestamp: time.Now(),
	})
	a.pending++
	a.mu.Unlock()

	reply, err := a.backend.Chat(ctx, api.ChatRequest{Message: message, Preferences: &prefs})

	a.mu.Lock()
	a.pending--
	if err != nil {
		a.mu.Unlock()
		a.fail(ctx, "Message not sent", "The assistant could not be reached. Please try again.", err)
		return nil, err
	}
	entry := Entry{
		ID:               uuid.NewString(),
		Sender:           SenderAssistant,
		Content:          reply.Message,
		Sources:          reply.Sources,
		SuggestedActions: reply.SuggestedActions,
		Timestamp:        time.Now(),
	}
	a.history = append(a.history, entry)
	a.mu.Unlock()

	return &entry, nil
}

// History returns a copy of the conversation in order
func (a *Assistant) History() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry(nil), a.history...)
}

// Clear forgets the conversation
func (a *Assistant) Clear() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// Busy reports whether a request is in flight
func (a *Assistant) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending > 0
}

// Preferences returns the current reply preferences
func (a *Assistant) Preferences() Preferences {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prefs
}

// UpdatePreferences applies update to the current preferences and persists the result
func (a *Assistant) UpdatePreferences(update func(*Preferences)) error {
	a.mu.Lock()
	next := a.prefs
	update(&next)
	if err := ValidatePreferences(next); err != nil {
		a.mu.Unlock()
		return err
	}
	a.prefs = next
	a.mu.Unlock()

	if a.prefsPath != "" {
		if err := SavePreferences(a.prefsPath, next); err != nil {
			a.logger.WithError(err).Warn("assistant preferences not saved")
			return err
		}
	}
	a.show(notify.Message{Kind: notify.KindSuccess, Title: "Preferences updated",
		Body: "Assistant preferences were saved."})
	return nil
}

// AnalyzeEvent asks the backend to analyze a stored event
func (a *Assistant) AnalyzeEvent(ctx context.Context, id string) (*api.Analysis, error) {
	if id == "" {
		return nil, errors.NewRequired("event id")
	}
	analysis, err := track(a, func() (*api.Analysis, error) { return a.backend.AnalyzeEvent(ctx, id) })
	if err != nil {
		a.fail(ctx, "Analysis failed", "The security event could not be analyzed.", err)
		return nil, err
	}
	return analysis, nil
}

// AnalyzeData asks the backend to analyze arbitrary event data
func (a *Assistant) AnalyzeData(ctx context.Context, data any) (*api.Analysis, error) {
	analysis, err := track(a, func() (*api.Analysis, error) { return a.backend.AnalyzeEventData(ctx, data) })
	if err != nil {
		a.fail(ctx, "Analysis failed", "The security event could not be analyzed.", err)
		return nil, err
	}
	return analysis, nil
}

// SearchFiles runs the AI file search
func (a *Assistant) SearchFiles(ctx context.Context, query string) ([]api.BankFile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewRequired("search query")
	}
	page, err := track(a, func() (*api.Page[api.BankFile], error) { return a.backend.SearchFiles(ctx, query) })
	if err != nil {
		a.fail(ctx, "Search failed", "Files could not be searched.", err)
		return nil, err
	}
	return page.Results, nil
}

// track counts fn as pending while it runs
func track[T any](a *Assistant, fn func() (T, error)) (T, error) {
	a.mu.Lock()
	a.pending++
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.pending--
		a.mu.Unlock()
	}()
	return fn()
}

func (a *Assistant) fail(ctx context.Context, title, body string, err error) {
	a.logger.LogError(ctx, strings.ToLower(title), err)
	if errors.Is(err, errors.KindUnauthorized) {
		return
	}
	a.show(notify.Message{Kind: notify.KindError, Title: title, Body: body})
}

func (a *Assistant) show(m notify.Message) {
	if a.notifier != nil {
		a.notifier.Show(m)
	}
}
