// Package notify is a transient, auto-expiring message channel that surfaces the
// outcome of asynchronous operations.
package notify

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/felixgeelhaar/bankshield/internal/metrics"
)

// Kind is the severity of a message
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Forever keeps a message until it is dismissed
const Forever time.Duration = -1

// DefaultDuration is used when neither the message nor the broker sets one
const DefaultDuration = 5 * time.Second

// Message is a single notification
type Message struct {
	ID       string
	Kind     Kind
	Title    string
	Body     string
	Duration time.Duration
	Created  time.Time
}

// Notifier is the write side of the broker
type Notifier interface {
	Show(msg Message) string
}

// Broker owns the active messages and their expiry timers
type Broker struct {
	// deliverMu orders deliveries so the last list a subscriber sees is current
	deliverMu sync.Mutex

	mu       sync.Mutex
	active   []Message
	timers   map[string]*time.Timer
	duration time.Duration
	entropy  io.Reader
	nextSub  int
	subs     map[int]func([]Message)
	metrics  *metrics.Metrics
}

// Option configures a Broker
type Option func(*Broker)

// WithDefaultDuration sets the lifetime of messages that don't set their own
func WithDefaultDuration(d time.Duration) Option {
	return func(b *Broker) {
		if d != 0 {
			b.duration = d
		}
	}
}

// WithMetrics counts shown messages by kind
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// NewBroker creates an empty broker
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		timers:   make(map[string]*time.Timer),
		duration: DefaultDuration,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		subs:     make(map[int]func([]Message)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Show makes msg visible immediately and returns its id.
// A zero Duration means the broker default; Forever disables expiry.
func (b *Broker) Show(msg Message) string {
	b.mu.Lock()
	now := time.Now()
	// Monotonic entropy is not safe for concurrent use; b.mu guards it.
	msg.ID = ulid.MustNew(ulid.Timestamp(now), b.entropy).String()
	msg.Created = now
	if msg.Duration == 0 {
		msg.Duration = b.duration
	}
	if msg.Kind == "" {
		msg.Kind = KindInfo
	}

	b.active = append(b.active, msg)
	if msg.Duration != Forever {
		id := msg.ID
		b.timers[id] = time.AfterFunc(msg.Duration, func() { b.Dismiss(id) })
	}
	b.mu.Unlock()

	b.metrics.RecordNotification(string(msg.Kind))
	b.publish()
	return msg.ID
}

// Success shows a success message with the default duration
func (b *Broker) Success(title, body string) string {
	return b.Show(Message{Kind: KindSuccess, Title: title, Body: body})
}

// Error shows an error message with the default duration
func (b *Broker) Error(title, body string) string {
	return b.Show(Message{Kind: KindError, Title: title, Body: body})
}

// Warning shows a warning message with the default duration
func (b *Broker) Warning(title, body string) string {
	return b.Show(Message{Kind: KindWarning, Title: title, Body: body})
}

// Info shows an info message with the default duration
func (b *Broker) Info(title, body string) string {
	return b.Show(Message{Kind: KindInfo, Title: title, Body: body})
}

// Dismiss retracts the message with id. Unknown or already retracted ids are ignored.
func (b *Broker) Dismiss(id string) {
	b.mu.Lock()
	idx := -1
	for i, m := range b.active {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return
	}

	b.active = append(b.active[:idx], b.active[idx+1:]...)
	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	b.publish()
}

// ClearAll retracts every active message
func (b *Broker) ClearAll() {
	b.mu.Lock()
	if len(b.active) == 0 {
		b.mu.Unlock()
		return
	}
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.active = nil
	b.mu.Unlock()

	b.publish()
}

// Active returns the visible messages in insertion order
func (b *Broker) Active() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Subscribe registers fn to receive the active list after every change.
// fn runs on the goroutine that caused the change. It must not block or
// change the broker itself; deliveries are serialized.
func (b *Broker) Subscribe(fn func([]Message)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Broker) snapshotLocked() []Message {
	if len(b.active) == 0 {
		return nil
	}
	out := make([]Message, len(b.active))
	copy(out, b.active)
	return out
}

// publish delivers the active list as of the moment it holds deliverMu
func (b *Broker) publish() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	snapshot := b.snapshotLocked()
	subs := make([]func([]Message), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
