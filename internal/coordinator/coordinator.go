// Package coordinator drives the remote data behind one screen.
//
// A Coordinator fetches when it is activated and whenever its key changes.
// Every fetch gets a new generation; a response whose generation is no longer
// the latest is dropped, so an out-of-order arrival never overwrites newer
// data. After Deactivate no further state changes reach subscribers.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/metrics"
	"github.com/felixgeelhaar/bankshield/internal/notify"
)

// Phase is the lifecycle position of a coordinator's data
type Phase int

const (
	Idle Phase = iota
	Loading
	Success
	Failure
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// State is a point-in-time view of a coordinator.
// Data keeps the last successful result while a newer fetch is loading or has failed.
type State[T any] struct {
	Phase      Phase
	Generation uint64
	Data       T
	Err        error
	UpdatedAt  time.Time
}

// Fetcher loads the data for key
type Fetcher[K comparable, T any] func(ctx context.Context, key K) (T, error)

type options struct {
	parent       context.Context
	interval     time.Duration
	notifier     notify.Notifier
	failureTitle string
	metrics      *metrics.Metrics
	logger       *log.Logger
}

// Option configures a Coordinator
type Option func(*options)

// WithInterval refetches the current key every d while active
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithNotifier reports failed fetches through n
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithFailureTitle sets the title of failure notifications
func WithFailureTitle(title string) Option {
	return func(o *options) { o.failureTitle = title }
}

// WithMetrics counts discarded stale responses
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithContext sets the parent context of every fetch
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.parent = ctx }
}

// Coordinator owns the RequestState of one screen
type Coordinator[K comparable, T any] struct {
	name  string
	fetch Fetcher[K, T]
	opts  options

	// deliverMu serializes subscriber delivery and deactivation
	deliverMu sync.Mutex

	mu      sync.Mutex
	state   State[T]
	key     K
	active  bool
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	subs    map[int]func(State[T])
	nextSub int
	wg      sync.WaitGroup
}

// New creates an idle coordinator. name labels logs and metrics.
func New[K comparable, T any](name string, fetch Fetcher[K, T], opts ...Option) *Coordinator[K, T] {
	o := options{parent: context.Background(), failureTitle: "Could not load " + name}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = log.OrDefault(o.logger).WithComponent("coordinator").With("coordinator", name)

	return &Coordinator[K, T]{
		name:  name,
		fetch: fetch,
		opts:  o,
		subs:  make(map[int]func(State[T])),
	}
}

// Name returns the coordinator's label
func (c *Coordinator[K, T]) Name() string {
	return c.name
}

// State returns the current state
func (c *Coordinator[K, T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Key returns the key of the latest fetch
func (c *Coordinator[K, T]) Key() K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Active reports whether the coordinator is between Activate and Deactivate
func (c *Coordinator[K, T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Subscribe registers fn for state changes. Delivery is serialized and always
// carries the newest state. fn must not call Activate, Update, Refresh or
// Deactivate synchronously.
func (c *Coordinator[K, T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Activate starts the coordinator on key and issues the first fetch.
// Activating an active coordinator behaves like Update.
func (c *Coordinator[K, T]) Activate(key K) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.Update(key)
		return
	}
	c.active = true
	c.key = key
	c.ctx, c.cancel = context.WithCancel(c.opts.parent)
	if c.opts.interval > 0 {
		c.stop = make(chan struct{})
		go c.poll(c.stop, c.opts.interval)
	}
	c.issueLocked()
}

// Update refetches when key differs from the current one
func (c *Coordinator[K, T]) Update(key K) {
	c.mu.Lock()
	if !c.active || key == c.key {
		c.mu.Unlock()
		return
	}
	c.key = key
	c.issueLocked()
}

// Refresh refetches the current key
func (c *Coordinator[K, T]) Refresh() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.issueLocked()
}

// Deactivate stops polling and drops every in-flight response.
// Once it returns no subscriber is called again until the next Activate.
func (c *Coordinator[K, T]) Deactivate() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.cancel()
}

// Wait blocks until every issued fetch has returned
func (c *Coordinator[K, T]) Wait() {
	c.wg.Wait()
}

// issueLocked starts a fetch for the current key and releases c.mu
func (c *Coordinator[K, T]) issueLocked() {
	c.state.Generation++
	c.state.Phase = Loading
	c.state.Err = nil
	gen, key, ctx := c.state.Generation, c.key, c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	c.deliver()
	go c.run(ctx, gen, key)
}

func (c *Coordinator[K, T]) run(ctx context.Context, gen uint64, key K) {
	defer c.wg.Done()

	data, err := c.fetch(ctx, key)

	c.mu.Lock()
	if !c.active || gen != c.state.Generation {
		c.mu.Unlock()
		c.opts.metrics.RecordStale(c.name)
		c.opts.logger.Debug("discarding stale response", "generation", gen)
		return
	}
	c.state.UpdatedAt = time.Now()
	if err != nil {
		c.state.Phase = Failure
		c.state.Err = err
	} else {
		c.state.Phase = Success
		c.state.Data = data
	}
	c.mu.Unlock()

	if err != nil {
		c.reportFailure(ctx, err)
	}
	c.deliver()
}

// reportFailure notifies about a failed fetch. Rejected credentials are left
// to the session, which already tells the user to sign in again.
func (c *Coordinator[K, T]) reportFailure(ctx context.Context, err error) {
	c.opts.logger.WithError(err).WarnContext(ctx, "fetch failed")
	if c.opts.notifier == nil || errors.Is(err, errors.KindUnauthorized) {
		return
	}
	c.opts.notifier.Show(notify.Message{
		Kind:  notify.KindError,
		Title: c.opts.failureTitle,
		Body:  errors.UserMessage(err),
	})
}

func (c *Coordinator[K, T]) deliver() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	snap := c.state
	subs := make([]func(State[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Coordinator[K, T]) poll(stop <-chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}
