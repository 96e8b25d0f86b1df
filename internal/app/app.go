// Package app assembles the console from configuration: one token store, one
// session controller, one notification broker and one API client shared by
// every screen.
package app

import (
	"context"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/assistant"
	"github.com/felixgeelhaar/bankshield/internal/config"
	"github.com/felixgeelhaar/bankshield/internal/contract"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
	"github.com/felixgeelhaar/bankshield/internal/log"
	"github.com/felixgeelhaar/bankshield/internal/metrics"
	"github.com/felixgeelhaar/bankshield/internal/nav"
	"github.com/felixgeelhaar/bankshield/internal/notify"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/session"
	"github.com/felixgeelhaar/bankshield/internal/tokenstore"
)

// App holds the wired components
type App struct {
	Config    config.Config
	Logger    *log.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Store     tokenstore.Store
	Broker    *notify.Broker
	Router    *nav.Router
	Client    *api.Client
	Session   *session.Controller
	Assistant *assistant.Assistant

	unsubscribe func()
}

type options struct {
	store     tokenstore.Store
	logger    *log.Logger
	prefsPath string
	start     string
}

// Option overrides a default component
type Option func(*options)

// WithStore replaces the credential file with store
func WithStore(store tokenstore.Store) Option {
	return func(o *options) { o.store = store }
}

// WithLogger replaces the logger built from configuration
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPreferencesFile overrides where assistant preferences live
func WithPreferencesFile(path string) Option {
	return func(o *options) { o.prefsPath = path }
}

// WithStartLocation sets the initial route
func WithStartLocation(path string) Option {
	return func(o *options) { o.start = path }
}

// New wires the application from cfg
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{start: nav.Dashboard}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.New(log.FromStrings(cfg.Logging.Level, cfg.Logging.Format))
	}

	store := o.store
	if store == nil {
		path, err := cfg.TokenFile()
		if err != nil {
			return nil, err
		}
		var storeOpts []tokenstore.Option
		if cfg.Auth.Passphrase != "" {
			storeOpts = append(storeOpts, tokenstore.WithPassphrase(cfg.Auth.Passphrase))
		}
		store = tokenstore.NewFileStore(path, storeOpts...)
	}

	prefsPath := o.prefsPath
	if prefsPath == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		prefsPath = filepath.Join(dir, "assistant.yaml")
	}

	reg, m := metrics.NewRegistry()
	broker := notify.NewBroker(
		notify.WithDefaultDuration(cfg.Notifications.DefaultDuration),
		notify.WithMetrics(m),
	)
	router := nav.NewRouter(o.start)

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithNavigator(router),
		api.WithMetrics(m),
		api.WithLogger(logger),
	}
	if cfg.API.StrictContract {
		v, err := contract.Load()
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, api.WithContract(v))
	}
	client := api.NewClient(cfg.API.BaseURL, store, clientOpts...)

	ctrl := session.New(client, store,
		session.WithNotifier(broker),
		session.WithLogger(logger),
		session.WithMetrics(m),
	)
	client.OnUnauthorized(ctrl.Invalidate)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Store:    store,
		Broker:   broker,
		Router:   router,
		Client:   client,
		Session:  ctrl,
		Assistant: assistant.New(client,
			assistant.WithNotifier(broker),
			assistant.WithLogger(logger),
			assistant.WithPreferencesFile(prefsPath),
		),
	}
	a.unsubscribe = ctrl.Subscribe(func(s session.Snapshot) {
		nav.Resolve(router, s)
	})
	return a, nil
}

// Start restores a stored session and, when configured, serves metrics until
// ctx ends. A rejected or unreachable session is not an error here; the
// session ends Unauthenticated and the caller decides what to do.
func (a *App) Start(ctx context.Context) {
	if a.Config.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.Addr, a.Registry); err != nil {
				a.Logger.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}
	if err := a.Session.Restore(ctx); err != nil {
		a.Logger.WithError(err).DebugContext(ctx, "no session restored")
	}
}

// Dashboard returns a dashboard coordinator using the configured refresh interval
func (a *App) Dashboard() *screens.Dashboard {
	return screens.NewDashboard(a.Client, a.Config.Dashboard.RefreshInterval, a.coordinatorOptions()...)
}

// Events returns an event list coordinator
func (a *App) Events() *screens.Events {
	return screens.NewEvents(a.Client, a.coordinatorOptions()...)
}

// EventDetail returns an event detail coordinator
func (a *App) EventDetail() *screens.EventDetail {
	return screens.NewEventDetail(a.Client, a.coordinatorOptions()...)
}

// Files returns a file list coordinator
func (a *App) Files() *screens.Files {
	return screens.NewFiles(a.Client, a.coordinatorOptions()...)
}

func (a *App) coordinatorOptions() []coordinator.Option {
	return []coordinator.Option{
		coordinator.WithNotifier(a.Broker),
		coordinator.WithMetrics(a.Metrics),
		coordinator.WithLogger(a.Logger),
	}
}

// Close detaches the route guard from the session
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}
