package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/app"
	"github.com/felixgeelhaar/bankshield/internal/config"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/notify"
	"github.com/felixgeelhaar/bankshield/internal/session"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

// CommandContext holds the persistent flags every command reads. Commands
// build it in RunE instead of reading package globals.
type CommandContext struct {
	ConfigPath  string
	APIURL      string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	Format      string
}

// NewCommandContext extracts command context from cobra.Command flags
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc := &CommandContext{}
	for name, dst := range map[string]*string{
		"config":       &cc.ConfigPath,
		"api-url":      &cc.APIURL,
		"log-level":    &cc.LogLevel,
		"log-format":   &cc.LogFormat,
		"metrics-addr": &cc.MetricsAddr,
		"format":       &cc.Format,
	} {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return cc, nil
}

// LoadConfig loads the configuration and applies flag overrides on top
func (c *CommandContext) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return cfg, errors.Wrap(errors.KindValidation, errors.ErrCodeFileUnmarshal, "invalid configuration", err)
	}

	if c.APIURL != "" {
		cfg.API.BaseURL = c.APIURL
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Addr = c.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid, "invalid configuration", err)
	}
	return cfg, nil
}

// Formatter returns the output formatter selected with --format
func (c *CommandContext) Formatter(w io.Writer) (ux.Formatter, error) {
	f, err := ux.NewFormatter(c.Format, &ux.FormatterOptions{Writer: w})
	if err != nil {
		return nil, errors.NewValidation(err.Error())
	}
	return f, nil
}

// commandSession is an application opened for one command
type commandSession struct {
	*app.App
	cc     *CommandContext
	unsubs []func()
}

// openApp wires the application for cmd and restores the stored session.
// Callers must Close it.
func openApp(cmd *cobra.Command) (*commandSession, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := cc.LoadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}

	s := &commandSession{App: a, cc: cc}
	s.unsubs = append(s.unsubs, a.Broker.Subscribe(noticePrinter(cmd.ErrOrStderr())))
	a.Start(cmd.Context())
	return s, nil
}

// Close detaches the notice printer and the application
func (s *commandSession) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.App.Close()
}

// output writes data in the structured formats and table as text
func (s *commandSession) output(cmd *cobra.Command, data any, table func() *ux.Table) error {
	return writeOutput(cmd, s.cc, data, table)
}

func writeOutput(cmd *cobra.Command, cc *CommandContext, data any, table func() *ux.Table) error {
	f, err := cc.Formatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if cc.Format == "" || cc.Format == "text" {
		return f.Format(table())
	}
	return f.Format(data)
}

// requireSession fails unless the restored session is authenticated
func requireSession(snap session.Snapshot) error {
	if snap.IsAuthenticated() {
		return nil
	}
	if snap.LastError != nil && !errors.Is(snap.LastError, errors.KindUnauthorized) {
		return snap.LastError
	}
	return errors.New(errors.KindUnauthorized, errors.ErrCodeNotAuthenticated, "not signed in").
		WithSuggestion("Run 'bankshield auth login' to sign in")
}

// noticePrinter writes non-error notifications to w once each. Errors are
// returned by the command instead.
func noticePrinter(w io.Writer) func([]notify.Message) {
	var mu sync.Mutex
	seen := map[string]bool{}
	return func(msgs []notify.Message) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range msgs {
			if seen[m.ID] || m.Kind == notify.KindError {
				continue
			}
			seen[m.ID] = true
			if m.Body != "" {
				fmt.Fprintf(w, "%s: %s\n", m.Title, m.Body) //nolint:errcheck
			} else {
				fmt.Fprintln(w, m.Title) //nolint:errcheck
			}
		}
	}
}
