package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/config"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/health"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration, connectivity and the stored session",
	Long: `Run diagnostics: configuration, backend reachability, the stored
credential file, the embedded API contract and the session itself.
Exits non-zero when any check is unhealthy.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().Duration("timeout", health.DefaultTimeout, "timeout for each check")
	rootCmd.AddCommand(doctorCmd)
}

// doctorReport is the structured form of `doctor`
type doctorReport struct {
	Status health.Status   `json:"status" yaml:"status"`
	Checks []health.Report `json:"checks" yaml:"checks"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	manager := health.NewManager().WithTimeout(timeout)
	cfg, cfgErr := cc.LoadConfig()
	manager.AddChecker(health.NewCheck("config", func(context.Context) *health.Result {
		if cfgErr != nil {
			return health.Unhealthy(errors.UserMessage(cfgErr)).WithDetail("error", cfgErr.Error())
		}
		path := cc.ConfigPath
		if path == "" {
			path, _ = config.DefaultPath()
		}
		return health.Healthy("configuration valid").WithDetail("path", path)
	}))
	manager.AddChecker(health.ContractChecker{})

	if cfgErr == nil {
		manager.AddChecker(&health.BackendChecker{BaseURL: cfg.API.BaseURL})
		if path, err := cfg.TokenFile(); err == nil {
			manager.AddChecker(&health.CredentialFileChecker{Path: path})
		}
		manager.AddChecker(health.NewCheck("session", func(ctx context.Context) *health.Result {
			return checkSession(cmd)
		}))
	}

	reports := manager.Check(cmd.Context())
	report := doctorReport{Status: health.Overall(reports), Checks: reports}

	err = writeOutput(cmd, cc, report, func() *ux.Table {
		t := &ux.Table{Headers: []string{"CHECK", "STATUS", "DETAIL", "TIME"}}
		for _, r := range reports {
			t.Append(r.Name, strings.ToUpper(r.Result.Status.String()), r.Result.Message,
				r.Result.Latency.Round(time.Millisecond).String())
		}
		t.Append("", "", "", "")
		t.Append("overall", strings.ToUpper(report.Status.String()), "", "")
		return t
	})
	if err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("one or more checks are unhealthy")
	}
	return nil
}

// checkSession restores the stored session the way every command does
func checkSession(cmd *cobra.Command) *health.Result {
	s, err := openApp(cmd)
	if err != nil {
		return health.Unhealthy("cannot start client").WithDetail("error", err.Error())
	}
	defer s.Close()

	snap := s.Session.Snapshot()
	switch {
	case snap.IsAuthenticated():
		return health.Healthy(fmt.Sprintf("signed in as %s", snap.User.Username)).
			WithDetail("role", snap.User.Role)
	case errors.Is(snap.LastError, errors.KindTransport):
		return health.Unhealthy(snap.ErrorMessage)
	case snap.ErrorMessage != "":
		return health.Degraded(snap.ErrorMessage)
	}
	return health.Degraded("not signed in")
}
