package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/tui"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive security console",
	Long: `Open the interactive console with the security dashboard, event list,
file manager and assistant. The dashboard refreshes every
dashboard.refresh_interval (5m by default).

With --once, or when stdout is not a terminal, the dashboard is loaded once
and printed.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().Bool("once", false, "print the dashboard once instead of opening the console")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	once, _ := cmd.Flags().GetBool("once")

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	if once || !tui.IsInteractive() || !isTerminal(cmd.OutOrStdout()) {
		return printDashboard(cmd, s)
	}

	snap, err := tui.NewAdapter(s.App).Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("console failed: %w", err)
	}
	if !snap.IsAuthenticated() {
		msg := snap.ErrorMessage
		if msg == "" {
			msg = "session ended"
		}
		return errors.New(errors.KindUnauthorized, errors.ErrCodeSessionExpired, msg).
			WithSuggestion("Run 'bankshield auth login' to sign in again")
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func printDashboard(cmd *cobra.Command, s *commandSession) error {
	data, err := screens.LoadDashboard(cmd.Context(), s.Client)
	if err != nil {
		return err
	}

	return s.output(cmd, data, func() *ux.Table {
		t := &ux.Table{}
		t.Append("Security score:", fmt.Sprintf("%d%% (threat level %s)", data.Score.Score, strings.ToUpper(string(data.Score.ThreatLevel))))
		t.Append("Events:", fmt.Sprintf("%d total, %d critical, %d high", data.Stats.Total, data.Stats.Count("CRITICAL"), data.Stats.Count("HIGH")))
		t.Append("Files:", fmt.Sprintf("%d total, %d recent", data.FileCount, data.RecentFiles))
		t.Append("Open alerts:", strconv.Itoa(len(data.Alerts)))
		for _, e := range data.Alerts {
			t.Append("", fmt.Sprintf("#%s %s %s %s", e.ID, e.Severity, e.EventType, e.Description))
		}
		t.Append("Latest events:", "")
		for _, e := range data.LatestEvents {
			t.Append("", fmt.Sprintf("#%s %s %s %s", e.ID, formatTime(e.Timestamp), e.Severity, e.EventType))
		}
		t.Append("Latest files:", "")
		for _, f := range data.LatestFiles {
			t.Append("", fmt.Sprintf("#%s %s (%s)", f.ID, f.Name, f.Sensitivity))
		}
		return t
	})
}
