package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/screens"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"event"},
	Short:   "List, inspect and analyze security events",
	Long: `Work with security events recorded by BankShield.

Examples:
  # Open high and critical events
  bankshield events list --severity high,critical --resolved false

  # One event in detail
  bankshield events get 42

  # Ask the assistant to assess an event
  bankshield events analyze 42

  # Severity counts and the security score
  bankshield events stats`,
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List security events",
	Args:  cobra.NoArgs,
	RunE:  runEventsList,
}

var eventsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one security event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsGet,
}

var eventsAnalyzeCmd = &cobra.Command{
	Use:   "analyze [id]",
	Short: "Run AI analysis on an event",
	Long: `Run AI analysis on a stored event, or with --data on event data read from
a JSON file ("-" reads stdin).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEventsAnalyze,
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show event counts by severity and the security score",
	Args:  cobra.NoArgs,
	RunE:  runEventsStats,
}

func init() {
	f := eventsListCmd.Flags()
	f.String("severity", "", "comma-separated severities (low, medium, high, critical)")
	f.String("status", "", "comma-separated statuses")
	f.String("type", "", "comma-separated event types")
	f.String("category", "", "event category")
	f.String("from", "", "earliest date (YYYY-MM-DD)")
	f.String("to", "", "latest date (YYYY-MM-DD)")
	f.String("search", "", "free-text search")
	f.String("resolved", "", "filter by resolution: true or false")
	f.Int("limit", 20, "maximum number of events")
	f.String("sort", "-timestamp", "ordering field, prefix with - for descending")

	eventsAnalyzeCmd.Flags().String("data", "", "JSON file with event data to analyze instead of a stored event")

	eventsCmd.AddCommand(eventsListCmd, eventsGetCmd, eventsAnalyzeCmd, eventsStatsCmd)
	rootCmd.AddCommand(eventsCmd)
}

func eventQueryFromFlags(cmd *cobra.Command) (screens.EventQuery, error) {
	f := cmd.Flags()
	q := screens.EventQuery{}
	q.Severity, _ = f.GetString("severity")
	q.Status, _ = f.GetString("status")
	q.Type, _ = f.GetString("type")
	q.Category, _ = f.GetString("category")
	q.From, _ = f.GetString("from")
	q.To, _ = f.GetString("to")
	q.Search, _ = f.GetString("search")
	q.Resolved, _ = f.GetString("resolved")
	q.Limit, _ = f.GetInt("limit")
	q.Sort, _ = f.GetString("sort")

	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return q, errors.NewValidation(fmt.Sprintf("invalid date %q: use YYYY-MM-DD", d))
		}
	}
	switch strings.ToLower(q.Resolved) {
	case "", "true", "false", "yes", "no":
	default:
		return q, errors.NewValidation(fmt.Sprintf("invalid --resolved %q: use true or false", q.Resolved))
	}
	if q.Limit < 0 {
		return q, errors.NewValidation("--limit must not be negative")
	}
	return q, nil
}

func runEventsList(cmd *cobra.Command, args []string) error {
	q, err := eventQueryFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	page, err := s.Client.ListEvents(cmd.Context(), q.Filter())
	if err != nil {
		return err
	}

	return s.output(cmd, page, func() *ux.Table {
		t := &ux.Table{
			Headers: []string{"ID", "TIME", "SEVERITY", "TYPE", "STATUS", "DESCRIPTION"},
			Empty:   "No security events match.",
		}
		for _, e := range page.Results {
			t.Append(e.ID.String(), formatTime(e.Timestamp), e.Severity, e.EventType, eventStatus(e), e.Description)
		}
		return t
	})
}

func runEventsGet(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	e, err := s.Client.GetEvent(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return s.output(cmd, e, func() *ux.Table {
		t := &ux.Table{}
		t.Append("ID:", e.ID.String())
		t.Append("Type:", e.EventType)
		t.Append("Severity:", e.Severity)
		t.Append("Status:", eventStatus(*e))
		t.Append("Time:", formatTime(e.Timestamp))
		t.Append("Source IP:", e.SourceIP)
		t.Append("User:", e.User)
		t.Append("Description:", e.Description)
		return t
	})
}

func runEventsAnalyze(cmd *cobra.Command, args []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	if (dataPath == "") == (len(args) == 0) {
		return errors.NewValidation("give either an event id or --data")
	}

	var data any
	if dataPath != "" {
		raw, err := readInput(cmd, dataPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return errors.Wrap(errors.KindValidation, errors.ErrCodeFileUnmarshal, "event data is not valid JSON", err)
		}
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	var analysis *api.Analysis
	if dataPath != "" {
		analysis, err = s.Assistant.AnalyzeData(cmd.Context(), data)
	} else {
		analysis, err = s.Assistant.AnalyzeEvent(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	return s.output(cmd, analysis, func() *ux.Table {
		t := &ux.Table{}
		if analysis.RiskLevel != "" {
			t.Append("Risk level:", analysis.RiskLevel)
		}
		t.Append("Analysis:", analysis.Analysis)
		for i, r := range analysis.Recommendations {
			label := ""
			if i == 0 {
				label = "Recommendations:"
			}
			t.Append(label, "- "+r)
		}
		return t
	})
}

// eventSummary is the structured form of `events stats`
type eventSummary struct {
	Total          int                 `json:"total" yaml:"total"`
	SeverityCounts map[string]int      `json:"severity_counts" yaml:"severity_counts"`
	Score          int                 `json:"security_score" yaml:"security_score"`
	ThreatLevel    screens.ThreatLevel `json:"threat_level" yaml:"threat_level"`
}

func runEventsStats(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	stats, err := s.Client.EventStats(cmd.Context())
	if err != nil {
		return err
	}
	score := screens.ScoreEvents(*stats)
	summary := eventSummary{
		Total:          stats.Total,
		SeverityCounts: stats.SeverityCounts,
		Score:          score.Score,
		ThreatLevel:    score.ThreatLevel,
	}

	return s.output(cmd, summary, func() *ux.Table {
		t := &ux.Table{}
		t.Append("Total events:", strconv.Itoa(stats.Total))
		t.Append("Critical:", strconv.Itoa(stats.Count("CRITICAL")))
		t.Append("High:", strconv.Itoa(stats.Count("HIGH")))
		t.Append("Medium:", strconv.Itoa(stats.Count("MEDIUM")))
		t.Append("Low:", strconv.Itoa(stats.Count("LOW")))
		t.Append("Security score:", fmt.Sprintf("%d%%", score.Score))
		t.Append("Threat level:", strings.ToUpper(string(score.ThreatLevel)))
		return t
	})
}

func eventStatus(e api.Event) string {
	switch {
	case e.Status != "":
		return e.Status
	case e.IsResolved:
		return "resolved"
	}
	return "open"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// readInput reads path, or stdin when path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed, "failed to read "+path, err)
	}
	return raw, nil
}
