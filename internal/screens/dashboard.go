// Package screens binds each console screen to a coordinator and the backend
// calls it needs.
package screens

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
)

// DefaultRefresh is how often the dashboard reloads while shown
const DefaultRefresh = 5 * time.Minute

// ThreatLevel buckets the security score
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Severity weights of the security score
const (
	criticalWeight = 10
	highWeight     = 5
	mediumWeight   = 2
)

// SecurityScore is a 0-100 rating where 100 means no weighted issues
type SecurityScore struct {
	Score       int         `json:"score" yaml:"score"`
	ThreatLevel ThreatLevel `json:"threat_level" yaml:"threat_level"`
}

// ScoreEvents rates event statistics. Each critical event weighs 10, high 5 and
// medium 2; the weighted total per event, times ten, is taken off 100.
func ScoreEvents(stats api.EventStats) SecurityScore {
	total := stats.Total
	if total <= 0 {
		total = 1
	}
	weighted := stats.Count("CRITICAL")*criticalWeight +
		stats.Count("HIGH")*highWeight +
		stats.Count("MEDIUM")*mediumWeight

	score := 100 - float64(weighted)/float64(total)*10
	score = math.Max(0, math.Min(100, score))

	return SecurityScore{Score: int(math.Round(score)), ThreatLevel: threatLevel(score)}
}

func threatLevel(score float64) ThreatLevel {
	switch {
	case score < 40:
		return ThreatCritical
	case score < 60:
		return ThreatHigh
	case score < 80:
		return ThreatMedium
	}
	return ThreatLow
}

// DashboardData is everything the dashboard shows
type DashboardData struct {
	Stats        api.EventStats `json:"stats" yaml:"stats"`
	Score        SecurityScore  `json:"security" yaml:"security"`
	LatestEvents []api.Event    `json:"latest_events" yaml:"latest_events"`
	LatestFiles  []api.BankFile `json:"latest_files" yaml:"latest_files"`
	FileCount    int            `json:"file_count" yaml:"file_count"`
	RecentFiles  int            `json:"recent_files" yaml:"recent_files"`
	// Alerts are unresolved high and critical events
	Alerts []api.Event `json:"alerts" yaml:"alerts"`
}

// DashboardSource is the part of the backend the dashboard reads
type DashboardSource interface {
	EventStats(ctx context.Context) (*api.EventStats, error)
	ListEvents(ctx context.Context, filter api.EventFilter) (*api.Page[api.Event], error)
	ListFiles(ctx context.Context, filter api.FileFilter) (*api.Page[api.BankFile], error)
}

// Queries the dashboard issues on every load
var (
	latestEventsFilter = api.EventFilter{Limit: 5, Sort: "-timestamp"}
	latestFilesFilter  = api.FileFilter{Limit: 5, Sort: "-uploaded_at"}
	alertsFilter       = api.EventFilter{Severity: []string{"HIGH", "CRITICAL"}, IsResolved: boolPtr(false), Limit: 3}
)

// LoadDashboard fetches the four dashboard sections concurrently.
// Any failed section fails the whole load.
func LoadDashboard(ctx context.Context, src DashboardSource) (*DashboardData, error) {
	var (
		stats  *api.EventStats
		events *api.Page[api.Event]
		files  *api.Page[api.BankFile]
		alerts *api.Page[api.Event]
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = src.EventStats(ctx)
		return err
	})
	g.Go(func() (err error) {
		events, err = src.ListEvents(ctx, latestEventsFilter)
		return err
	})
	g.Go(func() (err error) {
		files, err = src.ListFiles(ctx, latestFilesFilter)
		return err
	})
	g.Go(func() (err error) {
		alerts, err = src.ListEvents(ctx, alertsFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &DashboardData{
		Stats:        *stats,
		Score:        ScoreEvents(*stats),
		LatestEvents: events.Results,
		LatestFiles:  files.Results,
		FileCount:    files.Count,
		RecentFiles:  files.RecentCount,
		Alerts:       alerts.Results,
	}, nil
}

// Dashboard coordinates the dashboard screen
type Dashboard = coordinator.Coordinator[struct{}, *DashboardData]

// NewDashboard returns a coordinator that reloads every refresh interval while active.
// A zero refresh uses DefaultRefresh.
func NewDashboard(src DashboardSource, refresh time.Duration, opts ...coordinator.Option) *Dashboard {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	opts = append([]coordinator.Option{
		coordinator.WithInterval(refresh),
		coordinator.WithFailureTitle("Dashboard unavailable"),
	}, opts...)
	return coordinator.New("dashboard", func(ctx context.Context, _ struct{}) (*DashboardData, error) {
		return LoadDashboard(ctx, src)
	}, opts...)
}

func boolPtr(b bool) *bool {
	return &b
}
