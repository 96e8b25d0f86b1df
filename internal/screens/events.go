package screens

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
)

// EventQuery is the comparable form of the event list filters.
// List fields are comma-separated; Resolved is "", "true" or "false".
type EventQuery struct {
	Severity string
	Status   string
	Type     string
	Category string
	From     string
	To       string
	Search   string
	Resolved string
	Limit    int
	Sort     string
}

// Filter converts the query into request filters
func (q EventQuery) Filter() api.EventFilter {
	f := api.EventFilter{
		Severity: splitList(strings.ToUpper(q.Severity)),
		Status:   splitList(q.Status),
		Type:     splitList(q.Type),
		Category: q.Category,
		From:     q.From,
		To:       q.To,
		Search:   q.Search,
		Limit:    q.Limit,
		Sort:     q.Sort,
	}
	switch strings.ToLower(q.Resolved) {
	case "true", "yes":
		f.IsResolved = boolPtr(true)
	case "false", "no":
		f.IsResolved = boolPtr(false)
	}
	return f
}

// EventSource lists and reads security events
type EventSource interface {
	ListEvents(ctx context.Context, filter api.EventFilter) (*api.Page[api.Event], error)
	GetEvent(ctx context.Context, id string) (*api.Event, error)
}

// Events coordinates the event list; changing the query refetches
type Events = coordinator.Coordinator[EventQuery, *api.Page[api.Event]]

// NewEvents returns the event list coordinator
func NewEvents(src EventSource, opts ...coordinator.Option) *Events {
	opts = append([]coordinator.Option{coordinator.WithFailureTitle("Could not load security events")}, opts...)
	return coordinator.New("events", func(ctx context.Context, q EventQuery) (*api.Page[api.Event], error) {
		return src.ListEvents(ctx, q.Filter())
	}, opts...)
}

// EventDetail coordinates one event; the key is the event id
type EventDetail = coordinator.Coordinator[string, *api.Event]

// NewEventDetail returns the event detail coordinator
func NewEventDetail(src EventSource, opts ...coordinator.Option) *EventDetail {
	opts = append([]coordinator.Option{coordinator.WithFailureTitle("Could not load event")}, opts...)
	return coordinator.New("event-detail", src.GetEvent, opts...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
