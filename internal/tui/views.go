package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/bankshield/internal/api"
	"github.com/felixgeelhaar/bankshield/internal/assistant"
	"github.com/felixgeelhaar/bankshield/internal/coordinator"
	"github.com/felixgeelhaar/bankshield/internal/errors"
	"github.com/felixgeelhaar/bankshield/internal/notify"
)

// renderHeader renders the title bar with the view tabs and signed-in user
func (m Model) renderHeader() string {
	var tabs []string
	for _, v := range screenViews {
		if v == m.currentView {
			tabs = append(tabs, m.styles.Highlighted.Render(v.String()))
		} else {
			tabs = append(tabs, m.styles.Muted.Render(" "+v.String()+" "))
		}
	}

	user := ""
	if u := m.session.User; u != nil {
		user = m.styles.Muted.Render(fmt.Sprintf("  %s (%s)", u.FullName(), u.Role))
	}
	return m.styles.Title.Render("BankShield") + "  " + strings.Join(tabs, " ") + user
}

// renderNotifications renders the visible notifications, newest last
func (m Model) renderNotifications() string {
	if len(m.notifications) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.notifications))
	for _, n := range m.notifications {
		style := m.styles.Status
		switch n.Kind {
		case notify.KindSuccess:
			style = m.styles.Success
		case notify.KindError:
			style = m.styles.Error
		case notify.KindWarning:
			style = m.styles.Warning
		}
		line := style.Render(n.Title)
		if n.Body != "" {
			line += " " + n.Body
		}
		lines = append(lines, line)
	}
	return m.styles.Border.Render(strings.Join(lines, "\n"))
}

// renderDashboard renders the score, event counts, alerts and latest items
func (m Model) renderDashboard() string {
	st := m.dashboard
	if pending := m.renderPhase(st.Phase, st.Data == nil, st.Err); pending != "" {
		return pending
	}
	d := st.Data

	var b strings.Builder

	score := lipgloss.NewStyle().Bold(true).Foreground(scoreColor(d.Score.Score)).
		Render(fmt.Sprintf("%d%%", d.Score.Score))
	b.WriteString(fmt.Sprintf("Security score: %s  threat level: %s\n", score, strings.ToUpper(string(d.Score.ThreatLevel))))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf(
		"Events: %d total  %d critical  %d high  %d medium  %d low",
		d.Stats.Total, d.Stats.Count("CRITICAL"), d.Stats.Count("HIGH"), d.Stats.Count("MEDIUM"), d.Stats.Count("LOW"))))
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("Files: %d total  %d recent", d.FileCount, d.RecentFiles)))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Status.Render("Active alerts"))
	b.WriteString("\n")
	if len(d.Alerts) == 0 {
		b.WriteString(m.styles.Success.Render("No open high or critical alerts"))
		b.WriteString("\n")
	}
	for _, e := range d.Alerts {
		b.WriteString(m.renderEventLine(e))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Status.Render("Latest events"))
	b.WriteString("\n")
	for _, e := range d.LatestEvents {
		b.WriteString(m.renderEventLine(e))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Status.Render("Latest files"))
	b.WriteString("\n")
	for _, f := range d.LatestFiles {
		b.WriteString(m.renderFileLine(f))
		b.WriteString("\n")
	}

	b.WriteString(m.renderUpdated(st.UpdatedAt))
	return b.String()
}

// renderEvents renders the security event list
func (m Model) renderEvents() string {
	st := m.events
	if pending := m.renderPhase(st.Phase, st.Data == nil, st.Err); pending != "" {
		return pending
	}
	if len(st.Data.Results) == 0 {
		return m.styles.Muted.Render("No security events")
	}

	var b strings.Builder
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d events", st.Data.Count)))
	b.WriteString("\n")
	for _, e := range st.Data.Results {
		b.WriteString(m.renderEventLine(e))
		b.WriteString("\n")
	}
	b.WriteString(m.renderUpdated(st.UpdatedAt))
	return b.String()
}

// renderFiles renders the bank file list
func (m Model) renderFiles() string {
	st := m.files
	if pending := m.renderPhase(st.Phase, st.Data == nil, st.Err); pending != "" {
		return pending
	}
	if len(st.Data.Results) == 0 {
		return m.styles.Muted.Render("No files")
	}

	var b strings.Builder
	for _, f := range st.Data.Results {
		b.WriteString(m.renderFileLine(f))
		b.WriteString("\n")
	}
	b.WriteString(m.renderUpdated(st.UpdatedAt))
	return b.String()
}

// renderAssistant renders the conversation and the input line
func (m Model) renderAssistant() string {
	var b strings.Builder

	if len(m.chat) == 0 {
		b.WriteString(m.styles.Muted.Render("Ask the assistant about threats, events or files."))
		b.WriteString("\n")
	}
	for _, e := range m.chat {
		b.WriteString(m.renderChatEntry(e))
		b.WriteString("\n")
	}
	if m.chatPending {
		b.WriteString(m.spinner.View() + m.styles.Muted.Render(" thinking..."))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) renderChatEntry(e assistant.Entry) string {
	if e.Sender == assistant.SenderUser {
		return m.styles.Key.Render("you: ") + e.Content
	}

	var b strings.Builder
	b.WriteString(m.styles.Status.Render("assistant: ") + e.Content)
	for _, s := range e.Sources {
		b.WriteString("\n  " + m.styles.Muted.Render("source: "+s.Title))
		if s.URL != "" {
			b.WriteString(m.styles.Muted.Render(" <" + s.URL + ">"))
		}
	}
	for _, a := range e.SuggestedActions {
		b.WriteString("\n  " + m.styles.Warning.Render("→ ") + a)
	}
	return b.String()
}

// renderHelp renders the help view
func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Help"))
	b.WriteString("\n")

	bindings := []struct {
		key  string
		desc string
	}{
		{m.keys.Dashboard.Help().Key, "Dashboard"},
		{m.keys.Events.Help().Key, "Security events"},
		{m.keys.Files.Help().Key, "Bank files"},
		{m.keys.Assistant.Help().Key, "Assistant"},
		{m.keys.Next.Help().Key, "Next view"},
		{m.keys.Refresh.Help().Key, "Refresh the current view"},
		{m.keys.Dismiss.Help().Key, "Dismiss notifications"},
		{m.keys.Help.Help().Key, "Toggle help"},
		{m.keys.Quit.Help().Key, "Quit"},
		{"Ctrl+C", "Force quit"},
	}

	for _, hk := range bindings {
		keyText := m.styles.Key.Render(fmt.Sprintf("%-10s", hk.key))
		descText := m.styles.KeyDesc.Render(hk.desc)
		b.WriteString(keyText + " " + descText)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("Press ? or Esc to return"))
	return b.String()
}

// renderGoodbye renders the final screen
func (m Model) renderGoodbye() string {
	if m.signedOut {
		msg := "Your session has ended."
		if m.session.ErrorMessage != "" {
			msg = m.session.ErrorMessage
		}
		return m.styles.Warning.Render(msg) + "\n" +
			m.styles.Muted.Render("Run 'bankshield auth login' to sign in again.") + "\n"
	}
	return ""
}

// renderHelpLine renders the help line at the bottom
func (m Model) renderHelpLine() string {
	bindings := []key.Binding{m.keys.Next, m.keys.Refresh, m.keys.Dismiss, m.keys.Help, m.keys.Quit}
	if m.currentView == ViewAssistant {
		bindings = []key.Binding{m.keys.Send, m.keys.Next, m.keys.Back}
	}

	items := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		items = append(items, m.styles.Key.Render(kb.Help().Key)+" "+kb.Help().Desc)
	}
	return m.styles.Help.Render(strings.Join(items, " • "))
}

// renderPhase renders loading and failure placeholders. It returns "" once
// there is data to show.
func (m Model) renderPhase(phase coordinator.Phase, empty bool, err error) string {
	switch {
	case phase == coordinator.Idle:
		return m.styles.Muted.Render("Not loaded yet")
	case phase == coordinator.Loading && empty:
		return m.spinner.View() + m.styles.Muted.Render(" Loading...")
	case phase == coordinator.Failure && empty:
		return m.styles.Error.Render("Could not load: ") + errors.UserMessage(err)
	case empty:
		return m.styles.Muted.Render("Nothing to show")
	}
	return ""
}

func (m Model) renderEventLine(e api.Event) string {
	when := ""
	if !e.Timestamp.IsZero() {
		when = e.Timestamp.Local().Format("2006-01-02 15:04") + "  "
	}
	severity := fmt.Sprintf("%-8s", e.Severity)
	rest := fmt.Sprintf(" %-14s %s", e.EventType, e.Description)
	if e.IsResolved {
		return m.styles.Muted.Render(when + severity + rest)
	}
	return when + severityStyle(m.styles, e.Severity).Render(severity) + rest
}

func (m Model) renderFileLine(f api.BankFile) string {
	return fmt.Sprintf("%-32s %-10s %-12s %s",
		f.Name, f.FileType, f.Sensitivity, m.styles.Muted.Render(f.UploadedAt.Local().Format("2006-01-02")))
}

func (m Model) renderUpdated(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return "\n" + m.styles.Muted.Render("Updated "+formatDuration(time.Since(at))+" ago")
}

func severityStyle(s Styles, severity string) lipgloss.Style {
	switch strings.ToUpper(severity) {
	case "CRITICAL":
		return s.Error
	case "HIGH":
		return s.Warning
	case "MEDIUM":
		return s.Status
	}
	return s.Muted
}

// scoreColor follows the dashboard traffic light
func scoreColor(score int) lipgloss.TerminalColor {
	switch {
	case score >= 80:
		return lipgloss.Color("46") // Green
	case score >= 60:
		return lipgloss.Color("226") // Yellow
	case score >= 40:
		return lipgloss.Color("208") // Orange
	}
	return lipgloss.Color("196") // Red
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
