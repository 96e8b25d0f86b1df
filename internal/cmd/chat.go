package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bankshield/internal/assistant"
	"github.com/felixgeelhaar/bankshield/internal/ux"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask the AI security assistant",
	Long: `Send one message to the AI security assistant. Your saved preferences
(see 'bankshield chat preferences') travel with the message.

Examples:
  bankshield chat "which alerts should I look at first?"
  bankshield chat preferences --mode concise --sources=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var chatPreferencesCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Show or change assistant preferences",
	Args:  cobra.NoArgs,
	RunE:  runChatPreferences,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past AI requests",
	Args:  cobra.NoArgs,
	RunE:  runChatHistory,
}

func init() {
	pf := chatPreferencesCmd.Flags()
	pf.String("mode", "", "response mode: balanced, detailed or concise")
	pf.Bool("sources", true, "include sources in replies")
	pf.Bool("auto-analyze", true, "analyze new events automatically")

	chatHistoryCmd.Flags().Int("limit", 20, "maximum number of requests")

	chatCmd.AddCommand(chatPreferencesCmd, chatHistoryCmd)
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	entry, err := s.Assistant.Send(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	return s.output(cmd, entry, func() *ux.Table {
		t := &ux.Table{Rows: [][]string{{entry.Content}}}
		for _, src := range entry.Sources {
			line := "source: " + src.Title
			if src.URL != "" {
				line += " <" + src.URL + ">"
			}
			t.Append(line)
		}
		for _, a := range entry.SuggestedActions {
			t.Append("suggested: " + a)
		}
		return t
	})
}

func runChatPreferences(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	f := cmd.Flags()
	if f.Changed("mode") || f.Changed("sources") || f.Changed("auto-analyze") {
		err := s.Assistant.UpdatePreferences(func(p *assistant.Preferences) {
			if f.Changed("mode") {
				p.ResponseMode, _ = f.GetString("mode")
			}
			if f.Changed("sources") {
				p.ShowSources, _ = f.GetBool("sources")
			}
			if f.Changed("auto-analyze") {
				p.AutoAnalyze, _ = f.GetBool("auto-analyze")
			}
		})
		if err != nil {
			return err
		}
	}

	prefs := s.Assistant.Preferences()
	return s.output(cmd, prefs, func() *ux.Table {
		t := &ux.Table{}
		t.Append("Response mode:", prefs.ResponseMode)
		t.Append("Show sources:", strconv.FormatBool(prefs.ShowSources))
		t.Append("Auto analyze:", strconv.FormatBool(prefs.AutoAnalyze))
		return t
	})
}

func runChatHistory(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
		params.Set("limit", strconv.Itoa(v))
	}

	s, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireSession(s.Session.Snapshot()); err != nil {
		return err
	}

	page, err := s.Client.ListAIRequests(cmd.Context(), params)
	if err != nil {
		return err
	}
	return s.output(cmd, page, func() *ux.Table {
		t := &ux.Table{
			Headers: []string{"ID", "TIME", "TYPE", "QUERY"},
			Empty:   "No AI requests yet.",
		}
		for _, r := range page.Results {
			t.Append(r.ID.String(), formatTime(r.CreatedAt), r.RequestType, truncate(r.Query, 60))
		}
		return t
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:n-3]))
}
