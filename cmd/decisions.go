package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/rules"
	"github.com/spf13/cobra"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect the validate decision log",
	Long: `Decisions reads the JSON Lines log written by validate when
decision_log.enabled is true.

Examples:
  keygate decisions list --decision block --since 24h
  keygate decisions explain 42`,
}

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged decisions",
	Args:  cobra.NoArgs,
	RunE:  runDecisionsList,
}

var decisionsExplainCmd = &cobra.Command{
	Use:   "explain <line>",
	Short: "Explain a logged decision by line number",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecisionsExplain,
}

var (
	decisionsLogFile  string
	decisionsSince    string
	decisionsDecision string
	decisionsRule     string
	decisionsLimit    int
)

func init() {
	decisionsCmd.PersistentFlags().StringVar(&decisionsLogFile, "log-file", "", "decision log (default decision_log.path)")
	decisionsListCmd.Flags().StringVar(&decisionsSince, "since", "", "only entries newer than a duration (24h) or RFC 3339 time")
	decisionsListCmd.Flags().StringVar(&decisionsDecision, "decision", "", "only allow or block")
	decisionsListCmd.Flags().StringVar(&decisionsRule, "rule", "", "only entries for this rule id")
	decisionsListCmd.Flags().IntVar(&decisionsLimit, "limit", 50, "maximum entries to show (0 for all)")

	decisionsCmd.AddCommand(decisionsListCmd)
	decisionsCmd.AddCommand(decisionsExplainCmd)
	rootCmd.AddCommand(decisionsCmd)
}

func decisionLogPath() string {
	if decisionsLogFile != "" {
		return decisionsLogFile
	}
	return Cfg.DecisionLog.Path
}

// parseSince accepts a duration back from now or an RFC 3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since must be a duration like 24h or an RFC 3339 time, got %q", s)
	}
	return t, nil
}

func runDecisionsList(cmd *cobra.Command, args []string) error {
	switch decisionsDecision {
	case "", rules.DecisionAllow, rules.DecisionBlock:
	default:
		return fmt.Errorf("--decision must be %s or %s, got %q", rules.DecisionAllow, rules.DecisionBlock, decisionsDecision)
	}

	since, err := parseSince(decisionsSince, time.Now())
	if err != nil {
		return err
	}

	entries, err := rules.SearchDecisions(decisionLogPath(), rules.DecisionFilter{
		Since:    since,
		Decision: decisionsDecision,
		Rule:     decisionsRule,
		Limit:    decisionsLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching decisions.")
		return nil
	}

	for _, e := range entries {
		rule := e.Rule
		if rule == "" {
			rule = "-"
		}
		fmt.Fprintf(out, "%5d  %s  %-5s  %-24s  %s\n",
			e.Line, e.Timestamp.Format(time.RFC3339), e.Decision, rule, truncate(e.Command, 60))
	}
	return nil
}

func runDecisionsExplain(cmd *cobra.Command, args []string) error {
	lineNum, err := strconv.Atoi(args[0])
	if err != nil || lineNum < 0 {
		return fmt.Errorf("line must be a non-negative integer, got %q", args[0])
	}

	entry, err := rules.ReadDecisionEntry(decisionLogPath(), lineNum)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Decision #%d at %s\n\n", lineNum, entry.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Command:   %s\n", entry.Command)
	if entry.Caller != "" {
		fmt.Fprintf(out, "Caller:    %s\n", entry.Caller)
	}
	fmt.Fprintf(out, "Decision:  %s\n", strings.ToUpper(entry.Decision))
	if entry.Rule != "" {
		fmt.Fprintf(out, "Rule:      %s (%s)\n", entry.Rule, entry.Layer)
	}
	if entry.Description != "" {
		fmt.Fprintf(out, "           %s\n", entry.Description)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Reason:    %s\n", entry.Reason)
	fmt.Fprintf(out, "           Rules version: %s\n", entry.RulesVer)
	fmt.Fprintf(out, "           Evaluated in %.3fms\n", entry.DurationMS)

	if entry.Decision == rules.DecisionBlock {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To allow commands like this:")
		fmt.Fprintln(out, "  1. Read the secret from the environment instead (keygate load)")
		fmt.Fprintf(out, "  2. Or, for a rule from %s, set enabled: false\n", Cfg.Rules.File)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
