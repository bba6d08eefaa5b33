package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/keygate/keygate/internal/rules"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [COMMAND]",
	Short: "Check a shell command against the security rules",
	Long: `Validate decides whether a shell command may run. The command comes
from the argument, or from stdin when no argument is given. A stdin payload
that is a PreToolUse hook event is unwrapped to its tool_input.command.

Exit codes:
  0  command allowed
  2  command blocked (reason on stderr)
  1  validate itself failed

Hook configuration (.claude/settings.json):
  {"hooks": {"PreToolUse": [{"matcher": "Bash",
    "hooks": [{"type": "command", "command": "keygate validate"}]}]}}`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var validateCaller string

func init() {
	validateCmd.Flags().StringVar(&validateCaller, "caller", "hook", "label recorded with each logged decision")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	var command string
	if len(args) == 1 {
		command = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading command from stdin: %w", err)
		}
		command = commandFromInput(string(data))
	}

	slog.Debug("validating command", "command", command)

	var logger *rules.DecisionLogger
	if Cfg.DecisionLog.Enabled {
		l, err := rules.NewDecisionLogger(rules.DecisionLogConfig{
			Path:          Cfg.DecisionLog.Path,
			MaxSizeMB:     Cfg.DecisionLog.MaxSizeMB,
			SampleAllowed: Cfg.DecisionLog.SampleAllowed,
		})
		if err != nil {
			slog.Warn("decision log disabled", "error", err)
		} else {
			logger = l
			defer func() {
				if err := l.Close(); err != nil {
					slog.Warn("closing decision log", "error", err)
				}
			}()
		}
	}

	gate := rules.NewGate(buildEngine(Cfg), logger, validateCaller)
	err := gate.Enforce(cmd.Context(), command)

	var blocked *rules.BlockedError
	if errors.As(err, &blocked) {
		slog.Debug("command blocked", "rule", blocked.Rule.ID, "layer", blocked.Rule.Layer)
		fmt.Fprintf(cmd.ErrOrStderr(), "keygate: %v\n", blocked)
		return &ExitError{Code: 2, Err: blocked}
	}
	if err != nil {
		return err
	}

	slog.Debug("command allowed")
	return nil
}

// hookEvent is the subset of a PreToolUse hook payload that carries a command.
type hookEvent struct {
	ToolInput *struct {
		Command *string `json:"command"`
	} `json:"tool_input"`
}

// commandFromInput trims stdin and unwraps a hook event. Anything that is not
// a hook event with a command is checked verbatim.
func commandFromInput(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "{") {
		return text
	}

	var ev hookEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return text
	}
	if ev.ToolInput == nil || ev.ToolInput.Command == nil {
		return text
	}
	return *ev.ToolInput.Command
}
