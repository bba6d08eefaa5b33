package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/keygate/keygate/internal/checks"
	"github.com/keygate/keygate/internal/host"
	"github.com/keygate/keygate/internal/secrets"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the secret store, rules, and hook setup",
	Long: `Check runs diagnostics: the platform and its native store, whether
the secret store is reachable and holds secrets, how many rules each layer
loaded, whether the rules file parses cleanly, whether the gate still blocks
known dangerous commands, whether the hook binary is on PATH, and whether
stored secrets are loaded in this shell.

With --verbose, stored keys are listed with masked values.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func init() {
	checkCmd.Flags().String("format", "text", "output format (text or json)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q: use text or json", format)
	}
	out := cmd.OutOrStdout()

	report := checks.RunAll(cmd.Context(), checkEnv(cmd))

	if format == "json" {
		s, err := report.JSON()
		if err != nil {
			return fmt.Errorf("marshalling report: %w", err)
		}
		fmt.Fprintln(out, s)
		if report.HasFailures() {
			return &ExitError{Code: 1}
		}
		return nil
	}

	fmt.Fprintln(out, "Keygate Check")
	fmt.Fprintf(out, "  Service: %s\n\n", report.Service)

	if verbose && len(report.Stored) > 0 {
		fmt.Fprintln(out, "Stored secrets:")
		for _, e := range report.Stored {
			fmt.Fprintf(out, "  %-32s %s\n", e.Key, secrets.Mask(e.Value))
		}
		fmt.Fprintln(out)
	}

	for _, r := range report.Results {
		var indicator string
		switch r.Status {
		case checks.StatusPass:
			indicator = "[OK]  "
		case checks.StatusWarn:
			indicator = "[WARN]"
		case checks.StatusFail:
			indicator = "[FAIL]"
		default:
			indicator = "[????]"
		}

		fmt.Fprintf(out, "  %s %s: %s\n", indicator, r.Name, r.Message)

		if r.Remediation != "" && r.Status != checks.StatusPass {
			fmt.Fprintf(out, "         Remediation: %s\n", r.Remediation)
		}
	}

	fmt.Fprintln(out)
	if report.HasFailures() {
		fmt.Fprintln(out, "Some checks FAILED. Fix the issues above and run 'keygate check' again.")
		return &ExitError{Code: 1}
	}

	fmt.Fprintln(out, "All checks passed.")
	return nil
}

// checkEnv gathers what the checks inspect from the loaded config.
func checkEnv(cmd *cobra.Command) checks.Env {
	store, storeErr := openConfiguredStore(cmd.Context(), Cfg)
	return checks.Env{
		Host:      host.Detect(),
		Service:   Cfg.ServiceName,
		Store:     store,
		StoreErr:  storeErr,
		Engine:    buildEngine(Cfg),
		RulesFile: Cfg.Rules.File,
		Binary:    "keygate",
		LookPath:  lookPath,
		Getenv:    os.Getenv,
	}
}
