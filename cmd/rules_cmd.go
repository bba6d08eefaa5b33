package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/keygate/keygate/internal/rules"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and author command rules",
	Long: `Rules provides subcommands for inspecting the loaded rule set and for
writing the user rules document.

Rules load in three layers: the built-in table, the rules file
(rules.file in the config, JSON or YAML), and the "|"-separated patterns in
the override variable (rules.env_var, default KEYCHAIN_CUSTOM_RULES).

Examples:
  keygate rules list
  keygate rules test "kubectl get secret db -o yaml"
  keygate rules lint
  keygate rules init --output ~/.keychain/rules.yaml`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesTestCmd = &cobra.Command{
	Use:   "test <command>",
	Short: "Show which rules match a command",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesTest,
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint [file]",
	Short: "Validate and lint a rules document",
	Long: `Lint parses a rules document strictly, reports structural errors, and
prints advisory warnings: rules that match every command or none, very short
patterns, duplicate ids, and disabled rules. The file defaults to rules.file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesLint,
}

var rulesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample rules document",
	Args:  cobra.NoArgs,
	RunE:  runRulesInit,
}

var (
	rulesListDisabled bool
	rulesLintAll      bool
	rulesInitOutput   string
	rulesInitFormat   string
	rulesInitForce    bool
)

func init() {
	rulesListCmd.Flags().BoolVar(&rulesListDisabled, "all", false, "include disabled rules")
	rulesLintCmd.Flags().BoolVar(&rulesLintAll, "all", false, "lint every loaded layer, not just the file")
	rulesInitCmd.Flags().StringVarP(&rulesInitOutput, "output", "o", "", "destination (default rules.file, - for stdout)")
	rulesInitCmd.Flags().StringVar(&rulesInitFormat, "format", "", "json or yaml (default from the file extension)")
	rulesInitCmd.Flags().BoolVar(&rulesInitForce, "force", false, "overwrite an existing file")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesTestCmd)
	rulesCmd.AddCommand(rulesLintCmd)
	rulesCmd.AddCommand(rulesInitCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	engine := buildEngine(Cfg)

	fmt.Fprintf(out, "%-28s %-13s %-8s %s\n", "ID", "LAYER", "ENABLED", "MATCH")
	for _, r := range engine.Rules() {
		if !r.Enabled && !rulesListDisabled {
			continue
		}
		fmt.Fprintf(out, "%-28s %-13s %-8t %s\n", r.ID, r.Layer, r.Enabled, rules.FormatMatch(r))
	}

	counts := engine.LayerCounts()
	fmt.Fprintf(out, "\n%d active rules (builtin %d, config-file %d, env-override %d), version %s\n",
		engine.ActiveRulesCount(),
		counts[rules.LayerBuiltin], counts[rules.LayerConfigFile], counts[rules.LayerEnv],
		engine.Version())
	return nil
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	command := args[0]

	matched := buildEngine(Cfg).Matches(command)
	if len(matched) == 0 {
		fmt.Fprintln(out, "ALLOWED: no rule matches")
		return nil
	}

	first := matched[0]
	fmt.Fprintf(out, "BLOCKED by %s (%s): %s\n", first.ID, first.Layer, first.Description)
	fmt.Fprintf(out, "  match: %s\n", rules.FormatMatch(first))
	if len(matched) > 1 {
		fmt.Fprintf(out, "\nAlso matched:\n")
		for _, r := range matched[1:] {
			fmt.Fprintf(out, "  %-28s %-13s %s\n", r.ID, r.Layer, rules.FormatMatch(r))
		}
	}
	return nil
}

func runRulesLint(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var target []rules.Rule
	if rulesLintAll {
		target = buildEngine(Cfg).Rules()
		fmt.Fprintf(out, "Linting %d loaded rules\n", len(target))
	} else {
		path := Cfg.Rules.File
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "No rules file at %s. Create one with: keygate rules init\n", path)
			return nil
		}
		loaded, err := rules.LoadConfigRules(path)
		if err != nil {
			fmt.Fprintf(out, "%s: invalid\n  %v\n", path, err)
			return &ExitError{Code: 1, Err: err}
		}
		target = loaded
		fmt.Fprintf(out, "%s: %d rules\n", path, len(target))
	}

	if problems := rules.ValidateRules(target); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(out, "  ERROR  %s: %s\n", p.Field, p.Message)
		}
		return &ExitError{Code: 1, Err: fmt.Errorf("%d rule error(s)", len(problems))}
	}

	warnings, err := rules.Lint(cmd.Context(), target)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(out, "  WARN   %s\n", w)
	}
	if len(warnings) == 0 {
		fmt.Fprintln(out, "No problems found.")
	}
	return nil
}

// sampleRules seeds a new rules document.
func sampleRules() []rules.Rule {
	return []rules.Rule{
		rules.Substring("vault_read", "Reading secrets from HashiCorp Vault", "vault read"),
		rules.ContainsAll("kubectl_secret", "Reading Kubernetes secrets", "kubectl get", "secret"),
		rules.ContainsAny("cloud_secret_manager", "Reading cloud secret managers",
			"aws secretsmanager get-secret-value",
			"gcloud secrets versions access",
			"az keyvault secret show",
		),
	}
}

func runRulesInit(cmd *cobra.Command, args []string) error {
	path := rulesInitOutput
	if path == "" {
		path = Cfg.Rules.File
	}

	format := rulesInitFormat
	if format == "" {
		format = "json"
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
			format = "yaml"
		}
	}

	data, err := rules.MarshalDocument(sampleRules(), format)
	if err != nil {
		return err
	}

	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if !rulesInitForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("rules file already exists at %s (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating rules directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d sample rules to %s\n", len(sampleRules()), path)
	return nil
}
