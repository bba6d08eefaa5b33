package cmd

import (
	"fmt"
	"strings"

	"github.com/keygate/keygate/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and modify keygate configuration",
	Long: `Config provides subcommands for viewing and modifying the keygate
configuration file at ~/.config/keygate/config.yaml.

Examples:
  keygate config init --template audit
  keygate config set store.backend file
  keygate config get rules.file
  keygate config validate`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set updates a configuration key in the config file, creating the file
from the default template if needed. Values that would make the
configuration invalid are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get an effective configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	Long:  `Validate checks the current configuration for errors and warnings.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration from a template",
	Long: `Init creates a new configuration file from a template.

Available templates:
  default   OS keychain, rules in ~/.keychain/rules.json, no decision log
  audit     Decision log enabled, JSON logging
  portable  Encrypted file store and a YAML rules file`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// Flags for config subcommands.
var (
	initTemplate string
	initForce    bool
)

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&initTemplate, "template", "default", "config template: "+strings.Join(config.ValidTemplates, ", "))
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")

	rootCmd.AddCommand(configCmd)
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determining config path: %w", err)
	}
	return path, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	path, err := configPath()
	if err != nil {
		return err
	}
	if err := config.Set(path, key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	value, err := config.Get(path, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Cfg may hold defaults after a load failure, so load again to report it.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "ERROR  config file: %v\n", err)
		return &ExitError{Code: 1, Err: err}
	}
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	result := config.Validate(cfg)
	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}

	fmt.Fprintln(out, result.String())

	if result.HasErrors() {
		return &ExitError{Code: 1, Err: fmt.Errorf("configuration has %d error(s)", len(result.Errors))}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	valid := false
	for _, t := range config.ValidTemplates {
		if initTemplate == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown template %q: valid templates are %s", initTemplate, strings.Join(config.ValidTemplates, ", "))
	}

	path, err := configPath()
	if err != nil {
		return err
	}

	if err := config.WriteTemplate(initTemplate, path, initForce); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config from %q template at %s\n", initTemplate, path)
	return nil
}
