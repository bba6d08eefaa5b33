package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/logging"
	"github.com/keygate/keygate/internal/rules"
	"github.com/keygate/keygate/internal/secretstore"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Global flag values.
var (
	cfgFile     string
	serviceName string
	verbose     bool
	logFormat   string
)

// Cfg holds the loaded configuration, available to all subcommands.
var Cfg *config.Config

// openStore is swapped in tests.
var openStore = secretstore.Open

// ExitError carries a process exit code out of a command. Commands that
// return one have already reported the problem, so Execute prints nothing.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// SetVersionInfo is called from main to inject build-time version info.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
	rootCmd.Version = v
	rootCmd.SetVersionTemplate(fmt.Sprintf("keygate version {{.Version}} (commit: %s, built: %s)\n", commit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "keygate",
	Short: "Keygate: keychain-backed secrets and a command gate for AI agents",
	Long: `Keygate moves secrets out of .env files into the OS keychain and
gates the shell commands an AI coding agent runs, blocking the ones that
would read secrets back out.

Quick start:
  keygate setup --env-file ~/.env
  eval "$(keygate load --format export)"

Hook integration (exit code 2 blocks the command):
  echo "cat .env" | keygate validate`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			// A broken config file must not disable the gate.
			cfg = config.Default()
		}
		if serviceName != "" {
			cfg.ServiceName = serviceName
		}
		Cfg = cfg

		format := cfg.Logging.Format
		if cmd.Flags().Changed("log-format") {
			format = logFormat
		}
		logging.Setup(format, cfg.Logging.Level, verbose)

		if err != nil {
			slog.Warn("config unreadable, using defaults", "error", err)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/keygate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serviceName, "service-name", "", "keychain service name (default from config, claude-dev)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("keygate version {{.Version}} (commit: %s, built: %s)\n", commit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}

// buildEngine loads the rule layers named by the config.
func buildEngine(cfg *config.Config) *rules.Engine {
	return rules.New(rules.Options{
		ConfigPath: cfg.Rules.File,
		EnvRules:   os.Getenv(cfg.Rules.EnvVar),
	})
}

// openConfiguredStore opens the secret store named by the config.
func openConfiguredStore(ctx context.Context, cfg *config.Config) (secretstore.Store, error) {
	return openStore(ctx, secretstore.Options{
		Backend:  cfg.Store.Backend,
		Service:  cfg.ServiceName,
		Path:     cfg.StoreFilePath(),
		IndexDir: cfg.Store.IndexDir,
	})
}
