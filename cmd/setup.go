package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/keygate/keygate/internal/secrets"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store the sensitive variables of a .env file in the keychain",
	Long: `Setup reads a .env file, picks the variables whose names look
sensitive (password, secret, key, token, ...), and stores them in the
secret store under the configured service name.

On a terminal, setup lists the variables with masked values and asks for
confirmation. Non-interactive runs must pass --force.

Values expand $VAR and ${VAR} unless they are single-quoted, so quote
secrets containing "$" with single quotes.

Examples:
  keygate setup --env-file ~/.env
  keygate setup --env-file .env --keys OPENAI_API_KEY,DB_PASSWORD --force`,
	RunE: runSetup,
}

var (
	setupEnvFile string
	setupKeys    string
	setupForce   bool
)

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func init() {
	setupCmd.Flags().StringVarP(&setupEnvFile, "env-file", "e", "", "path to the .env file")
	setupCmd.Flags().StringVarP(&setupKeys, "keys", "k", "", "only store these keys (comma-separated)")
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "skip the confirmation prompt")
	_ = setupCmd.MarkFlagRequired("env-file")

	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Reading %s\n", setupEnvFile)
	all, err := secrets.ParseEnvFile(setupEnvFile)
	if err != nil {
		return err
	}
	sensitive := secrets.SensitiveOnly(secrets.FilterKeys(all, setupKeys))

	if len(sensitive) == 0 {
		fmt.Fprintln(out, "No sensitive variables found.")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d sensitive variables:\n", len(sensitive))
	for _, s := range sensitive {
		fmt.Fprintf(out, "  %-32s %s\n", s.Key, secrets.Mask(s.Value))
	}

	if !setupForce {
		if !stdinIsTerminal() {
			return fmt.Errorf("refusing to store secrets without confirmation: stdin is not a terminal (use --force)")
		}
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("\nStore these in the %q service?", Cfg.ServiceName))
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}
		if !ok {
			fmt.Fprintln(out, "Setup cancelled.")
			return nil
		}
	}

	store, err := openConfiguredStore(cmd.Context(), Cfg)
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}

	fmt.Fprintf(out, "\nStoring secrets (%s)...\n", store.Name())
	stored, failed := 0, 0
	for _, s := range sensitive {
		if err := store.Store(cmd.Context(), s.Key, s.Value); err != nil {
			slog.Warn("storing secret failed", "key", s.Key, "error", err)
			fmt.Fprintf(out, "  [FAIL] %s\n", s.Key)
			failed++
			continue
		}
		fmt.Fprintf(out, "  [OK]   %s\n", s.Key)
		stored++
	}

	fmt.Fprintf(out, "\nStored %d secrets for service %s.\n", stored, Cfg.ServiceName)
	if failed > 0 {
		return fmt.Errorf("%d of %d secrets could not be stored", failed, len(sensitive))
	}
	fmt.Fprintln(out, "Load them with:")
	fmt.Fprintln(out, `  eval "$(keygate load --format export)"`)
	return nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
