package cmd

import (
	"fmt"

	"github.com/keygate/keygate/internal/secrets"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Print stored secrets for the shell",
	Long: `Load prints the secrets stored for the configured service. The bash and
export formats emit export statements meant for eval; json emits an object.

Examples:
  eval "$(keygate load --format export)"
  keygate load --format json --keys OPENAI_API_KEY`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

var (
	loadFormat string
	loadKeys   string
)

func init() {
	loadCmd.Flags().StringVarP(&loadFormat, "format", "f", secrets.FormatBash, "output format: bash, json, or export")
	loadCmd.Flags().StringVarP(&loadKeys, "keys", "k", "", "only load these keys (comma-separated)")

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	store, err := openConfiguredStore(cmd.Context(), Cfg)
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}

	entries, err := store.RetrieveAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading secrets: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "No secrets found for service: %s\n", Cfg.ServiceName)
		return &ExitError{Code: 1}
	}

	return secrets.Format(cmd.OutOrStdout(), secrets.FilterEntries(entries, loadKeys), loadFormat)
}
