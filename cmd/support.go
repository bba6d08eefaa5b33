package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/keygate/keygate/internal/support"
	"github.com/spf13/cobra"
)

var supportCmd = &cobra.Command{
	Use:   "support",
	Short: "Support tools for diagnostics and issue reporting",
}

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Generate a diagnostic bundle for issue reports",
	Long: `Generate a JSON diagnostic bundle containing the configuration summary,
host info, the loaded rule ids, and the check report. Secret values are never
included; with --redact (the default) the service name and home directory are
hidden too.`,
	Args: cobra.NoArgs,
	RunE: runBundle,
}

func init() {
	bundleCmd.Flags().Bool("redact", true, "redact the service name and home directory")
	supportCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(supportCmd)
}

func runBundle(cmd *cobra.Command, args []string) error {
	redact, _ := cmd.Flags().GetBool("redact")
	bundle, err := support.GenerateBundle(cmd.Context(), Cfg, checkEnv(cmd), support.BundleOptions{
		Redact:  redact,
		Version: version,
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling bundle: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
