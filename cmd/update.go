package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/update"
)

var updateCmd = &cobra.Command{
	Use:           "update",
	Short:         "Update omni to the latest version",
	Long:          "Downloads and installs the latest version of omni using the official install script.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

// runUpdate resolves its own cache directory rather than relying on
// PersistentPreRunE's package-level paths/db wiring, which is deliberately
// skipped for update/version so they work before $OMNI_DATA_HOME exists.
func runUpdate(cmd *cobra.Command, _ []string) error {
	p, err := config.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolving omni directories: %w", err)
	}

	latest, hasUpdate := update.Check(cmd.Context(), p.CacheHome, Version)
	if !hasUpdate {
		fmt.Fprintln(os.Stdout, "Already on latest")
		return nil
	}

	fmt.Fprintf(os.Stdout, "v%s -> %s\n", Version, latest)
	if err := update.Run(); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Fprintln(os.Stdout, "Updated")
	return nil
}
