package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/omniterm"
	"github.com/omnicli/omni/internal/output"
)

var cacheListRemovableJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the install cache",
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run the install-cache and env-history cleanup pass immediately",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		runCleanup(cmd.Context(), cfg.Defaults, time.Now())
		term.Info("cache gc complete")
		return nil
	},
}

var cacheListRemovableCmd = &cobra.Command{
	Use:   "list-removable",
	Short: "List installed resources eligible for physical uninstall",
	RunE:  runCacheListRemovable,
}

func init() {
	cacheListRemovableCmd.Flags().BoolVar(&cacheListRemovableJSON, "json", false, "emit machine-readable JSON")
	cacheCmd.AddCommand(cacheGCCmd)
	cacheCmd.AddCommand(cacheListRemovableCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheListRemovable(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	now := time.Now()

	var removable []output.RemovableResource
	for _, k := range uninstallableKinds {
		candidates, err := installs.ListUninstallCandidates(cmd.Context(), k, cfg.Defaults.CleanupAfter, now)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			removable = append(removable, output.RemovableResource{
				Kind:        k.Installed,
				Values:      c.Values,
				InstallPath: c.InstallPath,
			})
		}
	}

	if cacheListRemovableJSON {
		return output.FormatJSON(os.Stdout, removable)
	}

	if len(removable) == 0 {
		term.Info("nothing eligible for removal")
		return nil
	}
	for _, r := range removable {
		term.Step(omniterm.StatusSkip, r.Kind, r.InstallPath)
	}
	return nil
}
