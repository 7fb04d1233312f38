package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/hook"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and maintain omni's own configuration and shim set",
}

var configReshimCmd = &cobra.Command{
	Use:   "reshim",
	Short: "Regenerate the shim directory from every currently installed resource",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := regenerateShims(cmd.Context()); err != nil {
			return err
		}
		term.Info("shims regenerated in %s", paths.ShimsDir())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configReshimCmd)
	rootCmd.AddCommand(configCmd)
}

// regenerateShims rebuilds the shim directory to contain exactly one shim
// per executable found directly under a `bin` subdirectory of any
// currently-installed resource's install path (spec §4.5 "Shims").
func regenerateShims(ctx context.Context) error {
	installPaths, err := installs.AllInstalledPaths(ctx)
	if err != nil {
		return fmt.Errorf("listing installed resources: %w", err)
	}

	names := map[string]bool{}
	for _, p := range installPaths {
		binDir := filepath.Join(p, "bin")
		entries, err := os.ReadDir(binDir)
		if err != nil {
			continue // resources with no bin/ subdirectory contribute no shims
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || info.Mode()&0o111 == 0 {
				continue
			}
			names[e.Name()] = true
		}
	}

	shimNames := make([]string, 0, len(names))
	for n := range names {
		shimNames = append(shimNames, n)
	}
	return hook.WriteShims(paths.ShimsDir(), shimNames)
}
