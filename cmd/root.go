// Package cmd wires every internal package into the `omni` cobra CLI:
// trust-gated up/down, the dynamic-env hook, shim regeneration, cache
// maintenance, and the self-update check.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/backend/bundler"
	"github.com/omnicli/omni/internal/backend/cargoinstall"
	"github.com/omnicli/omni/internal/backend/custom"
	"github.com/omnicli/omni/internal/backend/githubrelease"
	"github.com/omnicli/omni/internal/backend/goinstall"
	"github.com/omnicli/omni/internal/backend/homebrew"
	"github.com/omnicli/omni/internal/backend/nix"
	"github.com/omnicli/omni/internal/backend/ospkg"
	"github.com/omnicli/omni/internal/backend/toolchain"
	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/envstore"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/omniterm"
	"github.com/omnicli/omni/internal/storedb"
)

// Version is overridden at build time via -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// verbose is the one persistent flag every command shares.
var verbose bool

// Package-level state initialized once in PersistentPreRunE, shared by
// every subcommand.
var (
	paths    config.Paths
	db       *storedb.DB
	installs *cache.Cache
	envs     *envstore.Store
	term     *omniterm.Terminal
)

var rootCmd = &cobra.Command{
	Use:           "omni",
	Short:         "Provision and activate per-project developer environments",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		term = omniterm.Stderr(verbose)

		// version/update never touch the cache database; skip wiring so
		// they work even in a read-only or not-yet-initialized OMNI_DATA_HOME.
		for c := cmd; c != nil; c = c.Parent() {
			if c == versionCmd || c == updateCmd {
				return nil
			}
		}

		var err error
		paths, err = config.ResolvePaths()
		if err != nil {
			return fmt.Errorf("resolving omni directories: %w", err)
		}
		if err := os.MkdirAll(paths.DataHome, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", paths.DataHome, err)
		}
		if err := os.MkdirAll(paths.CacheHome, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", paths.CacheHome, err)
		}

		db, err = storedb.Open(paths.CacheDBPath())
		if err != nil {
			return fmt.Errorf("opening cache database: %w", err)
		}

		installs = cache.New(db)
		envs = envstore.New(db)

		runner := execx.Exec{}
		toolchain.Configure(runner, installs, paths.DataHome)
		cargoinstall.Configure(runner, installs, paths.DataHome, nil)
		goinstall.Configure(runner, installs, paths.DataHome, nil)
		homebrew.Configure(runner, installs)
		githubrelease.Configure(installs, paths.DataHome)
		bundler.Configure(runner)
		custom.Configure(runner)
		nix.Configure(runner)
		ospkg.Configure(runner)

		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if db == nil {
			return nil
		}
		return db.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging (same as OMNI_DEBUG=1)")
}
