package cmd

import (
	"context"
	"time"

	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/envstore"
)

// runCleanup triggers spec §4.3's install-cache GC and §4.4's history
// retention, the "triggers cache cleanup" step of both up(wd) and down(wd).
// Errors are logged at debug level only: a failed cleanup pass must never
// fail the command that triggered it, since it runs opportunistically after
// every successful activation/deactivation.
func runCleanup(ctx context.Context, defaults config.Defaults, now time.Time) {
	versionTables := []struct {
		vt        cache.VersionTable
		installed cache.Kind
	}{
		{cache.VersionsGitHubRelease, cache.KindGitHubRelease},
		{cache.VersionsCargo, cache.KindCargo},
		{cache.VersionsGo, cache.KindGo},
	}
	for _, vt := range versionTables {
		if _, err := installs.PruneVersions(ctx, vt.vt, vt.installed, defaults.VersionsRetention, now); err != nil {
			term.Debugf("pruning %s version cache: %v", vt.vt.Table, err)
		}
	}

	for _, k := range uninstallableKinds {
		candidates, err := installs.ListUninstallCandidates(ctx, k, defaults.CleanupAfter, now)
		if err != nil {
			term.Debugf("listing %s uninstall candidates: %v", k.Installed, err)
			continue
		}
		for _, c := range candidates {
			if err := installs.RemoveInstalled(ctx, cache.ResourceKey{Kind: c.Kind, Values: c.Values}); err != nil {
				term.Debugf("removing %s: %v", c.InstallPath, err)
			}
		}
	}

	policy := envstore.RetentionPolicy{
		MaxPerWorkDir: defaults.MaxHistoryPerWD,
		MaxGlobal:     defaults.MaxHistoryGlobal,
		RetainFor:     defaults.HistoryRetention,
	}
	if _, err := envs.PruneHistory(ctx, policy, now); err != nil {
		term.Debugf("pruning env history: %v", err)
	}
	if _, err := envs.PruneOrphanedEnvVersions(ctx); err != nil {
		term.Debugf("pruning orphaned env versions: %v", err)
	}
}

// uninstallableKinds are the resource kinds whose installed rows cleanup
// removes once their required_by table goes empty; the installed files are
// left on disk. homebrew_tap is excluded, and no other code path removes it.
var uninstallableKinds = []cache.Kind{
	cache.KindMise, cache.KindGitHubRelease, cache.KindCargo, cache.KindGo, cache.KindHomebrew,
}
