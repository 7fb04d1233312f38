package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/envstore"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/omniterm"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/output"
	"github.com/omnicli/omni/internal/step"
)

var (
	upTrust   bool
	upNoCache bool
	upUpgrade bool
	upCheck   bool
	upJSON    bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision and activate the current work directory's environment",
	RunE:  runUp,
}

func init() {
	upCmd.Flags().BoolVar(&upTrust, "trust", false, "trust this work directory without prompting")
	upCmd.Flags().BoolVar(&upNoCache, "no-cache", false, "bypass cached version lists and force re-resolution")
	upCmd.Flags().BoolVar(&upUpgrade, "upgrade", false, "re-run every step even if already satisfied")
	upCmd.Flags().BoolVar(&upCheck, "check", false, "only resolve trust, run no step, exit 2 if not trusted")
	upCmd.Flags().BoolVar(&upJSON, "json", false, "emit a machine-readable JSON report instead of status lines")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	workDir, err := resolveWorkDir()
	if err != nil {
		return err
	}
	workDirID, err := config.WorkDirID(ctx, execx.Exec{}, workDir)
	if err != nil {
		return fmt.Errorf("resolving work directory id: %w", err)
	}

	if err := ensureTrusted(ctx, workDir, workDirID, upTrust); err != nil {
		return err
	}
	if upCheck {
		return nil
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	entries, err := operation.Parse(cfg.UpEntries)
	if err != nil {
		return fmt.Errorf("parsing up: entries: %w", err)
	}

	now := time.Now()
	rc := step.RunContext{Ctx: ctx, WorkDir: workDir, Upgrade: upUpgrade, NoCache: upNoCache}
	result := operation.Up(entries, rc)

	if !upJSON {
		for _, s := range result.Steps {
			term.Step(statusFor(s.Outcome), s.Kind, errDetail(s.Err))
		}
	}

	if result.Aborted {
		if upJSON {
			_ = output.FormatJSON(os.Stdout, output.NewRunReport(result, ""))
		}
		return fmt.Errorf("up: pipeline aborted")
	}

	completed := completedEntries(entries, result)
	contentHash, err := cfg.ContentHash()
	if err != nil {
		return fmt.Errorf("hashing configuration: %w", err)
	}

	fp, err := envstore.Fingerprint(envstore.FingerprintInput{
		ResolvedVersions: resolvedVersions(completed),
		OrderedPaths:     pathContributions(result.Builder.Paths),
		OrderedEnvVars:   envVarContributions(result.Builder.Mutations),
		ConfigFiles:      configFileFingerprints(cfg.SourceFiles),
		ConfigHash:       contentHash,
	})
	if err != nil {
		return fmt.Errorf("computing env_version_id: %w", err)
	}

	head := headSHA(ctx, workDir)
	if err := envs.Activate(ctx, envstore.Activation{
		WorkDirID:    workDirID,
		WorkDirPath:  workDir,
		EnvVersionID: fp,
		ConfigHash:   contentHash,
		Versions:     resolvedVersions(completed),
		Paths:        pathContributions(result.Builder.Paths),
		EnvVars:      envVarContributions(result.Builder.Mutations),
		HeadSHA:      head,
		Now:          now,
	}); err != nil {
		return fmt.Errorf("activating environment: %w", err)
	}

	for _, ir := range installedResources(completed) {
		kind, ok := cache.KindByName(ir.CacheKindName)
		if !ok {
			continue
		}
		key := cache.ResourceKey{Kind: kind, Values: ir.KeyValues}
		if err := installs.LinkRequiredBy(ctx, key, fp); err != nil {
			return fmt.Errorf("linking %s into env_version_id %s: %w", ir.CacheKindName, fp, err)
		}
	}

	runCleanup(ctx, cfg.Defaults, now)

	if err := regenerateShims(ctx); err != nil {
		term.Debugf("reshim after up: %v", err)
	}

	if upJSON {
		return output.FormatJSON(os.Stdout, output.NewRunReport(result, fp))
	}
	term.Info("activated %s", fp)
	return nil
}

// completedEntries filters entries down to those result actually ran to an
// ok/n-a outcome, in declared order, the set eligible to contribute
// resolved versions and env builder state to this run's EnvVersion.
func completedEntries(entries []operation.Entry, result operation.RunResult) []operation.Entry {
	ok := make(map[int]bool, len(result.Steps))
	for _, s := range result.Steps {
		if s.Outcome != step.OutcomeErr {
			ok[s.Index] = true
		}
	}
	out := make([]operation.Entry, 0, len(entries))
	for _, e := range entries {
		if ok[e.Index] {
			out = append(out, e)
		}
	}
	return out
}

func configFileFingerprints(files []config.FileFingerprint) []envstore.ConfigFileModTime {
	out := make([]envstore.ConfigFileModTime, len(files))
	for i, f := range files {
		out[i] = envstore.ConfigFileModTime{Path: f.Path, ModTime: f.ModTime.Unix()}
	}
	return out
}

func statusFor(o step.Outcome) omniterm.Status {
	switch o {
	case step.OutcomeOK:
		return omniterm.StatusOK
	case step.OutcomeErr:
		return omniterm.StatusFail
	default:
		return omniterm.StatusSkip
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
