package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/envstore"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/output"
	"github.com/omnicli/omni/internal/step"
)

var downJSON bool

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the current work directory's environment",
	RunE:  runDown,
}

func init() {
	downCmd.Flags().BoolVar(&downJSON, "json", false, "emit a machine-readable JSON report instead of status lines")
	rootCmd.AddCommand(downCmd)
}

// runDown implements down(wd) (spec §4.1): no trust gate (only up is
// trust-gated), every step is attempted in reverse declared order
// regardless of individual failure, and the EnvHistory/WorkDirEnv pointer
// and install-cache required_by rows for the released EnvVersion are torn
// down together.
func runDown(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	workDir, err := resolveWorkDir()
	if err != nil {
		return err
	}
	workDirID, err := config.WorkDirID(ctx, execx.Exec{}, workDir)
	if err != nil {
		return fmt.Errorf("resolving work directory id: %w", err)
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
	rc := step.RunContext{Ctx: ctx, WorkDir: workDir}
	result := operation.Down(entries, rc)

	if !downJSON {
		for _, s := range result.Steps {
			term.Step(statusFor(s.Outcome), s.Kind, errDetail(s.Err))
		}
	}

	priorEnvVersionID, err := envs.CurrentEnvVersion(ctx, workDirID)
	if err != nil && err != envstore.ErrNotFound {
		return fmt.Errorf("looking up current env_version_id: %w", err)
	}

	if err := envs.Deactivate(ctx, workDirID, now); err != nil {
		return fmt.Errorf("deactivating environment: %w", err)
	}
	if priorEnvVersionID != "" {
		if err := installs.ReleaseEnvVersion(ctx, priorEnvVersionID); err != nil {
			return fmt.Errorf("releasing %s: %w", priorEnvVersionID, err)
		}
	}

	runCleanup(ctx, cfg.Defaults, now)

	if err := regenerateShims(ctx); err != nil {
		term.Debugf("reshim after down: %v", err)
	}

	if downJSON {
		if err := output.FormatJSON(os.Stdout, output.NewRunReport(result, "")); err != nil {
			return err
		}
	} else {
		term.Info("deactivated %s", workDirID)
	}

	if result.Conjunction() == step.OutcomeErr {
		return fmt.Errorf("down: one or more steps failed")
	}
	return nil
}
