package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/envstore"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/hook"
)

// dynEnvVar is the shell variable name `hook env` reads/writes each prompt
// (spec §4.5's `__omni_dynenv`).
const dynEnvVar = "__omni_dynenv"

var hookKeepShims bool

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Shell integration: dynamic environment diffing and activation scripts",
}

var hookEnvCmd = &cobra.Command{
	Use:   "env <shell>",
	Short: "Emit the shell commands to transition to the current work directory's environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runHookEnv,
}

var hookInitCmd = &cobra.Command{
	Use:   "init <shell>",
	Short: "Emit the shell snippet that wires omni's prompt hook into an interactive shell",
	Args:  cobra.ExactArgs(1),
	RunE:  runHookInit,
}

func init() {
	hookEnvCmd.Flags().BoolVar(&hookKeepShims, "keep-shims", false, "do not strip the shims directory from PATH")
	hookCmd.AddCommand(hookEnvCmd)
	hookCmd.AddCommand(hookInitCmd)
	rootCmd.AddCommand(hookCmd)
}

func runHookEnv(cmd *cobra.Command, args []string) error {
	shell, err := hook.ParseShell(args[0])
	if err != nil {
		return err
	}

	old := hook.ParseDynEnv(os.Getenv(dynEnvVar))

	desired, err := desiredEnv(cmd.Context())
	if err != nil {
		return err
	}

	cmds, _ := hook.Compute(old, desired, os.Getenv("PATH"), paths.ShimsDir(), hookKeepShims)
	fmt.Fprint(cmd.OutOrStdout(), hook.Render(shell, cmds))
	return nil
}

func runHookInit(cmd *cobra.Command, args []string) error {
	shell, err := hook.ParseShell(args[0])
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), hookInitScript(shell))
	return nil
}

// desiredEnv resolves the nearest work directory and loads its current
// EnvVersion content, flattened into hook.Desired. A work directory with no
// recognized config, or none currently activated, resolves to the empty
// Desired (spec: "absence selects the empty env").
func desiredEnv(ctx context.Context) (hook.Desired, error) {
	workDir, err := resolveWorkDir()
	if err != nil {
		return hook.Desired{}, err
	}
	workDirID, err := config.WorkDirID(ctx, execx.Exec{}, workDir)
	if err != nil {
		return hook.Desired{}, fmt.Errorf("resolving work directory id: %w", err)
	}

	envVersionID, err := envs.CurrentEnvVersion(ctx, workDirID)
	if err == envstore.ErrNotFound {
		return hook.Desired{}, nil
	}
	if err != nil {
		return hook.Desired{}, fmt.Errorf("looking up current env_version_id: %w", err)
	}

	content, err := envs.GetEnvVersion(ctx, envVersionID)
	if err == envstore.ErrNotFound {
		// Recorded pointer outlived its EnvVersion row (e.g. pruned by a
		// concurrent gc); treat as if nothing were active rather than fail
		// every prompt.
		return hook.Desired{}, nil
	}
	if err != nil {
		return hook.Desired{}, fmt.Errorf("loading env_version_id %s: %w", envVersionID, err)
	}

	return hook.Desired{
		EnvVersionID: envVersionID,
		Paths:        flattenPaths(content.Paths),
		Vars:         flattenVars(content.EnvVars),
	}, nil
}

// flattenPaths sorts a work directory's recorded path contributions by
// ascending priority and returns just the directories.
func flattenPaths(contribs []envstore.PathContribution) []string {
	sorted := append([]envstore.PathContribution{}, contribs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.Dir
	}
	return out
}

// flattenVars replays a work directory's recorded env var mutations in
// pipeline order against the process's current environment, producing the
// final name->value map hook.Desired.Vars wants.
func flattenVars(contribs []envstore.EnvVarContribution) map[string]string {
	out := make(map[string]string, len(contribs))
	seeded := make(map[string]bool, len(contribs))
	for _, c := range contribs {
		if !seeded[c.Name] {
			out[c.Name] = os.Getenv(c.Name)
			seeded[c.Name] = true
		}
		switch c.Op {
		case "set":
			out[c.Name] = c.Value
		case "unset":
			delete(out, c.Name)
		case "prepend":
			out[c.Name] = joinNonEmpty(":", c.Value, out[c.Name])
		case "append", "suffix":
			out[c.Name] = joinNonEmpty(":", out[c.Name], c.Value)
		}
	}
	return out
}

// hookInitScript renders the rc-file snippet that sources `hook env` on
// every prompt, adding the shims directory to PATH once at shell startup.
func hookInitScript(shell hook.Shell) string {
	shimsDir := paths.ShimsDir()
	switch shell {
	case hook.ShellFish:
		return fmt.Sprintf(`set -gx PATH %s $PATH
function __omni_prompt_hook --on-event fish_prompt
    omni hook env fish | source
end
`, shimsDir)
	default: // bash, zsh
		return fmt.Sprintf(`export PATH="%s:$PATH"
__omni_prompt_hook() {
    eval "$(omni hook env %s)"
}
if [ -n "$ZSH_VERSION" ]; then
    autoload -Uz add-zsh-hook
    add-zsh-hook precmd __omni_prompt_hook
elif [ -n "$BASH_VERSION" ]; then
    PROMPT_COMMAND="__omni_prompt_hook${PROMPT_COMMAND:+; $PROMPT_COMMAND}"
fi
`, shimsDir, shell)
	}
}
