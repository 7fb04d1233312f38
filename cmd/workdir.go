package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/omnicli/omni/internal/config"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/hook"
	"github.com/omnicli/omni/internal/prompttui"
)

// resolveWorkDir finds the nearest config-bearing directory starting at the
// current directory, the same upward walk the dynamic-env hook uses (spec
// §4.5). A directory with no recognized config file still gets an empty
// up: config (spec: "Empty up: is valid"), so callers fall back to cwd.
func resolveWorkDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving current directory: %w", err)
	}
	if dir, found := hook.ResolveWorkDir(cwd); found {
		return dir, nil
	}
	return cwd, nil
}

// headSHA returns the work directory's current git HEAD, or "" outside a
// git repository.
func headSHA(ctx context.Context, workDir string) string {
	res, err := execx.Exec{}.Run(ctx, execx.Spec{
		Command: "git",
		Args:    []string{"-C", workDir, "rev-parse", "HEAD"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return ""
	}
	return trimTrailingNewline(res.Stdout)
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// ensureTrusted implements spec §4.1's trust gate: if workDirID is not in
// the trust set and explicitTrust wasn't passed, prompt interactively
// (failing closed when not a TTY) rather than ever defaulting to trusted.
func ensureTrusted(ctx context.Context, workDir, workDirID string, explicitTrust bool) error {
	store, err := config.LoadTrustStore()
	if err != nil {
		return fmt.Errorf("loading trust store: %w", err)
	}

	firstCommitSHA, _ := config.FirstCommitSHA(ctx, execx.Exec{}, workDir)
	trustKey := firstCommitSHA
	if trustKey == "" {
		trustKey = workDirID
	}

	if store.IsTrusted(trustKey) {
		return nil
	}

	remoteRes, _ := execx.Exec{}.Run(ctx, execx.Spec{Command: "git", Args: []string{"-C", workDir, "remote", "get-url", "origin"}, Timeout: 5 * time.Second})
	remote := trimTrailingNewline(remoteRes.Stdout)

	if explicitTrust {
		return store.Trust(trustKey, remote)
	}

	shortSHA := trustKey
	if len(shortSHA) > 12 {
		shortSHA = shortSHA[:12]
	}
	if err := prompttui.RunTrustPrompt(prompttui.TrustPromptInfo{
		RemoteURL:      remote,
		FirstCommitSHA: shortSHA,
	}); err != nil {
		return &notTrustedError{workDirID: workDirID, cause: err}
	}

	return store.Trust(trustKey, remote)
}

// notTrustedError distinguishes spec §7's NotTrusted kind from other
// pipeline failures, so callers can map it to exit code 2.
type notTrustedError struct {
	workDirID string
	cause     error
}

func (e *notTrustedError) Error() string {
	return fmt.Sprintf("work directory %s is not trusted: %v", e.workDirID, e.cause)
}

func (e *notTrustedError) Unwrap() error { return e.cause }

// IsNotTrusted reports whether err is (or wraps) the trust-gate failure, so
// main can map it to spec §7's NotTrusted exit code.
func IsNotTrusted(err error) bool {
	var nt *notTrustedError
	return errors.As(err, &nt)
}
