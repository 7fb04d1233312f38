package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/omnicli/omni/internal/execx"
)

// ErrNotTrusted is a sentinel for a failed trust gate. No function in this
// package returns it; the CLI's trust gate reports an untrusted work
// directory through its own error type.
var ErrNotTrusted = errors.New("config: work directory is not trusted")

// WorkDirID computes the stable workdir_id per spec §3: the canonical
// remote URL when the work directory is a clone of a remote, otherwise a
// hash of its absolute path. The remote-URL branch returns the URL itself,
// not its hash, since env_version_id's own hashing already covers
// content-addressing and workdir_id is the canonical remote URL itself.
func WorkDirID(ctx context.Context, runner execx.Runner, absPath string) (string, error) {
	if url, err := remoteURL(ctx, runner, absPath); err == nil && url != "" {
		return strings.TrimSuffix(url, ".git"), nil
	}
	return hashPath(absPath), nil
}

func hashPath(absPath string) string {
	h := sha256.Sum256([]byte(filepath.Clean(absPath)))
	return hex.EncodeToString(h[:])[:20]
}

func remoteURL(ctx context.Context, runner execx.Runner, repoRoot string) (string, error) {
	res, err := runner.Run(ctx, execx.Spec{
		Command: "git",
		Args:    []string{"-C", repoRoot, "remote", "get-url", "origin"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// FirstCommitSHA returns the repository's root commit, used as the stable
// trust key (a remote URL can be rewritten; the root commit cannot).
func FirstCommitSHA(ctx context.Context, runner execx.Runner, repoRoot string) (string, error) {
	res, err := runner.Run(ctx, execx.Spec{
		Command: "git",
		Args:    []string{"-C", repoRoot, "rev-list", "--max-parents=0", "HEAD"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", errors.New("config: repository has no commits")
	}
	return lines[0], nil
}

// TrustedRepo is one entry of the on-disk trust store.
type TrustedRepo struct {
	RemoteURL string    `yaml:"remote_url,omitempty"`
	TrustedAt time.Time `yaml:"trusted_at"`
}

// TrustStore is the persisted set of trusted first-commit SHAs (spec §3
// TrustSet), kept in its own small YAML file rather than cache.db: trust
// decisions are a user-security artifact, not cache state, and must survive
// `omni cache` operations untouched.
type TrustStore struct {
	Repos map[string]TrustedRepo `yaml:"trusted_repos"`
	path  string
}
