package githubrelease

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/step"
)

func TestNewRequiresOwnerSlashName(t *testing.T) {
	_, err := New(map[string]any{"repo": "no-slash-here"}, nil)
	require.Error(t, err)
}

func TestNewDefaultsVersionToLatestAndBinaryNameToRepoName(t *testing.T) {
	s, err := New(map[string]any{"repo": "cli/cli"}, nil)
	require.NoError(t, err)
	gr := s.(*Step)
	require.Equal(t, "latest", gr.params.Version)
	require.Equal(t, "cli", gr.params.BinaryName)
}

func TestNewHonorsExplicitBinaryNameAndVersion(t *testing.T) {
	s, err := New(map[string]any{
		"repo":        "owner/tool",
		"version":     "^2.0.0",
		"binary_name": "toolbin",
	}, nil)
	require.NoError(t, err)
	gr := s.(*Step)
	require.Equal(t, "^2.0.0", gr.params.Version)
	require.Equal(t, "toolbin", gr.params.BinaryName)
}

func TestOwnerAndNameSplitRepo(t *testing.T) {
	s, err := New(map[string]any{"repo": "cli/cli"}, nil)
	require.NoError(t, err)
	gr := s.(*Step)
	require.Equal(t, "cli", gr.owner())
	require.Equal(t, "cli", gr.name())
}

func TestEnvContributionRequiresPriorUp(t *testing.T) {
	s, err := New(map[string]any{"repo": "owner/tool"}, nil)
	require.NoError(t, err)
	require.Error(t, s.EnvContribution(nil))
}

func TestIsMetWithoutCacheIsFalse(t *testing.T) {
	s, err := New(map[string]any{"repo": "owner/tool"}, nil)
	require.NoError(t, err)
	met, err := s.IsMet(step.RunContext{Ctx: context.Background()})
	require.NoError(t, err)
	require.False(t, met)
}

func TestNewParsesBareChecksumValue(t *testing.T) {
	s, err := New(map[string]any{"repo": "owner/tool", "checksum": "deadbeef"}, nil)
	require.NoError(t, err)
	gr := s.(*Step)
	require.Equal(t, "deadbeef", gr.params.Checksum.Value)
	require.False(t, gr.params.Checksum.Required)
}

func TestNewParsesChecksumMap(t *testing.T) {
	s, err := New(map[string]any{
		"repo": "owner/tool",
		"checksum": map[string]any{
			"value":     "deadbeef",
			"algorithm": "sha3-256",
			"required":  true,
		},
	}, nil)
	require.NoError(t, err)
	gr := s.(*Step)
	require.Equal(t, "deadbeef", gr.params.Checksum.Value)
	require.Equal(t, "sha3-256", gr.params.Checksum.Algorithm)
	require.True(t, gr.params.Checksum.Required)
}

func TestInferAlgorithmHonorsExplicit(t *testing.T) {
	require.Equal(t, "sha3-256", inferAlgorithm("sha3-256", "aaaa"))
}

func TestInferAlgorithmUsesDigestLength(t *testing.T) {
	sha256Digest := make([]byte, 64)
	sha512Digest := make([]byte, 128)
	require.Equal(t, "sha256", inferAlgorithm("", string(sha256Digest)))
	require.Equal(t, "sha512", inferAlgorithm("", string(sha512Digest)))
}

func TestParseSumsFileMatchesAssetIgnoringBinaryMarker(t *testing.T) {
	body := "abc123  tool_linux_amd64.tar.gz\ndef456 *tool_darwin_arm64.tar.gz\n"
	digest, ok := parseSumsFile(body, "tool_darwin_arm64.tar.gz")
	require.True(t, ok)
	require.Equal(t, "def456", digest)

	_, ok = parseSumsFile(body, "nonexistent.tar.gz")
	require.False(t, ok)
}

func TestVerifyChecksumAcceptsMatchingDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asset.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))
	sum := sha256.Sum256([]byte("hello world"))
	require.NoError(t, verifyChecksum(path, hex.EncodeToString(sum[:]), "sha256"))
}

func TestVerifyChecksumRejectsMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asset.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))
	err := verifyChecksum(path, "0000000000000000000000000000000000000000000000000000000000000000", "sha256")
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestVerifyChecksumSkipsWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asset.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))
	require.NoError(t, verifyChecksum(path, "", ""))
}
