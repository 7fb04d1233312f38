package versionsel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S2: github-release XaF/omni version cache.
var s2Candidates = []string{"0.0.40", "0.0.41-rc.1", "0.0.41", "0.0.42+build"}

func TestResolveS2Defaults(t *testing.T) {
	c, err := Parse("^0.0.40")
	require.NoError(t, err)

	got, err := Resolve(c, s2Candidates, FilterOptions{})
	require.NoError(t, err)
	require.Equal(t, "0.0.41", got)
}

func TestResolveS2AllowPrereleaseStillPrefersRelease(t *testing.T) {
	c, err := Parse("^0.0.40")
	require.NoError(t, err)

	got, err := Resolve(c, s2Candidates, FilterOptions{AllowPrerelease: true})
	require.NoError(t, err)
	require.Equal(t, "0.0.41", got)
}

func TestResolveS2AllowBuildSelectsBuildMetadataVersion(t *testing.T) {
	c, err := Parse("^0.0.40")
	require.NoError(t, err)

	got, err := Resolve(c, s2Candidates, FilterOptions{AllowBuild: true})
	require.NoError(t, err)
	require.Equal(t, "0.0.42+build", got)
}

func TestResolveS2TildeWithoutBuildFailsResolveError(t *testing.T) {
	c, err := Parse("~0.0.42")
	require.NoError(t, err)

	_, err = Resolve(c, s2Candidates, FilterOptions{AllowBuild: false})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestParseLatestSentinels(t *testing.T) {
	for _, raw := range []string{"", "*", "latest"} {
		c, err := Parse(raw)
		require.NoError(t, err)
		require.Equal(t, SentinelLatest, c.Sentinel)
	}
}

func TestParseAutoSentinel(t *testing.T) {
	c, err := Parse("auto")
	require.NoError(t, err)
	require.Equal(t, SentinelAuto, c.Sentinel)
}

func TestParseRejectsSentinelCombinedWithOrRanges(t *testing.T) {
	_, err := Parse("1.2.3 || latest")
	require.ErrorIs(t, err, ErrInvalidConstraint)
}

func TestParseOrDelimitedRanges(t *testing.T) {
	c, err := Parse("1.2.3 || 2.0.0")
	require.NoError(t, err)

	got, err := Resolve(c, []string{"1.2.3", "1.9.9", "2.0.0"}, FilterOptions{})
	require.NoError(t, err)
	require.Equal(t, "2.0.0", got)
}

func TestCaretMajorZeroMinorZeroIsLenientThroughOne(t *testing.T) {
	c, err := Parse("^0.0.1")
	require.NoError(t, err)

	got, err := Resolve(c, []string{"0.0.1", "0.5.0", "0.9.9"}, FilterOptions{})
	require.NoError(t, err)
	require.Equal(t, "0.9.9", got)
}

func TestCaretMajorZeroMinorNonzeroIsStrict(t *testing.T) {
	c, err := Parse("^0.2.3")
	require.NoError(t, err)

	got, err := Resolve(c, []string{"0.2.3", "0.3.0"}, FilterOptions{})
	require.NoError(t, err)
	require.Equal(t, "0.2.3", got)

	got, err = Resolve(c, []string{"0.2.3", "0.2.9"}, FilterOptions{})
	require.NoError(t, err)
	require.Equal(t, "0.2.9", got)
}

func TestResolveSkipsUnparsableCandidates(t *testing.T) {
	c, err := Parse("latest")
	require.NoError(t, err)

	got, err := Resolve(c, []string{"not-a-version", "1.0.0"}, FilterOptions{})
	require.NoError(t, err)
	require.Equal(t, "1.0.0", got)
}

func TestResolveNoMatch(t *testing.T) {
	c, err := Parse("5.0.0")
	require.NoError(t, err)

	_, err = Resolve(c, []string{"1.0.0"}, FilterOptions{})
	require.ErrorIs(t, err, ErrNoMatch)
}
