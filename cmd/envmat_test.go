package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

func TestResolvedVersionForSingleKeyColumn(t *testing.T) {
	rv := resolvedVersionFor(step.InstalledResource{
		CacheKindName: "go_installed",
		KeyValues:     []any{"1.22.0"},
	})
	require.Equal(t, "go_installed", rv.Key)
	require.Equal(t, "1.22.0", rv.Version)
}

func TestResolvedVersionForCompositeKey(t *testing.T) {
	rv := resolvedVersionFor(step.InstalledResource{
		CacheKindName: "github_release_installed",
		KeyValues:     []any{"cli", "cli", "2.40.0"},
	})
	require.Equal(t, "github_release_installed:cli:cli", rv.Key)
	require.Equal(t, "2.40.0", rv.Version)
}

// fakeReporterStep is a minimal step.Step + step.ResourceReporter double;
// only InstalledResource is ever called by the functions under test here.
type fakeReporterStep struct {
	ir   step.InstalledResource
	have bool
}

func (f fakeReporterStep) Kind() string                                     { return "fake" }
func (f fakeReporterStep) IsAvailable(step.RunContext) bool                 { return true }
func (f fakeReporterStep) IsMet(step.RunContext) (bool, error)              { return true, nil }
func (f fakeReporterStep) Up(step.RunContext) step.Outcome                  { return step.OutcomeOK }
func (f fakeReporterStep) Down(step.RunContext) step.Outcome                { return step.OutcomeOK }
func (f fakeReporterStep) EnvContribution(*step.EnvBuilder) error           { return nil }
func (f fakeReporterStep) InstalledResource() (step.InstalledResource, bool) { return f.ir, f.have }

func TestInstalledResourcesSkipsNonReportersAndMisses(t *testing.T) {
	entries := []operation.Entry{
		{Index: 0, Kind: "go-install", Step: fakeReporterStep{ir: step.InstalledResource{CacheKindName: "go_installed", KeyValues: []any{"1.22.0"}}, have: true}},
		{Index: 1, Kind: "go-install", Step: fakeReporterStep{have: false}},
	}

	out := installedResources(entries)
	require.Len(t, out, 1)
	require.Equal(t, "go_installed", out[0].CacheKindName)
}

func TestCompletedEntriesDropsAbortedTail(t *testing.T) {
	entries := []operation.Entry{
		{Index: 0, Kind: "a"},
		{Index: 1, Kind: "b"},
		{Index: 2, Kind: "c"},
	}
	result := operation.RunResult{
		Aborted: true,
		Steps: []operation.StepResult{
			{Index: 0, Outcome: step.OutcomeOK},
			{Index: 1, Outcome: step.OutcomeErr},
		},
	}

	completed := completedEntries(entries, result)
	require.Len(t, completed, 1)
	require.Equal(t, 0, completed[0].Index)
}

func TestJoinNonEmptySkipsBlankParts(t *testing.T) {
	require.Equal(t, "a:b", joinNonEmpty(":", "a", "", "b"))
	require.Equal(t, "", joinNonEmpty(":", "", ""))
}
