package ospkg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/step"
)

func forceAvailable(t *testing.T, v bool) {
	t.Helper()
	prev := availabilityOverride
	availabilityOverride = func(string) bool { return v }
	t.Cleanup(func() { availabilityOverride = prev })
}

func TestNewRejectsUnknownManager(t *testing.T) {
	_, err := New("yum", "curl", &execx.FakeRunner{})
	require.Error(t, err)
}

func TestNewAcceptsBarePackageString(t *testing.T) {
	s, err := New("apt", "curl", &execx.FakeRunner{})
	require.NoError(t, err)
	require.Equal(t, "curl", s.(*Step).params.Package)
}

func TestUpNotApplicableWhenManagerMissing(t *testing.T) {
	forceAvailable(t, false)
	s, err := New("apt", "curl", &execx.FakeRunner{})
	require.NoError(t, err)
	require.Equal(t, step.OutcomeNotApplicable, s.Up(step.RunContext{Ctx: context.Background()}))
}

func TestUpSkipsInstallWhenAlreadyMet(t *testing.T) {
	forceAvailable(t, true)
	runner := &execx.FakeRunner{Responses: []execx.FakeResponse{
		{Result: execx.Result{}}, // apt-get -s curl succeeds
	}}
	s, err := New("apt", "curl", runner)
	require.NoError(t, err)

	outcome := s.Up(step.RunContext{Ctx: context.Background()})
	require.Equal(t, step.OutcomeOK, outcome)
	require.Equal(t, 1, runner.CallCount())
}

func TestUpInstallsWithPinnedVersion(t *testing.T) {
	forceAvailable(t, true)
	runner := &execx.FakeRunner{Responses: []execx.FakeResponse{
		{Err: context.DeadlineExceeded}, // apt-get -s curl: not installed
		{Result: execx.Result{}},        // apt-get install -y curl=7.81.0
	}}
	s, err := New("apt", map[string]any{"package": "curl", "version": "7.81.0"}, runner)
	require.NoError(t, err)

	outcome := s.Up(step.RunContext{Ctx: context.Background()})
	require.Equal(t, step.OutcomeOK, outcome)
	require.Equal(t, []string{"install", "-y", "curl=7.81.0"}, runner.Calls[1].Args)
}

func TestEnvContributionErrorsWithoutPriorUp(t *testing.T) {
	s, err := New("apt", "curl", &execx.FakeRunner{})
	require.NoError(t, err)
	require.Error(t, s.EnvContribution(step.NewEnvBuilder()))
}
