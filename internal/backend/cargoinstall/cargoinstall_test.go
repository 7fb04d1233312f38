package cargoinstall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/step"
)

func forceAvailable(t *testing.T, v bool) {
	t.Helper()
	prev := cargoAvailable
	cargoAvailable = func() bool { return v }
	t.Cleanup(func() { cargoAvailable = prev })
}

func TestNewRequiresCrate(t *testing.T) {
	_, err := New(map[string]any{}, &execx.FakeRunner{}, nil, "")
	require.Error(t, err)
}

func TestNewDefaultsVersionToLatest(t *testing.T) {
	s, err := New(map[string]any{"crate": "ripgrep"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	rg := s.(*Step)
	require.Equal(t, "latest", rg.params.Version)
}

func TestUpNotApplicableWhenCargoMissing(t *testing.T) {
	forceAvailable(t, false)
	s, err := New(map[string]any{"crate": "ripgrep"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	require.Equal(t, step.OutcomeNotApplicable, s.Up(step.RunContext{Ctx: context.Background()}))
}

func TestEnvContributionErrorsWithoutPriorUp(t *testing.T) {
	s, err := New(map[string]any{"crate": "ripgrep"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	require.Error(t, s.EnvContribution(step.NewEnvBuilder()))
}

func TestIsMetWithoutCacheIsFalse(t *testing.T) {
	s, err := New(map[string]any{"crate": "ripgrep"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	met, err := s.IsMet(step.RunContext{Ctx: context.Background()})
	require.NoError(t, err)
	require.False(t, met)
}

func TestInstalledResourceFalseBeforeUp(t *testing.T) {
	s, err := New(map[string]any{"crate": "ripgrep"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	rg := s.(*Step)
	_, ok := rg.InstalledResource()
	require.False(t, ok)
}
