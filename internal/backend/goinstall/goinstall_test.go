package goinstall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/step"
)

func forceAvailable(t *testing.T, v bool) {
	t.Helper()
	prev := goAvailable
	goAvailable = func() bool { return v }
	t.Cleanup(func() { goAvailable = prev })
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(map[string]any{}, &execx.FakeRunner{}, nil, "")
	require.Error(t, err)
}

func TestNewDefaultsVersionToLatest(t *testing.T) {
	s, err := New(map[string]any{"path": "github.com/foo/bar/cmd/bar"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	gi := s.(*Step)
	require.Equal(t, "latest", gi.params.Version)
}

func TestUpNotApplicableWhenGoMissing(t *testing.T) {
	forceAvailable(t, false)
	s, err := New(map[string]any{"path": "github.com/foo/bar/cmd/bar"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	require.Equal(t, step.OutcomeNotApplicable, s.Up(step.RunContext{Ctx: context.Background()}))
}

func TestEnvContributionErrorsWithoutPriorUp(t *testing.T) {
	s, err := New(map[string]any{"path": "github.com/foo/bar/cmd/bar"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	require.Error(t, s.EnvContribution(step.NewEnvBuilder()))
}

func TestIsMetWithoutCacheIsFalse(t *testing.T) {
	s, err := New(map[string]any{"path": "github.com/foo/bar/cmd/bar"}, &execx.FakeRunner{}, nil, "")
	require.NoError(t, err)
	met, err := s.IsMet(step.RunContext{Ctx: context.Background()})
	require.NoError(t, err)
	require.False(t, met)
}
