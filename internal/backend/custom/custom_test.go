package custom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/step"
)

func TestNewRequiresMeet(t *testing.T) {
	_, err := New(map[string]any{}, &execx.FakeRunner{})
	require.Error(t, err)
}

func TestUpRunsMeetWhenNotMet(t *testing.T) {
	runner := &execx.FakeRunner{Responses: []execx.FakeResponse{
		{Err: context.DeadlineExceeded}, // met? fails -> NotMet
		{Result: execx.Result{}},        // meet succeeds
	}}
	s, err := New(map[string]any{"met?": "test -f /tmp/marker", "meet": "touch /tmp/marker"}, runner)
	require.NoError(t, err)

	outcome := s.Up(step.RunContext{Ctx: context.Background()})
	require.Equal(t, step.OutcomeOK, outcome)
	require.Equal(t, 2, runner.CallCount())
}

func TestUpSkipsMeetWhenAlreadyMet(t *testing.T) {
	runner := &execx.FakeRunner{Responses: []execx.FakeResponse{
		{Result: execx.Result{}}, // met? succeeds
	}}
	s, err := New(map[string]any{"met?": "test -f /tmp/marker", "meet": "touch /tmp/marker"}, runner)
	require.NoError(t, err)

	outcome := s.Up(step.RunContext{Ctx: context.Background()})
	require.Equal(t, step.OutcomeOK, outcome)
	require.Equal(t, 1, runner.CallCount())
}

func TestAbsentMetIsAlwaysNotMet(t *testing.T) {
	s, err := New(map[string]any{"meet": "touch /tmp/marker"}, &execx.FakeRunner{})
	require.NoError(t, err)
	met, err := s.IsMet(step.RunContext{Ctx: context.Background()})
	require.NoError(t, err)
	require.False(t, met)
}

func TestDownSkipsWithoutUnmeet(t *testing.T) {
	s, err := New(map[string]any{"meet": "touch /tmp/marker"}, &execx.FakeRunner{})
	require.NoError(t, err)
	outcome := s.Down(step.RunContext{Ctx: context.Background()})
	require.Equal(t, step.OutcomeOK, outcome)
}

func TestDownRunsUnmeetWhenMet(t *testing.T) {
	runner := &execx.FakeRunner{Responses: []execx.FakeResponse{
		{Result: execx.Result{}}, // met? succeeds
		{Result: execx.Result{}}, // unmeet succeeds
	}}
	s, err := New(map[string]any{"met?": "test -f /tmp/marker", "meet": "touch /tmp/marker", "unmeet": "rm /tmp/marker"}, runner)
	require.NoError(t, err)

	outcome := s.Down(step.RunContext{Ctx: context.Background()})
	require.Equal(t, step.OutcomeOK, outcome)
	require.Equal(t, 2, runner.CallCount())
}
