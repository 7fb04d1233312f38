package operation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/step"
)

type fakeStep struct {
	kind       string
	available  bool
	met        bool
	upOutcome  step.Outcome
	downOutcome step.Outcome
	contributed string
	upCalls    *int
}

func (f *fakeStep) Kind() string                       { return f.kind }
func (f *fakeStep) IsAvailable(step.RunContext) bool    { return f.available }
func (f *fakeStep) IsMet(step.RunContext) (bool, error) { return f.met, nil }
func (f *fakeStep) Up(step.RunContext) step.Outcome {
	if f.upCalls != nil {
		*f.upCalls++
	}
	return f.upOutcome
}
func (f *fakeStep) Down(step.RunContext) step.Outcome { return f.downOutcome }
func (f *fakeStep) EnvContribution(b *step.EnvBuilder) error {
	if f.contributed != "" {
		b.Set(f.contributed, step.VarSet, "1")
	}
	return nil
}

func TestPipelineUpAbortsOnFirstErr(t *testing.T) {
	entries := []Entry{
		{Index: 0, Kind: "a", Step: &fakeStep{kind: "a", upOutcome: step.OutcomeOK, contributed: "A"}},
		{Index: 1, Kind: "b", Step: &fakeStep{kind: "b", upOutcome: step.OutcomeErr}},
		{Index: 2, Kind: "c", Step: &fakeStep{kind: "c", upOutcome: step.OutcomeOK, contributed: "C"}},
	}

	result := Up(entries, step.RunContext{})
	require.True(t, result.Aborted)
	require.Len(t, result.Steps, 2)
	require.Equal(t, step.OutcomeErr, result.Steps[1].Outcome)
	require.Contains(t, result.Builder.Owned, "A")
	require.NotContains(t, result.Builder.Owned, "C", "step after the failing one must not run")
}

func TestPipelineDownRunsAllAndAggregates(t *testing.T) {
	entries := []Entry{
		{Index: 0, Kind: "a", Step: &fakeStep{kind: "a", downOutcome: step.OutcomeOK}},
		{Index: 1, Kind: "b", Step: &fakeStep{kind: "b", downOutcome: step.OutcomeErr}},
		{Index: 2, Kind: "c", Step: &fakeStep{kind: "c", downOutcome: step.OutcomeOK}},
	}

	result := Down(entries, step.RunContext{})
	require.Len(t, result.Steps, 3, "down must attempt every step even after a failure")
	require.Equal(t, step.OutcomeErr, result.Conjunction())

	// Reverse declared order: entry 2 runs first.
	require.Equal(t, 2, result.Steps[0].Index)
	require.Equal(t, 0, result.Steps[2].Index)
}

func TestOrStepSucceedsAtFirstOK(t *testing.T) {
	calls := 0
	children := []step.Step{
		&fakeStep{kind: "x", upOutcome: step.OutcomeNotApplicable, upCalls: &calls},
		&fakeStep{kind: "y", upOutcome: step.OutcomeOK, contributed: "Y", upCalls: &calls},
		&fakeStep{kind: "z", upOutcome: step.OutcomeOK, contributed: "Z", upCalls: &calls},
	}
	or := newOrStep(children)

	outcome := or.Up(step.RunContext{})
	require.Equal(t, step.OutcomeOK, outcome)
	require.Equal(t, 2, calls, "third child must not run once the second succeeds")

	b := step.NewEnvBuilder()
	require.NoError(t, or.EnvContribution(b))
	require.Contains(t, b.Owned, "Y")
	require.NotContains(t, b.Owned, "Z")
}

func TestOrStepAllNAPropagatesNA(t *testing.T) {
	children := []step.Step{
		&fakeStep{kind: "x", upOutcome: step.OutcomeNotApplicable},
		&fakeStep{kind: "y", upOutcome: step.OutcomeNotApplicable},
	}
	or := newOrStep(children)
	require.Equal(t, step.OutcomeNotApplicable, or.Up(step.RunContext{}))
}

func TestOrStepAllFailingIsErr(t *testing.T) {
	children := []step.Step{
		&fakeStep{kind: "x", upOutcome: step.OutcomeErr},
		&fakeStep{kind: "y", upOutcome: step.OutcomeNotApplicable},
	}
	or := newOrStep(children)
	require.Equal(t, step.OutcomeErr, or.Up(step.RunContext{}))
}

func TestOrStepDownRunsAllChildren(t *testing.T) {
	calls := 0
	children := []step.Step{
		&fakeStep{kind: "x", downOutcome: step.OutcomeOK},
		&fakeStep{kind: "y", downOutcome: step.OutcomeOK},
	}
	_ = calls
	or := newOrStep(children)
	require.Equal(t, step.OutcomeOK, or.Down(step.RunContext{}))
}
