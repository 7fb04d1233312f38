package operation

import (
	"fmt"

	"github.com/omnicli/omni/internal/step"
)

// ErrNotTrusted distinguishes the trust-gate failure from other pipeline
// errors (spec §7 NotTrusted: "fatal before any step runs... leaves state
// untouched").
type ErrNotTrusted struct{ WorkDirID string }

func (e *ErrNotTrusted) Error() string {
	return fmt.Sprintf("operation: work directory %s is not trusted", e.WorkDirID)
}

// StepResult records one entry's outcome for diagnostics and history.
type StepResult struct {
	Index   int
	Kind    string
	Outcome step.Outcome
	Err     error
}

// RunResult is the aggregate result of one Up or Down call.
type RunResult struct {
	Steps   []StepResult
	Builder *step.EnvBuilder
	// Aborted is true if Up stopped early on the first err (it always runs
	// to completion on Down).
	Aborted bool
}

// Up runs each entry's Up in declared order, aborting on the first err
// (spec §4.1 "pipeline aborts on the first err during up"). A successful
// entry's contribution is folded into the returned EnvBuilder in order.
func Up(entries []Entry, rc step.RunContext) RunResult {
	result := RunResult{Builder: step.NewEnvBuilder()}

	for _, e := range entries {
		outcome := e.Step.Up(rc)
		sr := StepResult{Index: e.Index, Kind: e.Kind, Outcome: outcome}
		if outcome == step.OutcomeErr {
			sr.Err = fmt.Errorf("operation up[%d] (%s) failed", e.Index, e.Kind)
		}
		result.Steps = append(result.Steps, sr)

		if outcome == step.OutcomeErr {
			result.Aborted = true
			return result
		}
		if outcome == step.OutcomeOK {
			if err := e.Step.EnvContribution(result.Builder); err != nil {
				sr.Err = err
				result.Steps[len(result.Steps)-1] = sr
				result.Aborted = true
				return result
			}
		}
	}

	return result
}

// Down runs each entry's Down in reverse declared order. All entries are
// attempted regardless of individual failures; the overall outcome is the
// conjunction (spec §4.1 "During down, all steps are attempted; the
// overall outcome is the conjunction").
func Down(entries []Entry, rc step.RunContext) RunResult {
	result := RunResult{Builder: step.NewEnvBuilder()}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		outcome := e.Step.Down(rc)
		sr := StepResult{Index: e.Index, Kind: e.Kind, Outcome: outcome}
		if outcome == step.OutcomeErr {
			sr.Err = fmt.Errorf("operation down[%d] (%s) failed", e.Index, e.Kind)
		}
		result.Steps = append(result.Steps, sr)
	}

	return result
}

// Conjunction reduces a RunResult to a single outcome: err if any step
// errored, n/a if every step was n/a, else ok.
func (r RunResult) Conjunction() step.Outcome {
	sawOK := false
	for _, s := range r.Steps {
		switch s.Outcome {
		case step.OutcomeErr:
			return step.OutcomeErr
		case step.OutcomeOK:
			sawOK = true
		}
	}
	if sawOK {
		return step.OutcomeOK
	}
	return step.OutcomeNotApplicable
}
