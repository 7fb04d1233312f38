package operation

import "github.com/omnicli/omni/internal/step"

// orStep composes a list of child steps (spec §4.1 "or meta-operation"):
// on Up, runs children in order and succeeds at the first ok, propagating
// N/A only when all children are N/A; on Down, runs all children.
type orStep struct {
	children []step.Step
	winner   step.Step // the child whose Up returned ok, for EnvContribution
}

func newOrStep(children []step.Step) step.Step {
	return &orStep{children: children}
}

func (s *orStep) Kind() string { return "or" }

func (s *orStep) IsAvailable(rc step.RunContext) bool {
	for _, c := range s.children {
		if c.IsAvailable(rc) {
			return true
		}
	}
	return false
}

func (s *orStep) IsMet(rc step.RunContext) (bool, error) {
	for _, c := range s.children {
		met, err := c.IsMet(rc)
		if err != nil {
			return false, err
		}
		if met {
			return true, nil
		}
	}
	return false, nil
}

func (s *orStep) Up(rc step.RunContext) step.Outcome {
	allNA := true
	for _, c := range s.children {
		outcome := c.Up(rc)
		switch outcome {
		case step.OutcomeOK:
			s.winner = c
			return step.OutcomeOK
		case step.OutcomeErr:
			allNA = false
		case step.OutcomeNotApplicable:
			// keep looking
		}
	}
	if allNA {
		return step.OutcomeNotApplicable
	}
	return step.OutcomeErr
}

func (s *orStep) Down(rc step.RunContext) step.Outcome {
	overall := step.OutcomeNotApplicable
	for _, c := range s.children {
		switch c.Down(rc) {
		case step.OutcomeErr:
			overall = step.OutcomeErr
		case step.OutcomeOK:
			if overall != step.OutcomeErr {
				overall = step.OutcomeOK
			}
		}
	}
	return overall
}

func (s *orStep) EnvContribution(b *step.EnvBuilder) error {
	if s.winner == nil {
		return nil
	}
	return s.winner.EnvContribution(b)
}

// InstalledResource delegates to the winning child, mirroring
// EnvContribution above, so the winner's resource reaches cache linking
// and the env_version_id fingerprint the same as any non-or step's would.
func (s *orStep) InstalledResource() (step.InstalledResource, bool) {
	if s.winner == nil {
		return step.InstalledResource{}, false
	}
	reporter, ok := s.winner.(step.ResourceReporter)
	if !ok {
		return step.InstalledResource{}, false
	}
	return reporter.InstalledResource()
}
