// Package custom implements the custom backend (spec §4.2): user-specified
// met?/meet/unmeet shell snippets run through bash, per spec's "Custom
// backend state machine" design note:
//
//	Idle -> Checking(met?) -> {Met, NotMet} -> Running(meet|unmeet) -> {Succeeded, Failed}
//
// During up: if met? exits 0, transition to Met (step is ok without running
// meet); otherwise run meet. Absence of met? is equivalent to NotMet. During
// down: skip unless unmeet is defined and met? currently returns 0.
//
// Runs commands through the same execx subprocess pattern as
// internal/backend/toolchain's mise driver.
package custom

import (
	"fmt"
	"time"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

var defaultRunner execx.Runner = execx.Exec{}

// Configure installs the shared runner used by the custom factory. Called
// once during cmd/ startup.
func Configure(runner execx.Runner) { defaultRunner = runner }

func init() {
	operation.Register(func(raw any) (step.Step, error) {
		return New(raw, defaultRunner)
	}, "custom")
}

// Params is one custom operation's parsed configuration: met?/meet/unmeet
// are each a shell snippet run via `bash -c`.
type Params struct {
	Met    string // empty means "absence of met? is equivalent to NotMet"
	Meet   string
	Unmeet string // empty means down() always skips
}

// New constructs the custom step.
func New(raw any, runner execx.Runner) (step.Step, error) {
	params, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, runner: runner}, nil
}

func parseParams(raw any) (Params, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Params{}, fmt.Errorf("custom: expected a map, got %T", raw)
	}
	meet, ok := m["meet"].(string)
	if !ok || meet == "" {
		return Params{}, fmt.Errorf("custom: missing required key %q", "meet")
	}
	p := Params{Meet: meet}
	if s, ok := m["met?"].(string); ok {
		p.Met = s
	} else if s, ok := m["met"].(string); ok {
		p.Met = s
	}
	if s, ok := m["unmeet"].(string); ok {
		p.Unmeet = s
	}
	return p, nil
}

// Step is the custom backend's step.Step implementation.
type Step struct {
	params Params
	runner execx.Runner

	ran bool
}

func (s *Step) Kind() string { return "custom" }

func (s *Step) IsAvailable(step.RunContext) bool { return execx.Available("bash") }

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if s.params.Met == "" {
		return false, nil
	}
	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "bash",
		Args:    []string{"-c", s.params.Met},
		Dir:     rc.WorkDir,
		Timeout: s.timeout(rc),
	})
	return err == nil, nil
}

func (s *Step) timeout(rc step.RunContext) time.Duration {
	if rc.Timeout > 0 {
		return time.Duration(rc.Timeout) * time.Second
	}
	return 5 * time.Minute
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	met, _ := s.IsMet(rc)
	if met && !rc.Upgrade {
		s.ran = true
		return step.OutcomeOK
	}

	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "bash",
		Args:    []string{"-c", s.params.Meet},
		Dir:     rc.WorkDir,
		Timeout: s.timeout(rc),
	})
	if err != nil {
		return step.OutcomeErr
	}
	s.ran = true
	return step.OutcomeOK
}

func (s *Step) Down(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}
	if s.params.Unmeet == "" {
		return step.OutcomeOK
	}
	if met, _ := s.IsMet(rc); !met {
		return step.OutcomeOK
	}

	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "bash",
		Args:    []string{"-c", s.params.Unmeet},
		Dir:     rc.WorkDir,
		Timeout: s.timeout(rc),
	})
	if err != nil {
		return step.OutcomeErr
	}
	return step.OutcomeOK
}

func (s *Step) EnvContribution(*step.EnvBuilder) error {
	if !s.ran {
		return fmt.Errorf("custom: not run")
	}
	// custom steps have no structured path/env contribution of their own;
	// any environment effects happen inside meet's own shell.
	return nil
}
