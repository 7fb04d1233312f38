// Package nix implements the nix backend (spec §4.2): load a derivation via
// `nix print-dev-env` and capture its environment, contributing every
// string-valued variable of type "exported" or "var" into the pipeline's env
// builder; PATH is skipped. Same execx subprocess shape as
// internal/backend/toolchain's mise driver.
package nix

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

var defaultRunner execx.Runner = execx.Exec{}

// Configure installs the shared runner used by the nix factory. Called once
// during cmd/ startup.
func Configure(runner execx.Runner) { defaultRunner = runner }

func init() {
	operation.Register(func(raw any) (step.Step, error) {
		return New(raw, defaultRunner)
	}, "nix")
}

// Params is one nix operation's parsed configuration.
type Params struct {
	Flake string // flake reference, e.g. ".#devShell" or "nixpkgs#ripgrep"
}

// New constructs the nix step.
func New(raw any, runner execx.Runner) (step.Step, error) {
	params, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, runner: runner}, nil
}

func parseParams(raw any) (Params, error) {
	switch v := raw.(type) {
	case string:
		return Params{Flake: v}, nil
	case map[string]any:
		flake, ok := v["flake"].(string)
		if !ok || flake == "" {
			return Params{}, fmt.Errorf("nix: missing required key %q", "flake")
		}
		return Params{Flake: flake}, nil
	default:
		return Params{}, fmt.Errorf("nix: expected a flake string or a map, got %T", raw)
	}
}

// Step is the nix backend's step.Step implementation.
type Step struct {
	params Params
	runner execx.Runner

	vars map[string]string
}

var nixAvailable = func() bool { return execx.Available("nix") }

func (s *Step) Kind() string { return "nix" }

func (s *Step) IsAvailable(step.RunContext) bool { return nixAvailable() }

// IsMet is always false: a nix derivation's exported env must be re-read
// every run to pick up flake.lock changes (spec §9 leaves no "already met"
// fast path for nix the way toolchain/github-release have one, since the
// Nix store itself is the cache, and print-dev-env is cheap once built).
func (s *Step) IsMet(step.RunContext) (bool, error) { return false, nil }

// devEnv is the shape of `nix print-dev-env --json`'s relevant subset.
type devEnv struct {
	Variables map[string]struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	} `json:"variables"`
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	res, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "nix",
		Args:    []string{"print-dev-env", "--json", s.params.Flake},
		Dir:     rc.WorkDir,
		Timeout: 5 * time.Minute,
	})
	if err != nil {
		return step.OutcomeErr
	}

	var env devEnv
	if err := json.Unmarshal([]byte(res.Stdout), &env); err != nil {
		return step.OutcomeErr
	}

	s.vars = make(map[string]string, len(env.Variables))
	for name, v := range env.Variables {
		if v.Type != "exported" && v.Type != "var" {
			continue
		}
		if str, ok := v.Value.(string); ok {
			s.vars[name] = str
		}
	}
	return step.OutcomeOK
}

func (s *Step) Down(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}
	return step.OutcomeOK
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	if s.vars == nil {
		return fmt.Errorf("nix %s: no captured environment", s.params.Flake)
	}
	for name, value := range s.vars {
		if name == "PATH" {
			continue
		}
		b.Set(name, step.VarSet, value)
	}
	return nil
}
