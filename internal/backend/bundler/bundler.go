// Package bundler implements the bundler/bundle backend (spec §4.2): vendor
// Ruby gems relative to a Gemfile into a per-work-directory vendor path
// (spec §6 "vendor/bundle for bundler (default)"). Grounded on the
// teacher's act.Run/execx subprocess pattern, the same shape as
// internal/backend/toolchain's mise driver.
package bundler

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

var defaultRunner execx.Runner = execx.Exec{}

// Configure installs the shared runner used by the bundler factory. Called
// once during cmd/ startup.
func Configure(runner execx.Runner) { defaultRunner = runner }

func init() {
	operation.Register(func(raw any) (step.Step, error) {
		return New(raw, defaultRunner)
	}, "bundler", "bundle")
}

// Params is one bundler operation's parsed configuration.
type Params struct {
	Gemfile   string // path relative to the work directory, default "Gemfile"
	VendorDir string // path relative to the work directory, default "vendor/bundle"
}

// New constructs the bundler step.
func New(raw any, runner execx.Runner) (step.Step, error) {
	params, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, runner: runner}, nil
}

func parseParams(raw any) (Params, error) {
	p := Params{Gemfile: "Gemfile", VendorDir: filepath.Join("vendor", "bundle")}
	switch v := raw.(type) {
	case nil:
		return p, nil
	case bool:
		return p, nil
	case map[string]any:
		if s, ok := v["gemfile"].(string); ok && s != "" {
			p.Gemfile = s
		}
		if s, ok := v["path"].(string); ok && s != "" {
			p.VendorDir = s
		}
		return p, nil
	default:
		return Params{}, fmt.Errorf("bundler: expected a map or bare boolean, got %T", raw)
	}
}

// Step is the bundler backend's step.Step implementation.
type Step struct {
	params  Params
	runner  execx.Runner
	workDir string

	installed bool
}

var bundleAvailable = func() bool { return execx.Available("bundle") }

func (s *Step) Kind() string { return "bundler" }

func (s *Step) IsAvailable(step.RunContext) bool { return bundleAvailable() }

func (s *Step) gemfilePath(rc step.RunContext) string {
	return filepath.Join(rc.WorkDir, s.params.Gemfile)
}

func (s *Step) vendorPath(rc step.RunContext) string {
	return filepath.Join(rc.WorkDir, s.params.VendorDir)
}

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if !s.IsAvailable(rc) {
		return false, nil
	}
	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "bundle",
		Args:    []string{"check", "--gemfile", s.gemfilePath(rc), "--path", s.vendorPath(rc)},
		Dir:     rc.WorkDir,
		Timeout: 30 * time.Second,
	})
	return err == nil, nil
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	if !rc.Upgrade {
		if met, _ := s.IsMet(rc); met {
			s.installed = true
			s.workDir = rc.WorkDir
			return step.OutcomeOK
		}
	}

	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "bundle",
		Args:    []string{"install", "--gemfile", s.gemfilePath(rc), "--path", s.vendorPath(rc)},
		Dir:     rc.WorkDir,
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return step.OutcomeErr
	}
	s.installed = true
	s.workDir = rc.WorkDir
	return step.OutcomeOK
}

func (s *Step) Down(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}
	return step.OutcomeOK
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	if !s.installed {
		return fmt.Errorf("bundler: not installed")
	}
	b.Set("BUNDLE_GEMFILE", step.VarSet, filepath.Join(s.workDir, s.params.Gemfile))
	return nil
}
