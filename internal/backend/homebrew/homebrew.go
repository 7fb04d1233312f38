// Package homebrew implements the homebrew/brew backend (spec §4.2): tap
// repositories, install formulae/casks, and pin a formula to a version by
// extracting it into a private local tap (spec's "Homebrew version
// pinning" design note). Same execx subprocess shape as
// internal/backend/toolchain's mise driver.
package homebrew

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

// localTap is the private tap formulae get extracted into for version
// pinning, per spec's Homebrew version-pinning design note.
const localTap = "omni/local"

var (
	defaultRunner execx.Runner = execx.Exec{}
	defaultCache  *cache.Cache
)

// Configure installs the shared runner and install cache used by the
// homebrew factory. Called once during cmd/ startup.
func Configure(runner execx.Runner, c *cache.Cache) {
	defaultRunner = runner
	defaultCache = c
}

func init() {
	operation.Register(func(raw any) (step.Step, error) {
		return New(raw, defaultRunner, defaultCache)
	}, "homebrew", "brew")
}

// Params is one homebrew operation's parsed configuration.
type Params struct {
	Formula string
	Version string // non-empty triggers the extract-to-local-tap pin path
	Cask    bool
	Taps    []string // additional taps to ensure, beyond localTap
}

// New constructs the homebrew step.
func New(raw any, runner execx.Runner, c *cache.Cache) (step.Step, error) {
	params, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, runner: runner, cache: c}, nil
}

func parseParams(raw any) (Params, error) {
	switch v := raw.(type) {
	case string:
		return Params{Formula: v}, nil
	case map[string]any:
		formula, ok := v["formula"].(string)
		if !ok || formula == "" {
			return Params{}, fmt.Errorf("homebrew: missing required key %q", "formula")
		}
		p := Params{Formula: formula}
		if s, ok := v["version"].(string); ok {
			p.Version = s
		}
		if b, ok := v["cask"].(bool); ok {
			p.Cask = b
		}
		if taps, ok := v["tap"].([]any); ok {
			for _, t := range taps {
				if s, ok := t.(string); ok {
					p.Taps = append(p.Taps, s)
				}
			}
		} else if s, ok := v["tap"].(string); ok {
			p.Taps = append(p.Taps, s)
		}
		return p, nil
	default:
		return Params{}, fmt.Errorf("homebrew: expected a formula string or a map, got %T", raw)
	}
}

// Step is the homebrew backend's step.Step implementation.
type Step struct {
	params Params
	runner execx.Runner
	cache  *cache.Cache

	installed   bool
	installPath string
}

var brewAvailable = func() bool { return execx.Available("brew") }

func (s *Step) Kind() string {
	if s.params.Cask {
		return "homebrew-cask"
	}
	return "homebrew"
}

func (s *Step) IsAvailable(step.RunContext) bool { return brewAvailable() }

func (s *Step) isCaskInt() int {
	if s.params.Cask {
		return 1
	}
	return 0
}

func (s *Step) key() cache.ResourceKey {
	v := s.params.Version
	if v == "" {
		v = "latest"
	}
	return cache.ResourceKey{Kind: cache.KindHomebrew, Values: []any{s.params.Formula, v, s.isCaskInt()}}
}

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	_, ok, err := s.cache.IsInstalled(rc.Ctx, s.key())
	if err != nil {
		return false, nil //nolint:nilerr // is_met is pure; a lookup error just means "not met"
	}
	return ok, nil
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	if s.cache != nil && !rc.Upgrade {
		if path, ok, _ := s.cache.IsInstalled(rc.Ctx, s.key()); ok {
			s.installed = true
			s.installPath = path
			return step.OutcomeOK
		}
	}

	for _, t := range s.params.Taps {
		if _, err := s.runner.Run(rc.Ctx, execx.Spec{Command: "brew", Args: []string{"tap", t}, Timeout: time.Minute}); err != nil {
			return step.OutcomeErr
		}
	}

	formulaRef := s.params.Formula
	if s.params.Version != "" {
		if err := s.ensureLocalTap(rc); err != nil {
			return step.OutcomeErr
		}
		if _, err := s.runner.Run(rc.Ctx, execx.Spec{
			Command: "brew",
			Args:    []string{"extract", "--version", s.params.Version, s.params.Formula, localTap},
			Timeout: 2 * time.Minute,
		}); err != nil {
			return step.OutcomeErr
		}
		formulaRef = fmt.Sprintf("%s/%s@%s", localTap, s.params.Formula, s.params.Version)
	}

	installArgs := []string{"install"}
	if s.params.Cask {
		installArgs = append(installArgs, "--cask")
	}
	installArgs = append(installArgs, formulaRef)
	if _, err := s.runner.Run(rc.Ctx, execx.Spec{Command: "brew", Args: installArgs, Timeout: 10 * time.Minute}); err != nil {
		return step.OutcomeErr
	}

	path, err := s.resolvePrefix(rc, formulaRef)
	if err != nil {
		return step.OutcomeErr
	}
	s.installed = true
	s.installPath = path

	if s.cache != nil {
		if err := s.cache.RecordInstallPath(rc.Ctx, s.key(), path, time.Now()); err != nil {
			return step.OutcomeErr
		}
	}
	return step.OutcomeOK
}

func (s *Step) ensureLocalTap(rc step.RunContext) error {
	if s.cache != nil {
		if _, ok, _ := s.cache.IsInstalled(rc.Ctx, cache.ResourceKey{Kind: cache.KindHomebrewTap, Values: []any{localTap}}); ok {
			return nil
		}
	}
	if _, err := s.runner.Run(rc.Ctx, execx.Spec{Command: "brew", Args: []string{"tap-new", localTap}, Timeout: time.Minute}); err != nil {
		return fmt.Errorf("creating local tap %s: %w", localTap, err)
	}
	if s.cache != nil {
		_ = s.cache.RecordInstallPath(rc.Ctx, cache.ResourceKey{Kind: cache.KindHomebrewTap, Values: []any{localTap}}, "", time.Now())
	}
	return nil
}

func (s *Step) resolvePrefix(rc step.RunContext, formulaRef string) (string, error) {
	args := []string{"--prefix", formulaRef}
	res, err := s.runner.Run(rc.Ctx, execx.Spec{Command: "brew", Args: args, Timeout: 30 * time.Second})
	if err != nil {
		return "", err
	}
	prefix := res.Stdout
	for len(prefix) > 0 && (prefix[len(prefix)-1] == '\n' || prefix[len(prefix)-1] == '\r') {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix, nil
}

func (s *Step) Down(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}
	return step.OutcomeOK
}

// InstalledResource reports this step's resolved resource so the pipeline
// orchestrator can link it into the install cache once env_version_id is
// known.
func (s *Step) InstalledResource() (step.InstalledResource, bool) {
	if !s.installed {
		return step.InstalledResource{}, false
	}
	return step.InstalledResource{
		CacheKindName: cache.KindHomebrew.Installed,
		KeyValues:     s.key().Values,
		InstallPath:   s.installPath,
	}, true
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	if !s.installed {
		return fmt.Errorf("homebrew %s: not installed", s.params.Formula)
	}
	if s.installPath != "" {
		b.AddPath(filepath.Join(s.installPath, "bin"), 5)
	}
	return nil
}
