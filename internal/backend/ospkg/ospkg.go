// Package ospkg implements the apt/dnf/pacman backends (spec §4.2):
// OS-level package installs with version pinning, not-applicable when the
// declared package manager isn't present on the host (e.g. an `apt:`
// operation on macOS). Same execx subprocess shape as
// internal/backend/toolchain's mise driver, but these backends have no
// shared install cache entry of their own (spec §6 tracks no
// `apt_installed`-style table; OS packages are system-owned, not
// per-user-account reuse candidates like mise/cargo/go/homebrew).
package ospkg

import (
	"fmt"
	"time"

	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
)

// manager describes one OS package manager's CLI shape.
type manager struct {
	name        string
	binary      string
	installArgs func(pkg, version string) []string
	queryArgs   func(pkg string) []string // exits 0 if installed
}

var managers = map[string]manager{
	"apt": {
		name:   "apt",
		binary: "apt-get",
		installArgs: func(pkg, version string) []string {
			target := pkg
			if version != "" {
				target = fmt.Sprintf("%s=%s", pkg, version)
			}
			return []string{"install", "-y", target}
		},
		queryArgs: func(pkg string) []string { return []string{"-s", pkg} },
	},
	"dnf": {
		name:   "dnf",
		binary: "dnf",
		installArgs: func(pkg, version string) []string {
			target := pkg
			if version != "" {
				target = fmt.Sprintf("%s-%s", pkg, version)
			}
			return []string{"install", "-y", target}
		},
		queryArgs: func(pkg string) []string { return []string{"list", "installed", pkg} },
	},
	"pacman": {
		name:   "pacman",
		binary: "pacman",
		installArgs: func(pkg, version string) []string {
			target := pkg
			if version != "" {
				target = fmt.Sprintf("%s=%s", pkg, version)
			}
			return []string{"-S", "--noconfirm", target}
		},
		queryArgs: func(pkg string) []string { return []string{"-Q", pkg} },
	},
}

var defaultRunner execx.Runner = execx.Exec{}

// Configure installs the shared runner used by every os-package factory.
// Called once during cmd/ startup.
func Configure(runner execx.Runner) { defaultRunner = runner }

func init() {
	for name := range managers {
		mgr := name
		operation.Register(func(raw any) (step.Step, error) {
			return New(mgr, raw, defaultRunner)
		}, mgr)
	}
}

// Params is one os-package operation's parsed configuration.
type Params struct {
	Manager string
	Package string
	Version string
}

// New constructs the ospkg step for the named package manager.
func New(mgrName string, raw any, runner execx.Runner) (step.Step, error) {
	mgr, ok := managers[mgrName]
	if !ok {
		return nil, fmt.Errorf("ospkg: unrecognized package manager %q", mgrName)
	}
	params, err := parseParams(mgrName, raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, mgr: mgr, runner: runner}, nil
}

func parseParams(mgrName string, raw any) (Params, error) {
	switch v := raw.(type) {
	case string:
		return Params{Manager: mgrName, Package: v}, nil
	case map[string]any:
		pkg, ok := v["package"].(string)
		if !ok || pkg == "" {
			return Params{}, fmt.Errorf("%s: missing required key %q", mgrName, "package")
		}
		p := Params{Manager: mgrName, Package: pkg}
		if s, ok := v["version"].(string); ok {
			p.Version = s
		}
		return p, nil
	default:
		return Params{}, fmt.Errorf("%s: expected a package string or a map, got %T", mgrName, raw)
	}
}

// Step is an OS-package backend's step.Step implementation.
type Step struct {
	params Params
	mgr    manager
	runner execx.Runner

	met bool
}

// availabilityOverride lets tests force the "package manager not on PATH"
// branch without touching the real PATH.
var availabilityOverride func(binary string) bool

func isAvailable(binary string) bool {
	if availabilityOverride != nil {
		return availabilityOverride(binary)
	}
	return execx.Available(binary)
}

func (s *Step) Kind() string { return s.mgr.name }

func (s *Step) IsAvailable(step.RunContext) bool { return isAvailable(s.mgr.binary) }

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if !s.IsAvailable(rc) {
		return false, nil
	}
	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: s.mgr.binary,
		Args:    s.mgr.queryArgs(s.params.Package),
		Timeout: 30 * time.Second,
	})
	return err == nil, nil
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	met, _ := s.IsMet(rc)
	if met && !rc.Upgrade {
		s.met = true
		return step.OutcomeOK
	}

	_, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: s.mgr.binary,
		Args:    s.mgr.installArgs(s.params.Package, s.params.Version),
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return step.OutcomeErr
	}
	s.met = true
	return step.OutcomeOK
}

func (s *Step) Down(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}
	// OS packages are system-owned, not reference-counted per spec §4.3's
	// install cache; down() never uninstalls them.
	return step.OutcomeOK
}

func (s *Step) EnvContribution(*step.EnvBuilder) error {
	if !s.met {
		return fmt.Errorf("%s %s: not installed", s.mgr.name, s.params.Package)
	}
	return nil
}
