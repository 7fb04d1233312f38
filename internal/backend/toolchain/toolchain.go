// Package toolchain implements the language-toolchain backend (spec §4.2):
// install a specific version of a language runtime and expose its bin
// directory, via mise (formerly asdf). Every mise invocation goes through
// one Runner so tests substitute a execx.FakeRunner.
package toolchain

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
	"github.com/omnicli/omni/internal/versionsel"
)

// aliases maps every recognized up: key to the canonical mise plugin name,
// per spec §4.2's kind table and S4's "golang -> go, nodejs -> node" rename.
var aliases = map[string]string{
	"go": "go", "golang": "go",
	"python": "python",
	"node": "node", "nodejs": "node", "npm": "node",
	"ruby": "ruby",
	"rust": "rust",
}

// defaultRunner, defaultCache and defaultInstallRoot are wired by cmd/
// during startup (Configure) before any pipeline runs; operation.Factory has
// no dependency-injection slot of its own, so the registered factories close
// over these.
var (
	defaultRunner      execx.Runner = execx.Exec{}
	defaultCache       *cache.Cache
	defaultInstallRoot string
)

// Configure installs the shared runner, install cache and install root
// directory used by every toolchain factory. installRoot is normally
// $OMNI_DATA_HOME: mise itself is pointed at installRoot/mise via
// MISE_DATA_DIR so the paths this backend records in the install cache and
// exports as GOROOT/RUBY_ROOT/etc. are the same paths mise actually
// installed to, regardless of the caller's working directory. Called once
// during cmd/ startup.
func Configure(runner execx.Runner, c *cache.Cache, installRoot string) {
	defaultRunner = runner
	defaultCache = c
	defaultInstallRoot = installRoot
}

func init() {
	for alias := range aliases {
		tool := alias
		operation.Register(func(raw any) (step.Step, error) {
			return New(tool, raw, defaultRunner, defaultCache, defaultInstallRoot)
		}, tool)
	}
}

// Params is one toolchain operation's parsed configuration.
type Params struct {
	Tool            string
	Version         string
	FallbackVersion string
	Upgrade         bool
	AllowPrerelease bool
	AllowBuild      bool
	VersionsExpire  time.Duration
}

// New constructs the step.Step for one toolchain alias (called by each
// alias's registered factory).
func New(tool string, raw any, runner execx.Runner, c *cache.Cache, installRoot string) (step.Step, error) {
	params, err := parseParams(tool, raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, runner: runner, cache: c, installRoot: installRoot}, nil
}

func parseParams(tool string, raw any) (Params, error) {
	canonical, ok := aliases[tool]
	if !ok {
		return Params{}, fmt.Errorf("toolchain: unrecognized tool %q", tool)
	}

	p := Params{Tool: canonical, VersionsExpire: 24 * time.Hour}
	switch v := raw.(type) {
	case string:
		p.Version = v
	case map[string]any:
		if s, ok := v["version"].(string); ok {
			p.Version = s
		}
		if s, ok := v["fallback_version"].(string); ok {
			p.FallbackVersion = s
		}
		if b, ok := v["upgrade"].(bool); ok {
			p.Upgrade = b
		}
		if b, ok := v["prerelease"].(bool); ok {
			p.AllowPrerelease = b
		}
		if b, ok := v["build"].(bool); ok {
			p.AllowBuild = b
		}
	default:
		return Params{}, fmt.Errorf("toolchain %s: expected a version string or a map, got %T", tool, raw)
	}

	if p.Version == "" {
		p.Version = "latest"
	}
	return p, nil
}

// Step is the toolchain backend's step.Step implementation.
type Step struct {
	params      Params
	runner      execx.Runner
	cache       *cache.Cache
	installRoot string

	resolvedVersion string
}

// miseDataDir is where mise itself is told to install things, via
// MISE_DATA_DIR, so installPath's bookkeeping matches reality.
func (s *Step) miseDataDir() string {
	return filepath.Join(s.installRoot, "mise")
}

// miseEnv is the extra environment every mise invocation runs with.
func (s *Step) miseEnv() []string {
	return []string{"MISE_DATA_DIR=" + s.miseDataDir()}
}

// miseAvailable is a package-level seam over execx.Available so tests can
// force the "mise not on PATH" branch without touching the real PATH.
var miseAvailable = func() bool { return execx.Available("mise") }

func (s *Step) Kind() string { return s.params.Tool }

func (s *Step) IsAvailable(step.RunContext) bool {
	return miseAvailable()
}

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	resolved, err := s.resolveInstalled(rc)
	if err != nil {
		return false, nil //nolint:nilerr // is_met is pure; an unresolved constraint just means "not met"
	}
	return resolved != "", nil
}

// resolveInstalled checks whether any already-installed version of this
// tool satisfies the constraint, without consulting the network (the
// "upgrade: false and some installed version already satisfies" fast path
// of spec §4.2).
func (s *Step) resolveInstalled(rc step.RunContext) (string, error) {
	res, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "mise",
		Args:    []string{"ls", s.params.Tool, "--installed", "--json"},
		Env:     s.miseEnv(),
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return "", err
	}
	installed := parseMiseListVersions(res.Stdout)
	if len(installed) == 0 {
		return "", fmt.Errorf("no installed versions")
	}

	constraint, err := versionsel.Parse(s.params.Version)
	if err != nil {
		return "", err
	}
	return versionsel.Resolve(constraint, installed, versionsel.FilterOptions{
		AllowPrerelease: s.params.AllowPrerelease,
		AllowBuild:      s.params.AllowBuild,
	})
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	if !s.params.Upgrade && !rc.Upgrade {
		if v, err := s.resolveInstalled(rc); err == nil && v != "" {
			s.resolvedVersion = v
			return step.OutcomeOK
		}
	}

	version, installErr := s.installResolved(rc, s.params.Version)
	if installErr != nil && s.params.FallbackVersion != "" {
		// S5: a failed install retries with the fallback constraint, which is
		// resolved against the remote version list and installed; installed
		// versions are not consulted for it.
		version, installErr = s.installResolved(rc, s.params.FallbackVersion)
	}
	if installErr != nil {
		return step.OutcomeErr
	}
	s.resolvedVersion = version

	if s.cache == nil {
		return step.OutcomeOK
	}
	key := cache.ResourceKey{Kind: cache.KindMise, Values: []any{s.params.Tool, version}}
	if err := s.cache.RecordInstallPath(rc.Ctx, key, s.installPath(version), time.Now()); err != nil {
		return step.OutcomeErr
	}
	return step.OutcomeOK
}

// InstalledResource reports this step's resolved resource so the pipeline
// orchestrator can link it into the install cache's required_by table once
// the run's env_version_id is known.
func (s *Step) InstalledResource() (step.InstalledResource, bool) {
	if s.resolvedVersion == "" {
		return step.InstalledResource{}, false
	}
	return step.InstalledResource{
		CacheKindName: cache.KindMise.Installed,
		KeyValues:     []any{s.params.Tool, s.resolvedVersion},
		InstallPath:   s.installPath(s.resolvedVersion),
	}, true
}

func (s *Step) installResolved(rc step.RunContext, constraintRaw string) (string, error) {
	constraint, err := versionsel.Parse(constraintRaw)
	if err != nil {
		return "", err
	}

	versions, err := s.listRemoteVersions(rc)
	if err != nil {
		return "", err
	}

	version, err := versionsel.Resolve(constraint, versions, versionsel.FilterOptions{
		AllowPrerelease: s.params.AllowPrerelease,
		AllowBuild:      s.params.AllowBuild,
	})
	if err != nil {
		return "", err
	}

	_, err = s.runner.Run(rc.Ctx, execx.Spec{
		Command: "mise",
		Args:    []string{"install", fmt.Sprintf("%s@%s", s.params.Tool, version)},
		Env:     s.miseEnv(),
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return "", fmt.Errorf("mise install %s@%s: %w", s.params.Tool, version, err)
	}
	return version, nil
}

func (s *Step) listRemoteVersions(rc step.RunContext) ([]string, error) {
	res, err := s.runner.Run(rc.Ctx, execx.Spec{
		Command: "mise",
		Args:    []string{"ls-remote", s.params.Tool},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return parseMiseLsRemote(res.Stdout), nil
}

func (s *Step) Down(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}
	return step.OutcomeOK
}

func (s *Step) installPath(version string) string {
	return filepath.Join(s.miseDataDir(), "installs", s.params.Tool, version)
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	version := s.resolvedVersion
	if version == "" {
		return fmt.Errorf("toolchain %s: no resolved version recorded", s.params.Tool)
	}
	dir := filepath.Join(s.installPath(version), "bin")
	b.AddPath(dir, 0)

	switch s.params.Tool {
	case "go":
		b.Set("GOROOT", step.VarSet, filepath.Join(s.installPath(version)))
		b.Set("GOVERSION", step.VarSet, version)
	case "ruby":
		root := s.installPath(version)
		b.Set("RUBY_ROOT", step.VarSet, root)
		b.Set("RUBY_ENGINE", step.VarSet, "ruby")
		b.Set("RUBY_VERSION", step.VarSet, version)
		b.Set("GEM_HOME", step.VarSet, filepath.Join(root, "gems"))
		b.Set("GEM_ROOT", step.VarSet, filepath.Join(root, "gems"))
		b.Set("GEM_PATH", step.VarSet, filepath.Join(root, "gems"))
	case "rust":
		b.Set("RUSTUP_HOME", step.VarSet, filepath.Join(s.installPath(version), "rustup"))
		b.Set("CARGO_HOME", step.VarSet, filepath.Join(s.installPath(version), "cargo"))
	}
	return nil
}
