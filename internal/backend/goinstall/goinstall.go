// Package goinstall implements the go-install backend (spec §4.2): install
// a Go module's binary at a resolved version via `go install`, with version
// discovery against the Go module proxy's @v/list endpoint. Grounded on the
// teacher's act.Run/execx subprocess pattern, the same shape as
// internal/backend/toolchain's mise driver and internal/backend/cargoinstall.
package goinstall

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/execx"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
	"github.com/omnicli/omni/internal/versionsel"
)

var (
	defaultRunner      execx.Runner = execx.Exec{}
	defaultCache       *cache.Cache
	defaultInstallRoot string
	httpClient                     = http.DefaultClient
	goProxy                        = "https://proxy.golang.org"
)

// Configure installs the shared runner, install cache, install root
// directory and HTTP client used by the go-install factory. installRoot is
// normally $OMNI_DATA_HOME; every module lands under
// installRoot/go-install/<module>/<version>, passed to `go install` as
// GOBIN so the path recorded in the install cache is the same absolute path
// go actually installed to. Called once during cmd/ startup.
func Configure(runner execx.Runner, c *cache.Cache, installRoot string, client *http.Client) {
	defaultRunner = runner
	defaultCache = c
	defaultInstallRoot = installRoot
	if client != nil {
		httpClient = client
	}
}

func init() {
	operation.Register(func(raw any) (step.Step, error) {
		return New(raw, defaultRunner, defaultCache, defaultInstallRoot)
	}, "go-install", "go_install")
}

// Params is one go-install operation's parsed configuration.
type Params struct {
	ModulePath     string // e.g. github.com/golangci/golangci-lint/cmd/golangci-lint
	Version        string
	Upgrade        bool
	AllowPrerelease bool
	VersionsExpire time.Duration
}

// New constructs the go-install step.
func New(raw any, runner execx.Runner, c *cache.Cache, installRoot string) (step.Step, error) {
	params, err := parseParams(raw)
	if err != nil {
		return nil, err
	}
	return &Step{params: params, runner: runner, cache: c, installRoot: installRoot}, nil
}

func parseParams(raw any) (Params, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Params{}, fmt.Errorf("go-install: expected a map, got %T", raw)
	}
	path, ok := m["path"].(string)
	if !ok || path == "" {
		return Params{}, fmt.Errorf("go-install: missing required key %q", "path")
	}

	p := Params{ModulePath: path, Version: "latest", VersionsExpire: 24 * time.Hour}
	if v, ok := m["version"].(string); ok && v != "" {
		p.Version = v
	}
	if b, ok := m["upgrade"].(bool); ok {
		p.Upgrade = b
	}
	if b, ok := m["prerelease"].(bool); ok {
		p.AllowPrerelease = b
	}
	return p, nil
}

// moduleRoot returns the module path used for the proxy's @v/list query.
// It is ModulePath as configured: a sub-package path is not stripped down to
// its module root, and go.mod is not consulted to find the module boundary.
func (p Params) moduleRoot() string { return p.ModulePath }

// Step is the go-install backend's step.Step implementation.
type Step struct {
	params      Params
	runner      execx.Runner
	cache       *cache.Cache
	installRoot string

	resolvedVersion string
}

var goAvailable = func() bool { return execx.Available("go") }

func (s *Step) Kind() string { return "go-install" }

func (s *Step) IsAvailable(step.RunContext) bool { return goAvailable() }

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	versions, err := s.cachedVersions(rc)
	if err != nil {
		return false, nil //nolint:nilerr // is_met is pure; an unresolved constraint just means "not met"
	}
	constraint, err := versionsel.Parse(s.params.Version)
	if err != nil {
		return false, nil //nolint:nilerr
	}
	version, err := versionsel.Resolve(constraint, versions, versionsel.FilterOptions{AllowPrerelease: s.params.AllowPrerelease})
	if err != nil {
		return false, nil //nolint:nilerr
	}
	_, ok, _ := s.cache.IsInstalled(rc.Ctx, s.key(version))
	return ok, nil
}

func (s *Step) cachedVersions(rc step.RunContext) ([]string, error) {
	entry, found, _, err := s.cache.GetVersions(rc.Ctx, cache.VersionsGo, []string{s.params.moduleRoot()}, s.params.VersionsExpire, time.Now())
	if err != nil || !found {
		return nil, fmt.Errorf("no cached versions")
	}
	return entry.Versions, nil
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	if !s.IsAvailable(rc) {
		return step.OutcomeNotApplicable
	}

	versions, err := s.listVersions(rc)
	if err != nil {
		return step.OutcomeErr
	}
	constraint, err := versionsel.Parse(s.params.Version)
	if err != nil {
		return step.OutcomeErr
	}
	version, err := versionsel.Resolve(constraint, versions, versionsel.FilterOptions{AllowPrerelease: s.params.AllowPrerelease})
	if err != nil {
		return step.OutcomeErr
	}

	if !s.params.Upgrade && !rc.Upgrade && s.cache != nil {
		if _, ok, _ := s.cache.IsInstalled(rc.Ctx, s.key(version)); ok {
			s.resolvedVersion = version
			return step.OutcomeOK
		}
	}

	installDir := s.installPath(version)
	env := []string{"GOBIN=" + filepath.Join(installDir, "bin")}
	_, err = s.runner.Run(rc.Ctx, execx.Spec{
		Command: "go",
		Args:    []string{"install", fmt.Sprintf("%s@%s", s.params.ModulePath, version)},
		Env:     env,
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return step.OutcomeErr
	}
	s.resolvedVersion = version

	if s.cache != nil {
		if err := s.cache.RecordInstallPath(rc.Ctx, s.key(version), installDir, time.Now()); err != nil {
			return step.OutcomeErr
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

func (s *Step) key(version string) cache.ResourceKey {
	return cache.ResourceKey{Kind: cache.KindGo, Values: []any{s.params.ModulePath, version}}
}

func (s *Step) installPath(version string) string {
	return filepath.Join(s.installRoot, "go-install", s.params.ModulePath, version)
}

// InstalledResource reports this step's resolved resource so the pipeline
// orchestrator can link it into the install cache once env_version_id is
// known.
func (s *Step) InstalledResource() (step.InstalledResource, bool) {
	if s.resolvedVersion == "" {
		return step.InstalledResource{}, false
	}
	return step.InstalledResource{
		CacheKindName: cache.KindGo.Installed,
		KeyValues:     []any{s.params.ModulePath, s.resolvedVersion},
		InstallPath:   s.installPath(s.resolvedVersion),
	}, true
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	if s.resolvedVersion == "" {
		return fmt.Errorf("go-install %s: no resolved version recorded", s.params.ModulePath)
	}
	b.AddPath(filepath.Join(s.installPath(s.resolvedVersion), "bin"), 0)
	return nil
}

func (s *Step) listVersions(rc step.RunContext) ([]string, error) {
	fetch := func() ([]string, error) { return fetchProxyVersionList(rc, s.params.moduleRoot()) }
	if s.cache == nil {
		return fetch()
	}
	return s.cache.VersionsWithRefresh(rc.Ctx, cache.VersionsGo, []string{s.params.moduleRoot()}, s.params.VersionsExpire, time.Now(), fetch)
}

// fetchProxyVersionList queries the Go module proxy's @v/list endpoint,
// which returns one version per line (escaped per the module proxy's
// uppercase-letter escaping rule; module paths used by this backend are
// expected to already be lowercase, matching the vast majority of Go
// modules).
func fetchProxyVersionList(rc step.RunContext, modulePath string) ([]string, error) {
	url := fmt.Sprintf("%s/%s/@v/list", goProxy, modulePath)
	req, err := http.NewRequestWithContext(rc.Ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching module proxy version list for %s: %w", modulePath, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching module proxy version list for %s: status %d", modulePath, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			versions = append(versions, line)
		}
	}
	return versions, nil
}
