// Package cargoinstall implements the cargo-install backend (spec §4.2):
// install a named crate at a resolved version via `cargo install`, with
// version discovery against the crates.io sparse index. Grounded on the
// teacher's act.Run/execx subprocess pattern, the same shape as
// internal/backend/toolchain's mise driver.
package cargoinstall

import (
	"encoding/json"
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
	httpClient         = http.DefaultClient
)

// Configure installs the shared runner, install cache, install root
// directory and HTTP client used by the cargo-install factory. installRoot
// is normally $OMNI_DATA_HOME; every crate lands under
// installRoot/cargo-install/<crate>/<version>, passed to `cargo install
// --root` directly so the path recorded in the install cache is the same
// absolute path cargo actually installed to. Called once during cmd/
// startup.
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
	}, "cargo-install", "cargo_install")
}

// Params is one cargo-install operation's parsed configuration.
type Params struct {
	Crate           string
	Version         string
	Features        []string
	Upgrade         bool
	AllowPrerelease bool
	VersionsExpire  time.Duration
}

// New constructs the cargo-install step.
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
		return Params{}, fmt.Errorf("cargo-install: expected a map, got %T", raw)
	}
	crate, ok := m["crate"].(string)
	if !ok || crate == "" {
		return Params{}, fmt.Errorf("cargo-install: missing required key %q", "crate")
	}

	p := Params{Crate: crate, Version: "latest", VersionsExpire: 24 * time.Hour}
	if v, ok := m["version"].(string); ok && v != "" {
		p.Version = v
	}
	if b, ok := m["upgrade"].(bool); ok {
		p.Upgrade = b
	}
	if b, ok := m["prerelease"].(bool); ok {
		p.AllowPrerelease = b
	}
	if fs, ok := m["features"].([]any); ok {
		for _, f := range fs {
			if s, ok := f.(string); ok {
				p.Features = append(p.Features, s)
			}
		}
	}
	return p, nil
}

// Step is the cargo-install backend's step.Step implementation.
type Step struct {
	params      Params
	runner      execx.Runner
	cache       *cache.Cache
	installRoot string

	resolvedVersion string
}

var cargoAvailable = func() bool { return execx.Available("cargo") }

func (s *Step) Kind() string { return "cargo-install" }

func (s *Step) IsAvailable(step.RunContext) bool { return cargoAvailable() }

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	resolved, err := s.resolveFromCacheOrInstalled(rc)
	if err != nil {
		return false, nil //nolint:nilerr // is_met is pure; an unresolved constraint just means "not met"
	}
	return resolved != "", nil
}

func (s *Step) resolveFromCacheOrInstalled(rc step.RunContext) (string, error) {
	if s.cache == nil {
		return "", fmt.Errorf("no cache configured")
	}
	entry, found, _, err := s.cache.GetVersions(rc.Ctx, cache.VersionsCargo, []string{s.params.Crate}, s.params.VersionsExpire, time.Now())
	if err != nil || !found {
		return "", fmt.Errorf("no cached versions")
	}
	constraint, err := versionsel.Parse(s.params.Version)
	if err != nil {
		return "", err
	}
	version, err := versionsel.Resolve(constraint, entry.Versions, versionsel.FilterOptions{AllowPrerelease: s.params.AllowPrerelease})
	if err != nil {
		return "", err
	}
	if _, ok, _ := s.cache.IsInstalled(rc.Ctx, s.key(version)); !ok {
		return "", fmt.Errorf("resolved version not installed")
	}
	return version, nil
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

	args := []string{"install", "--version", version, s.params.Crate}
	if len(s.params.Features) > 0 {
		args = append(args, "--features", strings.Join(s.params.Features, ","))
	}
	args = append(args, "--root", s.installPath(version))
	_, err = s.runner.Run(rc.Ctx, execx.Spec{Command: "cargo", Args: args, Timeout: 10 * time.Minute})
	if err != nil {
		return step.OutcomeErr
	}
	s.resolvedVersion = version

	if s.cache != nil {
		if err := s.cache.RecordInstallPath(rc.Ctx, s.key(version), s.installPath(version), time.Now()); err != nil {
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
	return cache.ResourceKey{Kind: cache.KindCargo, Values: []any{s.params.Crate, version}}
}

func (s *Step) installPath(version string) string {
	return filepath.Join(s.installRoot, "cargo-install", s.params.Crate, version)
}

// InstalledResource reports this step's resolved resource so the pipeline
// orchestrator can link it into the install cache once env_version_id is
// known.
func (s *Step) InstalledResource() (step.InstalledResource, bool) {
	if s.resolvedVersion == "" {
		return step.InstalledResource{}, false
	}
	return step.InstalledResource{
		CacheKindName: cache.KindCargo.Installed,
		KeyValues:     []any{s.params.Crate, s.resolvedVersion},
		InstallPath:   s.installPath(s.resolvedVersion),
	}, true
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	if s.resolvedVersion == "" {
		return fmt.Errorf("cargo-install %s: no resolved version recorded", s.params.Crate)
	}
	b.AddPath(filepath.Join(s.installPath(s.resolvedVersion), "bin"), 0)
	return nil
}

func (s *Step) listVersions(rc step.RunContext) ([]string, error) {
	fetch := func() ([]string, error) { return fetchCratesIndex(rc, s.params.Crate) }
	if s.cache == nil {
		return fetch()
	}
	return s.cache.VersionsWithRefresh(rc.Ctx, cache.VersionsCargo, []string{s.params.Crate}, s.params.VersionsExpire, time.Now(), fetch)
}

// fetchCratesIndex fetches the crate's entry from the crates.io sparse
// index: https://index.crates.io/<prefix>/<crate>, one JSON object per line.
func fetchCratesIndex(rc step.RunContext, crate string) ([]string, error) {
	lower := strings.ToLower(crate)
	var prefix string
	switch len(lower) {
	case 1:
		prefix = "1"
	case 2:
		prefix = "2"
	case 3:
		prefix = "3/" + lower[:1]
	default:
		prefix = lower[:2] + "/" + lower[2:4]
	}

	url := fmt.Sprintf("https://index.crates.io/%s/%s", prefix, lower)
	req, err := http.NewRequestWithContext(rc.Ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching crates.io index for %s: %w", crate, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching crates.io index for %s: status %d", crate, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec struct {
			Vers string `json:"vers"`
			Yanked bool `json:"yanked"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Yanked || rec.Vers == "" {
			continue
		}
		versions = append(versions, rec.Vers)
	}
	return versions, nil
}
