// Package githubrelease implements the github-release backend (spec §4.2):
// resolve a version against a repo's published releases and install a
// matching platform asset. Download/extract uses atomic temp-file writes
// and bounded reader sizes against zip-bomb archives; release-list parsing
// uses tidwall/gjson rather than a generated API client, keeping GitHub API
// responses untyped.
package githubrelease

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/omnicli/omni/internal/cache"
	"github.com/omnicli/omni/internal/operation"
	"github.com/omnicli/omni/internal/step"
	"github.com/omnicli/omni/internal/versionsel"
)

const (
	maxDownloadSize  = 200 * 1024 * 1024
	maxExtractedSize = 400 * 1024 * 1024
)

var (
	ErrDownloadFailed   = errors.New("githubrelease: download failed")
	ErrExtractionFailed = errors.New("githubrelease: extraction failed")
	ErrChecksumMismatch = errors.New("githubrelease: checksum mismatch")
	ErrChecksumRequired = errors.New("githubrelease: no checksum could be located and checksum.required is set")
)

var (
	defaultCache      *cache.Cache
	defaultInstallDir = func() string { return filepath.Join("github-release") }
	httpClient        = http.DefaultClient
)

// Configure installs the shared install cache used by every github-release
// factory, and the root directory installs are placed under.
func Configure(c *cache.Cache, installRoot string) {
	defaultCache = c
	defaultInstallDir = func() string { return installRoot }
}

func init() {
	operation.Register(func(raw any) (step.Step, error) {
		return New(raw, defaultCache)
	}, "github-release", "github_release")
}

// Params is one github-release operation's parsed configuration.
type Params struct {
	Repo           string // "owner/name"
	Version        string
	AssetPattern   string // e.g. "{name}_{os}_{arch}.tar.gz"; {os}/{arch}/{version} substituted
	BinaryName     string
	VersionsExpire time.Duration
	Checksum       ChecksumParams
}

// ChecksumParams is spec §4.2's `checksum:` block: either a bare hex digest
// or a map naming the algorithm explicitly and whether one must be located.
type ChecksumParams struct {
	Value     string
	Algorithm string // "sha256", "sha512" or "sha3-256"; inferred from digest length when empty
	Required  bool
}

func New(raw any, c *cache.Cache) (step.Step, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("github-release: expected a map, got %T", raw)
	}
	repo, _ := m["repo"].(string)
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, fmt.Errorf("github-release: %q is not a valid owner/name repo", repo)
	}
	p := Params{Repo: repo, Version: "latest", VersionsExpire: 24 * time.Hour}
	if v, ok := m["version"].(string); ok && v != "" {
		p.Version = v
	}
	if v, ok := m["asset_pattern"].(string); ok {
		p.AssetPattern = v
	}
	p.BinaryName = strings.SplitN(repo, "/", 2)[1]
	if v, ok := m["binary_name"].(string); ok && v != "" {
		p.BinaryName = v
	}
	if raw, ok := m["checksum"]; ok {
		switch v := raw.(type) {
		case string:
			p.Checksum.Value = v
		case map[string]any:
			if s, ok := v["value"].(string); ok {
				p.Checksum.Value = s
			}
			if s, ok := v["algorithm"].(string); ok {
				p.Checksum.Algorithm = s
			}
			if b, ok := v["required"].(bool); ok {
				p.Checksum.Required = b
			}
		}
	}
	return &Step{params: p, cache: c}, nil
}

// Step is the github-release backend's step.Step implementation.
type Step struct {
	params Params
	cache  *cache.Cache

	resolvedVersion string
	resolvedAsset   string
}

func (s *Step) Kind() string { return "github-release" }

func (s *Step) IsAvailable(step.RunContext) bool { return true }

func (s *Step) owner() string { return strings.SplitN(s.params.Repo, "/", 2)[0] }
func (s *Step) name() string  { return strings.SplitN(s.params.Repo, "/", 2)[1] }

func (s *Step) IsMet(rc step.RunContext) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	version, err := s.resolveFromCache(rc)
	if err != nil || version == "" {
		return false, nil //nolint:nilerr // pure probe: unresolved means not met
	}
	key := cache.ResourceKey{Kind: cache.KindGitHubRelease, Values: []any{s.owner(), s.name(), version}}
	_, ok, err := s.cache.IsInstalled(rc.Ctx, key)
	if err != nil {
		return false, nil //nolint:nilerr
	}
	return ok, nil
}

func (s *Step) resolveFromCache(rc step.RunContext) (string, error) {
	constraint, err := versionsel.Parse(s.params.Version)
	if err != nil {
		return "", err
	}
	entry, found, _, err := s.cache.GetVersions(rc.Ctx, cache.VersionsGitHubRelease, []string{s.owner(), s.name()}, s.params.VersionsExpire, time.Now())
	if err != nil || !found {
		return "", fmt.Errorf("no cached release list")
	}
	return versionsel.Resolve(constraint, entry.Versions, versionsel.FilterOptions{})
}

func (s *Step) Up(rc step.RunContext) step.Outcome {
	constraint, err := versionsel.Parse(s.params.Version)
	if err != nil {
		return step.OutcomeErr
	}

	fetch := func() ([]string, error) { return fetchReleaseTags(rc.Ctx, s.owner(), s.name()) }
	var versions []string
	var fetchErr error
	if s.cache != nil {
		versions, fetchErr = s.cache.VersionsWithRefresh(rc.Ctx, cache.VersionsGitHubRelease, []string{s.owner(), s.name()}, s.params.VersionsExpire, time.Now(), fetch)
	} else {
		versions, fetchErr = fetch()
	}
	if fetchErr != nil {
		return step.OutcomeErr
	}

	version, err := versionsel.Resolve(constraint, versions, versionsel.FilterOptions{})
	if err != nil {
		return step.OutcomeErr
	}
	s.resolvedVersion = version

	if !rc.Upgrade && s.cache != nil {
		key := cache.ResourceKey{Kind: cache.KindGitHubRelease, Values: []any{s.owner(), s.name(), version}}
		if path, ok, _ := s.cache.IsInstalled(rc.Ctx, key); ok {
			s.resolvedAsset = path
			return step.OutcomeOK
		}
	}

	asset, releaseAssets, err := s.resolveAsset(rc.Ctx, version)
	if err != nil {
		return step.OutcomeErr
	}

	destDir := filepath.Join(defaultInstallDir(), s.owner(), s.name(), version)
	destPath := filepath.Join(destDir, s.params.BinaryName)
	if runtime.GOOS == "windows" {
		destPath += ".exe"
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil { //nolint:gosec // install tree, not secrets
		return step.OutcomeErr
	}
	if err := s.downloadAndExtract(rc.Ctx, asset, releaseAssets, destPath); err != nil {
		return step.OutcomeErr
	}
	s.resolvedAsset = destPath

	if s.cache != nil {
		key := cache.ResourceKey{Kind: cache.KindGitHubRelease, Values: []any{s.owner(), s.name(), version}}
		if err := s.cache.RecordInstallPath(rc.Ctx, key, destPath, time.Now()); err != nil {
			return step.OutcomeErr
		}
	}
	return step.OutcomeOK
}

// resolveAsset resolves the release's tag and picks the one asset whose name
// matches params.AssetPattern (a doublestar glob with {os}/{arch}/{version}
// substituted in, falling back to `*{os}*{arch}*` when the config gives
// none). It also returns the full asset list so the checksum can be
// resolved against release-published checksum files.
func (s *Step) resolveAsset(ctx context.Context, version string) (releaseAsset, []releaseAsset, error) {
	pattern := s.params.AssetPattern
	if pattern == "" {
		pattern = "*{os}*{arch}*"
	}

	tag, assets, err := fetchReleaseAssets(ctx, s.owner(), s.name(), version)
	if err != nil {
		return releaseAsset{}, nil, err
	}

	for _, archAlias := range archAliases(runtime.GOARCH) {
		expanded := strings.NewReplacer(
			"{name}", s.name(),
			"{version}", strings.TrimPrefix(version, "v"),
			"{os}", runtime.GOOS,
			"{arch}", archAlias,
		).Replace(pattern)
		for _, a := range assets {
			if matched, err := doublestar.Match(expanded, a.name); err == nil && matched {
				return a, assets, nil
			}
		}
	}
	return releaseAsset{}, nil, fmt.Errorf("%w: no asset in %s@%s matches pattern %q for %s/%s", ErrDownloadFailed, s.params.Repo, tag, pattern, runtime.GOOS, runtime.GOARCH)
}

// resolveChecksum locates a checksum for chosen: an explicit checksum.value
// takes priority, otherwise a companion checksum asset published alongside
// the release is searched for, per spec §4.2's "if a checksum asset is
// discovered (or checksum.value supplied), the asset is verified".
func (s *Step) resolveChecksum(ctx context.Context, assets []releaseAsset, chosen releaseAsset) (hexDigest, algo string, err error) {
	hexDigest = s.params.Checksum.Value
	algo = s.params.Checksum.Algorithm
	if hexDigest == "" {
		if discovered, discoveredAlgo, ok := discoverChecksum(ctx, assets, chosen.name); ok {
			hexDigest = discovered
			if algo == "" {
				algo = discoveredAlgo
			}
		} else if s.params.Checksum.Required {
			return "", "", fmt.Errorf("%w: %s", ErrChecksumRequired, chosen.name)
		}
	}
	return hexDigest, inferAlgorithm(algo, hexDigest), nil
}

// inferAlgorithm honors an explicit algorithm; otherwise spec §4.2's
// "algorithm is ... inferred from digest length" applies: 128 hex chars is
// sha512, anything else (64, the common case) is sha256. A digest that's
// actually sha3-256 must name its algorithm explicitly, since sha3-256 and
// sha256 digests are both 64 hex characters.
func inferAlgorithm(explicit, hexDigest string) string {
	if explicit != "" {
		return explicit
	}
	if len(hexDigest) == 128 {
		return "sha512"
	}
	return "sha256"
}

// discoverChecksum looks for a companion checksum asset published alongside
// the chosen asset: either "<asset>.sha256"/".sha512"/".sha3-256" files
// containing a single digest, or a combined sums file (checksums.txt,
// SHA256SUMS, etc.) listing "<digest>  <filename>" per line.
func discoverChecksum(ctx context.Context, assets []releaseAsset, assetName string) (hexDigest, algo string, ok bool) {
	for _, c := range []struct{ suffix, algo string }{
		{".sha256", "sha256"}, {".sha512", "sha512"}, {".sha3-256", "sha3-256"},
	} {
		for _, a := range assets {
			if a.name != assetName+c.suffix {
				continue
			}
			body, err := fetchSmallAsset(ctx, a.url)
			if err != nil {
				continue
			}
			if fields := strings.Fields(string(body)); len(fields) > 0 {
				return fields[0], c.algo, true
			}
		}
	}

	for _, sf := range []struct{ keyword, algo string }{
		{"sha256sums", "sha256"}, {"sha512sums", "sha512"}, {"checksums", "sha256"},
	} {
		for _, a := range assets {
			if !strings.Contains(strings.ToLower(a.name), sf.keyword) {
				continue
			}
			body, err := fetchSmallAsset(ctx, a.url)
			if err != nil {
				continue
			}
			if digest, ok := parseSumsFile(string(body), assetName); ok {
				return digest, sf.algo, true
			}
		}
	}
	return "", "", false
}

// parseSumsFile scans a "sha256sum -c"-style listing for the line naming
// assetName, tolerating the optional "*" binary-mode marker.
func parseSumsFile(body, assetName string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.TrimPrefix(fields[1], "*") == assetName {
			return fields[0], true
		}
	}
	return "", false
}

func fetchSmallAsset(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
}

// verifyChecksum hashes path with algo and compares against wantHex.
// wantHex == "" means no checksum was supplied or discovered, so verification
// is skipped.
func verifyChecksum(path, wantHex, algo string) error {
	if wantHex == "" {
		return nil
	}
	f, err := os.Open(path) //nolint:gosec // our own temp download
	if err != nil {
		return fmt.Errorf("%w: opening downloaded asset for checksum: %w", ErrChecksumMismatch, err)
	}
	defer func() { _ = f.Close() }()

	var h interface {
		io.Writer
		Sum([]byte) []byte
	}
	switch algo {
	case "sha512":
		h = sha512.New()
	case "sha3-256":
		h = sha3.New256()
	default:
		h = sha256.New()
	}
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("%w: hashing downloaded asset: %w", ErrChecksumMismatch, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, wantHex) {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, wantHex, got)
	}
	return nil
}

// archAliases lists the arch spellings release pipelines commonly publish
// assets under, tried in order, since GOARCH itself ("amd64") often isn't
// the string an asset name uses.
func archAliases(goarch string) []string {
	switch goarch {
	case "amd64":
		return []string{"amd64", "x86_64"}
	case "arm64":
		return []string{"arm64", "aarch64"}
	default:
		return []string{goarch}
	}
}

func (s *Step) Down(step.RunContext) step.Outcome {
	return step.OutcomeOK
}

func (s *Step) InstalledResource() (step.InstalledResource, bool) {
	if s.resolvedVersion == "" {
		return step.InstalledResource{}, false
	}
	return step.InstalledResource{
		CacheKindName: cache.KindGitHubRelease.Installed,
		KeyValues:     []any{s.owner(), s.name(), s.resolvedVersion},
		InstallPath:   s.resolvedAsset,
	}, true
}

func (s *Step) EnvContribution(b *step.EnvBuilder) error {
	if s.resolvedAsset == "" {
		return fmt.Errorf("github-release %s: no resolved install path", s.params.Repo)
	}
	b.AddPath(filepath.Dir(s.resolvedAsset), 10)
	return nil
}

// fetchReleaseTags lists every non-draft release tag for owner/name,
// prereleases included, newest first as returned by the API.
func fetchReleaseTags(ctx context.Context, owner, name string) ([]string, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases?per_page=100", owner, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: github API returned %d", ErrDownloadFailed, resp.StatusCode)
	}

	var tags []string
	for _, r := range gjson.ParseBytes(body).Array() {
		if r.Get("draft").Bool() {
			continue
		}
		tag := r.Get("tag_name").String()
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

type releaseAsset struct {
	name string
	url  string
}

// fetchReleaseAssets finds the release tagged with version (tolerating a
// "v" prefix mismatch) and returns its tag plus every downloadable asset.
func fetchReleaseAssets(ctx context.Context, owner, name, version string) (tag string, assets []releaseAsset, err error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases?per_page=100", owner, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("%w: github API returned %d", ErrDownloadFailed, resp.StatusCode)
	}

	wantTag := strings.TrimPrefix(version, "v")
	var found gjson.Result
	for _, r := range gjson.ParseBytes(body).Array() {
		if strings.TrimPrefix(r.Get("tag_name").String(), "v") == wantTag {
			found = r
			break
		}
	}
	if !found.Exists() {
		return "", nil, fmt.Errorf("%w: no release tagged %s in %s/%s", ErrDownloadFailed, version, owner, name)
	}

	for _, a := range found.Get("assets").Array() {
		assets = append(assets, releaseAsset{
			name: a.Get("name").String(),
			url:  a.Get("browser_download_url").String(),
		})
	}
	return found.Get("tag_name").String(), assets, nil
}

// downloadAndExtract downloads the chosen asset and resolves its checksum
// concurrently (spec §5's thread-pool for parallel-safe sub-tasks applies
// here since the asset body and its companion checksum file are both
// release assets fetched over the network independently of one another),
// verifies the digest, and extracts binaryName into destPath.
func (s *Step) downloadAndExtract(ctx context.Context, chosen releaseAsset, releaseAssets []releaseAsset, destPath string) error {
	dir := filepath.Dir(destPath)
	tempFile, err := os.CreateTemp(dir, ".github-release-download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := tempFile.Name()
	_ = tempFile.Close()
	defer func() { _ = os.Remove(tempPath) }()

	var checksumHex, checksumAlgo string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return downloadFile(gctx, chosen.url, tempPath) })
	g.Go(func() error {
		hexDigest, algo, err := s.resolveChecksum(gctx, releaseAssets, chosen)
		if err != nil {
			return err
		}
		checksumHex, checksumAlgo = hexDigest, algo
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// ChecksumError is treated as InstallError; the deferred os.Remove above
	// deletes the partially downloaded asset either way.
	if err := verifyChecksum(tempPath, checksumHex, checksumAlgo); err != nil {
		return err
	}

	if strings.HasSuffix(chosen.url, ".zip") {
		return extractFromZip(tempPath, destPath, s.params.BinaryName)
	}
	if strings.HasSuffix(chosen.url, ".tar.gz") || strings.HasSuffix(chosen.url, ".tgz") {
		return extractFromTarGz(tempPath, destPath, s.params.BinaryName)
	}

	// Bare binary asset: move it into place directly.
	f, err := os.Open(tempPath) //nolint:gosec // path is our own temp file
	if err != nil {
		return fmt.Errorf("%w: opening downloaded asset: %w", ErrExtractionFailed, err)
	}
	defer func() { _ = f.Close() }()
	return writeExecutable(f, destPath, maxExtractedSize)
}

func downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrDownloadFailed, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	out, err := os.Create(destPath) //nolint:gosec // destPath built from controlled install-dir path
	if err != nil {
		return fmt.Errorf("%w: creating file: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = out.Close() }()

	limited := io.LimitReader(resp.Body, maxDownloadSize+1)
	written, err := io.Copy(out, limited)
	if err != nil {
		return fmt.Errorf("%w: writing file: %w", ErrDownloadFailed, err)
	}
	if written > maxDownloadSize {
		return fmt.Errorf("%w: exceeds maximum size of %d bytes", ErrDownloadFailed, maxDownloadSize)
	}
	return out.Sync()
}

func extractFromTarGz(archivePath, destPath, binaryName string) error {
	file, err := os.Open(archivePath) //nolint:gosec // our own temp file
	if err != nil {
		return fmt.Errorf("%w: opening archive: %w", ErrExtractionFailed, err)
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: creating gzip reader: %w", ErrExtractionFailed, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar: %w", ErrExtractionFailed, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		base := filepath.Base(header.Name)
		if base == binaryName || base == binaryName+".exe" {
			limited := io.LimitReader(tr, maxExtractedSize+1)
			return writeExecutable(limited, destPath, maxExtractedSize)
		}
	}
	return fmt.Errorf("%w: %s not found in archive", ErrExtractionFailed, binaryName)
}

func extractFromZip(archivePath, destPath, binaryName string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: opening zip: %w", ErrExtractionFailed, err)
	}
	defer func() { _ = reader.Close() }()

	for _, f := range reader.File {
		base := filepath.Base(f.Name)
		if strings.EqualFold(base, binaryName) || strings.EqualFold(base, binaryName+".exe") {
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("%w: opening file in zip: %w", ErrExtractionFailed, err)
			}
			limited := io.LimitReader(rc, maxExtractedSize+1)
			writeErr := writeExecutable(limited, destPath, maxExtractedSize)
			_ = rc.Close()
			return writeErr
		}
	}
	return fmt.Errorf("%w: %s not found in archive", ErrExtractionFailed, binaryName)
}

func writeExecutable(r io.Reader, destPath string, maxSize int64) error {
	tempFile, err := os.CreateTemp(filepath.Dir(destPath), ".extract-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating output file: %w", ErrExtractionFailed, err)
	}
	tempPath := tempFile.Name()

	written, err := io.Copy(tempFile, r)
	if err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: writing binary: %w", ErrExtractionFailed, err)
	}
	if written > maxSize {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: extracted file exceeds maximum size of %d bytes", ErrExtractionFailed, maxSize)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: syncing file to disk: %w", ErrExtractionFailed, err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: closing file: %w", ErrExtractionFailed, err)
	}
	if err := os.Chmod(tempPath, 0o755); err != nil { //nolint:gosec // executable needs 755
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: setting executable permissions: %w", ErrExtractionFailed, err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: renaming file: %w", ErrExtractionFailed, err)
	}
	return nil
}
