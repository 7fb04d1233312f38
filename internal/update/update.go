// Package update implements omni's self-update check (SPEC_FULL.md §12's
// "Update self-check" supplement): a 24h-cached manifest fetch comparing
// the running binary's version against the latest published release.
// Silent on any network failure; never gates `up`/`down` or any other
// pipeline operation.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/omnicli/omni/internal/retry"
)

const (
	defaultManifestURL = "https://omnicli.dev/releases/manifest.json"
	installScript       = "https://omnicli.dev/install.sh"
	cacheFileName       = "update-check.json"
	cacheDuration       = 24 * time.Hour
	httpTimeout         = 5 * time.Second
	maxResponseSize     = 64 * 1024
)

// manifestURL is overridden in tests to point at a local server.
var manifestURL = defaultManifestURL

// httpClient is overridden in tests.
var httpClient = &http.Client{Timeout: httpTimeout}

type manifest struct {
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
}

type cacheFile struct {
	LastCheck     time.Time `json:"last_check"`
	LatestVersion string    `json:"latest_version"`
}

func cachePath(cacheHome string) string {
	return filepath.Join(cacheHome, cacheFileName)
}

func loadCache(cacheHome string) *cacheFile {
	data, err := os.ReadFile(cachePath(cacheHome))
	if err != nil {
		return nil
	}
	var c cacheFile
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	return &c
}

func saveCache(cacheHome string, c cacheFile) {
	path := cachePath(cacheHome)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}

func fetchLatestVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("update: unexpected status %d", resp.StatusCode)
	}

	var m manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&m); err != nil {
		return "", err
	}
	if m.Latest == "" {
		return "", errors.New("update: manifest has empty latest version")
	}
	if _, err := semver.NewVersion(strings.TrimPrefix(m.Latest, "v")); err != nil {
		return "", fmt.Errorf("update: invalid version in manifest: %w", err)
	}
	return m.Latest, nil
}

func fetchLatestVersionWithRetry(ctx context.Context) (string, error) {
	var result string
	err := retry.Do(ctx, func(ctx context.Context) error {
		v, err := fetchLatestVersion(ctx)
		result = v
		return err
	}, retry.WithMaxAttempts(3), retry.WithInitialDelay(500*time.Millisecond), retry.WithMaxDelay(5*time.Second))
	return result, err
}

// Check compares currentVersion against the cached/fetched manifest,
// returning the latest published version and whether it is newer. Silent
// on any error (empty currentVersion, network failure, malformed
// manifest): update.Check must never itself be a reason `omni` fails.
func Check(ctx context.Context, cacheHome, currentVersion string) (latest string, hasUpdate bool) {
	if currentVersion == "" || currentVersion == "dev" {
		return "", false
	}

	c := loadCache(cacheHome)
	if c != nil && time.Since(c.LastCheck) < cacheDuration {
		return compareVersions(currentVersion, c.LatestVersion)
	}

	fetched, err := fetchLatestVersionWithRetry(ctx)
	if err != nil {
		if c != nil {
			return compareVersions(currentVersion, c.LatestVersion)
		}
		return "", false
	}

	saveCache(cacheHome, cacheFile{LastCheck: time.Now(), LatestVersion: fetched})
	return compareVersions(currentVersion, fetched)
}

func compareVersions(current, latest string) (string, bool) {
	if latest == "" {
		return "", false
	}
	cur, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return "", false
	}
	lat, err := semver.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return "", false
	}
	if lat.GreaterThan(cur) {
		return "v" + lat.String(), true
	}
	return "", false
}

// Run re-executes the published install script to replace the running
// binary with the latest release.
func Run() error {
	cmd := exec.Command("bash", "-c", "set -o pipefail; curl -fsSL "+installScript+" | bash")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// ClearCache removes the cached manifest check, forcing the next Check to
// hit the network.
func ClearCache(cacheHome string) error {
	err := os.Remove(cachePath(cacheHome))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
