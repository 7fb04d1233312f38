package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name          string
		current       string
		latest        string
		wantLatest    string
		wantHasUpdate bool
	}{
		{"newer version available", "1.0.0", "1.1.0", "v1.1.0", true},
		{"major version update", "1.9.9", "2.0.0", "v2.0.0", true},
		{"same version", "1.0.0", "1.0.0", "", false},
		{"current is newer", "2.0.0", "1.0.0", "", false},
		{"v prefix on both", "v1.0.0", "v1.1.0", "v1.1.0", true},
		{"prerelease current vs stable latest", "1.0.0-beta.1", "1.0.0", "v1.0.0", true},
		{"empty latest returns no update", "1.0.0", "", "", false},
		{"invalid current version", "not-a-version", "1.0.0", "", false},
		{"invalid latest version", "1.0.0", "not-a-version", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLatest, gotHasUpdate := compareVersions(tt.current, tt.latest)
			require.Equal(t, tt.wantLatest, gotLatest)
			require.Equal(t, tt.wantHasUpdate, gotHasUpdate)
		})
	}
}

func TestCheckSpecialVersionsNeverUpdate(t *testing.T) {
	cacheHome := t.TempDir()
	for _, v := range []string{"", "dev"} {
		latest, hasUpdate := Check(context.Background(), cacheHome, v)
		require.Empty(t, latest)
		require.False(t, hasUpdate)
	}
}

func withMockManifest(t *testing.T, code int, body string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	original := manifestURL
	manifestURL = server.URL
	t.Cleanup(func() { manifestURL = original })
}

func TestCheckWithMockServer(t *testing.T) {
	withMockManifest(t, http.StatusOK, `{"latest": "2.0.0", "versions": ["2.0.0", "1.0.0"]}`)

	latest, hasUpdate := Check(context.Background(), t.TempDir(), "1.0.0")
	require.Equal(t, "v2.0.0", latest)
	require.True(t, hasUpdate)
}

func TestCheckServerErrorReturnsNoUpdate(t *testing.T) {
	withMockManifest(t, http.StatusInternalServerError, `{"error": "boom"}`)

	latest, hasUpdate := Check(context.Background(), t.TempDir(), "1.0.0")
	require.Empty(t, latest)
	require.False(t, hasUpdate)
}

func TestCheckMalformedManifestNeverUpdates(t *testing.T) {
	bodies := []string{
		`{"latest": "1.0.0"`,
		`{}`,
		`{"latest": ""}`,
		`{"latest": "not-semver"}`,
		``,
	}
	for _, body := range bodies {
		withMockManifest(t, http.StatusOK, body)
		_, hasUpdate := Check(context.Background(), t.TempDir(), "1.0.0")
		require.False(t, hasUpdate, "body=%q", body)
	}
}

func TestCheckUsesCacheWithinWindow(t *testing.T) {
	cacheHome := t.TempDir()
	saveCache(cacheHome, cacheFile{LastCheck: time.Now(), LatestVersion: "2.0.0"})

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"latest": "3.0.0"}`))
	}))
	defer server.Close()
	original := manifestURL
	manifestURL = server.URL
	defer func() { manifestURL = original }()

	latest, hasUpdate := Check(context.Background(), cacheHome, "1.0.0")
	require.Zero(t, requests)
	require.Equal(t, "v2.0.0", latest)
	require.True(t, hasUpdate)
}

func TestCheckFetchesWhenCacheExpired(t *testing.T) {
	cacheHome := t.TempDir()
	saveCache(cacheHome, cacheFile{LastCheck: time.Now().Add(-25 * time.Hour), LatestVersion: "2.0.0"})
	withMockManifest(t, http.StatusOK, `{"latest": "3.0.0"}`)

	latest, hasUpdate := Check(context.Background(), cacheHome, "1.0.0")
	require.Equal(t, "v3.0.0", latest)
	require.True(t, hasUpdate)
}

func TestCheckFallsBackToCacheOnFetchFailure(t *testing.T) {
	cacheHome := t.TempDir()
	saveCache(cacheHome, cacheFile{LastCheck: time.Now().Add(-25 * time.Hour), LatestVersion: "2.0.0"})
	withMockManifest(t, http.StatusInternalServerError, ``)

	latest, hasUpdate := Check(context.Background(), cacheHome, "1.0.0")
	require.Equal(t, "v2.0.0", latest)
	require.True(t, hasUpdate)
}

func TestCheckSavesCacheAfterFetch(t *testing.T) {
	cacheHome := t.TempDir()
	withMockManifest(t, http.StatusOK, `{"latest": "2.0.0"}`)

	_, _ = Check(context.Background(), cacheHome, "1.0.0")

	data, err := os.ReadFile(filepath.Join(cacheHome, cacheFileName))
	require.NoError(t, err)
	var saved cacheFile
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Equal(t, "2.0.0", saved.LatestVersion)
}

func TestClearCacheRemovesExistingFile(t *testing.T) {
	cacheHome := t.TempDir()
	saveCache(cacheHome, cacheFile{LastCheck: time.Now(), LatestVersion: "1.0.0"})

	require.NoError(t, ClearCache(cacheHome))
	_, err := os.Stat(filepath.Join(cacheHome, cacheFileName))
	require.True(t, os.IsNotExist(err))
}

func TestClearCacheNoopWithoutFile(t *testing.T) {
	require.NoError(t, ClearCache(t.TempDir()))
}
