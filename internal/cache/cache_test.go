package cache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/storedb"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := storedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	insertEnvVersion(t, db, "E_A")
	insertEnvVersion(t, db, "E_B")
	return New(db)
}

func insertEnvVersion(t *testing.T, db *storedb.DB, id string) {
	t.Helper()
	err := db.WithExclusive(context.Background(), func(q storedb.Querier) error {
		_, err := q.ExecContext(context.Background(),
			`INSERT INTO env_versions (env_version_id, workdir_id, config_hash, versions_json, paths_json, env_vars_json, created_at, last_assigned_at)
			 VALUES (?, 'wd', 'c', '[]', '[]', '[]', 1, 1)`, id)
		return err
	})
	require.NoError(t, err)
}

// S1: two work directories share one installed resource via required_by.
func TestReferenceCountingS1(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	key := ResourceKey{Kind: KindMise, Values: []any{"go", "1.22.0"}}

	require.NoError(t, c.RecordInstall(ctx, key, "/opt/go/1.22.0", "E_A", now))
	_, ok, err := c.IsInstalled(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	// up(B) finds it met, adds E_B.
	require.NoError(t, c.RecordInstall(ctx, key, "/opt/go/1.22.0", "E_B", now))

	// down(A): release E_A, resource remains (E_B still references it).
	require.NoError(t, c.ReleaseEnvVersion(ctx, "E_A"))
	candidates, err := c.ListUninstallCandidates(ctx, KindMise, 0, now)
	require.NoError(t, err)
	require.Empty(t, candidates, "resource must survive while E_B still references it")

	// down(B): release E_B, resource becomes orphaned but still within
	// cleanup_after grace period.
	require.NoError(t, c.ReleaseEnvVersion(ctx, "E_B"))
	candidates, err = c.ListUninstallCandidates(ctx, KindMise, 24*time.Hour, now)
	require.NoError(t, err)
	require.Empty(t, candidates, "orphaned resource must not be reaped before cleanup_after elapses")

	// Past cleanup_after, it becomes a candidate.
	later := now.Add(48 * time.Hour)
	candidates, err = c.ListUninstallCandidates(ctx, KindMise, 24*time.Hour, later)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, []any{"go", "1.22.0"}, candidates[0].Values)
}

func TestRemovedResourceStillReferencedCannotBeReaped(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	key := ResourceKey{Kind: KindCargo, Values: []any{"ripgrep", "14.1.0"}}
	require.NoError(t, c.RecordInstall(ctx, key, "/home/u/.cargo/bin", "E_A", now))

	later := now.Add(365 * 24 * time.Hour)
	candidates, err := c.ListUninstallCandidates(ctx, KindCargo, time.Hour, later)
	require.NoError(t, err)
	require.Empty(t, candidates, "required_by non-empty must block reaping regardless of age")
}

func TestVersionCacheRoundTripAndTTL(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	_, found, _, err := c.GetVersions(ctx, VersionsGitHubRelease, []string{"XaF", "omni"}, 24*time.Hour, now)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.PutVersions(ctx, VersionsGitHubRelease, []string{"XaF", "omni"},
		[]string{"0.0.40", "0.0.41"}, now))

	entry, found, fresh, err := c.GetVersions(ctx, VersionsGitHubRelease, []string{"XaF", "omni"}, 24*time.Hour, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, fresh)
	require.Equal(t, []string{"0.0.40", "0.0.41"}, entry.Versions)

	_, found, fresh, err = c.GetVersions(ctx, VersionsGitHubRelease, []string{"XaF", "omni"}, time.Hour, now.Add(48*time.Hour))
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, fresh, "entry older than ttl must report stale")
}

func TestVersionsWithRefreshReturnsCachedWithoutCallingFetch(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, c.PutVersions(ctx, VersionsCargo, []string{"ripgrep"}, []string{"13.0.0"}, now))

	calls := 0
	versions, err := c.VersionsWithRefresh(ctx, VersionsCargo, []string{"ripgrep"}, 24*time.Hour, now.Add(time.Minute),
		func() ([]string, error) {
			calls++
			return []string{"14.0.0"}, nil
		})
	require.NoError(t, err)
	require.Equal(t, []string{"13.0.0"}, versions)
	require.Zero(t, calls, "fresh cache entry must not call fetch")
}

func TestVersionsWithRefreshFetchesAndPersistsOnMiss(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	versions, err := c.VersionsWithRefresh(ctx, VersionsCargo, []string{"ripgrep"}, 24*time.Hour, now,
		func() ([]string, error) { return []string{"14.0.0"}, nil })
	require.NoError(t, err)
	require.Equal(t, []string{"14.0.0"}, versions)

	entry, found, fresh, err := c.GetVersions(ctx, VersionsCargo, []string{"ripgrep"}, 24*time.Hour, now)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, fresh)
	require.Equal(t, []string{"14.0.0"}, entry.Versions)
}

func TestVersionsWithRefreshCollapsesConcurrentFetches(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var calls int32
	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			versions, err := c.VersionsWithRefresh(ctx, VersionsCargo, []string{"ripgrep"}, 24*time.Hour, now,
				func() ([]string, error) {
					atomic.AddInt32(&calls, 1)
					return []string{"14.0.0"}, nil
				})
			require.NoError(t, err)
			results[i] = versions
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	for _, r := range results {
		require.Equal(t, []string{"14.0.0"}, r)
	}
}
