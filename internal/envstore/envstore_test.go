package envstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnicli/omni/internal/storedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

// P4: permuting input order that doesn't change meaning must not change
// the computed id; changing a value must change it.
func TestFingerprintDeterminism(t *testing.T) {
	in := FingerprintInput{
		ResolvedVersions: []ResolvedVersion{{Key: "go", Version: "1.22.0"}},
		OrderedPaths:     []PathContribution{{Dir: "/opt/go/bin", Priority: 0}},
		OrderedEnvVars:   []EnvVarContribution{{Name: "GOROOT", Op: "set", Value: "/opt/go"}},
		ConfigFiles: []ConfigFileModTime{
			{Path: "/b/.omni.yaml", ModTime: 10},
			{Path: "/a/.omni.yaml", ModTime: 20},
		},
		ConfigHash: "abc",
	}
	id1, err := Fingerprint(in)
	require.NoError(t, err)

	in.ConfigFiles = []ConfigFileModTime{
		{Path: "/a/.omni.yaml", ModTime: 20},
		{Path: "/b/.omni.yaml", ModTime: 10},
	}
	id2, err := Fingerprint(in)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "config file ordering must not affect the fingerprint")

	in.ResolvedVersions = []ResolvedVersion{{Key: "go", Version: "1.23.0"}}
	id3, err := Fingerprint(in)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestFingerprintEmptyUpConfigIsWellDefined(t *testing.T) {
	id, err := Fingerprint(FingerprintInput{ConfigHash: "empty"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	id2, err := Fingerprint(FingerprintInput{ConfigHash: "empty"})
	require.NoError(t, err)
	require.Equal(t, id, id2)
}

// P2: at most one open env_history row per workdir_id, across repeated
// activations.
func TestActivateMaintainsSingleOpenHistoryRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	for i, envID := range []string{"E1", "E2", "E3"} {
		err := s.Activate(ctx, Activation{
			WorkDirID:    "wd1",
			WorkDirPath:  "/home/u/proj",
			EnvVersionID: envID,
			ConfigHash:   "c",
			HeadSHA:      "sha",
			Now:          now.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	var openCount int
	err := s.db.WithShared(ctx, func(q storedb.Querier) error {
		return q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM env_history WHERE workdir_id = 'wd1' AND used_until_date IS NULL`).Scan(&openCount)
	})
	require.NoError(t, err)
	require.Equal(t, 1, openCount)

	current, err := s.CurrentEnvVersion(ctx, "wd1")
	require.NoError(t, err)
	require.Equal(t, "E3", current)
}

func TestDeactivateClosesHistoryAndRemovesPointer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	require.NoError(t, s.Activate(ctx, Activation{
		WorkDirID: "wd1", WorkDirPath: "/p", EnvVersionID: "E1", ConfigHash: "c", Now: now,
	}))

	require.NoError(t, s.Deactivate(ctx, "wd1", now.Add(time.Hour)))

	_, err := s.CurrentEnvVersion(ctx, "wd1")
	require.ErrorIs(t, err, ErrNotFound)

	var openCount int
	err = s.db.WithShared(ctx, func(q storedb.Querier) error {
		return q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM env_history WHERE workdir_id = 'wd1' AND used_until_date IS NULL`).Scan(&openCount)
	})
	require.NoError(t, err)
	require.Zero(t, openCount)
}

func TestDownOnNeverUppedWorkDirIsNoop(t *testing.T) {
	s := openTestStore(t)
	err := s.Deactivate(context.Background(), "never-upped", time.Unix(1000, 0))
	require.NoError(t, err)
}

func TestPruneOrphanedEnvVersionsKeepsReferencedOnes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	require.NoError(t, s.Activate(ctx, Activation{WorkDirID: "wd1", WorkDirPath: "/p", EnvVersionID: "E1", ConfigHash: "c", Now: now}))
	require.NoError(t, s.Activate(ctx, Activation{WorkDirID: "wd1", WorkDirPath: "/p", EnvVersionID: "E2", ConfigHash: "c", Now: now.Add(time.Hour)}))

	// E1 is still referenced by history even though it's no longer current.
	affected, err := s.PruneOrphanedEnvVersions(ctx)
	require.NoError(t, err)
	require.Zero(t, affected)

	exists, err := s.Exists(ctx, "E1")
	require.NoError(t, err)
	require.True(t, exists)
}
