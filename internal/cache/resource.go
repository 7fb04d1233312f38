// Package cache implements the install cache (spec §4.3): reference-counted
// shared installations across work directories, per-backend resolved
// version lists, and grace-period cleanup. It sits directly on
// internal/storedb's exclusive/shared transaction helpers.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omnicli/omni/internal/storedb"
)

// Kind names one of the installed/required_by table families from spec §6.
// Each kind's installed table has a composite primary key of `keyCols` plus
// an `install_path`, `created_at`, `last_required_at`; its required_by
// table adds `env_version_id`.
type Kind struct {
	Installed  string
	RequiredBy string
	KeyCols    []string
}

var (
	KindMise          = Kind{Installed: "mise_installed", RequiredBy: "mise_installed_required_by", KeyCols: []string{"tool", "version"}}
	KindGitHubRelease = Kind{Installed: "github_release_installed", RequiredBy: "github_release_required_by", KeyCols: []string{"owner", "name", "version"}}
	KindCargo         = Kind{Installed: "cargo_installed", RequiredBy: "cargo_install_required_by", KeyCols: []string{"crate", "version"}}
	KindGo            = Kind{Installed: "go_installed", RequiredBy: "go_install_required_by", KeyCols: []string{"module_path", "version"}}
	KindHomebrew      = Kind{Installed: "homebrew_install", RequiredBy: "homebrew_install_required_by", KeyCols: []string{"formula", "version", "is_cask"}}
	KindHomebrewTap   = Kind{Installed: "homebrew_tap", RequiredBy: "homebrew_tap_required_by", KeyCols: []string{"tap"}}

	kindsByName = map[string]Kind{
		KindMise.Installed:          KindMise,
		KindGitHubRelease.Installed: KindGitHubRelease,
		KindCargo.Installed:         KindCargo,
		KindGo.Installed:            KindGo,
		KindHomebrew.Installed:      KindHomebrew,
		KindHomebrewTap.Installed:   KindHomebrewTap,
	}
)

// KindByName looks up a Kind by its Installed table name, the name a
// step.InstalledResource.CacheKindName carries, so the pipeline orchestrator
// can recover a full ResourceKey without step importing this package.
func KindByName(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// ResourceKey identifies one InstalledResource: Kind plus the ordered
// values of Kind.KeyCols (e.g. {"go", "1.22.0"} for KindMise).
type ResourceKey struct {
	Kind   Kind
	Values []any
}

// Cache is the install-cache facade handed to backends.
type Cache struct {
	db *storedb.DB
	sf singleflight.Group // collapses concurrent version-list refreshes for the same key, see VersionsWithRefresh
}

// New wraps an open storedb.DB.
func New(db *storedb.DB) *Cache { return &Cache{db: db} }

func (c *Cache) whereClause(k Kind) string {
	clause := ""
	for i, col := range k.KeyCols {
		if i > 0 {
			clause += " AND "
		}
		clause += col + " = ?"
	}
	return clause
}

// IsInstalled reports whether key's resource has an installed row, returning
// its install_path if so.
func (c *Cache) IsInstalled(ctx context.Context, key ResourceKey) (installPath string, ok bool, err error) {
	err = c.db.WithShared(ctx, func(q storedb.Querier) error {
		query := fmt.Sprintf("SELECT install_path FROM %s WHERE %s", key.Kind.Installed, c.whereClause(key.Kind))
		row := q.QueryRowContext(ctx, query, key.Values...)
		scanErr := row.Scan(&installPath)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		ok = true
		return nil
	})
	return installPath, ok, err
}

// RecordInstallPath upserts only the installed row (install_path,
// last_required_at), with no required_by link. Backends call this right
// after a successful install or when confirming an already-installed
// version satisfies a constraint; the required_by link to the run's
// env_version_id can only be added once the pipeline has finished
// resolving every step and computed that id, via LinkRequiredBy.
func (c *Cache) RecordInstallPath(ctx context.Context, key ResourceKey, installPath string, now time.Time) error {
	return c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		return c.upsertInstalled(ctx, q, key, installPath, now)
	})
}

func (c *Cache) upsertInstalled(ctx context.Context, q storedb.Querier, key ResourceKey, installPath string, now time.Time) error {
	cols := append(append([]string{}, key.Kind.KeyCols...), "install_path", "created_at", "last_required_at")
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	conflictCols := ""
	for i, col := range key.Kind.KeyCols {
		if i > 0 {
			conflictCols += ", "
		}
		conflictCols += col
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET last_required_at = excluded.last_required_at",
		key.Kind.Installed, joinCols(cols), joinPlaceholders(placeholders), conflictCols,
	)
	args := append(append([]any{}, key.Values...), installPath, now.Unix(), now.Unix())
	if _, err := q.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("upserting %s: %w", key.Kind.Installed, err)
	}
	return nil
}

// LinkRequiredBy adds (key, envVersionID) to key.Kind's required_by table,
// the "after computing the target EnvVersion, add (R,E) to required_by"
// step of spec §4.3.
func (c *Cache) LinkRequiredBy(ctx context.Context, key ResourceKey, envVersionID string) error {
	return c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		refCols := append(append([]string{}, key.Kind.KeyCols...), "env_version_id")
		refPlaceholders := make([]string, len(refCols))
		for i := range refPlaceholders {
			refPlaceholders[i] = "?"
		}
		refSQL := fmt.Sprintf(
			"INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
			key.Kind.RequiredBy, joinCols(refCols), joinPlaceholders(refPlaceholders),
		)
		refArgs := append(append([]any{}, key.Values...), envVersionID)
		if _, err := q.ExecContext(ctx, refSQL, refArgs...); err != nil {
			return fmt.Errorf("inserting %s ref: %w", key.Kind.RequiredBy, err)
		}
		return nil
	})
}

// RecordInstall upserts the installed row and links envVersionID in one
// exclusive transaction. Used where the env_version_id is already known
// up front (tests, and any single-step caller outside the pipeline).
func (c *Cache) RecordInstall(ctx context.Context, key ResourceKey, installPath, envVersionID string, now time.Time) error {
	return c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		if err := c.upsertInstalled(ctx, q, key, installPath, now); err != nil {
			return err
		}
		refCols := append(append([]string{}, key.Kind.KeyCols...), "env_version_id")
		refPlaceholders := make([]string, len(refCols))
		for i := range refPlaceholders {
			refPlaceholders[i] = "?"
		}
		refSQL := fmt.Sprintf(
			"INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
			key.Kind.RequiredBy, joinCols(refCols), joinPlaceholders(refPlaceholders),
		)
		refArgs := append(append([]any{}, key.Values...), envVersionID)
		if _, err := q.ExecContext(ctx, refSQL, refArgs...); err != nil {
			return fmt.Errorf("inserting %s ref: %w", key.Kind.RequiredBy, err)
		}
		return nil
	})
}

// Touch refreshes last_required_at for an already-installed, already-met
// resource (the "installed version already satisfies, no network call"
// path of spec §4.2).
func (c *Cache) Touch(ctx context.Context, key ResourceKey, envVersionID string, now time.Time) error {
	return c.RecordInstall(ctx, key, "", envVersionID, now)
}

// ReleaseEnvVersion removes every required_by row naming envVersionID across
// all resource kinds, the "(R, E_old) ... removed" step of spec §4.3,
// invoked on down() or when a work directory moves to a new EnvVersion.
func (c *Cache) ReleaseEnvVersion(ctx context.Context, envVersionID string) error {
	kinds := []Kind{KindMise, KindGitHubRelease, KindCargo, KindGo, KindHomebrew, KindHomebrewTap}
	return c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		for _, k := range kinds {
			query := fmt.Sprintf("DELETE FROM %s WHERE env_version_id = ?", k.RequiredBy)
			if _, err := q.ExecContext(ctx, query, envVersionID); err != nil {
				return fmt.Errorf("releasing %s: %w", k.RequiredBy, err)
			}
		}
		return nil
	})
}

// UninstallCandidate is a resource eligible for physical uninstall.
type UninstallCandidate struct {
	Kind        Kind
	Values      []any
	InstallPath string
}

// ListUninstallCandidates returns resources of kind whose required_by is
// empty and whose last_required_at is older than cleanupAfter (spec §4.3
// "uninstall-candidate"). Read-only: uses a shared transaction.
func (c *Cache) ListUninstallCandidates(ctx context.Context, k Kind, cleanupAfter time.Duration, now time.Time) ([]UninstallCandidate, error) {
	var out []UninstallCandidate
	cutoff := now.Add(-cleanupAfter).Unix()

	selectCols := joinCols(append(append([]string{}, k.KeyCols...), "install_path"))
	query := fmt.Sprintf(`
SELECT %s FROM %s i
WHERE i.last_required_at < ?
  AND NOT EXISTS (SELECT 1 FROM %s r WHERE %s)
`, selectCols, k.Installed, k.RequiredBy, joinEquiJoin("i", "r", k.KeyCols))

	err := c.db.WithShared(ctx, func(q storedb.Querier) error {
		rows, err := q.QueryContext(ctx, query, cutoff)
		if err != nil {
			return fmt.Errorf("listing %s uninstall candidates: %w", k.Installed, err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			scanTargets := make([]any, len(k.KeyCols)+1)
			values := make([]any, len(k.KeyCols))
			for i := range values {
				scanTargets[i] = &values[i]
			}
			var installPath string
			scanTargets[len(k.KeyCols)] = &installPath
			if err := rows.Scan(scanTargets...); err != nil {
				return err
			}
			out = append(out, UninstallCandidate{Kind: k, Values: values, InstallPath: installPath})
		}
		return rows.Err()
	})
	return out, err
}

// AllInstalledPaths returns every install_path recorded across every
// resource kind, for `omni config reshim` to walk when rebuilding the shim
// set: a shimmable binary is anything executable directly under one of
// these paths' `bin` subdirectory.
func (c *Cache) AllInstalledPaths(ctx context.Context) ([]string, error) {
	kinds := []Kind{KindMise, KindGitHubRelease, KindCargo, KindGo, KindHomebrew}
	var paths []string
	err := c.db.WithShared(ctx, func(q storedb.Querier) error {
		for _, k := range kinds {
			rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT install_path FROM %s", k.Installed))
			if err != nil {
				return fmt.Errorf("listing %s install paths: %w", k.Installed, err)
			}
			for rows.Next() {
				var p string
				if err := rows.Scan(&p); err != nil {
					_ = rows.Close()
					return err
				}
				paths = append(paths, p)
			}
			if err := rows.Err(); err != nil {
				_ = rows.Close()
				return err
			}
			_ = rows.Close()
		}
		return nil
	})
	return paths, err
}

// RemoveInstalled deletes the installed row for key; its required_by rows go
// with it by cascade. Files at the install path are not touched.
func (c *Cache) RemoveInstalled(ctx context.Context, key ResourceKey) error {
	return c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", key.Kind.Installed, c.whereClause(key.Kind))
		_, err := q.ExecContext(ctx, query, key.Values...)
		return err
	})
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func joinPlaceholders(ps []string) string {
	out := ""
	for i, p := range ps {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func joinEquiJoin(left, right string, cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += " AND "
		}
		out += fmt.Sprintf("%s.%s = %s.%s", left, c, right, c)
	}
	return out
}
