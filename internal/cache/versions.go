package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/omnicli/omni/internal/storedb"
)

// VersionTable names one per-backend version-cache table: github_releases
// (keyed by owner+name), cargo_versions/go_versions (keyed by a single
// name column). mise has no version-cache table of its own, since mise
// resolves its own version lists, so it is intentionally absent here.
type VersionTable struct {
	Table   string
	KeyCols []string
}

var (
	VersionsGitHubRelease = VersionTable{Table: "github_releases", KeyCols: []string{"owner", "name"}}
	VersionsCargo         = VersionTable{Table: "cargo_versions", KeyCols: []string{"crate"}}
	VersionsGo            = VersionTable{Table: "go_versions", KeyCols: []string{"module_path"}}
)

// VersionCacheEntry is a resolved version list and when it was fetched.
type VersionCacheEntry struct {
	Versions  []string
	FetchedAt time.Time
}

// GetVersions returns the cached version list for key, and whether it is
// still fresh relative to ttl. A present-but-stale entry is still returned
// (callers decide whether to force-refresh per spec §4.2 step 5).
func (c *Cache) GetVersions(ctx context.Context, vt VersionTable, keyValues []string, ttl time.Duration, now time.Time) (entry VersionCacheEntry, found bool, fresh bool, err error) {
	err = c.db.WithShared(ctx, func(q storedb.Querier) error {
		where := ""
		args := make([]any, len(keyValues))
		for i, col := range vt.KeyCols {
			if i > 0 {
				where += " AND "
			}
			where += col + " = ?"
			args[i] = keyValues[i]
		}
		query := fmt.Sprintf("SELECT versions_json, fetched_at FROM %s WHERE %s", vt.Table, where)

		var versionsJSON string
		var fetchedAtUnix int64
		scanErr := q.QueryRowContext(ctx, query, args...).Scan(&versionsJSON, &fetchedAtUnix)
		if scanErr == sql.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}

		var versions []string
		if jsonErr := json.Unmarshal([]byte(versionsJSON), &versions); jsonErr != nil {
			return fmt.Errorf("decoding cached versions for %s: %w", vt.Table, jsonErr)
		}

		found = true
		entry = VersionCacheEntry{Versions: versions, FetchedAt: time.Unix(fetchedAtUnix, 0)}
		fresh = now.Sub(entry.FetchedAt) <= ttl
		return nil
	})
	return entry, found, fresh, err
}

// PutVersions persists a freshly fetched version list with fetched_at = now.
func (c *Cache) PutVersions(ctx context.Context, vt VersionTable, keyValues []string, versions []string, now time.Time) error {
	data, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("encoding versions for %s: %w", vt.Table, err)
	}

	return c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		cols := append(append([]string{}, vt.KeyCols...), "versions_json", "fetched_at")
		placeholders := make([]string, len(cols))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		conflictCols := joinCols(vt.KeyCols)
		upsert := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET versions_json = excluded.versions_json, fetched_at = excluded.fetched_at",
			vt.Table, joinCols(cols), joinPlaceholders(placeholders), conflictCols,
		)
		args := make([]any, 0, len(keyValues)+2)
		for _, v := range keyValues {
			args = append(args, v)
		}
		args = append(args, string(data), now.Unix())
		_, execErr := q.ExecContext(ctx, upsert, args...)
		return execErr
	})
}

// VersionsWithRefresh returns key's cached version list if still fresh,
// otherwise calls fetch to refresh it. Concurrent callers for the same
// vt/keyValues (e.g. two operations in the same pipeline needing the same
// crate's version list) collapse onto a single in-flight fetch rather than
// each hitting the upstream API, and the winning fetch's result is persisted
// for everyone once.
func (c *Cache) VersionsWithRefresh(ctx context.Context, vt VersionTable, keyValues []string, ttl time.Duration, now time.Time, fetch func() ([]string, error)) ([]string, error) {
	if entry, found, fresh, err := c.GetVersions(ctx, vt, keyValues, ttl, now); err == nil && found && fresh {
		return entry.Versions, nil
	}

	sfKey := vt.Table + "|" + strings.Join(keyValues, "|")
	v, err, _ := c.sf.Do(sfKey, func() (any, error) {
		versions, fetchErr := fetch()
		if fetchErr != nil {
			return nil, fetchErr
		}
		if putErr := c.PutVersions(ctx, vt, keyValues, versions, now); putErr != nil {
			return nil, putErr
		}
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// PruneVersions deletes version-cache rows older than retention whose
// resource family has no remaining installed rows of that key (spec §4.3:
// "version-cache rows are removed when no installed resource of that key
// remains and now - fetched_at > versions_retention").
func (c *Cache) PruneVersions(ctx context.Context, vt VersionTable, installed Kind, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention).Unix()
	// installed.KeyCols always starts with the same leading columns as
	// vt.KeyCols for the backends that have both (github/cargo/go); join on
	// the shared prefix.
	joinCond := ""
	for i, col := range vt.KeyCols {
		if i > 0 {
			joinCond += " AND "
		}
		joinCond += fmt.Sprintf("%s.%s = i.%s", vt.Table, col, installed.KeyCols[i])
	}

	query := fmt.Sprintf(`
DELETE FROM %s
WHERE fetched_at < ?
  AND NOT EXISTS (SELECT 1 FROM %s i WHERE %s)
`, vt.Table, installed.Installed, joinCond)

	var affected int64
	err := c.db.WithExclusive(ctx, func(q storedb.Querier) error {
		res, execErr := q.ExecContext(ctx, query, cutoff)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	return affected, err
}
