package envstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omnicli/omni/internal/storedb"
)

// ErrNotFound is returned when a workdir has no current EnvVersion.
var ErrNotFound = errors.New("envstore: not found")

// Store is the environment-version store facade.
type Store struct {
	db *storedb.DB
}

// New wraps an open storedb.DB.
func New(db *storedb.DB) *Store { return &Store{db: db} }

// CurrentEnvVersion returns the EnvVersion id currently pointed to by
// workdir_id, or ErrNotFound.
func (s *Store) CurrentEnvVersion(ctx context.Context, workdirID string) (string, error) {
	var id string
	err := s.db.WithShared(ctx, func(q storedb.Querier) error {
		row := q.QueryRowContext(ctx, `SELECT env_version_id FROM workdir_env WHERE workdir_id = ?`, workdirID)
		scanErr := row.Scan(&id)
		if scanErr == sql.ErrNoRows {
			return ErrNotFound
		}
		return scanErr
	})
	return id, err
}

// Exists reports whether envVersionID still exists in the store (part of
// the short-circuit check in spec §4.4: "the referenced env_version_id
// still exists in the store").
func (s *Store) Exists(ctx context.Context, envVersionID string) (bool, error) {
	var count int
	err := s.db.WithShared(ctx, func(q storedb.Querier) error {
		return q.QueryRowContext(ctx, `SELECT COUNT(*) FROM env_versions WHERE env_version_id = ?`, envVersionID).Scan(&count)
	})
	return count > 0, err
}

// EnvVersionContent is the decoded paths_json/env_vars_json of one
// env_versions row, everything the dynamic-env hook needs to compute a
// work directory's Desired environment (spec §4.5) without re-running the
// pipeline.
type EnvVersionContent struct {
	Paths   []PathContribution
	EnvVars []EnvVarContribution
}

// GetEnvVersion loads and decodes one EnvVersion's recorded paths/env vars.
func (s *Store) GetEnvVersion(ctx context.Context, envVersionID string) (EnvVersionContent, error) {
	var pathsJSON, varsJSON string
	err := s.db.WithShared(ctx, func(q storedb.Querier) error {
		row := q.QueryRowContext(ctx, `SELECT paths_json, env_vars_json FROM env_versions WHERE env_version_id = ?`, envVersionID)
		scanErr := row.Scan(&pathsJSON, &varsJSON)
		if scanErr == sql.ErrNoRows {
			return ErrNotFound
		}
		return scanErr
	})
	if err != nil {
		return EnvVersionContent{}, err
	}

	var content EnvVersionContent
	if err := json.Unmarshal([]byte(pathsJSON), &content.Paths); err != nil {
		return EnvVersionContent{}, fmt.Errorf("decoding paths_json: %w", err)
	}
	if err := json.Unmarshal([]byte(varsJSON), &content.EnvVars); err != nil {
		return EnvVersionContent{}, fmt.Errorf("decoding env_vars_json: %w", err)
	}
	return content, nil
}

// Activation is everything Activate needs to record one successful `up`.
type Activation struct {
	WorkDirID    string
	WorkDirPath  string
	EnvVersionID string
	ConfigHash   string
	Versions     []ResolvedVersion
	Paths        []PathContribution
	EnvVars      []EnvVarContribution
	HeadSHA      string
	Now          time.Time
}

// Activate performs the four steps of spec §4.4 "History" atomically:
// upsert EnvVersion, close any open EnvHistory row for this workdir, open a
// new one, upsert WorkDirEnv. All under one exclusive transaction so P2
// ("at most one open entry per workdir_id") can never be observed violated.
func (s *Store) Activate(ctx context.Context, a Activation) error {
	versionsJSON, err := json.Marshal(orEmpty(a.Versions))
	if err != nil {
		return fmt.Errorf("encoding versions: %w", err)
	}
	pathsJSON, err := json.Marshal(orEmptyPaths(a.Paths))
	if err != nil {
		return fmt.Errorf("encoding paths: %w", err)
	}
	varsJSON, err := json.Marshal(orEmptyVars(a.EnvVars))
	if err != nil {
		return fmt.Errorf("encoding env vars: %w", err)
	}

	nowUnix := a.Now.Unix()

	return s.db.WithExclusive(ctx, func(q storedb.Querier) error {
		_, err := q.ExecContext(ctx, `
INSERT INTO env_versions (env_version_id, workdir_id, config_hash, versions_json, paths_json, env_vars_json, created_at, last_assigned_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(env_version_id) DO UPDATE SET last_assigned_at = excluded.last_assigned_at
`, a.EnvVersionID, a.WorkDirID, a.ConfigHash, string(versionsJSON), string(pathsJSON), string(varsJSON), nowUnix, nowUnix)
		if err != nil {
			return fmt.Errorf("upserting env_version: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE env_history SET used_until_date = ? WHERE workdir_id = ? AND used_until_date IS NULL`,
			nowUnix, a.WorkDirID); err != nil {
			return fmt.Errorf("closing open env_history row: %w", err)
		}

		historyID := uuid.NewString()
		if _, err := q.ExecContext(ctx,
			`INSERT INTO env_history (env_history_id, workdir_id, env_version_id, head_sha, used_from_date, used_until_date)
			 VALUES (?, ?, ?, ?, ?, NULL)`,
			historyID, a.WorkDirID, a.EnvVersionID, a.HeadSHA, nowUnix); err != nil {
			return fmt.Errorf("opening env_history row: %w", err)
		}

		if _, err := q.ExecContext(ctx, `
INSERT INTO workdir_env (workdir_id, path, env_version_id, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(workdir_id) DO UPDATE SET path = excluded.path, env_version_id = excluded.env_version_id, updated_at = excluded.updated_at
`, a.WorkDirID, a.WorkDirPath, a.EnvVersionID, nowUnix); err != nil {
			return fmt.Errorf("upserting workdir_env: %w", err)
		}

		return nil
	})
}

// Deactivate performs `down`'s history/pointer half: closes the open
// EnvHistory row and removes the WorkDirEnv pointer. Reference-count
// decrementing on InstalledResource rows is the caller's job via
// internal/cache.ReleaseEnvVersion, kept separate so envstore never needs
// to know about backend-specific installed-resource tables.
func (s *Store) Deactivate(ctx context.Context, workdirID string, now time.Time) error {
	return s.db.WithExclusive(ctx, func(q storedb.Querier) error {
		if _, err := q.ExecContext(ctx,
			`UPDATE env_history SET used_until_date = ? WHERE workdir_id = ? AND used_until_date IS NULL`,
			now.Unix(), workdirID); err != nil {
			return fmt.Errorf("closing open env_history row: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM workdir_env WHERE workdir_id = ?`, workdirID); err != nil {
			return fmt.Errorf("removing workdir_env: %w", err)
		}
		return nil
	})
}

// Touch refreshes last_assigned_at on an EnvVersion without changing its
// content, the short-circuit path of spec §4.4.
func (s *Store) Touch(ctx context.Context, envVersionID string, now time.Time) error {
	return s.db.WithExclusive(ctx, func(q storedb.Querier) error {
		_, err := q.ExecContext(ctx,
			`UPDATE env_versions SET last_assigned_at = ? WHERE env_version_id = ?`, now.Unix(), envVersionID)
		return err
	})
}
