package envstore

import (
	"context"
	"fmt"
	"time"

	"github.com/omnicli/omni/internal/storedb"
)

// RetentionPolicy bundles the three independent policies from spec §4.4:
// a per-work-directory max count, a global max count, and a time-based
// retention measured from used_until_date. Open entries are never pruned.
type RetentionPolicy struct {
	MaxPerWorkDir int
	MaxGlobal     int
	RetainFor     time.Duration
}

// PruneHistory applies all three policies and returns how many env_history
// rows were deleted. Each policy is applied as its own DELETE so that one
// policy being slack doesn't mask another being strict.
func (s *Store) PruneHistory(ctx context.Context, policy RetentionPolicy, now time.Time) (int64, error) {
	var total int64

	err := s.db.WithExclusive(ctx, func(q storedb.Querier) error {
		if policy.RetainFor > 0 {
			cutoff := now.Add(-policy.RetainFor).Unix()
			res, err := q.ExecContext(ctx,
				`DELETE FROM env_history WHERE used_until_date IS NOT NULL AND used_until_date < ?`, cutoff)
			if err != nil {
				return fmt.Errorf("applying time-based retention: %w", err)
			}
			n, _ := res.RowsAffected()
			total += n
		}

		if policy.MaxPerWorkDir > 0 {
			res, err := q.ExecContext(ctx, `
DELETE FROM env_history
WHERE used_until_date IS NOT NULL
  AND env_history_id IN (
    SELECT env_history_id FROM (
      SELECT env_history_id,
             ROW_NUMBER() OVER (PARTITION BY workdir_id ORDER BY used_from_date DESC) AS rn
      FROM env_history
      WHERE used_until_date IS NOT NULL
    ) ranked
    WHERE ranked.rn > ?
  )`, policy.MaxPerWorkDir)
			if err != nil {
				return fmt.Errorf("applying per-workdir retention: %w", err)
			}
			n, _ := res.RowsAffected()
			total += n
		}

		if policy.MaxGlobal > 0 {
			res, err := q.ExecContext(ctx, `
DELETE FROM env_history
WHERE used_until_date IS NOT NULL
  AND env_history_id IN (
    SELECT env_history_id FROM (
      SELECT env_history_id,
             ROW_NUMBER() OVER (ORDER BY used_from_date DESC) AS rn
      FROM env_history
      WHERE used_until_date IS NOT NULL
    ) ranked
    WHERE ranked.rn > ?
  )`, policy.MaxGlobal)
			if err != nil {
				return fmt.Errorf("applying global retention: %w", err)
			}
			n, _ := res.RowsAffected()
			total += n
		}

		return nil
	})

	return total, err
}

// PruneOrphanedEnvVersions deletes env_versions rows unreferenced by any
// workdir_env or env_history row, the final pass of spec §4.4's retention
// section. Run this after PruneHistory so freshly-orphaned rows (from
// history deletion) are caught in the same GC cycle.
func (s *Store) PruneOrphanedEnvVersions(ctx context.Context) (int64, error) {
	var affected int64
	err := s.db.WithExclusive(ctx, func(q storedb.Querier) error {
		res, err := q.ExecContext(ctx, `
DELETE FROM env_versions
WHERE env_version_id NOT IN (SELECT env_version_id FROM workdir_env)
  AND env_version_id NOT IN (SELECT env_version_id FROM env_history)
`)
		if err != nil {
			return fmt.Errorf("pruning orphaned env_versions: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
