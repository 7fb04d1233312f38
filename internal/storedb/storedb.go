// Package storedb owns the single on-disk SQLite database backing both the
// install cache (internal/cache) and the environment-version store
// (internal/envstore), per spec §4.3/§6: one file at $OMNI_CACHE_HOME/cache.db,
// schema evolution driven by PRAGMA user_version and an ordered list of
// upgrade scripts, exclusive transactions for writers and shared/deferred
// transactions for readers.
package storedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nightlyone/lockfile"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/omnicli/omni/internal/retry"
)

// SchemaVersion is the PRAGMA user_version this build expects after migrating.
const SchemaVersion = 3

// DB wraps the shared SQLite connection. All cache/envstore operations go
// through its transaction helpers so writers serialize via BEGIN IMMEDIATE
// while readers never block behind them.
type DB struct {
	sql      *sql.DB
	path     string
	mu       sync.Mutex       // guards the "one exclusive writer at a time" discipline at the Go level, on top of SQLite's own locking
	procLock lockfile.Lockfile // advisory cross-process lock guarding WithExclusive; SQLite's own BEGIN IMMEDIATE locking is not reliable on every filesystem omni's cache.db might sit on
}

// Open opens (creating if absent) the database at path and migrates it to
// SchemaVersion.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// SQLite performs best with a single writer connection; WAL lets readers
	// proceed concurrently with that writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("resolving cache database path: %w", err)
	}
	procLock, err := lockfile.New(absPath + ".lock")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("initializing cross-process cache lock: %w", err)
	}

	db := &DB{sql: sqlDB, path: path, procLock: procLock}
	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating cache database: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) userVersion() (int, error) {
	var v int
	if err := db.sql.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (db *DB) setUserVersion(v int) error {
	_, err := db.sql.Exec(fmt.Sprintf("PRAGMA user_version = %d", v))
	return err
}

// migrate walks the ordered upgrade script list, applying any script whose
// `from` is >= the database's current user_version. Each script runs inside
// its own transaction; user_version is bumped only after it commits.
func (db *DB) migrate() error {
	current, err := db.userVersion()
	if err != nil {
		return err
	}

	for _, script := range upgradeScripts {
		if script.from < current {
			continue
		}
		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d->%d: %w", script.from, script.to, err)
		}
		if _, err := tx.Exec(script.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %d->%d (%s): %w", script.from, script.to, script.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d->%d: %w", script.from, script.to, err)
		}
		if err := db.setUserVersion(script.to); err != nil {
			return fmt.Errorf("recording schema version %d: %w", script.to, err)
		}
		current = script.to
	}
	return nil
}

// ErrBusy is returned by WithExclusive when the writer lock could not be
// acquired within the retry budget.
var ErrBusy = errors.New("storedb: database busy")

// Querier is satisfied by both *sql.Conn and *sql.Tx; callbacks use it so
// callers don't care whether they're under BEGIN IMMEDIATE or a plain read.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithExclusive runs fn on a connection that has issued BEGIN IMMEDIATE,
// the single writer lane spec §4.3/§5 requires for any multi-row mutation.
// SQLITE_BUSY is retried with jittered backoff before surfacing ErrBusy.
func (db *DB) WithExclusive(ctx context.Context, fn func(q Querier) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	release, err := db.acquireProcLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	return retry.Do(ctx, func(ctx context.Context) error {
		conn, err := db.sql.Conn(ctx)
		if err != nil {
			return classifyBusy(err)
		}
		defer func() { _ = conn.Close() }()

		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return classifyBusy(err)
		}
		if err := fn(conn); err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			return err
		}
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return classifyBusy(err)
		}
		return nil
	}, retry.WithMaxAttempts(5), retry.WithInitialDelay(25*time.Millisecond), retry.WithMaxDelay(500*time.Millisecond),
		retry.WithRetryCondition(isBusy))
}

// acquireProcLock takes the cross-process advisory lock guarding
// WithExclusive, retrying while another omni process holds it. A lock file
// left behind by a process that died mid-transaction (ErrDeadOwner,
// ErrInvalidPid) is reclaimed rather than treated as a hard failure.
func (db *DB) acquireProcLock(ctx context.Context) (func(), error) {
	err := retry.Do(ctx, func(context.Context) error {
		lockErr := db.procLock.TryLock()
		switch {
		case lockErr == nil:
			return nil
		case errors.Is(lockErr, lockfile.ErrDeadOwner), errors.Is(lockErr, lockfile.ErrInvalidPid):
			_ = os.Remove(string(db.procLock))
			return lockErr
		default:
			return lockErr
		}
	}, retry.WithMaxAttempts(20), retry.WithInitialDelay(10*time.Millisecond), retry.WithMaxDelay(250*time.Millisecond),
		retry.WithRetryCondition(func(err error) bool {
			return errors.Is(err, lockfile.ErrBusy) || errors.Is(err, lockfile.ErrDeadOwner) || errors.Is(err, lockfile.ErrInvalidPid)
		}))
	if err != nil {
		return nil, fmt.Errorf("acquiring cross-process cache lock: %w", err)
	}
	return func() { _ = db.procLock.Unlock() }, nil
}

// WithShared runs fn inside a read-only, deferred transaction. It never
// competes with WithExclusive's writer lock, keeping the hook (spec §5,
// "never takes the exclusive lock") fast.
func (db *DB) WithShared(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.sql.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("beginning read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func classifyBusy(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
