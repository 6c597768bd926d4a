package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const storeFile = "scanner.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS session (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		token       TEXT NOT NULL,
		event_id    TEXT NOT NULL,
		scanner_id  TEXT NOT NULL,
		server_url  TEXT NOT NULL,
		bound_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS guests (
		event_id          TEXT NOT NULL,
		id                TEXT NOT NULL,
		name              TEXT NOT NULL,
		phone             TEXT NOT NULL DEFAULT '',
		checked_in        INTEGER NOT NULL DEFAULT 0,
		checked_in_at     INTEGER,
		local_checked_in  INTEGER NOT NULL DEFAULT 0,
		local_checked_at  INTEGER,
		fetched_at        INTEGER NOT NULL,
		PRIMARY KEY (event_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS pending_scans (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		event_id         TEXT NOT NULL,
		guest_id         TEXT NOT NULL,
		scan_time        INTEGER NOT NULL,
		method           TEXT NOT NULL,
		sync_status      TEXT NOT NULL DEFAULT 'pending',
		attempts         INTEGER NOT NULL DEFAULT 0,
		next_attempt_at  INTEGER NOT NULL DEFAULT 0,
		last_error       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_event_status ON pending_scans (event_id, sync_status, seq)`,
}

// Store is the scanner's durable state: the bound session, the guest
// snapshot and the pending scan log, in one SQLite file.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the store under dataDir.
func OpenStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, storeFile))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// SQLite allows one writer; the queue and the cache share the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ErrNoSession is returned when the device has not been bound yet.
var ErrNoSession = errors.New("scanner is not bound to a session")

// ErrUnsyncedScans is returned when rebinding to another event would
// strand scans only the current session can replay.
var ErrUnsyncedScans = errors.New("offline scans for the bound event are not synced yet")

// SaveSession binds the device to sess, replacing any earlier binding.
// Cached guests of other events are dropped. Moving to another event is
// refused while the bound event still has pending scans.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var bound string
	err = tx.QueryRowContext(ctx, `SELECT event_id FROM session WHERE id = 1`).Scan(&bound)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read bound session: %w", err)
	}
	if bound != "" && bound != sess.EventID {
		var pending int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_scans WHERE event_id = ? AND sync_status = ?`,
			bound, string(SyncPending)).Scan(&pending)
		if err != nil {
			return fmt.Errorf("count pending scans: %w", err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: %d for event %s", ErrUnsyncedScans, pending, bound)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO session (id, token, event_id, scanner_id, server_url, bound_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, event_id = excluded.event_id,
			scanner_id = excluded.scanner_id, server_url = excluded.server_url, bound_at = excluded.bound_at`,
		sess.Token, sess.EventID, sess.ScannerID, sess.ServerURL, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM guests WHERE event_id <> ?`, sess.EventID); err != nil {
		return fmt.Errorf("drop stale snapshot: %w", err)
	}
	return tx.Commit()
}

// LoadSession returns the bound session or ErrNoSession.
func (s *Store) LoadSession(ctx context.Context) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `SELECT token, event_id, scanner_id, server_url FROM session WHERE id = 1`).
		Scan(&sess.Token, &sess.EventID, &sess.ScannerID, &sess.ServerURL)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func toNanos(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
