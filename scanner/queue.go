package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkin-backend/apperror"
	"checkin-backend/models"
	"checkin-backend/utils"
)

// SyncStatus of a pending scan. Synced scans are deleted, not marked.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncFailed  SyncStatus = "failed"
)

const (
	baseBackoff = 5 * time.Second
	maxBackoff  = 5 * time.Minute
)

// PendingScan is a check-in taken while offline, waiting to be replayed.
type PendingScan struct {
	ID            string
	EventID       string
	GuestID       string
	ScanTime      time.Time
	Method        models.Method
	SyncStatus    SyncStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Synced    int
	Conflicts int
	Failed    int
	Remaining int
	// Stopped is the error that ended the pass early, if any.
	Stopped error
}

// Queue is the durable log of offline scans.
type Queue struct {
	store *Store
	log   *slog.Logger
	now   func() time.Time

	// one drain at a time, whoever triggers it
	drainMu sync.Mutex
}

func NewQueue(store *Store, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{store: store, log: log, now: time.Now}
}

// Backoff is the wait before retry number attempts+1: 5s doubling per
// failed attempt, capped at five minutes.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := baseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Enqueue appends a scan to the log.
func (q *Queue) Enqueue(ctx context.Context, eventID, guestID string, method models.Method, scanTime time.Time) (PendingScan, error) {
	scan := PendingScan{
		ID:         uuid.NewString(),
		EventID:    eventID,
		GuestID:    guestID,
		ScanTime:   scanTime.UTC(),
		Method:     method,
		SyncStatus: SyncPending,
	}
	_, err := q.store.db.ExecContext(ctx, `INSERT INTO pending_scans
		(id, event_id, guest_id, scan_time, method, sync_status, attempts, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
		scan.ID, scan.EventID, scan.GuestID, scan.ScanTime.UnixNano(), string(scan.Method), string(scan.SyncStatus))
	if err != nil {
		return PendingScan{}, fmt.Errorf("enqueue scan: %w", err)
	}
	return scan, nil
}

// PendingCount is the number shown as "waiting to sync".
func (q *Queue) PendingCount(ctx context.Context, eventID string) (int, error) {
	var n int
	err := q.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_scans WHERE event_id = ? AND sync_status = ?`,
		eventID, string(SyncPending)).Scan(&n)
	return n, err
}

// Pending lists waiting scans in enqueue order.
func (q *Queue) Pending(ctx context.Context, eventID string) ([]PendingScan, error) {
	return q.list(ctx, eventID, SyncPending)
}

// Failed lists scans the coordinator refused, kept for operator review.
func (q *Queue) Failed(ctx context.Context, eventID string) ([]PendingScan, error) {
	return q.list(ctx, eventID, SyncFailed)
}

// Drain replays pending scans in enqueue order. A transient failure
// stops the pass so later scans do not overtake earlier ones; the head
// waits out its backoff before the next pass retries it.
func (q *Queue) Drain(ctx context.Context, sc *SessionContext) (DrainReport, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var report DrainReport
	eventID := sc.Session.EventID
	log := q.log.With("event_id", eventID)

	scans, err := q.Pending(ctx, eventID)
	if err != nil {
		return report, err
	}

	for i, scan := range scans {
		if ctx.Err() != nil {
			report.Remaining = len(scans) - i
			return report, ctx.Err()
		}
		if scan.NextAttemptAt.After(q.now()) {
			report.Remaining = len(scans) - i
			return report, nil
		}

		res, err := sc.API.SubmitScan(ctx, sc.Session.Token, models.ScanRequest{
			Identifier: scan.GuestID,
			Method:     scan.Method,
		})
		kind := apperror.KindOf(err)

		switch kind {
		case "":
			report.Synced++
			q.reconcile(ctx, sc, scan, res, log)

		case apperror.KindConflict:
			if res == nil || utils.NormalizeGuestIdentifier(res.GuestID) != utils.NormalizeGuestIdentifier(scan.GuestID) {
				// a conflict about some other guest says nothing about this scan
				report.Failed++
				if err := q.markFailed(ctx, scan, fmt.Errorf("conflict answered for another guest: %w", err)); err != nil {
					return report, err
				}
				log.Warn("pending scan kept: conflict did not match", "scan_id", scan.ID, "guest_id", scan.GuestID)
				continue
			}
			report.Conflicts++
			q.reconcile(ctx, sc, scan, res, log)

		case apperror.KindNotFound, apperror.KindValidation:
			report.Failed++
			if err := q.markFailed(ctx, scan, err); err != nil {
				return report, err
			}
			if err := sc.Directory.ClearLocal(ctx, eventID, scan.GuestID); err != nil {
				log.Warn("clear local check-in failed", "guest_id", scan.GuestID, "error", err)
			}
			log.Warn("pending scan refused", "scan_id", scan.ID, "guest_id", scan.GuestID, "error", err)

		case apperror.KindAuth:
			report.Remaining = len(scans) - i
			report.Stopped = err
			log.Warn("drain stopped: session rejected", "error", err)
			return report, nil

		default:
			report.Remaining = len(scans) - i
			report.Stopped = err
			if err := q.retryLater(ctx, scan, err); err != nil {
				return report, err
			}
			log.Info("drain paused", "scan_id", scan.ID, "attempts", scan.Attempts+1, "error", err)
			return report, nil
		}
	}
	return report, nil
}

// reconcile removes a replayed scan and records the coordinator's
// answer in the cache.
func (q *Queue) reconcile(ctx context.Context, sc *SessionContext, scan PendingScan, res *models.CheckinResult, log *slog.Logger) {
	if _, err := q.store.db.ExecContext(ctx, `DELETE FROM pending_scans WHERE id = ?`, scan.ID); err != nil {
		log.Error("remove synced scan failed", "scan_id", scan.ID, "error", err)
		return
	}
	if res == nil {
		return
	}
	if err := sc.Directory.ApplyServerResult(ctx, scan.EventID, res); err != nil {
		log.Warn("cache update after sync failed", "guest_id", scan.GuestID, "error", err)
	}
}

func (q *Queue) retryLater(ctx context.Context, scan PendingScan, cause error) error {
	next := q.now().Add(Backoff(scan.Attempts))
	_, err := q.store.db.ExecContext(ctx, `UPDATE pending_scans
		SET attempts = attempts + 1, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		next.UnixNano(), cause.Error(), scan.ID)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (q *Queue) markFailed(ctx context.Context, scan PendingScan, cause error) error {
	_, err := q.store.db.ExecContext(ctx, `UPDATE pending_scans
		SET sync_status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?`,
		string(SyncFailed), cause.Error(), scan.ID)
	if err != nil {
		return fmt.Errorf("mark scan failed: %w", err)
	}
	return nil
}

func (q *Queue) list(ctx context.Context, eventID string, status SyncStatus) ([]PendingScan, error) {
	rows, err := q.store.db.QueryContext(ctx, `SELECT id, event_id, guest_id, scan_time, method, sync_status,
		attempts, next_attempt_at, last_error
		FROM pending_scans WHERE event_id = ? AND sync_status = ? ORDER BY seq`,
		eventID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []PendingScan
	for rows.Next() {
		var (
			s                 PendingScan
			scanTime, next    int64
			method, syncState string
			lastError         sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.EventID, &s.GuestID, &scanTime, &method, &syncState,
			&s.Attempts, &next, &lastError); err != nil {
			return nil, err
		}
		s.ScanTime = time.Unix(0, scanTime).UTC()
		s.Method = models.Method(method)
		s.SyncStatus = SyncStatus(syncState)
		if next > 0 {
			s.NextAttemptAt = time.Unix(0, next).UTC()
		}
		s.LastError = lastError.String
		out = append(out, s)
	}
	return out, rows.Err()
}
