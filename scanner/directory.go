package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"checkin-backend/apperror"
	"checkin-backend/models"
	"checkin-backend/utils"
)

// minPrefix is the shortest id fragment LookupOffline will resolve.
const minPrefix = 8

var (
	errNotCached = apperror.NotFound("guest_not_cached", "guest is not in this scanner's guest list")
	errAmbiguous = apperror.Validation("ambiguous_identifier", "identifier fragment matches more than one guest")
)

// CachedGuest is a guest as last fetched, plus the optimistic offline
// flag. LocalCheckedIn is never authoritative.
type CachedGuest struct {
	EventID        string
	ID             string
	Name           string
	Phone          string
	CheckedIn      bool
	CheckedInAt    *time.Time
	LocalCheckedIn bool
	LocalCheckedAt *time.Time
}

// Admitted reports whether the guest should be treated as inside.
func (g CachedGuest) Admitted() bool {
	return g.CheckedIn || g.LocalCheckedIn
}

// AdmittedAt is the best known check-in time: the server's, else the
// local one.
func (g CachedGuest) AdmittedAt() time.Time {
	if g.CheckedInAt != nil {
		return *g.CheckedInAt
	}
	if g.LocalCheckedAt != nil {
		return *g.LocalCheckedAt
	}
	return time.Time{}
}

// Directory is the event's guest snapshot kept on the device.
type Directory struct {
	store *Store
	now   func() time.Time
}

func NewDirectory(store *Store) *Directory {
	return &Directory{store: store, now: time.Now}
}

// Refresh replaces the snapshot of the session's event with the
// coordinator's current list.
func (d *Directory) Refresh(ctx context.Context, sc *SessionContext) (int, error) {
	guests, err := sc.API.Guests(ctx, sc.Session.Token)
	if err != nil {
		return 0, err
	}
	if err := d.Replace(ctx, sc.Session.EventID, guests); err != nil {
		return 0, err
	}
	return len(guests), nil
}

// Replace swaps the whole snapshot for eventID in one transaction.
// Guests with scans still waiting to sync keep their local flag.
func (d *Directory) Replace(ctx context.Context, eventID string, guests []models.Guest) error {
	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM guests WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO guests
		(event_id, id, name, phone, checked_in, checked_in_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	fetched := d.now().UnixNano()
	for _, g := range guests {
		var at *time.Time
		if g.CheckedIn {
			resolved := g.ResolvedCheckInTime()
			at = &resolved
		}
		if _, err := stmt.ExecContext(ctx, eventID, utils.NormalizeGuestIdentifier(g.ID), g.Name, g.Phone,
			g.CheckedIn, toNanos(at), fetched); err != nil {
			return fmt.Errorf("insert guest %s: %w", g.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE guests
		SET local_checked_in = 1,
			local_checked_at = (SELECT MIN(p.scan_time) FROM pending_scans p
				WHERE p.event_id = guests.event_id AND p.guest_id = guests.id AND p.sync_status = 'pending')
		WHERE event_id = ? AND checked_in = 0 AND id IN (
			SELECT guest_id FROM pending_scans WHERE event_id = ? AND sync_status = 'pending')`,
		eventID, eventID)
	if err != nil {
		return fmt.Errorf("reapply pending scans: %w", err)
	}

	return tx.Commit()
}

// LookupOffline resolves identifier against the snapshot: the exact id,
// or an id prefix of at least eight characters matching one guest.
func (d *Directory) LookupOffline(ctx context.Context, eventID, identifier string) (*CachedGuest, error) {
	id := utils.NormalizeGuestIdentifier(identifier)
	if id == "" {
		return nil, apperror.Validation("invalid_identifier", "identifier is empty")
	}

	rows, err := d.query(ctx, `WHERE event_id = ? AND id = ?`, eventID, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 1 {
		return &rows[0], nil
	}

	if len(id) < minPrefix || !isIDFragment(id) {
		return nil, errNotCached
	}
	rows, err = d.query(ctx, `WHERE event_id = ? AND id LIKE ? ORDER BY id LIMIT 2`, eventID, id+"%")
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, errNotCached
	case 1:
		return &rows[0], nil
	default:
		return nil, errAmbiguous
	}
}

// Get returns one cached guest by exact id.
func (d *Directory) Get(ctx context.Context, eventID, guestID string) (*CachedGuest, error) {
	rows, err := d.query(ctx, `WHERE event_id = ? AND id = ?`, eventID, utils.NormalizeGuestIdentifier(guestID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errNotCached
	}
	return &rows[0], nil
}

// All returns the snapshot for eventID.
func (d *Directory) All(ctx context.Context, eventID string) ([]CachedGuest, error) {
	return d.query(ctx, `WHERE event_id = ? ORDER BY name, id`, eventID)
}

// MarkCheckedIn sets the optimistic local flag after an offline scan.
func (d *Directory) MarkCheckedIn(ctx context.Context, eventID, guestID string, at time.Time) error {
	_, err := d.store.db.ExecContext(ctx,
		`UPDATE guests SET local_checked_in = 1, local_checked_at = ? WHERE event_id = ? AND id = ?`,
		at.UnixNano(), eventID, guestID)
	if err != nil {
		return fmt.Errorf("mark checked in: %w", err)
	}
	return nil
}

// ClearLocal drops the optimistic flag for a scan the coordinator
// refused.
func (d *Directory) ClearLocal(ctx context.Context, eventID, guestID string) error {
	_, err := d.store.db.ExecContext(ctx,
		`UPDATE guests SET local_checked_in = 0, local_checked_at = NULL WHERE event_id = ? AND id = ?`,
		eventID, guestID)
	return err
}

// ApplyServerResult records the coordinator's answer for a guest. The
// server timestamp replaces whatever the device assumed.
func (d *Directory) ApplyServerResult(ctx context.Context, eventID string, res *models.CheckinResult) error {
	if res == nil {
		return nil
	}
	at := res.CheckedInAt
	_, err := d.store.db.ExecContext(ctx, `UPDATE guests
		SET checked_in = 1, checked_in_at = ?, local_checked_in = 0, local_checked_at = NULL
		WHERE event_id = ? AND id = ?`,
		toNanos(&at), eventID, utils.NormalizeGuestIdentifier(res.GuestID))
	if err != nil {
		return fmt.Errorf("apply server result: %w", err)
	}
	return nil
}

// Counts returns the snapshot size and how many guests are admitted,
// counting local check-ins.
func (d *Directory) Counts(ctx context.Context, eventID string) (total, admitted int, err error) {
	err = d.store.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN checked_in = 1 OR local_checked_in = 1 THEN 1 ELSE 0 END), 0)
		FROM guests WHERE event_id = ?`, eventID).Scan(&total, &admitted)
	return total, admitted, err
}

func (d *Directory) query(ctx context.Context, where string, args ...interface{}) ([]CachedGuest, error) {
	rows, err := d.store.db.QueryContext(ctx, `SELECT event_id, id, name, phone, checked_in, checked_in_at,
		local_checked_in, local_checked_at FROM guests `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var out []CachedGuest
	for rows.Next() {
		var (
			g         CachedGuest
			at, local sql.NullInt64
		)
		if err := rows.Scan(&g.EventID, &g.ID, &g.Name, &g.Phone, &g.CheckedIn, &at, &g.LocalCheckedIn, &local); err != nil {
			return nil, err
		}
		g.CheckedInAt = fromNanos(at)
		g.LocalCheckedAt = fromNanos(local)
		out = append(out, g)
	}
	return out, rows.Err()
}

func isIDFragment(s string) bool {
	return strings.Trim(s, "0123456789abcdef-") == ""
}
