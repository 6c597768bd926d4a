package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"checkin-backend/models"
)

// CommitOutcome is the tri-state answer of a commit strategy.
type CommitOutcome int

const (
	// CommitCommitted means this call flipped checked_in to true.
	CommitCommitted CommitOutcome = iota + 1
	// CommitRejected means the store refused the write's shape (missing
	// or mistyped column); the next strategy may still succeed.
	CommitRejected
	// CommitRaceDetected means another writer checked the guest in first.
	CommitRaceDetected
)

func (o CommitOutcome) String() string {
	switch o {
	case CommitCommitted:
		return "committed"
	case CommitRejected:
		return "rejected"
	case CommitRaceDetected:
		return "race_detected"
	default:
		return "unknown"
	}
}

// CommitResult carries a strategy's outcome. Prior is set when the
// strategy observed the winning row itself; Reason when it was rejected.
type CommitResult struct {
	Outcome CommitOutcome
	Prior   *models.Guest
	Reason  error
}

// CommitStrategy applies the check-in write one way. Commit returns an
// error only for failures that are not schema rejections; those abort
// the cascade rather than degrade to a weaker strategy.
type CommitStrategy interface {
	Name() string
	Commit(ctx context.Context, db *gorm.DB, guest *models.Guest, now time.Time) (CommitResult, error)
}

// DefaultCommitStrategies is the production cascade, strongest first.
func DefaultCommitStrategies() []CommitStrategy {
	return []CommitStrategy{
		ConditionalFullStrategy{},
		ConditionalFlagStrategy{},
		UnconditionalStrategy{},
	}
}

// ConditionalFullStrategy is the compare-and-set write: flag and every
// timestamp column, applied only while checked_in is still false. It is
// the only strategy with a real at-most-once guarantee.
type ConditionalFullStrategy struct{}

func (ConditionalFullStrategy) Name() string { return "conditional_full" }

func (ConditionalFullStrategy) Commit(ctx context.Context, db *gorm.DB, guest *models.Guest, now time.Time) (CommitResult, error) {
	res := db.WithContext(ctx).
		Model(&models.Guest{}).
		Where("id = ? AND event_id = ? AND checked_in = ?", guest.ID, guest.EventID, false).
		UpdateColumns(map[string]interface{}{
			"checked_in":    true,
			"checked_in_at": now,
			"check_in_time": now,
			"updated_at":    now,
		})
	return conditionalOutcome(res)
}

// ConditionalFlagStrategy keeps the false-precondition for schemas that
// lack the check-in timestamp columns. It stamps updated_at so the
// resolved check-in time is the admission, and writes the flag alone
// when updated_at is missing too. In that last case the displayed time
// falls back to created_at.
type ConditionalFlagStrategy struct{}

func (ConditionalFlagStrategy) Name() string { return "conditional_flag" }

func (ConditionalFlagStrategy) Commit(ctx context.Context, db *gorm.DB, guest *models.Guest, now time.Time) (CommitResult, error) {
	update := func(columns map[string]interface{}) *gorm.DB {
		return db.WithContext(ctx).
			Model(&models.Guest{}).
			Where("id = ? AND event_id = ? AND checked_in = ?", guest.ID, guest.EventID, false).
			UpdateColumns(columns)
	}

	res := update(map[string]interface{}{"checked_in": true, "updated_at": now})
	if res.Error != nil && IsSchemaRejection(res.Error) {
		res = update(map[string]interface{}{"checked_in": true})
	}
	return conditionalOutcome(res)
}

func conditionalOutcome(res *gorm.DB) (CommitResult, error) {
	if res.Error != nil {
		if IsSchemaRejection(res.Error) {
			return CommitResult{Outcome: CommitRejected, Reason: res.Error}, nil
		}
		return CommitResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return CommitResult{Outcome: CommitRaceDetected}, nil
	}
	return CommitResult{Outcome: CommitCommitted}, nil
}

// UnconditionalStrategy is the last resort. It reads the row, then sets
// checked_in=true without a precondition, and reports a race when the
// value it read was already true.
//
// This is weaker than the conditional strategies: two scanners can both
// read false before either writes, and both will report success. The
// window is the gap between the read and the write inside one
// transaction. It exists so that a partially migrated schema still
// admits guests; it must stay last in the cascade.
type UnconditionalStrategy struct{}

func (UnconditionalStrategy) Name() string { return "unconditional" }

func (UnconditionalStrategy) Commit(ctx context.Context, db *gorm.DB, guest *models.Guest, now time.Time) (CommitResult, error) {
	var result CommitResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior models.Guest
		if err := tx.Where("id = ? AND event_id = ?", guest.ID, guest.EventID).First(&prior).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Guest{}).
			Where("id = ? AND event_id = ?", guest.ID, guest.EventID).
			UpdateColumn("checked_in", true).Error; err != nil {
			return err
		}
		if prior.CheckedIn {
			result = CommitResult{Outcome: CommitRaceDetected, Prior: &prior}
		} else {
			result = CommitResult{Outcome: CommitCommitted}
		}
		return nil
	})
	if err != nil {
		if IsSchemaRejection(err) {
			return CommitResult{Outcome: CommitRejected, Reason: err}, nil
		}
		return CommitResult{}, err
	}
	return result, nil
}

// IsSchemaRejection reports whether err is the store refusing a write's
// shape rather than failing to perform it.
func IsSchemaRejection(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1054, // unknown column
			1292, // incorrect datetime value
			1366: // incorrect value for column
			return true
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42703", // undefined_column
			"42804", // datatype_mismatch
			"22007": // invalid_datetime_format
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named") ||
		strings.Contains(msg, "unknown column")
}
