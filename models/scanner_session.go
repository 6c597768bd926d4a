package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SessionStatusActive  = "active"
	SessionStatusExpired = "expired"
)

// ScannerSession is an event-bound credential for one handheld device.
// Rows are issued elsewhere; check-in only reads them and bumps
// LastActivity.
type ScannerSession struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	Token     string `gorm:"uniqueIndex;size:128;not null" json:"-"`
	ScannerID string `gorm:"size:64;not null" json:"scanner_id"`
	EventID   string `gorm:"index;size:64;not null" json:"event_id"`
	Status    string `gorm:"size:16;not null;default:active" json:"status"`

	// Metadata carries informational device details (label, app version).
	Metadata datatypes.JSONMap `json:"metadata,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (ScannerSession) TableName() string {
	return "scanner_sessions"
}

// IsActive reports whether the session is usable at now. idleTTL of zero
// disables the inactivity check.
func (s *ScannerSession) IsActive(now time.Time, idleTTL time.Duration) bool {
	if s.Status != SessionStatusActive {
		return false
	}
	if idleTTL > 0 && !s.LastActivity.IsZero() && now.Sub(s.LastActivity) > idleTTL {
		return false
	}
	return true
}
