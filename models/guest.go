package models

import (
	"time"
)

// Guest is an invitee bound to one event. Rows are created by the
// registration system with CheckedIn=false; the check-in coordinator
// flips CheckedIn exactly once and never back.
type Guest struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	EventID string `gorm:"index;size:64;not null" json:"event_id"`

	Name  string `json:"name"`
	Phone string `gorm:"size:32" json:"phone"`

	CheckedIn   bool       `gorm:"not null;default:false;index" json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`

	// CheckInTime is the legacy check-in column; older rows may only
	// carry this one.
	CheckInTime *time.Time `gorm:"column:check_in_time" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolvedCheckInTime returns the most precise timestamp the row has for
// its check-in: the dedicated column, then the legacy one, then the
// row's last modification, then its creation. Rows written by different
// schema generations populate different subsets of these.
func (g *Guest) ResolvedCheckInTime() time.Time {
	switch {
	case g.CheckedInAt != nil && !g.CheckedInAt.IsZero():
		return *g.CheckedInAt
	case g.CheckInTime != nil && !g.CheckInTime.IsZero():
		return *g.CheckInTime
	case !g.UpdatedAt.IsZero():
		return g.UpdatedAt
	default:
		return g.CreatedAt
	}
}
