package models

import "time"

// Method is how the scanner identified the guest.
type Method string

const (
	MethodQRCode     Method = "qr_code"
	MethodNameSearch Method = "name_search"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	return m == MethodQRCode || m == MethodNameSearch
}

// ScanRequest is the body of POST /api/scanner/checkin.
type ScanRequest struct {
	Identifier string `json:"identifier"`
	Method     Method `json:"method"`
}

// CheckinResult is returned for a fresh check-in and, with
// AlreadyCheckedIn set, alongside a conflict.
type CheckinResult struct {
	GuestID          string    `json:"guest_id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	CheckedInAt      time.Time `json:"checked_in_at"`
	CheckedInDisplay string    `json:"checked_in_display"`
	AlreadyCheckedIn bool      `json:"already_checked_in"`
}

// ScanAttempt correlates the log lines of one submission. It is never
// persisted.
type ScanAttempt struct {
	TokenOrQuery string
	Method       Method
	RequestID    string
	Timestamp    time.Time
}

// SearchCandidate is one search hit.
type SearchCandidate struct {
	GuestID     string     `json:"guest_id"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	CheckedIn   bool       `json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	Score       float64    `json:"score"`
}

// EventStats summarises admissions for an event.
type EventStats struct {
	EventID   string `json:"event_id"`
	Total     int64  `json:"total"`
	CheckedIn int64  `json:"checked_in"`
}
