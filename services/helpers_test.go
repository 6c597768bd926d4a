package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"checkin-backend/config"
	"checkin-backend/models"
)

const (
	testEvent = "event-1"
	testToken = "scanner-token-0001-abcdef"

	guestAna   = "6f1c2b7e-8d1a-4c3e-9b5f-2a7d9e0c1b11"
	guestJose  = "0b8e4c2a-3f5d-4e6a-8c1b-7d9f2e4a6c22"
	guestOther = "9a7b5c3d-1e2f-4a6b-8c9d-0e1f2a3b4c33"
)

var fixedNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "checkin.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// newTestDB returns a migrated store holding one active session for
// testEvent, two guests there and one guest of another event.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t)
	if err := config.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	seedSession(t, db, testToken, testEvent, models.SessionStatusActive, fixedNow)
	guests := []models.Guest{
		{ID: guestAna, EventID: testEvent, Name: "Ana Souza", Phone: "+55 11 98765-4321",
			CreatedAt: fixedNow.Add(-48 * time.Hour), UpdatedAt: fixedNow.Add(-48 * time.Hour)},
		{ID: guestJose, EventID: testEvent, Name: "José Álvarez", Phone: "+34 612 345 678",
			CreatedAt: fixedNow.Add(-48 * time.Hour), UpdatedAt: fixedNow.Add(-48 * time.Hour)},
		{ID: guestOther, EventID: "event-2", Name: "Ana Outra", Phone: "+55 11 90000-0000",
			CreatedAt: fixedNow.Add(-48 * time.Hour), UpdatedAt: fixedNow.Add(-48 * time.Hour)},
	}
	if err := db.Create(&guests).Error; err != nil {
		t.Fatalf("seed guests: %v", err)
	}
	return db
}

func seedSession(t *testing.T, db *gorm.DB, token, eventID, status string, lastActivity time.Time) {
	t.Helper()
	session := models.ScannerSession{
		Token:        token,
		ScannerID:    "door-" + token[len(token)-4:],
		EventID:      eventID,
		Status:       status,
		LastActivity: lastActivity,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func newTestCheckinService(db *gorm.DB) *CheckinService {
	sessions := NewSessionService(db, 0, discardLogger())
	sessions.now = func() time.Time { return fixedNow }
	svc := NewCheckinService(db, sessions, time.UTC, discardLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func loadGuest(t *testing.T, db *gorm.DB, id string) models.Guest {
	t.Helper()
	var g models.Guest
	if err := db.Where("id = ?", id).First(&g).Error; err != nil {
		t.Fatalf("load guest %s: %v", id, err)
	}
	return g
}

// countingAuthorizer records calls and delegates.
type countingAuthorizer struct {
	next  Authorizer
	calls int
}

func (a *countingAuthorizer) Authorize(ctx context.Context, token string) (*models.ScannerSession, error) {
	a.calls++
	return a.next.Authorize(ctx, token)
}
