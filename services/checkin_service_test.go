package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"checkin-backend/apperror"
	"checkin-backend/models"
)

func TestSubmitScanChecksInGuest(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{
		Identifier: guestAna,
		Method:     models.MethodQRCode,
	})
	if err != nil {
		t.Fatalf("SubmitScan: %v", err)
	}
	if res.Name != "Ana Souza" || res.Phone != "+55 11 98765-4321" {
		t.Fatalf("unexpected guest identity: %+v", res)
	}
	if res.AlreadyCheckedIn {
		t.Fatal("fresh check-in reported as already checked in")
	}
	if !res.CheckedInAt.Equal(fixedNow) {
		t.Fatalf("CheckedInAt = %v, want %v", res.CheckedInAt, fixedNow)
	}
	if res.CheckedInDisplay != "14/03/2026 18:30" {
		t.Fatalf("CheckedInDisplay = %q", res.CheckedInDisplay)
	}

	stored := loadGuest(t, db, guestAna)
	if !stored.CheckedIn || stored.CheckedInAt == nil || stored.CheckInTime == nil {
		t.Fatalf("row not fully written: %+v", stored)
	}
}

func TestSubmitScanAcceptsUpperCaseIdentifierAndDefaultMethod(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{
		Identifier: "  6F1C2B7E-8D1A-4C3E-9B5F-2A7D9E0C1B11 ",
	})
	if err != nil {
		t.Fatalf("SubmitScan: %v", err)
	}
	if res.GuestID != guestAna {
		t.Fatalf("GuestID = %q", res.GuestID)
	}
}

func TestSubmitScanSecondScanConflictsWithOriginalTime(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)
	ctx := context.Background()
	req := models.ScanRequest{Identifier: guestAna, Method: models.MethodQRCode}

	first, err := svc.SubmitScan(ctx, testToken, req)
	if err != nil {
		t.Fatalf("first SubmitScan: %v", err)
	}

	svc.now = func() time.Time { return fixedNow.Add(10 * time.Minute) }
	second, err := svc.SubmitScan(ctx, testToken, req)
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("second SubmitScan error = %v, want conflict", err)
	}
	if second == nil || !second.AlreadyCheckedIn {
		t.Fatalf("conflict must carry the guest: %+v", second)
	}
	if !second.CheckedInAt.Equal(first.CheckedInAt) {
		t.Fatalf("conflict time %v != success time %v", second.CheckedInAt, first.CheckedInAt)
	}
	if second.Name != first.Name {
		t.Fatalf("conflict name %q != %q", second.Name, first.Name)
	}
}

func TestSubmitScanConcurrentScannersAdmitOnce(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)

	const scanners = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	wg.Add(scanners)
	for i := 0; i < scanners; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{
				Identifier: guestJose,
				Method:     models.MethodQRCode,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperror.Is(err, apperror.KindConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || conflicts != scanners-1 {
		t.Fatalf("successes=%d conflicts=%d, want 1 and %d", successes, conflicts, scanners-1)
	}
}

func TestSubmitScanGuestOfAnotherEventIsNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)

	_, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{
		Identifier: guestOther,
		Method:     models.MethodQRCode,
	})
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if loadGuest(t, db, guestOther).CheckedIn {
		t.Fatal("guest of another event was checked in")
	}
}

func TestSubmitScanUnknownGuestIsNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)

	_, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{
		Identifier: "11111111-2222-4333-8444-555555555555",
		Method:     models.MethodQRCode,
	})
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSubmitScanRejectsBadSession(t *testing.T) {
	db := newTestDB(t)
	seedSession(t, db, "expired-token-000000-ffff", testEvent, models.SessionStatusExpired, fixedNow)
	svc := newTestCheckinService(db)

	for _, token := range []string{"", "short", "unknown-token-00000000", "expired-token-000000-ffff"} {
		_, err := svc.SubmitScan(context.Background(), token, models.ScanRequest{
			Identifier: guestAna,
			Method:     models.MethodQRCode,
		})
		if !apperror.Is(err, apperror.KindAuth) {
			t.Fatalf("token %q: err = %v, want auth", token, err)
		}
	}
	if loadGuest(t, db, guestAna).CheckedIn {
		t.Fatal("guest checked in without a valid session")
	}
}

func TestSubmitScanValidatesBeforeTouchingStorage(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)
	auth := &countingAuthorizer{next: svc.Sessions}
	svc.Sessions = auth

	var statements int
	count := func(*gorm.DB) { statements++ }
	if err := db.Callback().Query().Before("gorm:query").Register("test:count_query", count); err != nil {
		t.Fatal(err)
	}
	if err := db.Callback().Update().Before("gorm:update").Register("test:count_update", count); err != nil {
		t.Fatal(err)
	}

	cases := []models.ScanRequest{
		{Identifier: "", Method: models.MethodQRCode},
		{Identifier: "not-a-uuid", Method: models.MethodQRCode},
		{Identifier: "6f1c2b7e8d1a4c3e9b5f2a7d9e0c1b11", Method: models.MethodQRCode},
		{Identifier: guestAna, Method: "telepathy"},
	}
	for _, req := range cases {
		_, err := svc.SubmitScan(context.Background(), testToken, req)
		if !apperror.Is(err, apperror.KindValidation) {
			t.Fatalf("%+v: err = %v, want validation", req, err)
		}
	}
	if statements != 0 || auth.calls != 0 {
		t.Fatalf("validation touched storage: statements=%d authorize=%d", statements, auth.calls)
	}
}

func TestSubmitScanLegacyTimestampOnConflict(t *testing.T) {
	db := newTestDB(t)
	legacy := time.Date(2026, 3, 14, 17, 5, 0, 0, time.UTC)
	err := db.Model(&models.Guest{}).Where("id = ?", guestAna).
		UpdateColumns(map[string]interface{}{"checked_in": true, "check_in_time": legacy}).Error
	if err != nil {
		t.Fatal(err)
	}
	svc := newTestCheckinService(db)

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if !res.CheckedInAt.Equal(legacy) {
		t.Fatalf("CheckedInAt = %v, want legacy %v", res.CheckedInAt, legacy)
	}
}

// rejectingStrategy simulates a tier whose columns the schema lacks.
type rejectingStrategy struct{ name string }

func (s rejectingStrategy) Name() string { return s.name }

func (s rejectingStrategy) Commit(context.Context, *gorm.DB, *models.Guest, time.Time) (CommitResult, error) {
	return CommitResult{Outcome: CommitRejected, Reason: errors.New("no such column: x")}, nil
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }

func (failingStrategy) Commit(context.Context, *gorm.DB, *models.Guest, time.Time) (CommitResult, error) {
	return CommitResult{}, errors.New("connection reset by peer")
}

type recordingStrategy struct {
	called *bool
}

func (recordingStrategy) Name() string { return "recording" }

func (s recordingStrategy) Commit(context.Context, *gorm.DB, *models.Guest, time.Time) (CommitResult, error) {
	*s.called = true
	return CommitResult{Outcome: CommitCommitted}, nil
}

func TestSubmitScanFallsThroughToUnconditionalTier(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)
	svc.Strategies = []CommitStrategy{
		rejectingStrategy{name: "a"},
		rejectingStrategy{name: "b"},
		UnconditionalStrategy{},
	}

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if err != nil {
		t.Fatalf("SubmitScan: %v", err)
	}
	if res.AlreadyCheckedIn {
		t.Fatal("unexpected conflict")
	}
	if !loadGuest(t, db, guestAna).CheckedIn {
		t.Fatal("flag not written by unconditional tier")
	}
}

func TestSubmitScanAllTiersRejectedIsInternal(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)
	svc.Strategies = []CommitStrategy{rejectingStrategy{name: "a"}, rejectingStrategy{name: "b"}}

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if !apperror.Is(err, apperror.KindInternal) {
		t.Fatalf("err = %v, want internal", err)
	}
	if res != nil {
		t.Fatalf("internal error leaked guest data: %+v", res)
	}
}

func TestSubmitScanStorageErrorDoesNotDegrade(t *testing.T) {
	db := newTestDB(t)
	svc := newTestCheckinService(db)
	called := false
	svc.Strategies = []CommitStrategy{failingStrategy{}, recordingStrategy{called: &called}}

	_, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if !apperror.Is(err, apperror.KindInternal) {
		t.Fatalf("err = %v, want internal", err)
	}
	if called {
		t.Fatal("cascade continued after a non-schema storage error")
	}
}

// seedLegacyGuests creates a guests table from before the check-in
// timestamp columns existed, optionally without updated_at too.
func seedLegacyGuests(t *testing.T, withUpdatedAt bool) *gorm.DB {
	t.Helper()
	db := openTestDB(t)
	if err := db.AutoMigrate(&models.ScannerSession{}); err != nil {
		t.Fatal(err)
	}
	ddl := `CREATE TABLE guests (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		name TEXT,
		phone TEXT,
		checked_in NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME`
	if withUpdatedAt {
		ddl += `,
		updated_at DATETIME`
	}
	if err := db.Exec(ddl + `)`).Error; err != nil {
		t.Fatal(err)
	}
	created := fixedNow.Add(-24 * time.Hour)
	if err := db.Exec(`INSERT INTO guests (id, event_id, name, phone, checked_in, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, guestAna, testEvent, "Ana Souza", "+55 11 98765-4321", false, created).Error; err != nil {
		t.Fatal(err)
	}
	if withUpdatedAt {
		if err := db.Exec(`UPDATE guests SET updated_at = ? WHERE id = ?`, created, guestAna).Error; err != nil {
			t.Fatal(err)
		}
	}
	seedSession(t, db, testToken, testEvent, models.SessionStatusActive, fixedNow)
	return db
}

func TestSubmitScanFlagOnlyTierOnLegacySchema(t *testing.T) {
	db := seedLegacyGuests(t, true)
	svc := newTestCheckinService(db)

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if err != nil {
		t.Fatalf("SubmitScan: %v", err)
	}
	if !res.CheckedInAt.Equal(fixedNow) {
		t.Fatalf("CheckedInAt = %v, want admission time %v", res.CheckedInAt, fixedNow)
	}

	var flag bool
	if err := db.Raw("SELECT checked_in FROM guests WHERE id = ?", guestAna).Scan(&flag).Error; err != nil {
		t.Fatal(err)
	}
	if !flag {
		t.Fatal("flag-only tier did not write checked_in")
	}

	svc.now = func() time.Time { return fixedNow.Add(10 * time.Minute) }
	again, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("rescan err = %v, want conflict", err)
	}
	if again == nil || !again.CheckedInAt.Equal(fixedNow) {
		t.Fatalf("conflict must carry the original admission time, got %+v", again)
	}
}

func TestSubmitScanFlagOnlyTierWithoutUpdatedAt(t *testing.T) {
	db := seedLegacyGuests(t, false)
	svc := newTestCheckinService(db)

	res, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna})
	if err != nil {
		t.Fatalf("SubmitScan: %v", err)
	}
	if created := fixedNow.Add(-24 * time.Hour); !res.CheckedInAt.Equal(created) {
		t.Fatalf("CheckedInAt = %v, want created_at %v", res.CheckedInAt, created)
	}
	if _, err := svc.SubmitScan(context.Background(), testToken, models.ScanRequest{Identifier: guestAna}); !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("rescan err = %v, want conflict", err)
	}
}
