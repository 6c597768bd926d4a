package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"checkin-backend/config"
	"checkin-backend/controllers"
	"checkin-backend/models"
	"checkin-backend/services"
)

const (
	token   = "route-test-token-000000"
	guestID = "3c2b1a09-8f7e-4d6c-9b5a-4f3e2d1c0b99"
)

type envelope struct {
	Status    string          `json:"status"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "routes.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := config.Migrate(db); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	if err := db.Create(&models.ScannerSession{
		Token: token, ScannerID: "door-7", EventID: "gala", Status: models.SessionStatusActive, LastActivity: now,
	}).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.Guest{ID: guestID, EventID: "gala", Name: "Zoë Kowalski", Phone: "+48 600 700 800"}).Error; err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := services.NewSessionService(db, time.Hour, log)
	r := SetupRouter(Deps{
		Checkin:  controllers.NewCheckinController(services.NewCheckinService(db, sessions, time.UTC, log)),
		Search:   controllers.NewSearchController(services.NewSearchService(db, log), 20),
		Guests:   controllers.NewGuestController(services.NewGuestService(db, log)),
		Sessions: sessions,
		Log:      log,
	})
	return r, db
}

func do(t *testing.T, r http.Handler, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func TestCheckinThenConflict(t *testing.T) {
	r, _ := setupRouter(t)
	body := models.ScanRequest{Identifier: guestID, Method: models.MethodQRCode}

	w, env := do(t, r, http.MethodPost, "/api/scanner/checkin", token, body)
	if w.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("first scan: %d %s", w.Code, w.Body.String())
	}
	var first models.CheckinResult
	if err := json.Unmarshal(env.Data, &first); err != nil {
		t.Fatal(err)
	}
	if first.Name != "Zoë Kowalski" || first.CheckedInDisplay == "" {
		t.Fatalf("unexpected result: %+v", first)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}

	w, env = do(t, r, http.MethodPost, "/api/scanner/checkin", token, body)
	if w.Code != http.StatusConflict || env.Code != "already_checked_in" {
		t.Fatalf("second scan: %d %s", w.Code, w.Body.String())
	}
	var second models.CheckinResult
	if err := json.Unmarshal(env.Data, &second); err != nil {
		t.Fatal(err)
	}
	if !second.AlreadyCheckedIn || !second.CheckedInAt.Equal(first.CheckedInAt) {
		t.Fatalf("conflict body %+v does not match first check-in %+v", second, first)
	}
}

func TestCheckinStatusCodes(t *testing.T) {
	r, _ := setupRouter(t)

	cases := []struct {
		name   string
		bearer string
		body   interface{}
		status int
		code   string
	}{
		{"malformed json", token, "{not json", http.StatusBadRequest, "invalid_body"},
		{"bad identifier", token, models.ScanRequest{Identifier: "abc"}, http.StatusBadRequest, "invalid_identifier"},
		{"bad identifier without session", "", models.ScanRequest{Identifier: "abc"}, http.StatusBadRequest, "invalid_identifier"},
		{"no session", "", models.ScanRequest{Identifier: guestID}, http.StatusUnauthorized, "session_invalid"},
		{"unknown guest", token, models.ScanRequest{Identifier: "00000000-0000-4000-8000-000000000000"}, http.StatusNotFound, "guest_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, "/api/scanner/checkin", tc.bearer, tc.body)
			if w.Code != tc.status || env.Code != tc.code {
				t.Fatalf("got %d %q, want %d %q (%s)", w.Code, env.Code, tc.status, tc.code, w.Body.String())
			}
			if env.Status != "error" {
				t.Fatalf("status = %q", env.Status)
			}
			if len(env.Data) != 0 {
				t.Fatalf("error without a result carried data: %s", env.Data)
			}
		})
	}
}

func TestSearchRoute(t *testing.T) {
	r, _ := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/scanner/search?q=zoe", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d %s", w.Code, w.Body.String())
	}
	var got []models.SearchCandidate
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].GuestID != guestID {
		t.Fatalf("got %+v", got)
	}

	w, _ = do(t, r, http.MethodGet, "/api/scanner/search?q=", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty query: %d", w.Code)
	}
	w, _ = do(t, r, http.MethodGet, "/api/scanner/search?q=zoe&limit=-1", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", w.Code)
	}
	w, _ = do(t, r, http.MethodGet, "/api/scanner/search?q=zoe", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no session: %d", w.Code)
	}
}

func TestSnapshotStatsAndSession(t *testing.T) {
	r, _ := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/scanner/guests", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("guests: %d", w.Code)
	}
	var guests []models.Guest
	if err := json.Unmarshal(env.Data, &guests); err != nil {
		t.Fatal(err)
	}
	if len(guests) != 1 || guests[0].ID != guestID {
		t.Fatalf("guests = %+v", guests)
	}

	do(t, r, http.MethodPost, "/api/scanner/checkin", token, models.ScanRequest{Identifier: guestID})

	w, env = do(t, r, http.MethodGet, "/api/scanner/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d", w.Code)
	}
	var stats models.EventStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.CheckedIn != 1 || stats.EventID != "gala" {
		t.Fatalf("stats = %+v", stats)
	}

	w, env = do(t, r, http.MethodGet, "/api/scanner/session", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session: %d", w.Code)
	}
	var session models.ScannerSession
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatal(err)
	}
	if session.EventID != "gala" || session.ScannerID != "door-7" || session.Token != "" {
		t.Fatalf("session = %+v", session)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("health: %d id=%q", w.Code, w.Header().Get("X-Request-ID"))
	}
}
