package scanner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"checkin-backend/models"
	"checkin-backend/scanner/scannertest"
)

const (
	testToken = "scanner-test-token-0000"
	testEvent = "gala"

	idAna   = "6f1c2b7e-8d1a-4c3e-9b5f-2a7d9e0c1b11"
	idJose  = "0b8e4c2a-3f5d-4e6a-8c1b-7d9f2e4a6c22"
	idJosie = "0b8e4c2a-9999-4e6a-8c1b-7d9f2e4a6c33"
)

var serverNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func testGuests() []models.Guest {
	created := serverNow.Add(-24 * time.Hour)
	return []models.Guest{
		{ID: idAna, Name: "Ana Souza", Phone: "+55 11 98765-4321", CreatedAt: created, UpdatedAt: created},
		{ID: idJose, Name: "José Álvarez", Phone: "+34 612 345 678", CreatedAt: created, UpdatedAt: created},
		{ID: idJosie, Name: "Josie Park", Phone: "+1 415 555 0100", CreatedAt: created, UpdatedAt: created},
	}
}

type fixture struct {
	sc      *SessionContext
	api     *scannertest.FakeAPI
	drainer *Drainer
	store   *Store
}

// newFixture binds a fresh store to a fake coordinator, refreshes the
// snapshot and starts online.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api := scannertest.NewFakeAPI(testToken, testEvent, testGuests()...)
	api.Now = func() time.Time { return serverNow }

	sess, err := Bind(ctx, api, store, "http://coordinator.test", testToken)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	sc := NewSessionContext(sess, api, store, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := sc.Directory.Refresh(ctx, sc); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	drainer := NewDrainer(sc)
	drainer.SetOnline(true)
	return &fixture{sc: sc, api: api, drainer: drainer, store: store}
}

func (f *fixture) goOffline() {
	f.api.SetDown(true)
	f.drainer.SetOnline(false)
}

func (f *fixture) goOnline() {
	f.api.SetDown(false)
	f.drainer.SetOnline(true)
}

func (f *fixture) cached(t *testing.T, id string) CachedGuest {
	t.Helper()
	g, err := f.sc.Directory.Get(context.Background(), testEvent, id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return *g
}

func (f *fixture) pending(t *testing.T) int {
	t.Helper()
	n, err := f.sc.Queue.PendingCount(context.Background(), testEvent)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func waitResult(t *testing.T, l *Loop) ScanResult {
	t.Helper()
	select {
	case res := <-l.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no scan result within 5s")
		return ScanResult{}
	}
}
