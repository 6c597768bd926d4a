package scanner

import (
	"context"
	"testing"
	"time"

	"checkin-backend/apperror"
	"checkin-backend/models"
)

func TestLookupOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.sc.Directory

	cases := []struct {
		name string
		in   string
		want string
		kind apperror.Kind
	}{
		{"exact", idAna, idAna, ""},
		{"exact upper case", "  6F1C2B7E-8D1A-4C3E-9B5F-2A7D9E0C1B11", idAna, ""},
		{"unique prefix", "6f1c2b7e-8d", idAna, ""},
		{"ambiguous prefix", "0b8e4c2a", "", apperror.KindValidation},
		{"prefix too short", "6f1c2b7", "", apperror.KindNotFound},
		{"unknown", "ffffffff-2222-4333-8444-555555555555", "", apperror.KindNotFound},
		{"empty", "", "", apperror.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := dir.LookupOffline(ctx, testEvent, tc.in)
			if tc.kind != "" {
				if !apperror.Is(err, tc.kind) {
					t.Fatalf("err = %v, want %s", err, tc.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupOffline: %v", err)
			}
			if g.ID != tc.want {
				t.Fatalf("got %s, want %s", g.ID, tc.want)
			}
		})
	}
}

func TestLookupOfflineIsScopedToEvent(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sc.Directory.LookupOffline(context.Background(), "other-event", idAna); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestRefreshKeepsPendingLocalCheckins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanAt := serverNow.Add(-time.Minute)

	if _, err := f.sc.Queue.Enqueue(ctx, testEvent, idJose, models.MethodQRCode, scanAt); err != nil {
		t.Fatal(err)
	}
	if err := f.sc.Directory.MarkCheckedIn(ctx, testEvent, idJose, scanAt); err != nil {
		t.Fatal(err)
	}

	if _, err := f.sc.Directory.Refresh(ctx, f.sc); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	g := f.cached(t, idJose)
	if !g.LocalCheckedIn || g.CheckedIn {
		t.Fatalf("refresh lost the pending local check-in: %+v", g)
	}
	if g.LocalCheckedAt == nil || !g.LocalCheckedAt.Equal(scanAt) {
		t.Fatalf("local time = %v, want %v", g.LocalCheckedAt, scanAt)
	}
	if !g.Admitted() || !g.AdmittedAt().Equal(scanAt) {
		t.Fatalf("guest should read as admitted at %v", scanAt)
	}
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.CheckIn(idAna, serverNow)
	n, err := f.sc.Directory.Refresh(ctx, f.sc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("refreshed %d guests, want 3", n)
	}
	if g := f.cached(t, idAna); !g.CheckedIn || !g.CheckedInAt.Equal(serverNow) {
		t.Fatalf("server check-in not reflected: %+v", g)
	}

	if err := f.sc.Directory.Replace(ctx, testEvent, nil); err != nil {
		t.Fatal(err)
	}
	total, _, err := f.sc.Directory.Counts(ctx, testEvent)
	if err != nil || total != 0 {
		t.Fatalf("total = %d err = %v after empty replace", total, err)
	}
}

func TestApplyServerResultOverridesLocalFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := serverNow.Add(time.Minute)
	if err := f.sc.Directory.MarkCheckedIn(ctx, testEvent, idAna, local); err != nil {
		t.Fatal(err)
	}

	err := f.sc.Directory.ApplyServerResult(ctx, testEvent, &models.CheckinResult{GuestID: idAna, CheckedInAt: serverNow})
	if err != nil {
		t.Fatal(err)
	}
	g := f.cached(t, idAna)
	if !g.CheckedIn || g.LocalCheckedIn || !g.AdmittedAt().Equal(serverNow) {
		t.Fatalf("guest = %+v", g)
	}

	_, admitted, err := f.sc.Directory.Counts(ctx, testEvent)
	if err != nil || admitted != 1 {
		t.Fatalf("admitted = %d err = %v", admitted, err)
	}
}
