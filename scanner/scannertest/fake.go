// Package scannertest provides an in-memory coordinator for exercising
// scanner code without a server.
package scannertest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"checkin-backend/apperror"
	"checkin-backend/localtime"
	"checkin-backend/models"
	"checkin-backend/textmatch"
	"checkin-backend/utils"
)

var errUnreachable = errors.New("dial tcp: connection refused")

// FakeAPI behaves like the coordinator for one event and one token.
type FakeAPI struct {
	Token     string
	EventID   string
	ScannerID string
	Now       func() time.Time

	mu       sync.Mutex
	down     bool
	guests   map[string]*models.Guest
	submits  []models.ScanRequest
	failNext map[string]error
}

func NewFakeAPI(token, eventID string, guests ...models.Guest) *FakeAPI {
	f := &FakeAPI{
		Token:     token,
		EventID:   eventID,
		ScannerID: "fake-door",
		Now:       time.Now,
		guests:    make(map[string]*models.Guest),
		failNext:  make(map[string]error),
	}
	for i := range guests {
		g := guests[i]
		g.EventID = eventID
		f.guests[g.ID] = &g
	}
	return f
}

// SetDown makes every call fail as unreachable.
func (f *FakeAPI) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailNext makes the next SubmitScan for guestID return err.
func (f *FakeAPI) FailNext(guestID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[guestID] = err
}

// CheckIn admits a guest directly, as another scanner would.
func (f *FakeAPI) CheckIn(guestID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.guests[guestID]; ok && !g.CheckedIn {
		g.CheckedIn = true
		g.CheckedInAt = &at
	}
}

// Guest returns a copy of the stored guest.
func (f *FakeAPI) Guest(id string) (models.Guest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[id]
	if !ok {
		return models.Guest{}, false
	}
	return *g, true
}

// Submits returns every SubmitScan request received while reachable.
func (f *FakeAPI) Submits() []models.ScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ScanRequest(nil), f.submits...)
}

func (f *FakeAPI) check(token string) error {
	if f.down {
		return apperror.Transient("coordinator unreachable", errUnreachable)
	}
	if token != f.Token {
		return apperror.Auth("session_invalid", "scanner session is missing, invalid or expired")
	}
	return nil
}

func (f *FakeAPI) SubmitScan(_ context.Context, token string, req models.ScanRequest) (*models.CheckinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		return nil, apperror.Transient("coordinator unreachable", errUnreachable)
	}
	id := utils.NormalizeGuestIdentifier(req.Identifier)
	if !utils.IsValidGuestIdentifier(id) {
		return nil, apperror.Validation("invalid_identifier", "identifier is not a valid guest token")
	}
	if err := f.check(token); err != nil {
		return nil, err
	}
	f.submits = append(f.submits, req)
	if err, ok := f.failNext[id]; ok {
		delete(f.failNext, id)
		return nil, err
	}

	g, ok := f.guests[id]
	if !ok {
		return nil, apperror.NotFound("guest_not_found", "no guest with this identifier for the event")
	}
	if g.CheckedIn {
		return result(g, true), apperror.Conflict("already_checked_in", "guest is already checked in")
	}
	now := f.Now().UTC()
	g.CheckedIn = true
	g.CheckedInAt = &now
	return result(g, false), nil
}

func result(g *models.Guest, already bool) *models.CheckinResult {
	at := g.ResolvedCheckInTime()
	return &models.CheckinResult{
		GuestID:          g.ID,
		Name:             g.Name,
		Phone:            g.Phone,
		CheckedInAt:      at,
		CheckedInDisplay: localtime.Format(at, time.UTC),
		AlreadyCheckedIn: already,
	}
}

func (f *FakeAPI) Search(_ context.Context, token, query string, limit int) ([]models.SearchCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token); err != nil {
		return nil, err
	}
	q := textmatch.NewQuery(query)
	if q.Empty() {
		return nil, apperror.Validation("invalid_query", "search query is required")
	}
	var out []models.SearchCandidate
	for _, g := range f.guests {
		if score, ok := q.Score(g.Name, g.Phone); ok {
			out = append(out, models.SearchCandidate{
				GuestID: g.ID, Name: g.Name, Phone: g.Phone,
				CheckedIn: g.CheckedIn, CheckedInAt: g.CheckedInAt, Score: score,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return textmatch.Before(out[i].Score, out[j].Score, out[i].CheckedIn, out[j].CheckedIn, out[i].Name, out[j].Name)
	})
	if limit = textmatch.ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeAPI) Guests(_ context.Context, token string) ([]models.Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token); err != nil {
		return nil, err
	}
	out := make([]models.Guest, 0, len(f.guests))
	for _, g := range f.guests {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeAPI) Session(_ context.Context, token string) (*models.ScannerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token); err != nil {
		return nil, err
	}
	return &models.ScannerSession{
		ScannerID: f.ScannerID,
		EventID:   f.EventID,
		Status:    models.SessionStatusActive,
	}, nil
}

func (f *FakeAPI) Stats(_ context.Context, token string) (models.EventStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token); err != nil {
		return models.EventStats{}, err
	}
	stats := models.EventStats{EventID: f.EventID, Total: int64(len(f.guests))}
	for _, g := range f.guests {
		if g.CheckedIn {
			stats.CheckedIn++
		}
	}
	return stats, nil
}

func (f *FakeAPI) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return apperror.Transient("coordinator unreachable", errUnreachable)
	}
	return nil
}
