package scanner

import (
	"context"
	"sync"
	"time"

	"checkin-backend/apperror"
	"checkin-backend/localtime"
	"checkin-backend/models"
	"checkin-backend/textmatch"
)

// State of the scan loop.
type State int

const (
	StateIdle State = iota
	StateCameraActive
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCameraActive:
		return "camera"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Outcome is what the operator is told about a scan.
type Outcome string

const (
	OutcomeCheckedIn        Outcome = "checked_in"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
	OutcomeQueued           Outcome = "queued_offline"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeUnauthorized     Outcome = "unauthorized"
	OutcomeError            Outcome = "error"
)

// ScanResult is delivered on Loop.Results for every submission.
type ScanResult struct {
	Payload     string
	GuestID     string
	Name        string
	Phone       string
	Method      models.Method
	Outcome     Outcome
	CheckedInAt time.Time
	Display     string
	// Offline is set when the answer came from the local cache.
	Offline bool
	Err     error
}

// LoopConfig tunes a Loop. Zero values take the defaults.
type LoopConfig struct {
	DebounceWindow time.Duration
	RequestTimeout time.Duration
	SearchLimit    int
}

// Loop turns decoded payloads and search picks into check-ins. It is
// Idle until the camera starts, CameraActive while accepting decodes and
// Submitting while one scan is in flight. Decodes arriving while
// Submitting are dropped. Results arrive on Results so the caller's UI
// never blocks on the network.
type Loop struct {
	sc        *SessionContext
	drainer   *Drainer
	debouncer *Debouncer
	cfg       LoopConfig
	results   chan ScanResult
	now       func() time.Time

	mu     sync.Mutex
	state  State
	camera bool

	inflight sync.WaitGroup
}

func NewLoop(sc *SessionContext, drainer *Drainer, cfg LoopConfig) *Loop {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Loop{
		sc:        sc,
		drainer:   drainer,
		debouncer: NewDebouncer(cfg.DebounceWindow),
		cfg:       cfg,
		results:   make(chan ScanResult, 32),
		now:       time.Now,
	}
}

func (l *Loop) Results() <-chan ScanResult {
	return l.results
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Online reports whether scans go to the coordinator.
func (l *Loop) Online() bool {
	return l.drainer.Online()
}

// StartCamera moves Idle to CameraActive. While Submitting it only
// records that the camera should be on when the submission finishes.
func (l *Loop) StartCamera() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.camera = true
	if l.state == StateIdle {
		l.state = StateCameraActive
	}
}

// StopCamera returns to Idle. An in-flight submission still completes
// and reports its result.
func (l *Loop) StopCamera() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.camera = false
	if l.state == StateCameraActive {
		l.state = StateIdle
	}
	l.debouncer.Reset()
}

// HandleDecode accepts one raw decode from the camera. It returns false
// when the decode was dropped (camera off, busy, or a repeat within the
// debounce window). A repeat dropped while busy still counts as a
// sighting, so a code held in frame through a slow submission is not
// sent again.
func (l *Loop) HandleDecode(payload string) bool {
	l.mu.Lock()
	switch l.state {
	case StateIdle:
		l.mu.Unlock()
		return false
	case StateSubmitting:
		l.debouncer.Touch(payload)
		l.mu.Unlock()
		return false
	}
	if !l.debouncer.Allow(payload) {
		l.mu.Unlock()
		return false
	}
	l.state = StateSubmitting
	l.mu.Unlock()

	l.dispatch(payload, models.MethodQRCode)
	return true
}

// SubmitSelection checks in a guest picked from search results. It is
// refused only while another submission is in flight.
func (l *Loop) SubmitSelection(guestID string) bool {
	l.mu.Lock()
	if l.state == StateSubmitting {
		l.mu.Unlock()
		return false
	}
	l.state = StateSubmitting
	l.mu.Unlock()

	l.dispatch(guestID, models.MethodNameSearch)
	return true
}

// Wait blocks until in-flight submissions have delivered their results.
func (l *Loop) Wait() {
	l.inflight.Wait()
}

func (l *Loop) dispatch(payload string, method models.Method) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		res := l.process(payload, method)

		l.mu.Lock()
		if l.camera {
			l.state = StateCameraActive
		} else {
			l.state = StateIdle
		}
		l.mu.Unlock()

		l.results <- res
	}()
}

func (l *Loop) process(payload string, method models.Method) ScanResult {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.RequestTimeout)
	defer cancel()

	eventID := l.sc.Session.EventID
	identifier, ok := ExtractIdentifier(payload)
	if !ok {
		// a typed id fragment can still be resolved from the cache
		if g, err := l.sc.Directory.LookupOffline(ctx, eventID, identifier); err == nil {
			identifier = g.ID
		}
	}
	base := ScanResult{Payload: payload, GuestID: identifier, Method: method}
	log := l.sc.Log.With("method", string(method))

	if l.Online() {
		res, err := l.sc.API.SubmitScan(ctx, l.sc.Session.Token, models.ScanRequest{Identifier: identifier, Method: method})
		switch apperror.KindOf(err) {
		case "":
			l.applyServer(ctx, res)
			return l.fromServer(base, res, OutcomeCheckedIn)
		case apperror.KindConflict:
			l.applyServer(ctx, res)
			out := l.fromServer(base, res, OutcomeAlreadyCheckedIn)
			out.Err = err
			return out
		case apperror.KindTransient:
			log.Info("coordinator unreachable, scanning offline", "error", err)
			l.drainer.SetOnline(false)
		case apperror.KindAuth:
			base.Outcome, base.Err = OutcomeUnauthorized, err
			return base
		case apperror.KindNotFound:
			base.Outcome, base.Err = OutcomeNotFound, err
			return base
		case apperror.KindValidation:
			base.Outcome, base.Err = OutcomeInvalid, err
			return base
		default:
			log.Error("check-in failed", "error", err)
			base.Outcome, base.Err = OutcomeError, err
			return base
		}
	}

	return l.processOffline(ctx, base)
}

func (l *Loop) processOffline(ctx context.Context, base ScanResult) ScanResult {
	eventID := l.sc.Session.EventID
	base.Offline = true

	guest, err := l.sc.Directory.LookupOffline(ctx, eventID, base.GuestID)
	if err != nil {
		switch apperror.KindOf(err) {
		case apperror.KindNotFound:
			base.Outcome = OutcomeNotFound
		case apperror.KindValidation:
			base.Outcome = OutcomeInvalid
		default:
			base.Outcome = OutcomeError
		}
		base.Err = err
		return base
	}

	base.GuestID, base.Name, base.Phone = guest.ID, guest.Name, guest.Phone
	if guest.Admitted() {
		base.Outcome = OutcomeAlreadyCheckedIn
		base.CheckedInAt = guest.AdmittedAt()
		base.Display = localtime.Format(base.CheckedInAt, l.sc.Location)
		return base
	}

	now := l.now().UTC()
	if _, err := l.sc.Queue.Enqueue(ctx, eventID, guest.ID, base.Method, now); err != nil {
		base.Outcome, base.Err = OutcomeError, err
		return base
	}
	if err := l.sc.Directory.MarkCheckedIn(ctx, eventID, guest.ID, now); err != nil {
		l.sc.Log.Warn("mark local check-in failed", "guest_id", guest.ID, "error", err)
	}

	base.Outcome = OutcomeQueued
	base.CheckedInAt = now
	base.Display = localtime.Format(now, l.sc.Location)
	return base
}

func (l *Loop) applyServer(ctx context.Context, res *models.CheckinResult) {
	if err := l.sc.Directory.ApplyServerResult(ctx, l.sc.Session.EventID, res); err != nil {
		l.sc.Log.Warn("cache update failed", "error", err)
	}
}

func (l *Loop) fromServer(base ScanResult, res *models.CheckinResult, outcome Outcome) ScanResult {
	base.Outcome = outcome
	if res == nil {
		return base
	}
	base.GuestID, base.Name, base.Phone = res.GuestID, res.Name, res.Phone
	base.CheckedInAt = res.CheckedInAt
	base.Display = res.CheckedInDisplay
	if base.Display == "" {
		base.Display = localtime.Format(res.CheckedInAt, l.sc.Location)
	}
	return base
}

// Search looks guests up by name or phone, online when possible and
// over the cached snapshot otherwise. The boolean reports an offline
// answer.
func (l *Loop) Search(ctx context.Context, query string) ([]models.SearchCandidate, bool, error) {
	if textmatch.NewQuery(query).Empty() {
		return nil, false, apperror.Validation("invalid_query", "search query is required")
	}

	if l.Online() {
		candidates, err := l.sc.API.Search(ctx, l.sc.Session.Token, query, l.cfg.SearchLimit)
		if err == nil {
			return candidates, false, nil
		}
		if !apperror.Is(err, apperror.KindTransient) {
			return nil, false, err
		}
		l.drainer.SetOnline(false)
	}

	guests, err := l.sc.Directory.All(ctx, l.sc.Session.EventID)
	if err != nil {
		return nil, true, err
	}
	return SearchOffline(guests, query, l.cfg.SearchLimit), true, nil
}
