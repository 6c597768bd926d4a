package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"checkin-backend/apperror"
	"checkin-backend/localtime"
	"checkin-backend/models"
	"checkin-backend/utils"
)

var (
	errAlreadyCheckedIn = apperror.Conflict("already_checked_in", "guest is already checked in")
	errGuestNotFound    = apperror.NotFound("guest_not_found", "no guest with this identifier for the event")
	errTiersExhausted   = errors.New("every commit strategy was rejected")
)

// Authorizer resolves a scanner credential to its session.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*models.ScannerSession, error)
}

// CheckinService is the single authority deciding whether a guest may
// be checked in. It keeps no in-process state about guests; the storage
// engine's conditional update carries the at-most-once guarantee.
type CheckinService struct {
	DB         *gorm.DB
	Sessions   Authorizer
	Strategies []CommitStrategy
	Location   *time.Location

	log *slog.Logger
	now func() time.Time
}

func NewCheckinService(db *gorm.DB, sessions Authorizer, loc *time.Location, logger *slog.Logger) *CheckinService {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CheckinService{
		DB:         db,
		Sessions:   sessions,
		Strategies: DefaultCommitStrategies(),
		Location:   loc,
		log:        logger,
		now:        time.Now,
	}
}

// SubmitScan admits the guest named by req.Identifier into the event the
// session is bound to.
//
// On a conflict both the result (AlreadyCheckedIn set, original
// timestamp) and a KindConflict error are returned. Every other error
// comes with a nil result.
func (s *CheckinService) SubmitScan(ctx context.Context, token string, req models.ScanRequest) (*models.CheckinResult, error) {
	attempt := models.ScanAttempt{
		TokenOrQuery: utils.TokenFingerprint(token),
		Method:       req.Method,
		RequestID:    utils.RequestID(ctx),
		Timestamp:    s.now().UTC(),
	}
	log := utils.Logger(ctx, s.log).With("token", attempt.TokenOrQuery, "method", string(attempt.Method))

	identifier, method, err := validateScanRequest(req)
	if err != nil {
		log.Info("CheckinService.SubmitScan rejected request", "error", err)
		return nil, err
	}
	log = log.With("guest_id", identifier, "method", string(method))

	session, err := s.Sessions.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	log = log.With("event_id", session.EventID, "scanner_id", session.ScannerID)

	guest, err := s.findGuest(ctx, identifier, session.EventID)
	if err != nil {
		if !apperror.Is(err, apperror.KindNotFound) {
			log.Error("CheckinService.SubmitScan guest lookup failed", "error", err)
		}
		return nil, err
	}

	if guest.CheckedIn {
		log.Info("CheckinService.SubmitScan already checked in")
		return s.result(guest, true), errAlreadyCheckedIn
	}

	now := s.now().UTC()
	for i, strategy := range s.Strategies {
		res, err := strategy.Commit(ctx, s.DB, guest, now)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errGuestNotFound
			}
			log.Error("CheckinService.SubmitScan commit aborted", "tier", strategy.Name(), "error", err)
			return nil, apperror.Internal("check-in could not be recorded", err)
		}

		switch res.Outcome {
		case CommitCommitted:
			if i > 0 {
				log.Warn("CheckinService.SubmitScan committed on degraded tier", "tier", strategy.Name())
			}
			return s.committed(ctx, log, guest, now), nil

		case CommitRaceDetected:
			winner := res.Prior
			if winner == nil {
				winner, err = s.findGuest(ctx, guest.ID, guest.EventID)
				if err != nil {
					log.Error("CheckinService.SubmitScan re-read after lost race failed", "error", err)
					return nil, apperror.Internal("check-in could not be recorded", err)
				}
			}
			if !winner.CheckedIn {
				log.Error("CheckinService.SubmitScan conditional update matched nothing but guest is unchecked",
					"tier", strategy.Name())
				return nil, apperror.Internal("check-in could not be recorded", errTiersExhausted)
			}
			log.Info("CheckinService.SubmitScan lost race", "tier", strategy.Name())
			return s.result(winner, true), errAlreadyCheckedIn

		case CommitRejected:
			log.Warn("CheckinService.SubmitScan tier rejected by schema",
				"tier", strategy.Name(), "reason", res.Reason)
		}
	}

	log.Error("CheckinService.SubmitScan all commit tiers exhausted")
	return nil, apperror.Internal("check-in could not be recorded", errTiersExhausted)
}

// committed re-reads the row so the reported timestamp is the stored one,
// identical to what later conflicts will resolve.
func (s *CheckinService) committed(ctx context.Context, log *slog.Logger, guest *models.Guest, now time.Time) *models.CheckinResult {
	stored, err := s.findGuest(ctx, guest.ID, guest.EventID)
	if err != nil {
		log.Warn("CheckinService.SubmitScan re-read after commit failed", "error", err)
		fallback := *guest
		fallback.CheckedIn = true
		fallback.CheckedInAt = &now
		stored = &fallback
	}
	log.Info("CheckinService.SubmitScan committed")
	return s.result(stored, false)
}

func (s *CheckinService) findGuest(ctx context.Context, id, eventID string) (*models.Guest, error) {
	var guest models.Guest
	err := s.DB.WithContext(ctx).Where("id = ? AND event_id = ?", id, eventID).First(&guest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errGuestNotFound
	}
	if err != nil {
		return nil, apperror.Internal("guest lookup failed", err)
	}
	return &guest, nil
}

func (s *CheckinService) result(guest *models.Guest, already bool) *models.CheckinResult {
	at := guest.ResolvedCheckInTime()
	return &models.CheckinResult{
		GuestID:          guest.ID,
		Name:             guest.Name,
		Phone:            guest.Phone,
		CheckedInAt:      at,
		CheckedInDisplay: localtime.Format(at, s.Location),
		AlreadyCheckedIn: already,
	}
}

// validateScanRequest checks the request without touching storage.
func validateScanRequest(req models.ScanRequest) (string, models.Method, error) {
	method := req.Method
	if method == "" {
		method = models.MethodQRCode
	}
	if !method.Valid() {
		return "", "", apperror.Validation("invalid_method", "method must be qr_code or name_search")
	}

	identifier := utils.NormalizeGuestIdentifier(req.Identifier)
	if !utils.IsValidGuestIdentifier(identifier) {
		return "", "", apperror.Validation("invalid_identifier", "identifier is not a valid guest token")
	}
	return identifier, method, nil
}
