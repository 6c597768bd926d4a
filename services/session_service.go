package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"checkin-backend/apperror"
	"checkin-backend/models"
	"checkin-backend/utils"
)

var errSessionInvalid = apperror.Auth("session_invalid", "scanner session is missing, invalid or expired")

// SessionService validates scanner credentials. A session is the only
// authorization boundary for check-in calls.
type SessionService struct {
	DB      *gorm.DB
	IdleTTL time.Duration

	log *slog.Logger
	now func() time.Time
}

func NewSessionService(db *gorm.DB, idleTTL time.Duration, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{DB: db, IdleTTL: idleTTL, log: logger, now: time.Now}
}

// Authorize resolves token to an active session. Every failure mode
// (malformed, unknown, expired, idle) returns the same AuthError so a
// caller cannot probe which one applied.
func (s *SessionService) Authorize(ctx context.Context, token string) (*models.ScannerSession, error) {
	if !utils.IsWellFormedToken(token) {
		return nil, errSessionInvalid
	}

	log := utils.Logger(ctx, s.log).With("token", utils.TokenFingerprint(token))

	var session models.ScannerSession
	err := s.DB.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Info("SessionService.Authorize unknown token")
		return nil, errSessionInvalid
	}
	if err != nil {
		log.Error("SessionService.Authorize lookup failed", "error", err)
		return nil, apperror.Internal("session lookup failed", err)
	}

	now := s.now().UTC()
	if !session.IsActive(now, s.IdleTTL) {
		log.Info("SessionService.Authorize inactive session",
			"scanner_id", session.ScannerID, "status", session.Status)
		return nil, errSessionInvalid
	}

	if err := s.DB.WithContext(ctx).
		Model(&models.ScannerSession{}).
		Where("id = ?", session.ID).
		UpdateColumn("last_activity", now).Error; err != nil {
		log.Warn("SessionService.Authorize could not bump last_activity", "error", err)
	} else {
		session.LastActivity = now
	}

	return &session, nil
}
