package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"checkin-backend/models"
	"checkin-backend/utils"
)

// GuestService reads guest lists for scanner snapshots and counters.
// Guests are written by the registration system; Create exists for
// seeding and tests.
type GuestService struct {
	DB *gorm.DB

	log *slog.Logger
}

func NewGuestService(db *gorm.DB, logger *slog.Logger) *GuestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuestService{DB: db, log: logger}
}

// ----------------------------------------------------
// CREATE: pointer so generated fields land on the caller's value
// ----------------------------------------------------
func (s *GuestService) Create(ctx context.Context, guest *models.Guest) error {
	guest.ID = utils.NormalizeGuestIdentifier(guest.ID)
	if !utils.IsValidGuestIdentifier(guest.ID) {
		return fmt.Errorf("guest id %q is not a uuid", guest.ID)
	}
	if err := s.DB.WithContext(ctx).Create(guest).Error; err != nil {
		return fmt.Errorf("create guest: %w", err)
	}
	return nil
}

// ----------------------------------------------------
// ListByEvent: the full snapshot a scanner caches for offline use
// ----------------------------------------------------
func (s *GuestService) ListByEvent(ctx context.Context, eventID string) ([]models.Guest, error) {
	var guests []models.Guest
	err := s.DB.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("name ASC, id ASC").
		Find(&guests).Error
	if err != nil {
		utils.Logger(ctx, s.log).Error("GuestService.ListByEvent failed", "event_id", eventID, "error", err)
		return nil, fmt.Errorf("list guests: %w", err)
	}

	// Older rows may only carry the legacy timestamp; hand scanners the
	// resolved value so their cache shows the same time the server would.
	for i := range guests {
		if guests[i].CheckedIn && guests[i].CheckedInAt == nil {
			at := guests[i].ResolvedCheckInTime()
			guests[i].CheckedInAt = &at
		}
	}
	return guests, nil
}

// ----------------------------------------------------
// Stats: admitted vs. registered for the door counter
// ----------------------------------------------------
func (s *GuestService) Stats(ctx context.Context, eventID string) (models.EventStats, error) {
	stats := models.EventStats{EventID: eventID}
	db := s.DB.WithContext(ctx).Model(&models.Guest{}).Where("event_id = ?", eventID)

	if err := db.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("count guests: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Where("checked_in = ?", true).Count(&stats.CheckedIn).Error; err != nil {
		return stats, fmt.Errorf("count checked-in guests: %w", err)
	}
	return stats, nil
}
