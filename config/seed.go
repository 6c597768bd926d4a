package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"checkin-backend/models"
	"checkin-backend/utils"
)

const DemoEventID = "demo-event"

// SeedDemo fills an empty database with one event's guests and an
// active scanner session. It does nothing when the event already has
// guests.
func SeedDemo(db *gorm.DB, log *slog.Logger) error {
	var count int64
	if err := db.Model(&models.Guest{}).Where("event_id = ?", DemoEventID).Count(&count).Error; err != nil {
		return fmt.Errorf("count demo guests: %w", err)
	}
	if count > 0 {
		log.Info("demo data already seeded", "event_id", DemoEventID)
		return nil
	}

	now := time.Now().UTC()
	legacy := now.Add(-90 * time.Minute)

	guests := []models.Guest{
		{ID: uuid.NewString(), EventID: DemoEventID, Name: "Ana Souza", Phone: "+55 11 98765-4321"},
		{ID: uuid.NewString(), EventID: DemoEventID, Name: "José Álvarez", Phone: "+34 612 345 678"},
		{ID: uuid.NewString(), EventID: DemoEventID, Name: "Chloé Martin", Phone: "+33 6 12 34 56 78"},
		{ID: uuid.NewString(), EventID: DemoEventID, Name: "Somchai Jaidee", Phone: "+66 81 234 5678"},
		// Checked in before checked_in_at existed.
		{ID: uuid.NewString(), EventID: DemoEventID, Name: "Maria Silva", Phone: "+55 21 99876-5432",
			CheckedIn: true, CheckInTime: &legacy},
	}

	token := utils.EnvOrDefault("SEED_DEMO_TOKEN", "")
	if token == "" {
		generated, err := utils.GenerateSecureToken(24)
		if err != nil {
			return fmt.Errorf("generate demo token: %w", err)
		}
		token = generated
	}

	session := models.ScannerSession{
		Token:        token,
		ScannerID:    "door-1",
		EventID:      DemoEventID,
		Status:       models.SessionStatusActive,
		Metadata:     datatypes.JSONMap{"label": "Demo door scanner"},
		LastActivity: now,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&guests).Error; err != nil {
			return fmt.Errorf("create demo guests: %w", err)
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("create demo session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("demo data seeded",
		"event_id", DemoEventID,
		"guests", len(guests),
		"scanner_id", session.ScannerID,
		"token", token)
	return nil
}
