package services

import (
	"context"
	"log/slog"
	"sort"

	"gorm.io/gorm"

	"checkin-backend/apperror"
	"checkin-backend/models"
	"checkin-backend/textmatch"
	"checkin-backend/utils"
)

// SearchService resolves a free-text query (name or phone fragment) to
// guest candidates when a QR code cannot be read.
type SearchService struct {
	DB *gorm.DB

	log *slog.Logger
}

func NewSearchService(db *gorm.DB, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{DB: db, log: logger}
}

// Search matches query against the names and phone digits of the
// event's guests. Matching runs in Go rather than SQL so accent folding
// behaves the same on every supported database and on the scanner.
func (s *SearchService) Search(ctx context.Context, eventID, query string, limit int) ([]models.SearchCandidate, error) {
	q := textmatch.NewQuery(query)
	if q.Empty() {
		return nil, apperror.Validation("invalid_query", "search query is required")
	}
	limit = textmatch.ClampLimit(limit)

	var guests []models.Guest
	err := s.DB.WithContext(ctx).
		Select("id", "event_id", "name", "phone", "checked_in", "checked_in_at").
		Where("event_id = ?", eventID).
		Find(&guests).Error
	if err != nil {
		utils.Logger(ctx, s.log).Error("SearchService.Search failed", "event_id", eventID, "error", err)
		return nil, apperror.Internal("search failed", err)
	}

	candidates := make([]models.SearchCandidate, 0)
	for _, g := range guests {
		score, ok := q.Score(g.Name, g.Phone)
		if !ok {
			continue
		}
		candidates = append(candidates, models.SearchCandidate{
			GuestID:     g.ID,
			Name:        g.Name,
			Phone:       g.Phone,
			CheckedIn:   g.CheckedIn,
			CheckedInAt: g.CheckedInAt,
			Score:       score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		return textmatch.Before(a.Score, b.Score, a.CheckedIn, b.CheckedIn, a.Name, b.Name)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	utils.Logger(ctx, s.log).Info("SearchService.Search",
		"event_id", eventID, "matches", len(candidates))
	return candidates, nil
}
