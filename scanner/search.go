package scanner

import (
	"sort"

	"checkin-backend/models"
	"checkin-backend/textmatch"
)

// SearchOffline scores the cached snapshot the way the coordinator
// scores its guest table.
func SearchOffline(guests []CachedGuest, query string, limit int) []models.SearchCandidate {
	q := textmatch.NewQuery(query)
	if q.Empty() {
		return nil
	}
	limit = textmatch.ClampLimit(limit)

	out := make([]models.SearchCandidate, 0)
	for _, g := range guests {
		score, ok := q.Score(g.Name, g.Phone)
		if !ok {
			continue
		}
		c := models.SearchCandidate{
			GuestID:   g.ID,
			Name:      g.Name,
			Phone:     g.Phone,
			CheckedIn: g.Admitted(),
			Score:     score,
		}
		if at := g.AdmittedAt(); !at.IsZero() {
			c.CheckedInAt = &at
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return textmatch.Before(out[i].Score, out[j].Score, out[i].CheckedIn, out[j].CheckedIn, out[i].Name, out[j].Name)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
