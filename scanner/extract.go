package scanner

import (
	"net/url"
	"path"
	"strings"

	"checkin-backend/utils"
)

// ExtractIdentifier finds the guest id in a decoded QR payload. Tickets
// carry either the bare id or a link whose last path segment, or id
// query parameter, is the id. The boolean is false when no well-formed
// id was found; the trimmed payload is returned in that case.
func ExtractIdentifier(payload string) (string, bool) {
	raw := strings.TrimSpace(payload)
	if id := utils.NormalizeGuestIdentifier(raw); utils.IsValidGuestIdentifier(id) {
		return id, true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}
	if id := utils.NormalizeGuestIdentifier(u.Query().Get("id")); utils.IsValidGuestIdentifier(id) {
		return id, true
	}
	if id := utils.NormalizeGuestIdentifier(path.Base(strings.TrimRight(u.Path, "/"))); utils.IsValidGuestIdentifier(id) {
		return id, true
	}
	return raw, false
}
